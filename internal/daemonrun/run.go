package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"rdesktopd/internal/announce"
	"rdesktopd/internal/capture"
	"rdesktopd/internal/config"
	"rdesktopd/internal/daemon"
	"rdesktopd/internal/encoder"
	"rdesktopd/internal/history"
	"rdesktopd/internal/hotplug"
	"rdesktopd/internal/input"
	"rdesktopd/internal/logging"
	"rdesktopd/internal/portal"
	"rdesktopd/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Diagnostic tees a debug-level JSON stream into <log_dir>/debug.
	Diagnostic bool
}

// Run starts the rdesktopd runtime loop and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stamp := time.Now().UTC().Format("20060102T150405.000Z")
	runID := uuid.NewString()
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("rdesktopd-%s.log", stamp))

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		RunID:            runID,
		ComponentLevels:  cfg.Logging.ComponentLevels,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if opts.Diagnostic {
		debugFile, err := openDebugLog(cfg.Paths.LogDir, stamp)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warn: unable to initialize debug log: %v\n", err)
		} else {
			defer debugFile.Close()
			logger = logging.TeeLogger(logger, logging.NewJSONFileHandler(debugFile))
			logger.Info("diagnostic mode enabled",
				logging.String(logging.FieldEventType, "diagnostic_mode_enabled"),
				logging.String("debug_log_path", debugFile.Name()),
			)
		}
	}

	logDependencySnapshot(signalCtx, logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update rdesktopd.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "rdesktopd-*.log", Exclude: []string{logPath}},
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "encoder-*.log"},
		logging.RetentionTarget{Dir: filepath.Join(cfg.Paths.LogDir, "debug"), Pattern: "rdesktopd-*.jsonl"},
	)
	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	levels := cfg.Logging.ComponentLevels
	bus, err := portal.NewSessionBus(logging.ForComponent(logger, "portal", levels))
	if err != nil {
		logging.ErrorWithContext(logger, "session bus unavailable", "session_bus_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run inside a graphical session with DBUS_SESSION_BUS_ADDRESS set"),
		)
		return err
	}
	defer bus.Close()

	comps, cleanup, err := buildComponents(cfg, bus, logger, runID)
	if err != nil {
		return err
	}
	defer cleanup()

	d, err := daemon.New(cfg, logging.ForComponent(logger, "daemon", levels), comps)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "approve the screen-cast dialog or check the portal backend"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("rdesktopd daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func buildComponents(cfg *config.Config, bus *portal.SessionBus, logger *slog.Logger, runID string) (daemon.Components, func(), error) {
	levels := cfg.Logging.ComponentLevels
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	encOpts := []encoder.Option{encoder.WithLogger(logging.ForComponent(logger, "encoder", levels))}
	if cfg.Encoder.LogOutput {
		encOpts = append(encOpts, encoder.WithLogDir(cfg.Paths.LogDir))
	}
	supervisor, err := encoder.New(cfg.Encoder.Binary, cfg.Encoder.Args, encOpts...)
	if err != nil {
		return daemon.Components{}, cleanup, fmt.Errorf("create encoder supervisor: %w", err)
	}

	persist, err := portal.ParsePersistMode(cfg.Capture.PersistMode)
	if err != nil {
		return daemon.Components{}, cleanup, err
	}
	client := portal.NewClient(bus,
		portal.WithTimeout(cfg.BrokerTimeout()),
		portal.WithLogger(logging.ForComponent(logger, "portal", levels)),
	)
	captureOpts := []capture.Option{
		capture.WithTokenStore(capture.FileTokenStore{Path: cfg.RestoreTokenPath()}),
		capture.WithLogger(logging.ForComponent(logger, "capture", levels)),
		capture.WithPersistMode(persist),
		capture.WithParentWindow(cfg.Capture.ParentWindow),
		capture.WithRunID(runID),
	}
	if cfg.Capture.History {
		store, err := openHistory(cfg, logger)
		if err != nil {
			logging.WarnWithContext(logger, "capture history unavailable", "history_unavailable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check permissions on "+cfg.HistoryPath()),
				logging.String(logging.FieldImpact, "negotiations will not be journaled"),
			)
		} else {
			closers = append(closers, func() { _ = store.Close() })
			captureOpts = append(captureOpts, capture.WithJournal(store))
		}
	}

	comps := daemon.Components{
		Capture:  capture.NewManager(client, supervisor, captureOpts...),
		Encoders: supervisor,
	}

	if cfg.Input.Enabled {
		if mgr, err := openInput(cfg, logging.ForComponent(logger, "input", levels)); err != nil {
			logging.WarnWithContext(logger, "virtual input unavailable", "input_unavailable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "grant write access to "+cfg.Input.Device),
				logging.String(logging.FieldImpact, "remote keyboard and mouse input is ignored"),
			)
		} else {
			comps.Input = mgr
		}
	}

	if cfg.Announce.Enabled {
		comps.Announcer = announce.New(bus.Conn(), cfg.Announce.BusName, cfg.Announce.ObjectPath,
			logging.ForComponent(logger, "announce", levels))
	}

	if cfg.Hotplug.Enabled {
		hotplugLogger := logging.ForComponent(logger, "hotplug", levels)
		comps.Hotplug = hotplug.New(hotplugLogger, func(_ context.Context, ev hotplug.Event) {
			logging.WarnWithContext(hotplugLogger, "desktop list may be stale", "desktops_stale",
				logging.String("device", ev.Device),
				logging.String(logging.FieldErrorHint, "restart rdesktopd to renegotiate capture"),
				logging.String(logging.FieldImpact, "clients keep the desktops negotiated at startup"),
			)
		})
	}
	return comps, cleanup, nil
}

func openHistory(cfg *config.Config, logger *slog.Logger) (*history.Store, error) {
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return nil, err
	}
	if cfg.Logging.RetentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -cfg.Logging.RetentionDays)
		if removed, err := store.Prune(context.Background(), cutoff); err != nil {
			logger.Warn("history prune failed", logging.Error(err))
		} else if removed > 0 {
			logger.Info("history pruned", logging.Int64("removed", removed))
		}
	}
	return store, nil
}

func openInput(cfg *config.Config, logger *slog.Logger) (*input.Manager, error) {
	keyboard, err := input.OpenKeyboard(cfg.Input.Device)
	if err != nil {
		return nil, fmt.Errorf("open keyboard: %w", err)
	}
	mouse, err := input.OpenMouse(cfg.Input.Device)
	if err != nil {
		_ = keyboard.Close()
		return nil, fmt.Errorf("open mouse: %w", err)
	}
	return input.NewManager(keyboard, mouse, cfg.Input.QueueSize, logger), nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "rdesktopd.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func openDebugLog(logDir, stamp string) (*os.File, error) {
	debugDir := filepath.Join(logDir, "debug")
	if err := os.MkdirAll(debugDir, 0o755); err != nil {
		return nil, fmt.Errorf("create debug log directory: %w", err)
	}
	path := filepath.Join(debugDir, fmt.Sprintf("rdesktopd-%s.jsonl", stamp))
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	results := preflight.RunAll(ctx, cfg)
	attrs := []logging.Attr{logging.String(logging.FieldEventType, "dependency_snapshot")}
	for _, r := range results {
		attrs = append(attrs, logging.Bool(snapshotKey(r.Name), r.Passed))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
	for _, r := range results {
		if r.Passed || r.Optional {
			continue
		}
		logging.WarnWithContext(logger, "dependency check failed", "dependency_missing",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "run `rdesktopd check` for details"),
			logging.String(logging.FieldImpact, "capture negotiation or encoding is likely to fail"),
		)
	}
}

func snapshotKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_") + "_ok"
}
