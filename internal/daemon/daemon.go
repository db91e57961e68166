package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"rdesktopd/internal/capture"
	"rdesktopd/internal/config"
	"rdesktopd/internal/input"
	"rdesktopd/internal/logging"
	"rdesktopd/internal/server"
)

const closeTimeout = 10 * time.Second

// Capture negotiates and tears down the screen-cast session.
type Capture interface {
	BeginCapture(ctx context.Context) ([]capture.Desktop, error)
	Close(ctx context.Context) error
	State() capture.State
	Desktops() []capture.Desktop
}

// Announcer publishes the client listener port.
type Announcer interface {
	SetPort(port uint16)
	Publish() error
	Close() error
}

// Injector consumes input events forwarded by WebSocket clients.
type Injector interface {
	Send(ctx context.Context, ev input.Event) error
	Run(ctx context.Context) error
	Close() error
}

// Watcher reports display topology changes.
type Watcher interface {
	Start(ctx context.Context) error
	Stop()
	Changes() int64
}

// Encoders lets Stop wait for every encoder supervisor to finish.
type Encoders interface {
	Wait()
}

// Components are the collaborators a daemon drives. Capture is required; the
// rest are optional.
type Components struct {
	Capture   Capture
	Announcer Announcer
	Input     Injector
	Hotplug   Watcher
	Encoders  Encoders
}

// Daemon coordinates the capture session and client listeners and enforces
// single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	comps  Components
	server *server.Server

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	addr    string
	wsAddr  string
	serving sync.WaitGroup
	inputWG sync.WaitGroup

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running          bool
	CaptureState     capture.State
	Desktops         []capture.Desktop
	Address          string
	WebSocketAddress string
	Clients          int
	DisplayChanges   int64
	LockFilePath     string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, comps Components) (*Daemon, error) {
	if cfg == nil || comps.Capture == nil {
		return nil, errors.New("daemon requires config and capture manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	opts := []server.Option{
		server.WithLogger(logging.ForComponent(logger, "server", cfg.Logging.ComponentLevels)),
		server.WithAPIRevision(uint64(cfg.Server.APIRevision)),
	}
	if comps.Input != nil {
		opts = append(opts, server.WithInput(comps.Input))
	}

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		comps:    comps,
		server:   server.New(comps.Capture, opts...),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, negotiates capture, and opens the client
// listeners. A capture failure is fatal and releases the lock.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another rdesktopd instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.startComponents(d.ctx); err != nil {
		d.abortStart()
		return err
	}

	d.running.Store(true)
	d.logger.Info("rdesktopd daemon started",
		logging.String("lock", d.lockPath),
		logging.String("listen", d.addr),
		logging.Int("desktops", len(d.comps.Capture.Desktops())),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

func (d *Daemon) startComponents(ctx context.Context) error {
	if d.comps.Input != nil {
		d.inputWG.Add(1)
		go func() {
			defer d.inputWG.Done()
			if err := d.comps.Input.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logging.WarnWithContext(d.logger, "input loop stopped", "input_stopped",
					logging.Error(err),
					logging.String(logging.FieldImpact, "remote input is no longer injected"),
				)
			}
		}()
	}

	if _, err := d.comps.Capture.BeginCapture(ctx); err != nil {
		return fmt.Errorf("begin capture: %w", err)
	}

	ln, err := net.Listen("tcp", d.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", d.cfg.Server.Listen, err)
	}
	d.serve(ln.Addr().String(), func() error { return d.server.Serve(ctx, ln) })

	if addr := d.cfg.Server.WebSocketListen; addr != "" {
		wsLn, err := net.Listen("tcp", addr)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		d.mu.Lock()
		d.wsAddr = wsLn.Addr().String()
		d.mu.Unlock()
		d.serving.Add(1)
		go func() {
			defer d.serving.Done()
			if err := d.server.ServeWebSocket(ctx, wsLn); err != nil {
				logging.WarnWithContext(d.logger, "websocket listener stopped", "websocket_stopped",
					logging.Error(err),
					logging.String(logging.FieldImpact, "browser clients cannot connect"),
				)
			}
		}()
	}

	if d.comps.Announcer != nil {
		if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
			d.comps.Announcer.SetPort(uint16(tcp.Port))
		}
		if err := d.comps.Announcer.Publish(); err != nil {
			logging.WarnWithContext(d.logger, "port announcement unavailable", "announce_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "clients must be given the listen address explicitly"),
				logging.String(logging.FieldImpact, "session-bus discovery is disabled"),
			)
		}
	}

	if d.comps.Hotplug != nil {
		if err := d.comps.Hotplug.Start(ctx); err != nil {
			logging.WarnWithContext(d.logger, "hotplug watcher unavailable", "hotplug_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "display changes will not be reported"),
			)
		}
	}
	return nil
}

func (d *Daemon) serve(addr string, fn func() error) {
	d.mu.Lock()
	d.addr = addr
	d.mu.Unlock()
	d.serving.Add(1)
	go func() {
		defer d.serving.Done()
		if err := fn(); err != nil {
			logging.ErrorWithContext(d.logger, "client listener stopped", "listener_stopped",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "restart the daemon"),
			)
		}
	}()
}

// abortStart unwinds a partially started daemon.
func (d *Daemon) abortStart() {
	d.cancel()
	d.server.Close()
	d.serving.Wait()
	d.closeCapture()
	d.inputWG.Wait()
	if d.comps.Input != nil {
		_ = d.comps.Input.Close()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.cancel = nil
	d.mu.Lock()
	d.addr, d.wsAddr = "", ""
	d.mu.Unlock()
}

// Stop shuts the daemon down and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.Close()
	d.serving.Wait()
	d.closeCapture()
	if d.comps.Hotplug != nil {
		d.comps.Hotplug.Stop()
	}
	if d.comps.Announcer != nil {
		if err := d.comps.Announcer.Close(); err != nil {
			d.logger.Warn("failed to withdraw port announcement", logging.Error(err))
		}
	}
	d.inputWG.Wait()
	if d.comps.Input != nil {
		if err := d.comps.Input.Close(); err != nil {
			d.logger.Warn("failed to destroy virtual input devices", logging.Error(err))
		}
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.mu.Lock()
	d.addr, d.wsAddr = "", ""
	d.mu.Unlock()
	d.running.Store(false)
	d.logger.Info("rdesktopd daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

func (d *Daemon) closeCapture() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := d.comps.Capture.Close(ctx); err != nil {
		logging.WarnWithContext(d.logger, "failed to close capture session", "capture_close_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the portal may keep the session until logout"),
		)
	}
	if d.comps.Encoders != nil {
		d.comps.Encoders.Wait()
	}
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Status returns a snapshot of the daemon state.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	addr, wsAddr := d.addr, d.wsAddr
	d.mu.Unlock()
	status := Status{
		Running:          d.running.Load(),
		CaptureState:     d.comps.Capture.State(),
		Desktops:         d.comps.Capture.Desktops(),
		Address:          addr,
		WebSocketAddress: wsAddr,
		Clients:          d.server.Clients(),
		LockFilePath:     d.lockPath,
	}
	if d.comps.Hotplug != nil {
		status.DisplayChanges = d.comps.Hotplug.Changes()
	}
	return status
}
