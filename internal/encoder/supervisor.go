package encoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"rdesktopd/internal/logging"
)

// Source identifies what an encoder captures.
type Source struct {
	NodeID uint32
	Width  int32
	Height int32
}

// Process is a started encoder process.
type Process interface {
	Kill() error
	Wait() error
	Pid() int
}

// Starter starts encoder processes. Output receives combined stdout and
// stderr and may be nil.
type Starter interface {
	Start(binary string, args []string, output io.Writer) (Process, error)
}

// PortReserver returns a loopback port that is free at the time of the call.
type PortReserver func() (uint16, error)

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithStarter injects a custom process starter (primarily for tests).
func WithStarter(starter Starter) Option {
	return func(s *Supervisor) {
		if starter != nil {
			s.starter = starter
		}
	}
}

// WithPortReserver injects a custom port reservation function.
func WithPortReserver(reserve PortReserver) Option {
	return func(s *Supervisor) {
		if reserve != nil {
			s.reserve = reserve
		}
	}
}

// WithLogDir writes each encoder's output to encoder-<node>.log in dir.
func WithLogDir(dir string) Option {
	return func(s *Supervisor) {
		s.logDir = strings.TrimSpace(dir)
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Supervisor launches and tears down encoder processes.
type Supervisor struct {
	binary  string
	args    []string
	logDir  string
	logger  *slog.Logger
	starter Starter
	reserve PortReserver

	wg sync.WaitGroup
}

// New constructs a Supervisor for the given command template.
func New(binary string, args []string, opts ...Option) (*Supervisor, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("encoder binary required")
	}
	s := &Supervisor{
		binary:  binary,
		args:    append([]string(nil), args...),
		logger:  logging.NewNop(),
		starter: execStarter{},
		reserve: ReserveUDPPort,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Launch starts an encoder for src and supervises it until ctx is cancelled.
// The returned error is non-nil only when no process was started.
func (s *Supervisor) Launch(ctx context.Context, src Source) (*Handle, error) {
	port, err := s.reserve()
	if err != nil {
		return nil, fmt.Errorf("reserve port for node %d: %w", src.NodeID, err)
	}

	output, err := s.openOutput(src)
	if err != nil {
		return nil, err
	}

	args := ExpandArgs(s.args, src, port)
	proc, err := s.starter.Start(s.binary, args, output)
	if err != nil {
		if output != nil {
			output.Close()
		}
		return nil, fmt.Errorf("start encoder for node %d: %w", src.NodeID, err)
	}

	h := &Handle{
		source: src,
		port:   port,
		pid:    proc.Pid(),
		done:   make(chan struct{}),
	}
	logger := s.logger.With(
		logging.Uint64(logging.FieldNodeID, uint64(src.NodeID)),
		logging.Int("port", int(port)),
		logging.Int("pid", h.pid),
	)
	logger.Info("encoder started",
		logging.String(logging.FieldEventType, "encoder_started"),
		logging.String("size", fmt.Sprintf("%dx%d", src.Width, src.Height)),
	)

	exited := make(chan error, 1)
	go func() {
		err := proc.Wait()
		if output != nil {
			output.Close()
		}
		exited <- err
	}()

	s.wg.Add(1)
	go s.supervise(ctx, h, proc, exited, logger)
	return h, nil
}

func (s *Supervisor) supervise(ctx context.Context, h *Handle, proc Process, exited <-chan error, logger *slog.Logger) {
	defer s.wg.Done()
	defer close(h.done)

	select {
	case <-ctx.Done():
		if err := proc.Kill(); err != nil {
			logging.WarnWithContext(logger, "encoder kill failed", "encoder_kill_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check for a leftover encoder process"),
				logging.String(logging.FieldImpact, "encoder process may outlive the daemon"),
			)
			return
		}
		h.setExit(<-exited)
		logger.Info("encoder stopped", logging.String(logging.FieldEventType, "encoder_stopped"))
	case err := <-exited:
		h.setExit(err)
		logging.WarnWithContext(logger, "encoder exited before shutdown", "encoder_exited",
			logging.Any("exit", err),
			logging.String(logging.FieldErrorHint, "inspect the encoder log for pipeline errors"),
			logging.String(logging.FieldImpact, "desktop no longer streams until the daemon restarts"),
		)
	}
}

// Wait blocks until every supervised encoder has been torn down.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

func (s *Supervisor) openOutput(src Source) (io.WriteCloser, error) {
	if s.logDir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(s.logDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure encoder log dir: %w", err)
	}
	path := filepath.Join(s.logDir, "encoder-"+strconv.FormatUint(uint64(src.NodeID), 10)+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open encoder log: %w", err)
	}
	return file, nil
}

// ExpandArgs substitutes {node}, {width}, {height}, and {port} in each argument.
func ExpandArgs(template []string, src Source, port uint16) []string {
	r := strings.NewReplacer(
		"{node}", strconv.FormatUint(uint64(src.NodeID), 10),
		"{width}", strconv.FormatInt(int64(src.Width), 10),
		"{height}", strconv.FormatInt(int64(src.Height), 10),
		"{port}", strconv.FormatUint(uint64(port), 10),
	)
	out := make([]string, len(template))
	for i, arg := range template {
		out[i] = r.Replace(arg)
	}
	return out
}

// ReserveUDPPort binds an ephemeral loopback UDP port and releases it.
func ReserveUDPPort() (uint16, error) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.Port == 0 {
		return 0, fmt.Errorf("unexpected local address %v", conn.LocalAddr())
	}
	return uint16(addr.Port), nil
}
