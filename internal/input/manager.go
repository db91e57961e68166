package input

import (
	"context"
	"errors"
	"log/slog"

	"rdesktopd/internal/logging"
)

// Device receives raw input events.
type Device interface {
	Emit(events []RawEvent) error
	Close() error
}

// DefaultQueueSize bounds the pending batch channel.
const DefaultQueueSize = 100

// Manager forwards batches to the virtual keyboard and mouse.
type Manager struct {
	keyboard Device
	mouse    Device
	events   chan Event
	logger   *slog.Logger
}

// NewManager builds a Manager with a channel of the given capacity.
func NewManager(keyboard, mouse Device, queueSize int, logger *slog.Logger) *Manager {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		keyboard: keyboard,
		mouse:    mouse,
		events:   make(chan Event, queueSize),
		logger:   logger,
	}
}

// Send queues a batch, blocking while the queue is full. Batches are applied
// in send order.
func (m *Manager) Send(ctx context.Context, ev Event) error {
	if ev == nil {
		return errors.New("nil input event")
	}
	select {
	case m.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue until ctx is cancelled or the channel is closed.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("input manager started", logging.String(logging.FieldEventType, "input_started"))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-m.events:
			if !ok {
				return nil
			}
			m.dispatch(ev)
		}
	}
}

func (m *Manager) dispatch(ev Event) {
	var (
		device Device
		kind   string
	)
	switch ev.(type) {
	case KeyboardBatch:
		device, kind = m.keyboard, "keyboard"
	case MouseBatch:
		device, kind = m.mouse, "mouse"
	default:
		m.logger.Debug("ignoring unknown input event")
		return
	}
	if device == nil {
		return
	}
	if err := device.Emit(ev.rawEvents()); err != nil {
		logging.WarnWithContext(m.logger, "failed to write input events", "input_emit_failed",
			logging.Error(err),
			logging.String("device", kind),
			logging.String(logging.FieldErrorHint, "check access to the uinput device"),
			logging.String(logging.FieldImpact, "remote input batch dropped"),
		)
	}
}

// Close releases both devices.
func (m *Manager) Close() error {
	var errs []error
	for _, dev := range []Device{m.keyboard, m.mouse} {
		if dev == nil {
			continue
		}
		if err := dev.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
