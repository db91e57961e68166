// Package hotplug watches kernel uevents for display connector changes.
//
// The portal grants streams for the monitors present at negotiation time, so
// a connector change means the advertised desktop list may be stale. The
// watcher reports such changes to a handler; it never renegotiates on its own.
package hotplug

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pilebones/go-udev/netlink"

	"rdesktopd/internal/logging"
)

// Event describes one display connector change.
type Event struct {
	Device string
	Action string
}

// Handler reacts to a display change.
type Handler func(ctx context.Context, ev Event)

// Watcher listens for drm hotplug uevents.
type Watcher struct {
	logger  *slog.Logger
	handler Handler
	changes atomic.Int64

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// New creates a stopped watcher.
func New(logger *slog.Logger, handler Handler) *Watcher {
	return &Watcher{
		logger:  logging.NewComponentLogger(logger, "hotplug"),
		handler: handler,
	}
}

// Start connects to the kernel uevent socket. Failure to connect is logged
// and reported as success so the daemon keeps running without hotplug.
func (w *Watcher) Start(ctx context.Context) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.KernelEvent); err != nil {
		logging.WarnWithContext(w.logger, "failed to connect to netlink socket; display changes will go unnoticed", "hotplug_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the daemon may open NETLINK_KOBJECT_UEVENT sockets"),
			logging.String(logging.FieldImpact, "desktop list is not refreshed after monitor changes"),
		)
		return nil
	}

	w.conn = conn
	w.quit = make(chan struct{})
	w.running = true
	go w.loop(ctx, conn, w.quit)

	w.logger.Info("hotplug watcher started", logging.String(logging.FieldEventType, "hotplug_started"))
	return nil
}

// Stop closes the uevent socket.
func (w *Watcher) Stop() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.quit)
	w.quit = nil
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.running = false
	w.logger.Info("hotplug watcher stopped", logging.String(logging.FieldEventType, "hotplug_stopped"))
}

// Running reports whether the watcher is connected.
func (w *Watcher) Running() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Changes returns the number of display changes seen.
func (w *Watcher) Changes() int64 {
	if w == nil {
		return 0
	}
	return w.changes.Load()
}

func (w *Watcher) loop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			w.handleEvent(ctx, uevent)
		case err := <-errs:
			logging.WarnWithContext(w.logger, "netlink monitor error", "hotplug_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "display changes may be missed"),
			)
		}
	}
}

// buildMatcher matches SUBSYSTEM=drm, HOTPLUG=1 change events.
func buildMatcher() netlink.Matcher {
	action := "change"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "drm",
			"HOTPLUG":   "1",
		},
	})
	return rules
}

func (w *Watcher) handleEvent(ctx context.Context, uevent netlink.UEvent) {
	device := deviceName(uevent)
	if device == "" {
		w.logger.Debug("ignoring drm event without device", logging.String("kobj", uevent.KObj))
		return
	}
	count := w.changes.Add(1)
	w.logger.Info("display topology changed",
		logging.String(logging.FieldEventType, "display_changed"),
		logging.String("device", device),
		logging.String("action", string(uevent.Action)),
		logging.Int64("changes", count),
	)
	if w.handler != nil {
		w.handler(ctx, Event{Device: device, Action: string(uevent.Action)})
	}
}

func deviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if strings.HasPrefix(devname, "/") {
			return devname
		}
		return "/dev/" + devname
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(strings.TrimRight(devpath, "/"), "/")
	return "/dev/dri/" + parts[len(parts)-1]
}
