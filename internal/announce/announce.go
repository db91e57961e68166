// Package announce publishes the client listener port on the session bus so
// local tools can discover where the daemon is listening.
package announce

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"rdesktopd/internal/logging"
)

// ErrNameTaken reports that another process owns the bus name.
var ErrNameTaken = errors.New("bus name already owned")

// Conn is the subset of *dbus.Conn the service needs.
type Conn interface {
	Export(v any, path dbus.ObjectPath, iface string) error
	ExportMethodTable(methods map[string]any, path dbus.ObjectPath, iface string) error
	RequestName(name string, flags dbus.RequestNameFlags) (dbus.RequestNameReply, error)
	ReleaseName(name string) (dbus.ReleaseNameReply, error)
}

// Service exports GetAddress on a well-known bus name. The interface name
// equals the bus name.
type Service struct {
	busName string
	path    dbus.ObjectPath
	logger  *slog.Logger
	port    atomic.Uint32

	conn Conn

	mu        sync.Mutex
	published bool
}

// New creates an unpublished service bound to conn.
func New(conn Conn, busName, objectPath string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{conn: conn, busName: busName, path: dbus.ObjectPath(objectPath), logger: logger}
}

// SetPort updates the advertised port.
func (s *Service) SetPort(port uint16) {
	s.port.Store(uint32(port))
}

// GetAddress returns the advertised port. It is the exported bus method.
func (s *Service) GetAddress() (uint16, *dbus.Error) {
	return uint16(s.port.Load()), nil
}

func (s *Service) introspection() string {
	node := &introspect.Node{
		Name: string(s.path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name: s.busName,
				Methods: []introspect.Method{{
					Name: "GetAddress",
					Args: []introspect.Arg{{Name: "port", Type: "q", Direction: "out"}},
				}},
			},
		},
	}
	return string(introspect.NewIntrospectable(node))
}

// Publish exports the object and claims the bus name.
func (s *Service) Publish() error {
	conn := s.conn
	if conn == nil {
		return errors.New("announce: no bus connection")
	}
	if !s.path.IsValid() {
		return fmt.Errorf("invalid object path %q", s.path)
	}
	methods := map[string]any{"GetAddress": s.GetAddress}
	if err := conn.ExportMethodTable(methods, s.path, s.busName); err != nil {
		return fmt.Errorf("export %s: %w", s.busName, err)
	}
	if err := conn.Export(introspect.Introspectable(s.introspection()), s.path, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export introspection: %w", err)
	}
	reply, err := conn.RequestName(s.busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request name %s: %w", s.busName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner && reply != dbus.RequestNameReplyAlreadyOwner {
		return fmt.Errorf("%w: %s", ErrNameTaken, s.busName)
	}

	s.mu.Lock()
	s.published = true
	s.mu.Unlock()
	s.logger.Info("announcement published",
		logging.String(logging.FieldEventType, "announce_published"),
		logging.String("bus_name", s.busName),
		logging.String("object_path", string(s.path)),
		logging.Int("port", int(s.port.Load())),
	)
	return nil
}

// Close releases the bus name and unexports the object.
func (s *Service) Close() error {
	s.mu.Lock()
	published := s.published
	s.published = false
	s.mu.Unlock()
	if !published {
		return nil
	}
	conn := s.conn
	var errs []error
	if _, err := conn.ReleaseName(s.busName); err != nil {
		errs = append(errs, fmt.Errorf("release name: %w", err))
	}
	if err := conn.ExportMethodTable(nil, s.path, s.busName); err != nil {
		errs = append(errs, fmt.Errorf("unexport: %w", err))
	}
	return errors.Join(errs...)
}
