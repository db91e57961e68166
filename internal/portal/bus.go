package portal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"

	"rdesktopd/internal/handle"
	"rdesktopd/internal/logging"
)

const (
	portalDest      = "org.freedesktop.portal.Desktop"
	portalPath      = dbus.ObjectPath("/org/freedesktop/portal/desktop")
	screenCastIface = "org.freedesktop.portal.ScreenCast"
	requestIface    = "org.freedesktop.portal.Request"
	sessionIface    = "org.freedesktop.portal.Session"
	responseMember  = "Response"
)

// Bus is the subset of a session-bus connection the portal client needs.
type Bus interface {
	// UniqueName is the connection's unique bus name, e.g. ":1.42".
	UniqueName() string
	// Subscribe delivers Request.Response signals for path until cancel is called.
	Subscribe(path dbus.ObjectPath) (<-chan Response, func(), error)
	// CallScreenCast invokes a ScreenCast method and stores its request path.
	CallScreenCast(ctx context.Context, method string, args ...any) (dbus.ObjectPath, error)
	// CloseSession invokes Session.Close on the session object.
	CloseSession(ctx context.Context, session dbus.ObjectPath) error
}

// RequestPath derives the object path the portal will use for a request
// created by sender with the given handle token.
func RequestPath(sender string, token handle.Handle) dbus.ObjectPath {
	return requestPathFor(sender, token.String())
}

func requestPathFor(sender, token string) dbus.ObjectPath {
	return dbus.ObjectPath("/org/freedesktop/portal/desktop/request/" + senderElement(sender) + "/" + token)
}

func senderElement(sender string) string {
	return strings.ReplaceAll(strings.TrimPrefix(sender, ":"), ".", "_")
}

// SessionBus is a Bus backed by a godbus session connection.
type SessionBus struct {
	conn   *dbus.Conn
	logger *slog.Logger
}

// NewSessionBus connects to the user's session bus.
func NewSessionBus(logger *slog.Logger) (*SessionBus, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &SessionBus{
		conn:   conn,
		logger: logging.NewComponentLogger(logger, "portal-bus"),
	}, nil
}

// Conn exposes the underlying connection for services that export objects.
func (b *SessionBus) Conn() *dbus.Conn {
	return b.conn
}

func (b *SessionBus) UniqueName() string {
	names := b.conn.Names()
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func (b *SessionBus) Subscribe(path dbus.ObjectPath) (<-chan Response, func(), error) {
	opts := []dbus.MatchOption{
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(requestIface),
		dbus.WithMatchMember(responseMember),
	}
	if err := b.conn.AddMatchSignal(opts...); err != nil {
		return nil, nil, fmt.Errorf("add match for %s: %w", path, err)
	}

	signals := make(chan *dbus.Signal, 8)
	b.conn.Signal(signals)

	out := make(chan Response, 1)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				if sig == nil || sig.Name != requestIface+"."+responseMember {
					continue
				}
				resp := decodeResponseSignal(sig)
				select {
				case out <- resp:
				case <-done:
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			b.conn.RemoveSignal(signals)
			if err := b.conn.RemoveMatchSignal(opts...); err != nil {
				b.logger.Debug("remove match failed", logging.String(logging.FieldRequestPath, string(path)), logging.Error(err))
			}
		})
	}
	return out, cancel, nil
}

func decodeResponseSignal(sig *dbus.Signal) Response {
	resp := Response{Path: sig.Path, Status: ResponseOther}
	if len(sig.Body) >= 1 {
		if code, ok := sig.Body[0].(uint32); ok {
			resp.Status = code
		}
	}
	if len(sig.Body) >= 2 {
		if results, ok := sig.Body[1].(map[string]dbus.Variant); ok {
			resp.Results = results
		}
	}
	return resp
}

func (b *SessionBus) CallScreenCast(ctx context.Context, method string, args ...any) (dbus.ObjectPath, error) {
	var request dbus.ObjectPath
	obj := b.conn.Object(portalDest, portalPath)
	if err := obj.CallWithContext(ctx, screenCastIface+"."+method, 0, args...).Store(&request); err != nil {
		return "", fmt.Errorf("%s.%s: %w", screenCastIface, method, err)
	}
	return request, nil
}

func (b *SessionBus) CloseSession(ctx context.Context, session dbus.ObjectPath) error {
	obj := b.conn.Object(portalDest, session)
	if call := obj.CallWithContext(ctx, sessionIface+".Close", 0); call.Err != nil {
		return fmt.Errorf("close session %s: %w", session, call.Err)
	}
	return nil
}

// Close releases the connection.
func (b *SessionBus) Close() error {
	return b.conn.Close()
}
