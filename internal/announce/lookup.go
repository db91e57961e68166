package announce

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// ErrNotListening reports an announced port of zero.
var ErrNotListening = errors.New("daemon has no client listener")

// Lookup asks the process owning busName for its client listener port.
func Lookup(ctx context.Context, conn *dbus.Conn, busName, objectPath string) (uint16, error) {
	var port uint16
	obj := conn.Object(busName, dbus.ObjectPath(objectPath))
	if err := obj.CallWithContext(ctx, busName+".GetAddress", 0).Store(&port); err != nil {
		return 0, fmt.Errorf("query %s: %w", busName, err)
	}
	if port == 0 {
		return 0, ErrNotListening
	}
	return port, nil
}
