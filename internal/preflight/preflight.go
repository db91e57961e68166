package preflight

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"rdesktopd/internal/config"
)

// PortalBusName is the well-known name of the desktop portal frontend.
const PortalBusName = "org.freedesktop.portal.Desktop"

// Result reports the outcome of a single preflight check. Optional failures
// degrade a feature without preventing capture.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// NameOwnerFunc reports whether a bus name currently has an owner.
type NameOwnerFunc func(ctx context.Context, name string) (bool, error)

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckBinary("Encoder", cfg.Encoder.Binary),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		results = append(results, Result{Name: "Session bus", Detail: err.Error()})
	} else {
		defer conn.Close()
		detail := "connected"
		if names := conn.Names(); len(names) > 0 {
			detail = names[0]
		}
		results = append(results, Result{Name: "Session bus", Passed: true, Detail: detail})
		results = append(results, CheckPortal(ctx, busNameOwner(conn)))
	}

	results = append(results, CheckRestoreToken(cfg.RestoreTokenPath()))

	if cfg.Input.Enabled {
		results = append(results, CheckDeviceWritable("Virtual input", cfg.Input.Device))
	}
	return results
}

// Failed reports whether any required check failed.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed && !r.Optional {
			return true
		}
	}
	return false
}

func busNameOwner(conn *dbus.Conn) NameOwnerFunc {
	return func(ctx context.Context, name string) (bool, error) {
		var owned bool
		err := conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.NameHasOwner", 0, name).Store(&owned)
		return owned, err
	}
}

// CheckPortal verifies that the desktop portal is running on the session bus.
func CheckPortal(ctx context.Context, hasOwner NameOwnerFunc) Result {
	const name = "Desktop portal"

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	owned, err := hasOwner(checkCtx, PortalBusName)
	switch {
	case err != nil:
		return Result{Name: name, Detail: "query failed (" + err.Error() + ")"}
	case !owned:
		return Result{Name: name, Detail: PortalBusName + " is not running"}
	default:
		return Result{Name: name, Passed: true, Detail: PortalBusName}
	}
}

// CheckRestoreToken reports whether a saved consent token exists. A missing
// token only means the portal will prompt on the next start.
func CheckRestoreToken(path string) Result {
	const name = "Restore token"

	data, err := os.ReadFile(path)
	if err != nil || strings.TrimSpace(string(data)) == "" {
		return Result{Name: name, Optional: true, Detail: "none saved; the portal will ask for consent"}
	}
	return Result{Name: name, Passed: true, Optional: true, Detail: path}
}
