package announce

import (
	"errors"
	"strings"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

type fakeConn struct {
	tables   map[string]map[string]any
	exported map[string]any
	reply    dbus.RequestNameReply
	err      error
	requests []dbus.RequestNameFlags
	released []string
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		tables:   map[string]map[string]any{},
		exported: map[string]any{},
		reply:    dbus.RequestNameReplyPrimaryOwner,
	}
}

func (c *fakeConn) Export(v any, path dbus.ObjectPath, iface string) error {
	c.exported[string(path)+"|"+iface] = v
	return nil
}

func (c *fakeConn) ExportMethodTable(methods map[string]any, path dbus.ObjectPath, iface string) error {
	c.tables[string(path)+"|"+iface] = methods
	return nil
}

func (c *fakeConn) RequestName(name string, flags dbus.RequestNameFlags) (dbus.RequestNameReply, error) {
	c.requests = append(c.requests, flags)
	return c.reply, c.err
}

func (c *fakeConn) ReleaseName(name string) (dbus.ReleaseNameReply, error) {
	c.released = append(c.released, name)
	return dbus.ReleaseNameReplyReleased, nil
}

func TestPublishExportsGetAddress(t *testing.T) {
	conn := newFakeConn()
	svc := New(conn, "org.rdesktopd.Daemon", "/org/rdesktopd/Daemon", nil)
	svc.SetPort(41234)
	if err := svc.Publish(); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(conn.requests) != 1 || conn.requests[0] != dbus.NameFlagDoNotQueue {
		t.Fatalf("unexpected RequestName flags: %v", conn.requests)
	}

	table := conn.tables["/org/rdesktopd/Daemon|org.rdesktopd.Daemon"]
	method, ok := table["GetAddress"].(func() (uint16, *dbus.Error))
	if !ok {
		t.Fatalf("GetAddress not exported: %#v", table)
	}
	port, dbusErr := method()
	if dbusErr != nil || port != 41234 {
		t.Fatalf("GetAddress = %d, %v", port, dbusErr)
	}

	svc.SetPort(5000)
	if port, _ := method(); port != 5000 {
		t.Fatalf("port not updated, got %d", port)
	}

	intro, ok := conn.exported["/org/rdesktopd/Daemon|org.freedesktop.DBus.Introspectable"].(introspect.Introspectable)
	if !ok {
		t.Fatal("introspection not exported")
	}
	if !strings.Contains(string(intro), `name="GetAddress"`) {
		t.Fatalf("introspection lacks GetAddress: %s", intro)
	}
}

func TestPublishNameTaken(t *testing.T) {
	conn := newFakeConn()
	conn.reply = dbus.RequestNameReplyExists
	svc := New(conn, "org.rdesktopd.Daemon", "/org/rdesktopd/Daemon", nil)
	if err := svc.Publish(); !errors.Is(err, ErrNameTaken) {
		t.Fatalf("expected ErrNameTaken, got %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("Close unpublished: %v", err)
	}
	if len(conn.released) != 0 {
		t.Fatal("released a name that was never owned")
	}
}

func TestPublishRejectsInvalidPath(t *testing.T) {
	svc := New(newFakeConn(), "org.rdesktopd.Daemon", "not/a/path", nil)
	if err := svc.Publish(); err == nil {
		t.Fatal("expected invalid path error")
	}
	if err := New(nil, "org.rdesktopd.Daemon", "/org/rdesktopd/Daemon", nil).Publish(); err == nil {
		t.Fatal("expected error without a bus connection")
	}
}

func TestCloseReleasesName(t *testing.T) {
	conn := newFakeConn()
	svc := New(conn, "org.rdesktopd.Daemon", "/org/rdesktopd/Daemon", nil)
	if err := svc.Publish(); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(conn.released) != 1 || conn.released[0] != "org.rdesktopd.Daemon" {
		t.Fatalf("unexpected released names: %v", conn.released)
	}
	if conn.tables["/org/rdesktopd/Daemon|org.rdesktopd.Daemon"] != nil {
		t.Fatal("method table not removed")
	}
}
