package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"rdesktopd/internal/wire"
)

// ErrRejected reports that the daemon refused the client's API revision.
var ErrRejected = errors.New("daemon rejected api revision")

// FetchDesktops connects to addr over TCP, performs the handshake, reads the
// desktop list, and leaves with End.
func FetchDesktops(ctx context.Context, addr string, revision uint64) (wire.DesktopList, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return wire.DesktopList{}, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	}

	if err := wire.WritePacket(conn, wire.Handshake{APIRevision: revision}); err != nil {
		return wire.DesktopList{}, err
	}
	pkt, err := wire.ReadPacket(conn)
	if err != nil {
		return wire.DesktopList{}, fmt.Errorf("read handshake: %w", err)
	}
	reply, ok := pkt.(wire.Handshake)
	if !ok {
		return wire.DesktopList{}, fmt.Errorf("expected handshake, got %s", pkt.Tag())
	}
	if !reply.Accepted {
		return wire.DesktopList{}, fmt.Errorf("%w: client %d, daemon %d", ErrRejected, revision, reply.APIRevision)
	}

	pkt, err = wire.ReadPacket(conn)
	if err != nil {
		return wire.DesktopList{}, fmt.Errorf("read desktop list: %w", err)
	}
	list, ok := pkt.(wire.DesktopList)
	if !ok {
		return wire.DesktopList{}, fmt.Errorf("expected desktop list, got %s", pkt.Tag())
	}
	_ = wire.WritePacket(conn, wire.End{})
	return list, nil
}
