package server

import (
	"bufio"
	"net"
	"sync"

	"github.com/gorilla/websocket"

	"rdesktopd/internal/input"
	"rdesktopd/internal/wire"
)

// clientConn is one framed client transport.
type clientConn interface {
	ReadPacket() (wire.Packet, error)
	WritePacket(p wire.Packet) error
	Close() error
	RemoteAddr() string
}

type tcpConn struct {
	conn   net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex
}

func newTCPConn(conn net.Conn) *tcpConn {
	return &tcpConn{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *tcpConn) ReadPacket() (wire.Packet, error) {
	return wire.ReadPacket(c.reader)
}

func (c *tcpConn) WritePacket(p wire.Packet) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(deadlineSoon())
	return wire.WritePacket(c.conn, p)
}

func (c *tcpConn) Close() error { return c.conn.Close() }

func (c *tcpConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// wsConn carries one packet per binary message. Text messages are input
// batches and are handed to onInput instead of being returned as packets.
type wsConn struct {
	conn    *websocket.Conn
	onInput func(input.Event, error)

	writeMu sync.Mutex
}

func (c *wsConn) ReadPacket() (wire.Packet, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		switch kind {
		case websocket.BinaryMessage:
			return wire.Decode(data)
		case websocket.TextMessage:
			if c.onInput != nil {
				c.onInput(input.DecodeMessage(data))
			}
		}
	}
}

func (c *wsConn) WritePacket(p wire.Packet) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(deadlineSoon())
	return c.conn.WriteMessage(websocket.BinaryMessage, wire.Encode(p))
}

func (c *wsConn) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadlineSoon())
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *wsConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }
