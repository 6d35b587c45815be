// Package conn wraps a single TCP connection to the game's debug port with
// the framed packet send/receive/peek operations the rest of this module
// builds on.
package conn

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"time"

	"wdbg/packet"
	"wdbg/wdbgerr"
)

// GamePort and EditorPort are the two ports the game's debug interface can
// listen on; both speak the identical framed protocol, so a Conn only
// needs the address, not which mode it's talking to.
const (
	GamePort   = 37001
	EditorPort = 37002
)

// Conn is a single persistent TCP connection carrying framed packets in
// both directions. It is safe for one goroutine to call Send while another
// calls Receive/Peek concurrently (the underlying *net.TCPConn supports
// that), but concurrent Sends, or concurrent Receives, are not serialized
// by Conn itself — callers needing that guarantee (see client.Client) must
// provide their own locking.
type Conn struct {
	tcp    *net.TCPConn
	reader *bufio.Reader
}

func wrap(tcp *net.TCPConn) *Conn {
	return &Conn{tcp: tcp, reader: bufio.NewReaderSize(tcp, packet.MinEncodedSize+1<<16)}
}

// Connect dials ip:port with no timeout.
func Connect(ip net.IP, port int) (*Conn, error) {
	addr := &net.TCPAddr{IP: ip, Port: port}
	tcp, err := net.DialTCP("tcp", nil, addr)
	if err != nil {
		return nil, wdbgerr.Wrap(wdbgerr.KindTransport, fmt.Errorf("conn: dial %s: %w", addr, err))
	}
	return wrap(tcp), nil
}

// ConnectTimeout dials ip:port, aborting if the handshake doesn't complete
// within timeout.
func ConnectTimeout(ip net.IP, port int, timeout time.Duration) (*Conn, error) {
	addr := &net.TCPAddr{IP: ip, Port: port}
	raw, err := net.DialTimeout("tcp", addr.String(), timeout)
	if err != nil {
		return nil, wdbgerr.Wrap(wdbgerr.KindTransport, fmt.Errorf("conn: dial %s: %w", addr, err))
	}
	tcp, ok := raw.(*net.TCPConn)
	if !ok {
		raw.Close()
		return nil, fmt.Errorf("conn: dial %s: unexpected connection type %T", addr, raw)
	}
	return wrap(tcp), nil
}

// SetReadTimeout bounds how long Receive/Peek will block. client.Client
// waits for each response on its own timer of the same duration. timeout
// must be non-zero — a zero deadline means "no
// timeout" to net.Conn, which would make Peek's poll loop unable to ever
// return control to its caller for a cancellation check.
func (c *Conn) SetReadTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("conn: read timeout must be positive, got %s", timeout)
	}
	if err := c.tcp.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("conn: set read deadline: %w", err)
	}
	return nil
}

// TryClone returns a second Conn sharing the same underlying socket, the
// way the driver goroutine obtains its own read handle independent of the
// caller-owned write handle. The clone gets its own read buffer — it must
// not be used to read from a connection that another Conn value is also
// reading from, or bytes can be silently stolen between the two buffers.
func (c *Conn) TryClone() (*Conn, error) {
	file, err := c.tcp.File()
	if err != nil {
		return nil, fmt.Errorf("conn: clone: %w", err)
	}
	defer file.Close()

	dup, err := net.FileConn(file)
	if err != nil {
		return nil, fmt.Errorf("conn: clone: %w", err)
	}
	tcp, ok := dup.(*net.TCPConn)
	if !ok {
		dup.Close()
		return nil, fmt.Errorf("conn: clone: unexpected connection type %T", dup)
	}
	return wrap(tcp), nil
}

// Send writes p's full wire encoding in one go, serialized by whatever lock
// the caller holds around the write half of the connection.
func (c *Conn) Send(p *packet.Packet) error {
	var buf bytes.Buffer
	if err := p.Encode(&buf); err != nil {
		return wdbgerr.Wrap(wdbgerr.KindTransport, fmt.Errorf("conn: send: %w", err))
	}
	if _, err := c.tcp.Write(buf.Bytes()); err != nil {
		return wdbgerr.Wrap(wdbgerr.KindTransport, fmt.Errorf("conn: send: %w", err))
	}
	return nil
}

// Receive blocks for exactly one framed packet. A malformed packet
// surfaces as a wdbgerr.KindDecode (or KindFraming) error, which the
// caller can tell apart from a genuine connection failure via
// wdbgerr.KindOf — this method does not reclassify those as transport
// errors.
func (c *Conn) Receive() (*packet.Packet, error) {
	p, err := packet.Decode(c.reader)
	if err != nil {
		return nil, fmt.Errorf("conn: receive: %w", err)
	}
	return p, nil
}

// Peek reports whether a full packet's minimum worth of bytes
// (packet.MinEncodedSize) are already available to read, without consuming
// them — a later Receive on the same Conn still sees them. A read timeout
// or a transient "would block" condition both count as "not yet" rather
// than as an error, since the driver's poll loop treats them identically.
func (c *Conn) Peek() (bool, error) {
	_, err := c.reader.Peek(packet.MinEncodedSize)
	if err == nil {
		return true, nil
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return false, nil
	}
	return false, wdbgerr.Wrap(wdbgerr.KindTransport, fmt.Errorf("conn: peek: %w", err))
}

// Close shuts down both halves of the connection.
func (c *Conn) Close() error {
	return c.tcp.Close()
}
