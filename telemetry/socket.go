package telemetry

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"
)

// SocketEmitter sends one datagram per point.
type SocketEmitter struct {
	conn net.Conn
	format Format
}

// NewSocketEmitter dials a `udp://host:port` or `unixgram:///path/to/socket` address.
func NewSocketEmitter(addr string, f Format) (*SocketEmitter, error) {
	u, err := url.Parse(addr)

	if err != nil {
		return nil, fmt.Errorf("invalid socket address %q: %w", addr, err)
	}

	var target string

	switch u.Scheme {
	case "udp", "udp4", "udp6":
		target = u.Host
	case "unixgram":
		target = u.Path
	default:
		return nil, fmt.Errorf("unsupported socket scheme %q (must be udp or unixgram)", u.Scheme)
	}

	conn, err := net.Dial(u.Scheme, target)

	if err != nil {
		return nil, fmt.Errorf("failed to dial %v: %w", addr, err)
	}

	return &SocketEmitter{conn: conn, format: f}, nil
}

func (e *SocketEmitter) Emit(ctx context.Context, p Point) error {
	b := e.format.Encode(p)

	if b == nil {
		return nil
	}

	if deadline, ok := ctx.Deadline(); ok {
		e.conn.SetWriteDeadline(deadline)
	} else {
		e.conn.SetWriteDeadline(time.Now().Add(time.Second))
	}

	_, err := e.conn.Write(b)

	return err
}

func (e *SocketEmitter) Close() error {
	return e.conn.Close()
}
