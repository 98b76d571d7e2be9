package tcp

import (
	"context"
	"net"

	"github.com/dmksnnk/moor"
)

// Dialer dials TCP channels.
type Dialer struct {
	// Dialer is the underlying net dialer.
	Dialer net.Dialer
}

var _ moor.Dialer = (*Dialer)(nil)

// Dial connects to addr.
func (d *Dialer) Dial(ctx context.Context, addr string) (moor.Channel, error) {
	conn, err := d.Dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	return &Conn{TCPConn: conn.(*net.TCPConn)}, nil
}
