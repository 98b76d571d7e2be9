package udp

import (
	"context"
	"fmt"
	"net"

	"github.com/dmksnnk/moor"
	"github.com/dmksnnk/moor/sockopt"
)

// Dialer dials UDP channels. A dialed channel sits on its own
// connected socket, so unlike accepted channels it supports the
// buffer options.
type Dialer struct {
	// Dialer is the underlying net dialer.
	Dialer net.Dialer
}

var _ moor.Dialer = (*Dialer)(nil)

// Dial connects a UDP socket to addr. UDP being connectionless, the
// listener side learns about the channel from its first packet.
func (d *Dialer) Dial(ctx context.Context, addr string) (moor.Channel, error) {
	conn, err := d.Dialer.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, err
	}

	return &dialedConn{UDPConn: conn.(*net.UDPConn)}, nil
}

// dialedConn is a UDP channel on its own socket.
// It also configures the listening socket in [Listen].
type dialedConn struct {
	*net.UDPConn
}

var _ moor.Channel = (*dialedConn)(nil)

func (c *dialedConn) SupportedOptions() []sockopt.Option {
	return []sockopt.Option{sockopt.RecvBuffer, sockopt.SendBuffer}
}

func (c *dialedConn) SetOption(opt sockopt.Option, value any) error {
	switch opt {
	case sockopt.RecvBuffer:
		v, err := sockopt.IntValue(opt, value)
		if err != nil {
			return err
		}
		return c.SetReadBuffer(v)
	case sockopt.SendBuffer:
		v, err := sockopt.IntValue(opt, value)
		if err != nil {
			return err
		}
		return c.SetWriteBuffer(v)
	default:
		return fmt.Errorf("%w: %s", sockopt.ErrNotSupported, opt)
	}
}
