// Package tcp provides the TCP transport: a listener and a dialer
// producing channels whose socket options map onto the TCP socket.
package tcp

import (
	"fmt"
	"net"

	"github.com/dmksnnk/moor"
	"github.com/dmksnnk/moor/sockopt"
)

// Conn is a TCP channel.
type Conn struct {
	*net.TCPConn
}

var _ moor.Channel = (*Conn)(nil)

// SupportedOptions lists the options settable on a connected TCP socket.
// Reuse-address is a bind-time option and is handled by [Listen].
func (c *Conn) SupportedOptions() []sockopt.Option {
	return []sockopt.Option{
		sockopt.KeepAlive,
		sockopt.Linger,
		sockopt.RecvBuffer,
		sockopt.SendBuffer,
		sockopt.NoDelay,
	}
}

// SetOption applies a socket option to the connection.
func (c *Conn) SetOption(opt sockopt.Option, value any) error {
	switch opt {
	case sockopt.KeepAlive:
		v, err := sockopt.BoolValue(opt, value)
		if err != nil {
			return err
		}
		return c.SetKeepAlive(v)
	case sockopt.Linger:
		v, err := sockopt.IntValue(opt, value)
		if err != nil {
			return err
		}
		return c.SetLinger(v)
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
	case sockopt.NoDelay:
		v, err := sockopt.BoolValue(opt, value)
		if err != nil {
			return err
		}
		return c.SetNoDelay(v)
	default:
		return fmt.Errorf("%w: %s", sockopt.ErrNotSupported, opt)
	}
}
