// Package quic provides the QUIC transport: a channel is the first
// bidirectional stream of its own QUIC connection.
//
// Streams are announced lazily, so a dialed channel becomes visible to
// the accepting side with its first write.
package quic

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/dmksnnk/moor"
	"github.com/dmksnnk/moor/sockopt"
	quicgo "github.com/quic-go/quic-go"
)

// Conn is a QUIC channel: a bidirectional stream together with the
// connection it runs on. Closing the channel closes the connection.
type Conn struct {
	*quicgo.Stream
	conn    *quicgo.Conn
	release func() error // releases the UDP socket, nil for shared sockets

	closeOnce sync.Once
	closeErr  error
}

var _ moor.Channel = (*Conn)(nil)

func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Read reads from the stream. An orderly connection close by the peer
// reads as [io.EOF], a local close as [net.ErrClosed].
func (c *Conn) Read(p []byte) (int, error) {
	n, err := c.Stream.Read(p)
	return n, mapClosed(err)
}

// Write writes to the stream. Writing to a closed connection returns
// [net.ErrClosed].
func (c *Conn) Write(p []byte) (int, error) {
	n, err := c.Stream.Write(p)
	return n, mapClosed(err)
}

// Close closes the QUIC connection with an orderly close code and
// releases the UDP socket if the channel owns one.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.CloseWithError(codeClosed, "")
		if c.release != nil {
			c.closeErr = errors.Join(c.closeErr, c.release())
		}
	})

	return c.closeErr
}

// SupportedOptions returns nil: QUIC streams carry no socket options,
// the UDP socket is configured by [Listen] and [Dialer].
func (c *Conn) SupportedOptions() []sockopt.Option {
	return nil
}

func (c *Conn) SetOption(opt sockopt.Option, value any) error {
	return fmt.Errorf("%w: %s", sockopt.ErrNotSupported, opt)
}

func mapClosed(err error) error {
	switch {
	case err == nil:
		return nil
	case isRemoteClosed(err):
		return io.EOF
	case isLocalClosed(err):
		return net.ErrClosed
	default:
		return err
	}
}
