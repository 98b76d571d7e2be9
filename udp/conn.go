// Package udp provides the UDP transport: stream-like channels
// demultiplexed from one listening socket by remote address.
//
// UDP has no handshake and no close signal. An accepted channel exists
// from the first packet of a remote address, and closing a channel is
// local only, the peer keeps blocking until its own close or deadline.
package udp

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/dmksnnk/moor"
	"github.com/dmksnnk/moor/sockopt"
)

// Conn is a channel accepted from a [Listener].
// Packets for its remote address are queued by the listener and read
// one packet per Read call.
type Conn struct {
	socket  net.PacketConn // shared listening socket
	reads   chan []byte    // packets demultiplexed to this conn
	remote  net.Addr
	done    chan struct{}
	release func() error

	mutex         sync.RWMutex // protects deadlines
	readDeadline  time.Time
	writeDeadline time.Time
}

var _ moor.Channel = (*Conn)(nil)

func (c *Conn) LocalAddr() net.Addr {
	return c.socket.LocalAddr()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.remote
}

// SetReadDeadline sets the deadline for future Read calls.
// A zero value for t means Read will not time out.
func (c *Conn) SetReadDeadline(t time.Time) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.readDeadline = t
	return nil
}

// SetWriteDeadline sets the deadline for future Write calls.
// A zero value for t means Write will not time out.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.writeDeadline = t
	return nil
}

// SetDeadline sets the read and write deadlines.
func (c *Conn) SetDeadline(t time.Time) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.readDeadline = t
	c.writeDeadline = t
	return nil
}

// Read reads the next packet into p. A packet longer than p is
// truncated. It blocks until a packet arrives, the deadline is
// exceeded, or the channel is closed.
func (c *Conn) Read(p []byte) (int, error) {
	c.mutex.RLock()
	dl, cancel := newDeadline(c.readDeadline)
	defer cancel()
	c.mutex.RUnlock()

	select {
	case <-dl.Done():
		return 0, os.ErrDeadlineExceeded
	case data := <-c.reads:
		n := copy(p, data)
		putBuffer(data)
		return n, nil
	case <-c.done:
		return 0, net.ErrClosed
	}
}

// Write sends p as one packet to the remote address.
func (c *Conn) Write(p []byte) (int, error) {
	c.mutex.RLock()
	dl, cancel := newDeadline(c.writeDeadline)
	defer cancel()
	c.mutex.RUnlock()

	select {
	case <-dl.Done():
		return 0, os.ErrDeadlineExceeded
	case <-c.done:
		return 0, net.ErrClosed
	default:
	}

	return c.socket.WriteTo(p, c.remote)
}

// Close removes the channel from the listener and unblocks pending
// Read calls. The peer is not notified.
func (c *Conn) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	select {
	case <-c.done:
		return nil
	default:
		close(c.done)

		return c.release()
	}
}

// SupportedOptions returns nil: accepted channels share the listening
// socket, which is configured by [Listen].
func (c *Conn) SupportedOptions() []sockopt.Option {
	return nil
}

func (c *Conn) SetOption(opt sockopt.Option, value any) error {
	return fmt.Errorf("%w: %s", sockopt.ErrNotSupported, opt)
}
