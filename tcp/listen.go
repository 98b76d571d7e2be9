package tcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/dmksnnk/moor"
	"github.com/dmksnnk/moor/sockopt"
)

const acceptPollInterval = 100 * time.Millisecond

// ListenConfig configures a TCP listener.
type ListenConfig struct {
	// Source provides socket option properties for the listening socket.
	// Reuse-address and receive-buffer apply before bind, other options
	// are skipped here and applied per connection by the service.
	Source sockopt.Source
	// Logger is used for option logging.
	// If nil, [slog.Default] will be used.
	Logger *slog.Logger
}

// Listen binds a TCP listener on addr.
// The listening socket is configured from the option catalog before
// bind, so a bad property value fails here rather than per connection.
func Listen(ctx context.Context, addr string, cfg ListenConfig) (*Listener, error) {
	raw, err := sockopt.Configure(&rawChannel{}, sockopt.Config{
		Source: cfg.Source,
		Logger: cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("configure listener: %w", err)
	}

	lc := net.ListenConfig{Control: raw.control}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	return &Listener{listener: ln.(*net.TCPListener)}, nil
}

// Listener accepts TCP channels.
type Listener struct {
	listener *net.TCPListener
}

var _ moor.Listener = (*Listener)(nil)

// Accept waits for the next connection.
// It returns [net.ErrClosed] after Close and ctx.Err() when ctx is done.
func (l *Listener) Accept(ctx context.Context) (moor.Channel, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		_ = l.listener.SetDeadline(time.Now().Add(acceptPollInterval))
		conn, err := l.listener.AcceptTCP()
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}

			return nil, err
		}

		_ = conn.SetDeadline(time.Time{}) // clear inherited deadline

		return &Conn{TCPConn: conn}, nil
	}
}

func (l *Listener) Close() error {
	return l.listener.Close()
}

func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// rawChannel collects bind-time options and applies them on the raw
// socket before bind.
type rawChannel struct {
	reuseAddr  *bool
	recvBuffer *int
}

var _ sockopt.Channel = (*rawChannel)(nil)

func (c *rawChannel) SupportedOptions() []sockopt.Option {
	return []sockopt.Option{sockopt.RecvBuffer, sockopt.ReuseAddr}
}

func (c *rawChannel) SetOption(opt sockopt.Option, value any) error {
	switch opt {
	case sockopt.ReuseAddr:
		v, err := sockopt.BoolValue(opt, value)
		if err != nil {
			return err
		}
		c.reuseAddr = &v
	case sockopt.RecvBuffer:
		v, err := sockopt.IntValue(opt, value)
		if err != nil {
			return err
		}
		c.recvBuffer = &v
	default:
		return fmt.Errorf("%w: %s", sockopt.ErrNotSupported, opt)
	}

	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (c *rawChannel) control(network, address string, conn syscall.RawConn) error {
	var opErr error
	err := conn.Control(func(fd uintptr) {
		if c.reuseAddr != nil {
			if err := setReuseAddr(fd, *c.reuseAddr); err != nil {
				opErr = fmt.Errorf("set reuse-address: %w", err)
				return
			}
		}
		if c.recvBuffer != nil {
			if err := setRecvBuffer(fd, *c.recvBuffer); err != nil {
				opErr = fmt.Errorf("set receive-buffer: %w", err)
			}
		}
	})
	if err != nil {
		return err
	}

	return opErr
}
