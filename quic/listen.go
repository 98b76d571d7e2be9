package quic

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/dmksnnk/moor"
	"github.com/dmksnnk/moor/sockopt"
	quicgo "github.com/quic-go/quic-go"
)

// NextProto is the ALPN protocol identifier for moor over QUIC.
const NextProto = "moor"

// connBacklog is the maximum number of accepted channels waiting to be
// picked up by [Listener.Accept].
const connBacklog = 16

// ListenConfig configures a QUIC listener.
type ListenConfig struct {
	// TLS is the server TLS configuration.
	TLS *tls.Config
	// QUIC configures the QUIC layer. Optional.
	QUIC *quicgo.Config
	// Source provides socket option properties for the UDP socket.
	// Receive-buffer and send-buffer apply to the socket, other options
	// are skipped.
	Source sockopt.Source
	// Logger is used for listener logging.
	// If nil, [slog.Default] will be used.
	Logger *slog.Logger
}

// Listen binds a UDP socket on addr and listens for QUIC connections
// on it. Each connection's first bidirectional stream is delivered as
// a channel.
func Listen(addr string, cfg ListenConfig) (*Listener, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve address: %w", err)
	}
	socket, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	if _, err := sockopt.Configure(&packetChannel{conn: socket}, sockopt.Config{
		Source: cfg.Source,
		Logger: logger,
	}); err != nil {
		socket.Close()
		return nil, fmt.Errorf("configure socket: %w", err)
	}

	ln, err := quicgo.Listen(socket, cfg.TLS, cfg.QUIC)
	if err != nil {
		socket.Close()
		return nil, fmt.Errorf("listen quic: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		listener: ln,
		socket:   newSocketRef(socket),
		conns:    make(chan *Conn, connBacklog),
		done:     make(chan struct{}),
		cancel:   cancel,
		logger:   logger,
	}

	l.wg.Add(1)
	go l.acceptConns(ctx)

	return l, nil
}

// Listener accepts QUIC channels.
type Listener struct {
	listener *quicgo.Listener
	socket   *socketRef
	conns    chan *Conn
	done     chan struct{}
	cancel   context.CancelFunc
	logger   *slog.Logger
	wg       sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

var _ moor.Listener = (*Listener)(nil)

// acceptConns accepts QUIC connections and waits for each connection's
// first stream on its own goroutine, so a connection that never opens
// a stream cannot block the others.
func (l *Listener) acceptConns(ctx context.Context) {
	defer l.wg.Done()

	for {
		conn, err := l.listener.Accept(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, quicgo.ErrServerClosed) {
				return
			}

			l.logger.Debug("accept connection", "error", err)
			return
		}

		l.wg.Add(1)
		go l.acceptStream(ctx, conn)
	}
}

func (l *Listener) acceptStream(ctx context.Context, conn *quicgo.Conn) {
	defer l.wg.Done()

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		l.logger.Debug("accept stream",
			slog.String("remote", conn.RemoteAddr().String()),
			"error", err,
		)
		conn.CloseWithError(codeNoStream, "no stream")
		return
	}

	l.socket.acquire()
	c := &Conn{Stream: stream, conn: conn, release: l.socket.release}
	select {
	case l.conns <- c:
	case <-ctx.Done():
		c.Close()
	}
}

// Accept waits for the next channel.
// It returns [net.ErrClosed] after Close and ctx.Err() when ctx is done.
func (l *Listener) Accept(ctx context.Context) (moor.Channel, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting and closes the channels not yet picked up.
// Accepted channels stay open, the UDP socket is closed once the last
// of them closes.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.cancel()
		l.closeErr = l.listener.Close()
		l.wg.Wait()

		for {
			select {
			case conn := <-l.conns:
				conn.Close()
			default:
				l.closeErr = errors.Join(l.closeErr, l.socket.release())
				return
			}
		}
	})

	return l.closeErr
}

func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// packetChannel applies socket options to a UDP socket.
type packetChannel struct {
	conn *net.UDPConn
}

var _ sockopt.Channel = (*packetChannel)(nil)

func (c *packetChannel) SupportedOptions() []sockopt.Option {
	return []sockopt.Option{sockopt.RecvBuffer, sockopt.SendBuffer}
}

func (c *packetChannel) SetOption(opt sockopt.Option, value any) error {
	switch opt {
	case sockopt.RecvBuffer:
		v, err := sockopt.IntValue(opt, value)
		if err != nil {
			return err
		}
		return c.conn.SetReadBuffer(v)
	case sockopt.SendBuffer:
		v, err := sockopt.IntValue(opt, value)
		if err != nil {
			return err
		}
		return c.conn.SetWriteBuffer(v)
	default:
		return fmt.Errorf("%w: %s", sockopt.ErrNotSupported, opt)
	}
}

// socketRef closes the shared UDP socket once the listener and every
// accepted channel have released it.
type socketRef struct {
	socket *net.UDPConn

	mutex sync.Mutex
	refs  int
}

func newSocketRef(socket *net.UDPConn) *socketRef {
	return &socketRef{socket: socket, refs: 1} // the listener's own reference
}

func (r *socketRef) acquire() {
	r.mutex.Lock()
	r.refs++
	r.mutex.Unlock()
}

func (r *socketRef) release() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.refs--
	if r.refs == 0 {
		return r.socket.Close()
	}
	return nil
}
