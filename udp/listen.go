package udp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/dmksnnk/moor"
	"github.com/dmksnnk/moor/sockopt"
)

var (
	// ErrQueueExceeded is the drop reason for a packet from a new remote
	// address when too many channels wait to be accepted.
	ErrQueueExceeded = errors.New("udp: accept queue exceeded")
	// ErrBufferExceeded is the drop reason for a packet when its
	// channel's read buffer is full.
	ErrBufferExceeded = errors.New("udp: read buffer exceeded")
)

const (
	defaultConnBacklog    = 128
	defaultReadBufferSize = 512

	// maxPacketSize is a safe maximum size of a UDP packet.
	maxPacketSize = 1200
)

var bufPool = sync.Pool{
	New: func() any {
		buf := make([]byte, maxPacketSize)
		return &buf
	},
}

func getBuffer() []byte {
	bufp := bufPool.Get().(*[]byte)
	return (*bufp)[:maxPacketSize]
}

func putBuffer(buf []byte) {
	bufPool.Put(&buf)
}

// ListenConfig configures a UDP listener.
type ListenConfig struct {
	// ConnBacklog is the maximum number of channels waiting to be
	// accepted. The default is 128. Packets from new remote addresses
	// are dropped while the backlog is full.
	ConnBacklog int
	// ReadBufferSize is the number of packets buffered per channel.
	// The default is 512. When a channel's buffer is full its packets
	// are dropped, so one blocked reader cannot stall the listener.
	ReadBufferSize int
	// Source provides socket option properties for the listening socket.
	// Receive-buffer and send-buffer apply to the socket, other options
	// are skipped.
	Source sockopt.Source
	// Logger is used to log dropped packets.
	// If nil, [slog.Default] will be used.
	Logger *slog.Logger
}

// Listen binds a UDP socket on addr and demultiplexes its packets into
// per-remote-address channels.
func Listen(addr string, cfg ListenConfig) (*Listener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve address: %w", err)
	}
	socket, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	if _, err := sockopt.Configure(&dialedConn{UDPConn: socket}, sockopt.Config{
		Source: cfg.Source,
		Logger: cfg.Logger,
	}); err != nil {
		socket.Close()
		return nil, fmt.Errorf("configure socket: %w", err)
	}

	connBacklog := cfg.ConnBacklog
	if connBacklog <= 0 {
		connBacklog = defaultConnBacklog
	}
	readBufferSize := cfg.ReadBufferSize
	if readBufferSize <= 0 {
		readBufferSize = defaultReadBufferSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	l := &Listener{
		socket:         socket,
		acceptQueue:    make(chan *Conn, connBacklog),
		done:           make(chan struct{}),
		socketClosed:   make(chan struct{}),
		readBufferSize: readBufferSize,
		readDone:       make(chan struct{}),
		conns:          make(map[string]*Conn),
		logger:         logger,
	}
	go l.readLoop()

	return l, nil
}

// Listener accepts UDP channels. A channel is created for the first
// packet of each remote address.
type Listener struct {
	socket      *net.UDPConn
	acceptQueue chan *Conn
	done        chan struct{}

	socketClosed chan struct{} // closed when the socket has been closed

	readBufferSize int
	readDone       chan struct{} // closed when readLoop exits
	readErr        atomic.Value

	conns    map[string]*Conn
	connLock sync.RWMutex

	logger *slog.Logger
}

var _ moor.Listener = (*Listener)(nil)

func (l *Listener) readLoop() {
	defer close(l.readDone)

	for {
		buf := getBuffer()
		n, addr, err := l.socket.ReadFrom(buf)
		if err != nil {
			putBuffer(buf)
			l.readErr.Store(err)
			return
		}

		if err := l.dispatch(addr, buf[:n]); err != nil {
			putBuffer(buf)
			l.logger.Warn("dropping packet",
				slog.String("remote", addr.String()),
				"error", err,
			)
		}
	}
}

// dispatch hands the packet to its channel, creating the channel for a
// new remote address. On a nil return the packet's buffer is owned by
// the channel, on an error the caller reclaims it.
func (l *Listener) dispatch(addr net.Addr, packet []byte) error {
	key := addr.String()

	l.connLock.RLock()
	conn, ok := l.conns[key]
	l.connLock.RUnlock()

	if ok {
		select {
		case conn.reads <- packet:
			return nil
		default:
			return ErrBufferExceeded
		}
	}

	conn = &Conn{
		socket: l.socket,
		reads:  make(chan []byte, l.readBufferSize),
		remote: addr,
		done:   make(chan struct{}),
		release: func() error {
			l.connLock.Lock()
			defer l.connLock.Unlock()

			delete(l.conns, key)
			return l.tryCloseSocket()
		},
	}

	l.connLock.Lock()
	defer l.connLock.Unlock()

	select {
	case <-l.done:
		return net.ErrClosed
	default:
	}

	select {
	case l.acceptQueue <- conn:
		conn.reads <- packet // first packet, room guaranteed
		l.conns[key] = conn
		return nil
	default:
		return ErrQueueExceeded
	}
}

// Accept waits for the channel of the next new remote address.
// It returns [net.ErrClosed] after Close and ctx.Err() when ctx is done.
func (l *Listener) Accept(ctx context.Context) (moor.Channel, error) {
	select {
	case conn := <-l.acceptQueue:
		return conn, nil
	case <-l.readDone:
		return nil, l.readError()
	case <-l.done:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Listener) readError() error {
	if err, ok := l.readErr.Load().(error); ok {
		return err
	}
	return net.ErrClosed
}

func (l *Listener) Addr() net.Addr {
	return l.socket.LocalAddr()
}

// Close stops accepting and closes the channels not yet picked up.
// Accepted channels stay open, the socket is closed once the last of
// them closes.
func (l *Listener) Close() error {
	l.connLock.Lock()
	select {
	case <-l.done:
		l.connLock.Unlock()
		return nil
	default:
	}
	close(l.done)
	l.connLock.Unlock()

	for {
		select {
		case conn := <-l.acceptQueue:
			conn.Close()
			continue
		default:
		}
		break
	}

	l.connLock.Lock()
	err := l.tryCloseSocket()
	l.connLock.Unlock()

	// when the socket is already down, wait for the read loop
	select {
	case <-l.socketClosed:
		<-l.readDone
	default:
	}

	return err
}

// tryCloseSocket closes the socket once the listener is closed and no
// channels are left. Callers must hold connLock.
func (l *Listener) tryCloseSocket() error {
	select {
	case <-l.done:
	default:
		return nil
	}
	if len(l.conns) > 0 {
		return nil
	}

	select {
	case <-l.socketClosed:
		return nil
	default:
		close(l.socketClosed)
		return l.socket.Close()
	}
}
