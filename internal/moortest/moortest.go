// Package moortest provides in-memory fakes and fixtures for testing
// moor services and transports.
package moortest

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/dmksnnk/moor"
	"github.com/dmksnnk/moor/sockopt"
)

// AppliedOption is a socket option applied to a [Channel].
type AppliedOption struct {
	Option sockopt.Option
	Value  any
}

// Channel is an in-memory [moor.Channel] over one end of a [net.Pipe].
type Channel struct {
	net.Conn

	// Supported is reported by SupportedOptions.
	Supported []sockopt.Option
	// FailSet makes SetOption fail for the listed options.
	FailSet map[sockopt.Option]error

	mutex   sync.Mutex
	options []AppliedOption
}

var _ moor.Channel = (*Channel)(nil)

// Pipe creates a pair of connected channels.
// Reads and writes are synchronous, like [net.Pipe].
func Pipe() (client, server *Channel) {
	c, s := net.Pipe()
	return &Channel{Conn: c}, &Channel{Conn: s}
}

func (c *Channel) SupportedOptions() []sockopt.Option {
	return c.Supported
}

func (c *Channel) SetOption(opt sockopt.Option, value any) error {
	if err := c.FailSet[opt]; err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.options = append(c.options, AppliedOption{Option: opt, Value: value})
	return nil
}

// Options returns the options applied so far.
func (c *Channel) Options() []AppliedOption {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	options := make([]AppliedOption, len(c.options))
	copy(options, c.options)
	return options
}

// Listener is a [moor.Listener] fed channels by the test.
type Listener struct {
	channels chan moor.Channel
	done     chan struct{}
	once     sync.Once
}

var _ moor.Listener = (*Listener)(nil)

// NewListener creates a listener with a small channel backlog.
func NewListener() *Listener {
	return &Listener{
		channels: make(chan moor.Channel, 16),
		done:     make(chan struct{}),
	}
}

// Inject queues a channel to be returned by Accept.
func (l *Listener) Inject(ch moor.Channel) {
	l.channels <- ch
}

func (l *Listener) Accept(ctx context.Context) (moor.Channel, error) {
	select {
	case ch := <-l.channels:
		return ch, nil
	case <-l.done:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Listener) Close() error {
	l.once.Do(func() {
		close(l.done)
	})
	return nil
}

func (l *Listener) Addr() net.Addr {
	return Addr("listener")
}

// Dialer is a [moor.Dialer] returning channels queued by the test.
type Dialer struct {
	channels chan moor.Channel

	// Err, when set, is returned by Dial instead of a channel.
	Err error
}

var _ moor.Dialer = (*Dialer)(nil)

// NewDialer creates a dialer with a small channel backlog.
func NewDialer() *Dialer {
	return &Dialer{
		channels: make(chan moor.Channel, 16),
	}
}

// Inject queues a channel to be returned by Dial.
func (d *Dialer) Inject(ch moor.Channel) {
	d.channels <- ch
}

func (d *Dialer) Dial(ctx context.Context, addr string) (moor.Channel, error) {
	if d.Err != nil {
		return nil, d.Err
	}

	select {
	case ch := <-d.channels:
		return ch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Addr is a fake network address.
type Addr string

func (a Addr) Network() string {
	return "fake"
}

func (a Addr) String() string {
	return string(a)
}

// Message is a recorded session message.
type Message struct {
	Session *moor.Session
	Data    []byte
}

// CloseEvent is a recorded session close.
type CloseEvent struct {
	Session *moor.Session
	Cause   error
}

// Recorder is a [moor.Handler] recording session events on buffered
// channels. The optional hook funcs run before the event is recorded
// and their error is returned to the session.
type Recorder struct {
	Opens    chan *moor.Session
	Messages chan Message
	Closes   chan CloseEvent

	OpenFunc    func(*moor.Session) error
	MessageFunc func(*moor.Session, []byte) error
	CloseFunc   func(*moor.Session, error)
}

var _ moor.Handler = (*Recorder)(nil)

// NewRecorder creates a recorder with room for 16 events of each kind.
func NewRecorder() *Recorder {
	return &Recorder{
		Opens:    make(chan *moor.Session, 16),
		Messages: make(chan Message, 16),
		Closes:   make(chan CloseEvent, 16),
	}
}

func (r *Recorder) HandleOpen(s *moor.Session) error {
	if r.OpenFunc != nil {
		if err := r.OpenFunc(s); err != nil {
			return err
		}
	}
	r.Opens <- s
	return nil
}

func (r *Recorder) HandleMessage(s *moor.Session, data []byte) error {
	if r.MessageFunc != nil {
		if err := r.MessageFunc(s, data); err != nil {
			return err
		}
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	r.Messages <- Message{Session: s, Data: buf}
	return nil
}

func (r *Recorder) HandleClose(s *moor.Session, cause error) {
	if r.CloseFunc != nil {
		r.CloseFunc(s, cause)
	}
	r.Closes <- CloseEvent{Session: s, Cause: cause}
}

// Echo is a [moor.Handler] echoing every message back to its session.
type Echo struct{}

var _ moor.Handler = Echo{}

func (Echo) HandleOpen(*moor.Session) error {
	return nil
}

func (Echo) HandleMessage(s *moor.Session, data []byte) error {
	if _, err := s.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (Echo) HandleClose(*moor.Session, error) {}
