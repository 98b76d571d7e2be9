// Package moor provides session-oriented network services over pluggable
// transports.
//
// A transport produces channels: a [Listener] on the accepting side, a
// [Dialer] on the connecting side. An [Acceptor] or [Connector] turns each
// channel into a [Session]: it applies socket options resolved from a
// [sockopt.Source], registers the session with its [Service] and runs the
// session's read loop on a shared [Group]. The application receives
// session events through a [Handler].
package moor

import (
	"context"
	"errors"
	"net"

	"github.com/dmksnnk/moor/sockopt"
)

var (
	// ErrClosed is returned by [Acceptor.Serve] after the acceptor has
	// been disposed.
	ErrClosed = errors.New("moor: service closed")
	// ErrDisposing is returned when a session is opened on a service
	// whose disposal has started.
	ErrDisposing = errors.New("moor: service is disposing")
	// ErrGroupClosed is returned when the channel group no longer admits
	// new sessions.
	ErrGroupClosed = errors.New("moor: group closed")
)

// Channel is a single transport connection carrying one session.
type Channel interface {
	net.Conn
	sockopt.Channel
}

// Listener accepts transport channels.
type Listener interface {
	// Accept waits for the next channel. It returns when a channel
	// arrives, the listener is closed, or ctx is done.
	Accept(ctx context.Context) (Channel, error)
	// Close closes the listener, unblocking Accept.
	Close() error
	// Addr returns the listener's address.
	Addr() net.Addr
}

// Dialer opens transport channels.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Channel, error)
}

// Handler receives session events.
//
// HandleOpen, HandleMessage and HandleClose for one session run
// sequentially on the session's goroutine. A handler shared between
// sessions must be safe for concurrent use across sessions.
type Handler interface {
	// HandleOpen is called once when the session starts.
	// A non-nil error closes the session with that error as the cause.
	HandleOpen(s *Session) error
	// HandleMessage is called for every read from the channel.
	// The data is only valid during the call.
	// A non-nil error closes the session with that error as the cause.
	HandleMessage(s *Session, data []byte) error
	// HandleClose is called exactly once at the end of the close
	// sequence of every session that saw HandleOpen. The cause is nil
	// when the session closed cleanly.
	HandleClose(s *Session, cause error)
}

// nopHandler drops all session events.
type nopHandler struct{}

func (nopHandler) HandleOpen(*Session) error            { return nil }
func (nopHandler) HandleMessage(*Session, []byte) error { return nil }
func (nopHandler) HandleClose(*Session, error)          {}
