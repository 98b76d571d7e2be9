package moor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Acceptor serves inbound sessions from a transport listener.
type Acceptor struct {
	*Service
	listener Listener

	listenerClosed atomic.Bool
}

// NewAcceptor creates an acceptor serving sessions accepted from ln.
func NewAcceptor(ln Listener, cfg Config) *Acceptor {
	return &Acceptor{
		Service:  newService(cfg),
		listener: ln,
	}
}

// Addr returns the listener's address.
func (a *Acceptor) Addr() string {
	return a.listener.Addr().String()
}

// Serve accepts channels until the acceptor is disposed or ctx is done.
// Every accepted channel is configured, registered with the service and
// handed to the handler as a session. A channel that cannot be opened
// is closed and logged, serving continues.
//
// Serve returns [ErrClosed] after [Acceptor.Dispose]. Canceling ctx
// stops accepting but does not close the open sessions.
func (a *Acceptor) Serve(ctx context.Context) error {
	for {
		ch, err := a.listener.Accept(ctx)
		if err != nil {
			if a.listenerClosed.Load() {
				return ErrClosed
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("accept: %w", err)
		}

		sess, err := a.open(ch)
		if err != nil {
			a.logger.Warn("can't open session",
				slog.String("remote", ch.RemoteAddr().String()),
				"error", err,
			)
			continue
		}

		a.logger.Debug("session opened",
			slog.Uint64("session_id", sess.ID()),
			slog.String("remote", sess.RemoteAddr().String()),
		)
	}
}

// Dispose closes the listener, stopping [Acceptor.Serve], and then
// disposes of the service and its sessions.
func (a *Acceptor) Dispose() {
	if a.listenerClosed.CompareAndSwap(false, true) {
		if err := a.listener.Close(); err != nil {
			a.logger.Debug("close listener", "error", err)
		}
	}

	a.Service.Dispose()
}
