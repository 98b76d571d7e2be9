package moor

import (
	"context"
	"fmt"
	"log/slog"
)

// Connector opens outbound sessions through a transport dialer.
type Connector struct {
	*Service
	dialer Dialer
}

// NewConnector creates a connector dialing channels through d.
func NewConnector(d Dialer, cfg Config) *Connector {
	return &Connector{
		Service: newService(cfg),
		dialer:  d,
	}
}

// Connect dials addr and opens a session over the new channel.
// A configuration error closes the channel and is returned to the
// caller. The session's handler events run on the session goroutine, so
// the returned session may not have seen HandleOpen yet.
func (c *Connector) Connect(ctx context.Context, addr string) (*Session, error) {
	if c.disposing.Load() {
		return nil, ErrDisposing
	}

	ch, err := c.dialer.Dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	sess, err := c.open(ch)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("session connected",
		slog.Uint64("session_id", sess.ID()),
		slog.String("remote", sess.RemoteAddr().String()),
	)

	return sess, nil
}
