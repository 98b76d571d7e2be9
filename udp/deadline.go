package udp

import (
	"context"
	"time"
)

// newDeadline turns a deadline into a context: done at t, or never for
// a zero t.
func newDeadline(t time.Time) (context.Context, context.CancelFunc) {
	if t.IsZero() {
		return context.WithCancel(context.Background())
	}

	return context.WithDeadline(context.Background(), t)
}
