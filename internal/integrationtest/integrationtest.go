// Package integrationtest exercises services over real transports.
package integrationtest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dmksnnk/moor"
)

const replyTimeout = 5 * time.Second

// Replies delivers the echoed messages of a client session.
type Replies struct {
	messages chan []byte
}

func NewReplies() *Replies {
	return &Replies{messages: make(chan []byte, 16)}
}

func (r *Replies) HandleOpen(*moor.Session) error { return nil }

func (r *Replies) HandleMessage(_ *moor.Session, data []byte) error {
	msg := make([]byte, len(data))
	copy(msg, data)
	r.messages <- msg
	return nil
}

func (r *Replies) HandleClose(*moor.Session, error) {}

// Call sends msg over the session and returns the next reply.
func (r *Replies) Call(sess *moor.Session, msg string) (string, error) {
	if _, err := sess.Write([]byte(msg)); err != nil {
		return "", fmt.Errorf("write: %w", err)
	}

	select {
	case reply := <-r.messages:
		return string(reply), nil
	case <-sess.Done():
		return "", errors.New("session closed")
	case <-time.After(replyTimeout):
		return "", errors.New("timed out waiting for a reply")
	}
}

// Serve runs the acceptor until the end of the test.
func Serve(t *testing.T, acc *moor.Acceptor) {
	t.Helper()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- acc.Serve(context.Background())
	}()
	t.Cleanup(func() {
		acc.Dispose()
		if err := <-serveErr; !errors.Is(err, moor.ErrClosed) {
			t.Errorf("serve: %s", err)
		}
	})
}
