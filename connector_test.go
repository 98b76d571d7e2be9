package moor_test

import (
	"errors"
	"io"
	"testing"

	"github.com/dmksnnk/moor"
	"github.com/dmksnnk/moor/internal/moortest"
	"github.com/dmksnnk/moor/sockopt"
)

func TestConnector(t *testing.T) {
	t.Run("connects a session", func(t *testing.T) {
		dialer := moortest.NewDialer()
		rec := moortest.NewRecorder()
		conn := moor.NewConnector(dialer, moor.Config{Handler: rec, Logger: discardLogger()})
		t.Cleanup(conn.Dispose)

		local, remote := moortest.Pipe()
		dialer.Inject(local)

		sess, err := conn.Connect(t.Context(), "upstream:1234")
		if err != nil {
			t.Fatalf("connect: %s", err)
		}
		if opened := recv(t, rec.Opens); opened != sess {
			t.Error("expected the connected session to be handed to the handler")
		}
		if conn.ManagedSessions()[sess.ID()] != sess {
			t.Error("expected the session to be registered")
		}

		if _, err := sess.Write([]byte("hi")); err != nil {
			t.Fatalf("write: %s", err)
		}
		buf := make([]byte, 2)
		if _, err := io.ReadFull(remote, buf); err != nil {
			t.Fatalf("read: %s", err)
		}
		if string(buf) != "hi" {
			t.Errorf("got %q, want %q", buf, "hi")
		}
	})

	t.Run("dial error", func(t *testing.T) {
		dialer := moortest.NewDialer()
		dialer.Err = errors.New("no route")
		conn := moor.NewConnector(dialer, moor.Config{Logger: discardLogger()})
		t.Cleanup(conn.Dispose)

		if _, err := conn.Connect(t.Context(), "upstream:1234"); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("configuration error closes the channel", func(t *testing.T) {
		dialer := moortest.NewDialer()
		conn := moor.NewConnector(dialer, moor.Config{
			Source: sockopt.Properties{"receive-buffer": "lots"},
			Logger: discardLogger(),
		})
		t.Cleanup(conn.Dispose)

		local, remote := moortest.Pipe()
		dialer.Inject(local)

		_, err := conn.Connect(t.Context(), "upstream:1234")
		if !errors.Is(err, sockopt.ErrBadValue) {
			t.Fatalf("got %v, want ErrBadValue", err)
		}
		if _, err := remote.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
			t.Errorf("read after failed connect: got %v, want EOF", err)
		}
		if n := len(conn.ManagedSessions()); n != 0 {
			t.Errorf("got %d managed sessions, want 0", n)
		}
	})

	t.Run("rejects connects while disposing", func(t *testing.T) {
		dialer := moortest.NewDialer()
		conn := moor.NewConnector(dialer, moor.Config{Logger: discardLogger()})
		conn.Dispose()

		if _, err := conn.Connect(t.Context(), "upstream:1234"); !errors.Is(err, moor.ErrDisposing) {
			t.Fatalf("got %v, want ErrDisposing", err)
		}
	})
}
