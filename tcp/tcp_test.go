package tcp_test

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/dmksnnk/moor"
	"github.com/dmksnnk/moor/sockopt"
	"github.com/dmksnnk/moor/tcp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type acceptResult struct {
	ch  moor.Channel
	err error
}

func accept(t *testing.T, ln *tcp.Listener) <-chan acceptResult {
	t.Helper()

	results := make(chan acceptResult, 1)
	go func() {
		ch, err := ln.Accept(context.Background())
		results <- acceptResult{ch: ch, err: err}
	}()
	return results
}

func recvResult(t *testing.T, results <-chan acceptResult) acceptResult {
	t.Helper()

	select {
	case res := <-results:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for accept")
		panic("unreachable")
	}
}

func TestListen(t *testing.T) {
	t.Run("roundtrip", func(t *testing.T) {
		ln, err := tcp.Listen(t.Context(), "127.0.0.1:0", tcp.ListenConfig{})
		if err != nil {
			t.Fatalf("listen: %s", err)
		}
		t.Cleanup(func() { ln.Close() })

		results := accept(t, ln)

		var dialer tcp.Dialer
		client, err := dialer.Dial(t.Context(), ln.Addr().String())
		if err != nil {
			t.Fatalf("dial: %s", err)
		}
		defer client.Close()

		res := recvResult(t, results)
		if res.err != nil {
			t.Fatalf("accept: %s", res.err)
		}
		server := res.ch
		defer server.Close()

		if _, err := client.Write([]byte("ping")); err != nil {
			t.Fatalf("write: %s", err)
		}
		buf := make([]byte, 4)
		if _, err := io.ReadFull(server, buf); err != nil {
			t.Fatalf("read: %s", err)
		}
		if string(buf) != "ping" {
			t.Errorf("got %q, want %q", buf, "ping")
		}

		if _, err := server.Write([]byte("pong")); err != nil {
			t.Fatalf("write: %s", err)
		}
		if _, err := io.ReadFull(client, buf); err != nil {
			t.Fatalf("read: %s", err)
		}
		if string(buf) != "pong" {
			t.Errorf("got %q, want %q", buf, "pong")
		}
	})

	t.Run("accept returns ErrClosed after close", func(t *testing.T) {
		ln, err := tcp.Listen(t.Context(), "127.0.0.1:0", tcp.ListenConfig{})
		if err != nil {
			t.Fatalf("listen: %s", err)
		}

		results := accept(t, ln)

		if err := ln.Close(); err != nil {
			t.Fatalf("close: %s", err)
		}
		if res := recvResult(t, results); !errors.Is(res.err, net.ErrClosed) {
			t.Errorf("accept returned %v, want net.ErrClosed", res.err)
		}
	})

	t.Run("accept stops when context is done", func(t *testing.T) {
		ln, err := tcp.Listen(t.Context(), "127.0.0.1:0", tcp.ListenConfig{})
		if err != nil {
			t.Fatalf("listen: %s", err)
		}
		t.Cleanup(func() { ln.Close() })

		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		if _, err := ln.Accept(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("accept returned %v, want context.Canceled", err)
		}
	})

	t.Run("configures the listening socket", func(t *testing.T) {
		cfg := tcp.ListenConfig{
			Source: sockopt.Properties{
				"reuse-address":  "true",
				"receive-buffer": "65536",
			},
		}
		ln, err := tcp.Listen(t.Context(), "127.0.0.1:0", cfg)
		if err != nil {
			t.Fatalf("listen: %s", err)
		}
		ln.Close()
	})

	t.Run("rejects a bad property value", func(t *testing.T) {
		cfg := tcp.ListenConfig{
			Source: sockopt.Properties{"receive-buffer": "huge"},
		}
		if _, err := tcp.Listen(t.Context(), "127.0.0.1:0", cfg); !errors.Is(err, sockopt.ErrBadValue) {
			t.Errorf("listen returned %v, want ErrBadValue", err)
		}
	})
}

func TestConnOptions(t *testing.T) {
	ln, err := tcp.Listen(t.Context(), "127.0.0.1:0", tcp.ListenConfig{})
	if err != nil {
		t.Fatalf("listen: %s", err)
	}
	t.Cleanup(func() { ln.Close() })

	results := accept(t, ln)

	var dialer tcp.Dialer
	client, err := dialer.Dial(t.Context(), ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %s", err)
	}
	defer client.Close()

	res := recvResult(t, results)
	if res.err != nil {
		t.Fatalf("accept: %s", res.err)
	}
	defer res.ch.Close()

	t.Run("applies supported options", func(t *testing.T) {
		for _, opt := range client.SupportedOptions() {
			var value any
			switch opt.Kind() {
			case sockopt.Bool:
				value = true
			case sockopt.Int:
				value = 4096
			}
			if err := client.SetOption(opt, value); err != nil {
				t.Errorf("set %s: %s", opt, err)
			}
		}
	})

	t.Run("rejects a mistyped value", func(t *testing.T) {
		if err := client.SetOption(sockopt.KeepAlive, 5); !errors.Is(err, sockopt.ErrBadValue) {
			t.Errorf("got %v, want ErrBadValue", err)
		}
	})

	t.Run("rejects bind-time options", func(t *testing.T) {
		if err := client.SetOption(sockopt.ReuseAddr, true); !errors.Is(err, sockopt.ErrNotSupported) {
			t.Errorf("got %v, want ErrNotSupported", err)
		}
	})
}
