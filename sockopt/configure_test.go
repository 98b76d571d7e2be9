package sockopt_test

import (
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/dmksnnk/moor/internal/platform"
	"github.com/dmksnnk/moor/sockopt"
)

type applied struct {
	opt   sockopt.Option
	value any
}

type fakeChannel struct {
	supported []sockopt.Option
	fail      map[sockopt.Option]error

	options []applied
}

func (c *fakeChannel) SupportedOptions() []sockopt.Option {
	return c.supported
}

func (c *fakeChannel) SetOption(opt sockopt.Option, value any) error {
	if err := c.fail[opt]; err != nil {
		return err
	}
	c.options = append(c.options, applied{opt: opt, value: value})
	return nil
}

func TestConfigure(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		ch := &fakeChannel{supported: []sockopt.Option{sockopt.ReuseAddr}}

		got, err := sockopt.Configure(ch, sockopt.Config{})
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if got != ch {
			t.Error("expected the same channel back")
		}

		want := []applied{{opt: sockopt.ReuseAddr, value: true}}
		assertOptions(t, ch.options, want)
	})

	t.Run("property overrides default", func(t *testing.T) {
		ch := &fakeChannel{supported: []sockopt.Option{sockopt.ReuseAddr}}
		cfg := sockopt.Config{
			Source: sockopt.Properties{"reuse-address": "false"},
		}

		if _, err := sockopt.Configure(ch, cfg); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}

		want := []applied{{opt: sockopt.ReuseAddr, value: false}}
		assertOptions(t, ch.options, want)
	})

	t.Run("parses properties by kind", func(t *testing.T) {
		ch := &fakeChannel{supported: []sockopt.Option{
			sockopt.KeepAlive,
			sockopt.Linger,
			sockopt.RecvBuffer,
			sockopt.ReuseAddr,
			sockopt.SendBuffer,
			sockopt.NoDelay,
		}}
		cfg := sockopt.Config{
			Source: sockopt.Properties{
				"keep-alive":     "true",
				"linger":         "10",
				"receive-buffer": "4096",
				"send-buffer":    "8192",
				"no-delay":       "1",
			},
		}

		if _, err := sockopt.Configure(ch, cfg); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}

		want := []applied{
			{opt: sockopt.KeepAlive, value: true},
			{opt: sockopt.Linger, value: 10},
			{opt: sockopt.RecvBuffer, value: 4096},
			{opt: sockopt.ReuseAddr, value: true},
			{opt: sockopt.SendBuffer, value: 8192},
			{opt: sockopt.NoDelay, value: true},
		}
		assertOptions(t, ch.options, want)
	})

	t.Run("channel without options is a no-op", func(t *testing.T) {
		ch := &fakeChannel{}
		cfg := sockopt.Config{
			Source: sockopt.Properties{"linger": "10", "no-delay": "true"},
		}

		got, err := sockopt.Configure(ch, cfg)
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if got != ch {
			t.Error("expected the same channel back")
		}
		if len(ch.options) != 0 {
			t.Errorf("expected no options applied, got %v", ch.options)
		}
	})

	t.Run("bad value stops at the failing descriptor", func(t *testing.T) {
		ch := &fakeChannel{supported: []sockopt.Option{
			sockopt.KeepAlive,
			sockopt.Linger,
			sockopt.ReuseAddr,
			sockopt.NoDelay,
		}}
		cfg := sockopt.Config{
			Source: sockopt.Properties{
				"keep-alive": "true",
				"linger":     "abc",
				"no-delay":   "true",
			},
		}

		_, err := sockopt.Configure(ch, cfg)
		if !errors.Is(err, sockopt.ErrBadValue) {
			t.Fatalf("got %v, want ErrBadValue", err)
		}

		// keep-alive precedes linger in the catalog and must have been
		// applied, nothing after linger may have been touched.
		want := []applied{{opt: sockopt.KeepAlive, value: true}}
		assertOptions(t, ch.options, want)
	})

	t.Run("unknown kind is a configuration error", func(t *testing.T) {
		ch := &fakeChannel{}
		cfg := sockopt.Config{
			Catalog: []sockopt.Descriptor{
				{Property: "frobnicate", Option: sockopt.Option(99)},
			},
			Source: sockopt.Properties{"frobnicate": "1"},
		}

		if _, err := sockopt.Configure(ch, cfg); !errors.Is(err, sockopt.ErrUnknownKind) {
			t.Fatalf("got %v, want ErrUnknownKind", err)
		}
	})

	t.Run("apply failure continues with later descriptors", func(t *testing.T) {
		ch := &fakeChannel{
			supported: []sockopt.Option{sockopt.Linger, sockopt.ReuseAddr, sockopt.NoDelay},
			fail:      map[sockopt.Option]error{sockopt.Linger: errors.New("setsockopt: invalid argument")},
		}

		logs := platform.NewChanLog()
		cfg := sockopt.Config{
			Source: sockopt.Properties{"linger": "10", "no-delay": "true"},
			Logger: slog.New(slog.NewTextHandler(logs, nil)),
		}

		if _, err := sockopt.Configure(ch, cfg); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}

		want := []applied{
			{opt: sockopt.ReuseAddr, value: true},
			{opt: sockopt.NoDelay, value: true},
		}
		assertOptions(t, ch.options, want)

		select {
		case line := <-logs.Logs():
			if !strings.Contains(string(line), "can't set option") {
				t.Errorf("unexpected log line: %s", line)
			}
			if !strings.Contains(string(line), "linger") {
				t.Errorf("expected log to name the option: %s", line)
			}
		default:
			t.Error("expected a warning about the failed option")
		}
	})

	t.Run("empty property value uses default", func(t *testing.T) {
		ch := &fakeChannel{supported: []sockopt.Option{sockopt.ReuseAddr}}
		cfg := sockopt.Config{
			Source: sockopt.Properties{"reuse-address": ""},
		}

		if _, err := sockopt.Configure(ch, cfg); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}

		want := []applied{{opt: sockopt.ReuseAddr, value: true}}
		assertOptions(t, ch.options, want)
	})
}

func assertOptions(t *testing.T, got, want []applied) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("got %d applied options %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("option %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}
