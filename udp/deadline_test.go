package udp

import (
	"testing"
	"time"
)

func TestNewDeadline(t *testing.T) {
	t.Run("zero time never expires", func(t *testing.T) {
		ctx, cancel := newDeadline(time.Time{})

		select {
		case <-ctx.Done():
			t.Error("context is done without a deadline")
		default:
		}

		cancel()

		select {
		case <-ctx.Done():
		default:
			t.Error("context is not done after cancel")
		}
	})

	t.Run("past time is already done", func(t *testing.T) {
		ctx, cancel := newDeadline(time.Now().Add(-time.Minute))
		defer cancel()

		select {
		case <-ctx.Done():
		default:
			t.Error("context is not done")
		}
	})

	t.Run("future time expires", func(t *testing.T) {
		ctx, cancel := newDeadline(time.Now().Add(time.Millisecond))
		defer cancel()

		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
			t.Error("context is not done after the deadline")
		}
	})
}
