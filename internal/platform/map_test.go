package platform_test

import (
	"sync"
	"testing"

	"github.com/dmksnnk/moor/internal/platform"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMap(t *testing.T) {
	t.Run("put get delete", func(t *testing.T) {
		m := platform.NewMap[int, string]()

		m.Put(1, "one")
		got, ok := m.Get(1)
		if !ok {
			t.Fatal("expected key to be present")
		}
		if got != "one" {
			t.Errorf("got %q, want %q", got, "one")
		}

		if !m.Delete(1) {
			t.Error("expected delete to report removal")
		}
		if _, ok := m.Get(1); ok {
			t.Error("expected key to be gone")
		}
	})

	t.Run("delete absent", func(t *testing.T) {
		m := platform.NewMap[int, string]()

		if m.Delete(42) {
			t.Error("expected delete of absent key to report false")
		}
		if m.Delete(42) {
			t.Error("expected repeated delete to report false")
		}
	})

	t.Run("snapshot is detached", func(t *testing.T) {
		m := platform.NewMap[int, string]()
		m.Put(1, "one")
		m.Put(2, "two")

		snap := m.Snapshot()
		delete(snap, 1)
		snap[3] = "three"

		if _, ok := m.Get(1); !ok {
			t.Error("expected key 1 to survive snapshot mutation")
		}
		if _, ok := m.Get(3); ok {
			t.Error("expected key 3 to not leak into the map")
		}
		if m.Len() != 2 {
			t.Errorf("got len %d, want 2", m.Len())
		}
	})

	t.Run("concurrent access", func(t *testing.T) {
		m := platform.NewMap[int, int]()

		var wg sync.WaitGroup
		for i := range 100 {
			wg.Add(1)
			go func() {
				defer wg.Done()

				m.Put(i, i)
				m.Get(i)
				m.ForEach(func(int, int) {})
				m.Snapshot()
				m.Delete(i)
			}()
		}
		wg.Wait()

		if m.Len() != 0 {
			t.Errorf("got len %d, want 0", m.Len())
		}
	})
}
