package status

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestCounterIsCached(t *testing.T) {
	r := NewRegistry()
	a := r.Counter("sched.ticks")
	b := r.Counter("sched.ticks")
	if a != b {
		t.Fatal("Counter returned different pointers for one key")
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Counter("sched.ticks").Add(1)
			}
		}()
	}
	wg.Wait()

	if got := r.Snapshot()["sched.ticks"]; got != 800 {
		t.Errorf("sched.ticks = %d, want 800", got)
	}
}

func TestRangeSorted(t *testing.T) {
	r := NewRegistry()
	r.Counter("b")
	r.Counter("a")
	r.Counter("c")

	var keys []string
	r.Ints.Range(func(key string, _ *atomic.Int64) { keys = append(keys, key) })
	if len(keys) != 3 || keys[0] != "a" || keys[2] != "c" {
		t.Errorf("Range order = %v", keys)
	}
}
