// Package redraw computes the minimal set of display regions that need a
// repaint when a mode's logical state changes.
package redraw

import (
	"slices"

	"golang.org/x/exp/constraints"
)

// Diff returns the ids whose value differs between prev and next, sorted.
// An id present on one side only counts as changed, so Diff(a, b) and
// Diff(b, a) always return the same set. Diff(s, s) is (nil, false).
func Diff[K constraints.Ordered, V comparable](prev, next map[K]V) ([]K, bool) {
	var changed []K
	for k, nv := range next {
		if pv, ok := prev[k]; !ok || pv != nv {
			changed = append(changed, k)
		}
	}
	for k := range prev {
		if _, ok := next[k]; !ok {
			changed = append(changed, k)
		}
	}
	slices.Sort(changed)
	return changed, len(changed) > 0
}

// Apply calls write for every id of next that differs from prev, or for
// every id of next when init is set (a first draw has no meaningful previous
// state). Ids dropped from next are written with present=false. It reports
// whether anything was written; flushing is left to the caller.
func Apply[K constraints.Ordered, V comparable](prev, next map[K]V, init bool, write func(id K, v V, present bool)) bool {
	var ids []K
	if init {
		ids = make([]K, 0, len(next))
		for k := range next {
			ids = append(ids, k)
		}
		slices.Sort(ids)
	} else {
		ids, _ = Diff(prev, next)
	}

	for _, k := range ids {
		v, ok := next[k]
		write(k, v, ok)
	}
	return len(ids) > 0
}
