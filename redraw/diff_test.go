package redraw

import (
	"slices"
	"testing"
)

type cell struct {
	icon    string
	marked  bool
	crossed bool
}

func states() []map[int]cell {
	return []map[int]cell{
		{},
		{7: {icon: "phone"}, 8: {icon: "pip"}, 9: {icon: "mic"}},
		{7: {icon: "phone"}, 8: {icon: "pip"}, 9: {icon: "mic", crossed: true}},
		{7: {icon: "phone", marked: true}, 8: {icon: "pip"}},
		{2: {icon: "cam"}, 9: {icon: "mic"}},
	}
}

func TestDiffIdempotent(t *testing.T) {
	for i, s := range states() {
		ids, changed := Diff(s, s)
		if changed || len(ids) != 0 {
			t.Errorf("state %d: Diff(s, s) = (%v, %v), want (nil, false)", i, ids, changed)
		}
	}
}

func TestDiffSymmetricIDs(t *testing.T) {
	all := states()
	for i, a := range all {
		for j, b := range all {
			ab, anyAB := Diff(a, b)
			ba, anyBA := Diff(b, a)
			if !slices.Equal(ab, ba) || anyAB != anyBA {
				t.Errorf("Diff(%d,%d) = %v, Diff(%d,%d) = %v", i, j, ab, j, i, ba)
			}
		}
	}
}

func TestDiffSingleToggle(t *testing.T) {
	all := states()
	ids, changed := Diff(all[1], all[2])
	if !changed || !slices.Equal(ids, []int{9}) {
		t.Errorf("Diff = (%v, %v), want ([9], true)", ids, changed)
	}
}

func TestDiffMissingKeys(t *testing.T) {
	all := states()
	ids, _ := Diff(all[1], all[4])
	if want := []int{2, 7, 8}; !slices.Equal(ids, want) {
		t.Errorf("Diff = %v, want %v", ids, want)
	}
}

func TestApply(t *testing.T) {
	all := states()

	var written []int
	var removed []int
	write := func(id int, _ cell, present bool) {
		if present {
			written = append(written, id)
		} else {
			removed = append(removed, id)
		}
	}

	if !Apply(nil, all[1], true, write) {
		t.Fatal("init Apply reported no change")
	}
	if !slices.Equal(written, []int{7, 8, 9}) {
		t.Errorf("init wrote %v, want every region", written)
	}

	written = nil
	if Apply(all[1], all[1], false, write) {
		t.Error("Apply with equal states reported a change")
	}
	if len(written) != 0 {
		t.Errorf("Apply with equal states wrote %v", written)
	}

	written = nil
	Apply(all[1], all[3], false, write)
	if !slices.Equal(written, []int{7}) || !slices.Equal(removed, []int{9}) {
		t.Errorf("wrote %v removed %v, want [7] and [9]", written, removed)
	}
}
