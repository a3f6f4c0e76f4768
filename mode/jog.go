package mode

import (
	"errors"
	"fmt"

	"go-inkdeck/action"
	"go-inkdeck/debug"
	"go-inkdeck/device"
	"go-inkdeck/errcode"
)

// JogFunction is one meaning of the dial: what turning it emits, and the
// label shown while it is selected.
type JogFunction struct {
	Label string
	CW    action.Sequence
	CCW   action.Sequence
}

// JogDial multiplexes several functions onto the dial, switched by pressing
// it. The selection is an index into funcs moved along a transition table;
// -1 means nothing has been bound yet.
type JogDial struct {
	funcs    []JogFunction
	next     []int
	selected int
}

// NewJogDial cycles through funcs in order
func NewJogDial(funcs ...JogFunction) *JogDial {
	next := make([]int, len(funcs))
	for i := range next {
		next[i] = (i + 1) % len(funcs)
	}
	return &JogDial{funcs: funcs, next: next, selected: -1}
}

// SetTransitions replaces the cyclic order: pressing the dial while
// function i is selected selects next[i].
func (j *JogDial) SetTransitions(next []int) error {
	if len(next) != len(j.funcs) {
		return errcode.New(errcode.InvalidConfig, "jog", fmt.Sprintf("%d transitions for %d functions", len(next), len(j.funcs)))
	}
	for i, n := range next {
		if n < 0 || n >= len(j.funcs) {
			return errcode.New(errcode.InvalidConfig, "jog", fmt.Sprintf("transition %d -> %d out of range", i, n))
		}
	}
	j.next = append([]int(nil), next...)
	return nil
}

// Len is the number of functions
func (j *JogDial) Len() int {
	return len(j.funcs)
}

// Current returns the selected function id, -1 before the first toggle
func (j *JogDial) Current() int {
	return j.selected
}

// Function returns the selected function
func (j *JogDial) Function() (JogFunction, bool) {
	if j.selected < 0 {
		return JogFunction{}, false
	}
	return j.funcs[j.selected], true
}

// Reset forgets the selection so the next Toggle binds the first function
func (j *JogDial) Reset() {
	j.selected = -1
}

// Region is where the selected function's label is shown
func (j *JogDial) Region() device.Region {
	return device.Button(1)
}

// Toggle moves to the next function: it clears whatever the dial rotations
// were bound to, binds the new function's sequences, labels the dial region
// and advances the selection. The display is flushed only when flush is set,
// so Activate can batch the first call with its own updates.
func (j *JogDial) Toggle(s device.Session, flush bool) error {
	if len(j.funcs) == 0 {
		return nil
	}
	target := 0
	if j.selected >= 0 {
		target = j.next[j.selected]
	}
	f := j.funcs[target]

	s.ClearCallback(action.Dial)
	s.ClearCallback(action.DialCW)
	s.ClearCallback(action.DialCCW)

	err := errors.Join(
		s.AssignAction(action.DialCW, f.CW),
		s.AssignAction(action.DialCCW, f.CCW),
	)
	s.SetText(j.Region(), f.Label, false)

	j.selected = target
	if flush {
		return errors.Join(err, s.Flush())
	}
	return err
}

// Bind installs the first function and makes a dial press toggle. Call it
// from Activate before the single flush.
func (j *JogDial) Bind(s device.Session) error {
	j.Reset()
	err := j.Toggle(s, false)
	s.RegisterCallback(action.DialPress, func() {
		if err := j.Toggle(s, true); err != nil {
			debug.Log("jog", "toggle: %v", err)
		}
	})
	return err
}
