// Package sim is a Session without hardware. It keeps what a real pad
// would show so the TUI can draw it, and injects inputs the way the
// device's firmware reports them.
package sim

import (
	"sync/atomic"

	"go-inkdeck/action"
	"go-inkdeck/debug"
	"go-inkdeck/device"
	"go-inkdeck/errcode"
)

// Session is a simulated pad
type Session struct {
	*device.State

	emit      action.Emitter
	connected atomic.Bool
	flushes   atomic.Int64
	updates   chan struct{}
}

// New creates a connected simulator. Sequences fired by inputs go to emit.
func New(l device.Layout, emit action.Emitter) *Session {
	if emit == nil {
		emit = action.NewLogEmitter()
	}
	s := &Session{
		State:   device.NewState(l),
		emit:    emit,
		updates: make(chan struct{}, 1),
	}
	s.connected.Store(true)
	return s
}

func (s *Session) AssignAction(in action.Input, seq action.Sequence) error {
	if !in.Valid() {
		return errcode.New(errcode.Error, "assign", in.String())
	}
	s.State.Assign(in, seq)
	return nil
}

// Flush commits staged regions. A disconnected simulator keeps them staged
// and reports DeviceUnavailable, as a real transport does.
func (s *Session) Flush() error {
	if !s.connected.Load() {
		return errcode.New(errcode.DeviceUnavailable, "flush", "simulator disconnected")
	}
	changes := s.State.Changes()
	s.State.Commit(changes)
	s.flushes.Add(1)
	if len(changes) > 0 {
		debug.Log("sim", "flush %d regions", len(changes))
	}
	s.notify()
	return nil
}

func (s *Session) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// Updates signals after every flush
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

// Flushes counts successful flushes
func (s *Session) Flushes() int64 {
	return s.flushes.Load()
}

// SetConnected simulates unplugging and replugging the pad. Reconnecting
// forgets what was shown, like a device that lost power.
func (s *Session) SetConnected(on bool) {
	if s.connected.Swap(on) == on {
		return
	}
	if on {
		s.State.Invalidate()
	}
	debug.Log("sim", "connected=%v", on)
}

func (s *Session) Connected() bool {
	return s.connected.Load()
}

// Input injects one input transition
func (s *Session) Input(in action.Input) error {
	if !s.connected.Load() {
		return nil
	}
	switch in {
	case action.DialCW:
		return s.State.Turn(true, s.emit)
	case action.DialCCW:
		return s.State.Turn(false, s.emit)
	}
	return s.State.Trigger(in, s.emit)
}

// Tap presses and releases button n
func (s *Session) Tap(n int) error {
	if err := s.Input(action.ButtonPress(n)); err != nil {
		return err
	}
	return s.Input(action.ButtonRelease(n))
}

// Turn rotates the dial by steps detents; negative is counter-clockwise
func (s *Session) Turn(steps int) error {
	in := action.DialCW
	if steps < 0 {
		in, steps = action.DialCCW, -steps
	}
	for range steps {
		if err := s.Input(in); err != nil {
			return err
		}
	}
	return nil
}
