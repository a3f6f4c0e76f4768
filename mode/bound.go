package mode

import (
	"slices"
	"sync"
	"sync/atomic"

	colorful "github.com/lucasb-eyer/go-colorful"

	"go-inkdeck/action"
	"go-inkdeck/device"
)

// boundSession is the Session handed to one activation of a mode. It
// routes callbacks through the scheduler's serialized queue, remembers
// which inputs the mode bound, and refuses use after deactivation.
type boundSession struct {
	device.Session
	sched *Scheduler
	gen   uint64
	mode  string

	state atomic.Uint32 // State

	mu     sync.Mutex
	inputs map[action.Input]struct{}
}

func newBoundSession(s *Scheduler, gen uint64, name string) *boundSession {
	b := &boundSession{
		Session: s.session,
		sched:   s,
		gen:     gen,
		mode:    name,
		inputs:  make(map[action.Input]struct{}),
	}
	b.state.Store(uint32(Active))
	return b
}

func (b *boundSession) lifecycle() State {
	return State(b.state.Load())
}

// usable reports whether the mode may still drive the device
func (b *boundSession) usable(op string) bool {
	if b.lifecycle() != Active {
		b.sched.violation(b.mode, op, "session used after deactivate")
		return false
	}
	return true
}

func (b *boundSession) SetText(r device.Region, text string, inverted bool) {
	if b.usable("SetText") {
		b.Session.SetText(r, text, inverted)
	}
}

func (b *boundSession) SetIcon(r device.Region, icon string, style device.IconStyle) {
	if b.usable("SetIcon") {
		b.Session.SetIcon(r, icon, style)
	}
}

func (b *boundSession) SetLeds(colors []colorful.Color) {
	if b.usable("SetLeds") {
		b.Session.SetLeds(colors)
	}
}

func (b *boundSession) FadeLeds() {
	if b.usable("FadeLeds") {
		b.Session.FadeLeds()
	}
}

func (b *boundSession) AssignAction(in action.Input, seq action.Sequence) error {
	if !b.usable("AssignAction") {
		return nil
	}
	return b.Session.AssignAction(in, seq)
}

func (b *boundSession) Flush() error {
	if !b.usable("Flush") {
		return nil
	}
	return b.sched.flush()
}

func (b *boundSession) RegisterCallback(in action.Input, fn func()) {
	if !b.usable("RegisterCallback") {
		return
	}
	if fn == nil {
		b.ClearCallback(in)
		return
	}
	b.mu.Lock()
	b.inputs[in] = struct{}{}
	b.mu.Unlock()

	gen, label := b.gen, in.String()
	b.Session.RegisterCallback(in, func() {
		b.sched.post(gen, label, fn)
	})
}

func (b *boundSession) ClearCallback(in action.Input) {
	b.mu.Lock()
	delete(b.inputs, in)
	b.mu.Unlock()
	b.Session.ClearCallback(in)
}

func (b *boundSession) ClearAllCallbacks() {
	b.mu.Lock()
	clear(b.inputs)
	b.mu.Unlock()
	b.Session.ClearAllCallbacks()
}

func (b *boundSession) Post(fn func()) {
	b.sched.post(b.gen, "post", fn)
}

// bound lists inputs the mode registered and has not cleared
func (b *boundSession) bound() []action.Input {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]action.Input, 0, len(b.inputs))
	for in := range b.inputs {
		out = append(out, in)
	}
	slices.Sort(out)
	return out
}

func (b *boundSession) close() {
	b.state.Store(uint32(Inactive))
}
