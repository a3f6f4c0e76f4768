package device

import (
	"maps"
	"sync"

	colorful "github.com/lucasb-eyer/go-colorful"

	"go-inkdeck/action"
	"go-inkdeck/debug"
	"go-inkdeck/redraw"
)

// State is the transport-independent half of a Session: staged and shown
// region content, assigned sequences, callbacks and LEDs. Transports embed
// it and add AssignAction and Flush.
type State struct {
	layout Layout

	mu      sync.Mutex
	pending map[Region]Content // staged since the last commit
	shown   map[Region]Content // last content the device acknowledged
	actions map[action.Input]action.Sequence

	LEDs      *LEDStrip
	Callbacks *Callbacks
}

func NewState(l Layout) *State {
	return &State{
		layout:    l,
		pending:   make(map[Region]Content),
		shown:     make(map[Region]Content),
		actions:   make(map[action.Input]action.Sequence),
		LEDs:      NewLEDStrip(l.LEDs),
		Callbacks: NewCallbacks(),
	}
}

func (s *State) Layout() Layout {
	return s.layout
}

func (s *State) valid(r Region) bool {
	if r < RegionTitle || int(r) > s.layout.Buttons {
		debug.LogEvery(50, "device", "ignoring out-of-range region %d", int(r))
		return false
	}
	return true
}

func (s *State) stage(r Region, c Content) {
	if !s.valid(r) {
		return
	}
	s.mu.Lock()
	s.pending[r] = c
	s.mu.Unlock()
}

func (s *State) SetText(r Region, text string, inverted bool) {
	s.stage(r, Text(text, inverted))
}

func (s *State) SetIcon(r Region, icon string, style IconStyle) {
	s.stage(r, Icon(icon, style))
}

func (s *State) SetLeds(colors []colorful.Color) {
	s.LEDs.Set(colors)
}

func (s *State) FadeLeds() {
	s.LEDs.Fade()
}

func (s *State) RegisterCallback(in action.Input, fn func()) {
	s.Callbacks.Register(in, fn)
}

func (s *State) ClearCallback(in action.Input) {
	s.Callbacks.Clear(in)
}

func (s *State) ClearAllCallbacks() {
	s.Callbacks.ClearAll()
}

// Assign records seq for in, replacing the previous sequence
func (s *State) Assign(in action.Input, seq action.Sequence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(seq) == 0 {
		delete(s.actions, in)
		return
	}
	s.actions[in] = append(action.Sequence(nil), seq...)
}

// Action returns the sequence assigned to in
func (s *State) Action(in action.Input) (action.Sequence, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.actions[in]
	return seq, ok
}

// Actions copies every assigned sequence
func (s *State) Actions() map[action.Input]action.Sequence {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.actions)
}

// Changes returns staged regions whose content differs from what is shown.
// Staging a region with its current content therefore costs nothing.
func (s *State) Changes() map[Region]Content {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := maps.Clone(s.shown)
	maps.Copy(next, s.pending)
	ids, _ := redraw.Diff(s.shown, next)

	out := make(map[Region]Content, len(ids))
	for _, r := range ids {
		out[r] = next[r]
	}
	return out
}

// Commit marks changes as shown and drops the staged set
func (s *State) Commit(changes map[Region]Content) {
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.Copy(s.shown, changes)
	clear(s.pending)
}

// Invalidate forgets what the device shows, so the next flush resends every
// staged and shown region (after a reconnect)
func (s *State) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for r, c := range s.shown {
		if _, staged := s.pending[r]; !staged {
			s.pending[r] = c
		}
	}
	clear(s.shown)
	s.LEDs.MarkDirty()
}

// Shown copies the committed region content
func (s *State) Shown() map[Region]Content {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.shown)
}

// Trigger handles one input on the host side the way the hardware does:
// the assigned sequence is played first (emit may be nil), then the bound
// callback runs.
func (s *State) Trigger(in action.Input, emit action.Emitter) error {
	var err error
	if seq, ok := s.Action(in); ok && emit != nil {
		err = emit.Emit(in, seq)
	}
	s.Callbacks.Dispatch(in)
	return err
}

// Turn handles one dial detent: the direction's sequence and callback, then
// the callback bound to any rotation
func (s *State) Turn(cw bool, emit action.Emitter) error {
	in := action.DialCCW
	if cw {
		in = action.DialCW
	}
	err := s.Trigger(in, emit)
	s.Callbacks.Dispatch(action.Dial)
	return err
}
