package action

import (
	"fmt"
	"strings"
)

// Target selects which host interface an event is emitted on
type Target uint8

const (
	Keyboard Target = iota
	Consumer        // media / application keys
	Mouse
)

func (t Target) String() string {
	switch t {
	case Keyboard:
		return "key"
	case Consumer:
		return "consumer"
	case Mouse:
		return "mouse"
	default:
		return "unknown"
	}
}

// Phase is the key transition an event produces
type Phase uint8

const (
	Tap     Phase = iota // press immediately followed by release
	Press
	Release
)

func (p Phase) String() string {
	switch p {
	case Tap:
		return "tap"
	case Press:
		return "press"
	case Release:
		return "release"
	default:
		return "unknown"
	}
}

// Event is one atomic output action. Code is content (e.g. "LEFT_ALT") and
// is passed through to the emitter untouched.
type Event struct {
	Target Target
	Code   string
	Phase  Phase
}

// String renders the event in the form accepted by ParseEvent
func (e Event) String() string {
	if e.Phase == Tap {
		return e.Target.String() + ":" + e.Code
	}
	return e.Target.String() + ":" + e.Code + ":" + e.Phase.String()
}

// ParseEvent parses "target:CODE[:phase]", e.g. "key:LEFT_ALT:press".
// The phase defaults to tap.
func ParseEvent(s string) (Event, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 || parts[1] == "" {
		return Event{}, fmt.Errorf("malformed event %q", s)
	}

	var e Event
	switch strings.ToLower(parts[0]) {
	case "key", "keyboard", "k":
		e.Target = Keyboard
	case "consumer", "c":
		e.Target = Consumer
	case "mouse", "m":
		e.Target = Mouse
	default:
		return Event{}, fmt.Errorf("unknown target in %q", s)
	}
	e.Code = strings.ToUpper(parts[1])

	if len(parts) == 3 {
		switch strings.ToLower(parts[2]) {
		case "tap", "t", "":
			e.Phase = Tap
		case "press", "p":
			e.Phase = Press
		case "release", "r":
			e.Phase = Release
		default:
			return Event{}, fmt.Errorf("unknown phase in %q", s)
		}
	}
	return e, nil
}

// Sequence is an ordered list of events bound to one input transition.
// It is replaced wholesale, never edited in place.
type Sequence []Event

// ParseSequence parses each entry with ParseEvent, keeping order
func ParseSequence(items []string) (Sequence, error) {
	seq := make(Sequence, 0, len(items))
	for i, item := range items {
		e, err := ParseEvent(item)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		seq = append(seq, e)
	}
	return seq, nil
}

// Equal reports element-wise equality
func (s Sequence) Equal(o Sequence) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s Sequence) String() string {
	parts := make([]string, len(s))
	for i, e := range s {
		parts[i] = e.String()
	}
	return strings.Join(parts, " ")
}

// Seq is a shorthand used by modes built in code
func Seq(events ...Event) Sequence {
	return Sequence(events)
}

// Key builds a keyboard tap
func Key(code string) Event {
	return Event{Target: Keyboard, Code: code, Phase: Tap}
}

// KeyDown builds a keyboard press
func KeyDown(code string) Event {
	return Event{Target: Keyboard, Code: code, Phase: Press}
}

// KeyUp builds a keyboard release
func KeyUp(code string) Event {
	return Event{Target: Keyboard, Code: code, Phase: Release}
}
