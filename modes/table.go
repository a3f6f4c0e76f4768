// Package modes builds modes from configuration tables. Bindings, icons
// and colours stay data; this package only knows how to apply them.
package modes

import (
	"errors"
	"fmt"
	"time"

	colorful "github.com/lucasb-eyer/go-colorful"

	"go-inkdeck/action"
	"go-inkdeck/config"
	"go-inkdeck/device"
	"go-inkdeck/errcode"
	"go-inkdeck/mode"
)

type binding struct {
	content device.Content
	press   action.Sequence
	release action.Sequence
}

// Table is a mode made only of static bindings: button content and
// sequences, optional dial functions and LED colours.
type Table struct {
	name    string
	title   string
	layout  device.Layout
	buttons map[int]binding
	jog     *mode.JogDial
	leds    []colorful.Color
	fade    bool
}

// NewTable builds a table mode from spec
func NewTable(spec config.ModeSpec, layout device.Layout) (*Table, error) {
	t := &Table{
		name:    spec.Name,
		title:   spec.Title,
		layout:  layout,
		buttons: make(map[int]binding),
		fade:    spec.LEDs.Fade,
	}
	if t.title == "" {
		t.title = spec.Name
	}

	for _, b := range spec.Buttons {
		if b.Button < 1 || b.Button > layout.Buttons {
			return nil, invalid(spec.Name, "button %d outside 1..%d", b.Button, layout.Buttons)
		}
		if _, dup := t.buttons[b.Button]; dup {
			return nil, invalid(spec.Name, "button %d defined twice", b.Button)
		}
		press, err := action.ParseSequence(b.Press)
		if err != nil {
			return nil, invalid(spec.Name, "button %d press: %v", b.Button, err)
		}
		release, err := action.ParseSequence(b.Release)
		if err != nil {
			return nil, invalid(spec.Name, "button %d release: %v", b.Button, err)
		}
		t.buttons[b.Button] = binding{content: buttonContent(b), press: press, release: release}
	}

	if len(spec.Jog) > 0 {
		if _, taken := t.buttons[1]; taken {
			return nil, invalid(spec.Name, "button 1 is the dial label when jog functions are set")
		}
		funcs := make([]mode.JogFunction, len(spec.Jog))
		for i, j := range spec.Jog {
			cw, err := action.ParseSequence(j.CW)
			if err != nil {
				return nil, invalid(spec.Name, "jog %q cw: %v", j.Label, err)
			}
			ccw, err := action.ParseSequence(j.CCW)
			if err != nil {
				return nil, invalid(spec.Name, "jog %q ccw: %v", j.Label, err)
			}
			funcs[i] = mode.JogFunction{Label: j.Label, CW: cw, CCW: ccw}
		}
		t.jog = mode.NewJogDial(funcs...)
		next, custom, err := jogTransitions(spec)
		if err != nil {
			return nil, err
		}
		if custom {
			if err := t.jog.SetTransitions(next); err != nil {
				return nil, invalid(spec.Name, "jog: %v", err)
			}
		}
	}

	leds, err := device.ParseColors(spec.LEDs.Colors)
	if err != nil {
		return nil, invalid(spec.Name, "leds: %v", err)
	}
	t.leds = fill(leds, layout.LEDs)
	return t, nil
}

// jogTransitions resolves the "next" labels of spec's dial functions.
// ok is false when none is set and the dial simply cycles.
func jogTransitions(spec config.ModeSpec) (next []int, ok bool, err error) {
	index := make(map[string]int, len(spec.Jog))
	for i, j := range spec.Jog {
		index[j.Label] = i
	}
	next = make([]int, len(spec.Jog))
	for i, j := range spec.Jog {
		next[i] = (i + 1) % len(spec.Jog)
		if j.Next == "" {
			continue
		}
		n, found := index[j.Next]
		if !found {
			return nil, false, invalid(spec.Name, "jog %q: next %q is not a dial function", j.Label, j.Next)
		}
		next[i] = n
		ok = true
	}
	return next, ok, nil
}

func invalid(name, format string, args ...any) error {
	return errcode.New(errcode.InvalidConfig, "mode "+name, fmt.Sprintf(format, args...))
}

func buttonContent(b config.ButtonSpec) device.Content {
	if b.Icon != "" {
		return device.Icon(b.Icon, device.IconStyle{Centered: b.Centered, Marked: b.Marked, Crossed: b.Crossed})
	}
	return device.Text(b.Text, b.Inverted)
}

// fill repeats colors across n LEDs
func fill(colors []colorful.Color, n int) []colorful.Color {
	if len(colors) == 0 || n <= 0 {
		return nil
	}
	out := make([]colorful.Color, n)
	for i := range out {
		out[i] = colors[i%len(colors)]
	}
	return out
}

func (t *Table) Name() string { return t.name }

// Regions is the title plus every button: unused ones are blanked
func (t *Table) Regions() []device.Region {
	return t.layout.Regions()
}

// stage writes everything Activate shows and binds, without flushing.
// A failed assignment does not stop the rest from being staged.
func (t *Table) stage(s mode.Session) error {
	var errs []error
	s.SetText(device.RegionTitle, t.title, true)

	first := 1
	if t.jog != nil {
		// button 1 carries the dial label; its own transitions only toggle
		first = 2
		errs = append(errs, assignPair(s, 1, nil, nil), t.jog.Bind(s))
	} else {
		errs = append(errs, s.AssignAction(action.DialCW, nil), s.AssignAction(action.DialCCW, nil))
	}

	for n := first; n <= t.layout.Buttons; n++ {
		b, ok := t.buttons[n]
		if !ok {
			b = binding{content: device.Blank()}
		}
		device.Write(s, device.Button(n), b.content)
		errs = append(errs, assignPair(s, n, b.press, b.release))
	}

	if t.leds != nil {
		s.SetLeds(t.leds)
	}
	return errors.Join(errs...)
}

func assignPair(s device.Session, n int, press, release action.Sequence) error {
	return errors.Join(
		s.AssignAction(action.ButtonPress(n), press),
		s.AssignAction(action.ButtonRelease(n), release),
	)
}

func (t *Table) Activate(s mode.Session) error {
	return errors.Join(t.stage(s), s.Flush())
}

func (t *Table) Poll(mode.Session) (time.Duration, error) {
	return mode.NoPoll, nil
}

// Animate fades the strip unless the mode shows static colours
func (t *Table) Animate(s mode.Session) error {
	if t.fade || t.leds == nil {
		s.FadeLeds()
	}
	return nil
}

func (t *Table) Deactivate(s mode.Session) error {
	s.ClearAllCallbacks()
	return nil
}
