// Package device defines the capability set the mode engine needs from a
// physical (or simulated) macro pad, plus the bookkeeping shared by every
// transport.
package device

import (
	colorful "github.com/lucasb-eyer/go-colorful"

	"go-inkdeck/action"
)

// Layout describes the physical controls. Counts are configuration, never
// literals in mode code.
type Layout struct {
	Buttons int // button 1 is the dial push switch
	LEDs    int
}

// DefaultLayout matches the reference hardware: 9 switches, 20 LEDs
var DefaultLayout = Layout{Buttons: 9, LEDs: 20}

// Session is the device capability set consumed by modes.
//
// Region and LED setters only stage changes; Flush commits staged region
// content in one batch. LED changes are pushed by the transport at its own
// frame rate, so SetLeds and FadeLeds never block.
type Session interface {
	Layout() Layout

	SetText(r Region, text string, inverted bool)
	SetIcon(r Region, icon string, style IconStyle)

	SetLeds(colors []colorful.Color)
	FadeLeds()

	AssignAction(in action.Input, seq action.Sequence) error

	RegisterCallback(in action.Input, fn func())
	ClearCallback(in action.Input)
	ClearAllCallbacks()

	Flush() error
}

// Write stages c into region r using the matching setter
func Write(s Session, r Region, c Content) {
	switch c.Kind {
	case KindIcon:
		s.SetIcon(r, c.Icon, IconStyle{Centered: c.Centered, Marked: c.Marked, Crossed: c.Crossed})
	default:
		s.SetText(r, c.Text, c.Inverted)
	}
}
