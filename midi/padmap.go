package midi

import (
	"go-inkdeck/action"
	"go-inkdeck/device"
)

// Pad is a grid position: row 0 is the bottom row, row 8 the top buttons,
// col 8 the side column
type Pad [2]int

// PadMap lays the pad out on the Launchpad: buttons fill the top two grid
// rows left to right, the title is the top side button, the dial is the up
// and down arrows, and the LED strip fills the bottom four rows.
type PadMap struct {
	layout device.Layout
}

const (
	maxMappedButtons = 16
	maxMappedLEDs    = 32

	ccDialCW  = 0 // top row col of the up arrow
	ccDialCCW = 1 // down arrow
)

func NewPadMap(l device.Layout) PadMap {
	return PadMap{layout: l}
}

// RegionPad returns the pad showing region r
func (m PadMap) RegionPad(r device.Region) (Pad, bool) {
	if r == device.RegionTitle {
		return Pad{7, 8}, true
	}
	n := int(r)
	if n < 1 || n > m.layout.Buttons || n > maxMappedButtons {
		return Pad{}, false
	}
	return Pad{7 - (n-1)/8, (n - 1) % 8}, true
}

// LEDPad returns the pad showing strip LED i
func (m PadMap) LEDPad(i int) (Pad, bool) {
	if i < 0 || i >= m.layout.LEDs || i >= maxMappedLEDs {
		return Pad{}, false
	}
	return Pad{i / 8, i % 8}, true
}

// Input maps a pad event to the pad's input. ok is false for pads that
// carry nothing, and for dial arrow releases.
func (m PadMap) Input(ev PadEvent) (in action.Input, ok bool) {
	if ev.Row == 8 {
		if !ev.Pressed {
			return 0, false
		}
		switch ev.Col {
		case ccDialCW:
			return action.DialCW, true
		case ccDialCCW:
			return action.DialCCW, true
		}
		return 0, false
	}
	if ev.Row < 6 || ev.Col > 7 {
		return 0, false
	}
	n := (7-ev.Row)*8 + ev.Col + 1
	if n > m.layout.Buttons {
		return 0, false
	}
	if ev.Pressed {
		return action.ButtonPress(n), true
	}
	return action.ButtonRelease(n), true
}

// RegionColor is how region content looks on a pad: blank is off, crossed
// icons red, marked icons green, inverted text and other icons white,
// plain text grey.
func RegionColor(c device.Content) [3]uint8 {
	switch c.Kind {
	case device.KindIcon:
		switch {
		case c.Crossed:
			return [3]uint8{255, 0, 0}
		case c.Marked:
			return [3]uint8{0, 255, 0}
		}
		return [3]uint8{255, 255, 255}
	case device.KindText:
		if c.Inverted {
			return [3]uint8{255, 255, 255}
		}
		return [3]uint8{60, 60, 60}
	}
	return [3]uint8{}
}
