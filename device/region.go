package device

import (
	"fmt"

	"go-inkdeck/redraw"
)

// Region addresses one independently drawable area of the status display
type Region int

const RegionTitle Region = 0

// Button returns the region drawn next to button n
func Button(n int) Region {
	return Region(n)
}

// Regions lists the title plus one region per button
func (l Layout) Regions() []Region {
	out := make([]Region, 0, l.Buttons+1)
	out = append(out, RegionTitle)
	for n := 1; n <= l.Buttons; n++ {
		out = append(out, Button(n))
	}
	return out
}

func (r Region) String() string {
	if r == RegionTitle {
		return "title"
	}
	return fmt.Sprintf("button%d", int(r))
}

// Kind is what a region currently shows
type Kind uint8

const (
	KindBlank Kind = iota
	KindText
	KindIcon
)

// IconStyle carries the icon decoration flags
type IconStyle struct {
	Centered bool
	Marked   bool // highlighted, e.g. the active scene
	Crossed  bool // struck through, e.g. a muted source
}

// Content is the rendered-content descriptor of a region. It is a
// comparable value so equal content can be detected without I/O.
type Content struct {
	Kind     Kind
	Text     string
	Inverted bool
	Icon     string
	Centered bool
	Marked   bool
	Crossed  bool
}

// Blank is the defined empty state of a region
func Blank() Content {
	return Content{Kind: KindBlank}
}

// Text builds text content
func Text(text string, inverted bool) Content {
	if text == "" && !inverted {
		return Blank()
	}
	return Content{Kind: KindText, Text: text, Inverted: inverted}
}

// Icon builds icon content
func Icon(icon string, style IconStyle) Content {
	return Content{Kind: KindIcon, Icon: icon, Centered: style.Centered, Marked: style.Marked, Crossed: style.Crossed}
}

// Redraw stages the regions of next that differ from prev (all of them when
// init is set) and reports whether a flush is needed
func Redraw(s Session, prev, next map[Region]Content, init bool) bool {
	return redraw.Apply(prev, next, init, func(r Region, c Content, present bool) {
		if !present {
			c = Blank()
		}
		Write(s, r, c)
	})
}
