package device

import (
	"fmt"
	"strings"
	"sync"

	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/exp/constraints"
)

// FadeStep is the fraction of the way to black each FadeLeds call moves
const FadeStep = 0.15

// below this channel value a faded LED snaps to off
const fadeFloor = 1.0 / 255

var black = colorful.Color{}

// LEDStrip holds the LED colours of a session. Modes change it with
// colour arithmetic only; the transport drains it with Take at its own rate.
type LEDStrip struct {
	mu     sync.Mutex
	colors []colorful.Color
	dirty  bool
	step   float64
}

func NewLEDStrip(n int) *LEDStrip {
	return &LEDStrip{
		colors: make([]colorful.Color, n),
		step:   FadeStep,
	}
}

// Len returns the LED count
func (l *LEDStrip) Len() int {
	return len(l.colors)
}

// Set replaces every colour. Missing entries are off, extra ones ignored.
func (l *LEDStrip) Set(colors []colorful.Color) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.colors {
		c := black
		if i < len(colors) {
			c = colors[i].Clamped()
		}
		if c != l.colors[i] {
			l.colors[i] = c
			l.dirty = true
		}
	}
}

// Fill sets every LED to c
func (l *LEDStrip) Fill(c colorful.Color) {
	colors := make([]colorful.Color, l.Len())
	for i := range colors {
		colors[i] = c
	}
	l.Set(colors)
}

// Fade moves every LED one step towards off. A strip that is already off
// stays clean, so steady state costs no I/O.
func (l *LEDStrip) Fade() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, c := range l.colors {
		if c == black {
			continue
		}
		next := c.BlendRgb(black, l.step)
		if max(next.R, next.G, next.B) < fadeFloor {
			next = black
		}
		l.colors[i] = next
		l.dirty = true
	}
}

// SetFadeStep changes the per-call fade fraction, clamped to (0, 1]
func (l *LEDStrip) SetFadeStep(step float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.step = clamp(step, 0.01, 1)
}

// Take returns the colours and clears the dirty flag. ok is false when
// nothing changed since the last Take.
func (l *LEDStrip) Take() (colors []colorful.Color, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.dirty {
		return nil, false
	}
	l.dirty = false
	return append([]colorful.Color(nil), l.colors...), true
}

// MarkDirty forces the next Take to report the current colours, used after
// a transport reconnects
func (l *LEDStrip) MarkDirty() {
	l.mu.Lock()
	l.dirty = true
	l.mu.Unlock()
}

// Snapshot copies the current colours without touching the dirty flag
func (l *LEDStrip) Snapshot() []colorful.Color {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]colorful.Color(nil), l.colors...)
}

// RGB8 converts a colour to clamped 8-bit channels
func RGB8(c colorful.Color) [3]uint8 {
	r, g, b := c.Clamped().RGB255()
	return [3]uint8{r, g, b}
}

// ParseColor accepts "#rrggbb", "0xrrggbb" or "rrggbb"
func ParseColor(s string) (colorful.Color, error) {
	h := strings.ToLower(strings.TrimSpace(s))
	h = strings.TrimPrefix(h, "0x")
	h = strings.TrimPrefix(h, "#")
	if len(h) != 6 {
		return colorful.Color{}, fmt.Errorf("invalid colour %q", s)
	}
	c, err := colorful.Hex("#" + h)
	if err != nil {
		return colorful.Color{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return c, nil
}

// ParseColors parses a list with ParseColor
func ParseColors(items []string) ([]colorful.Color, error) {
	out := make([]colorful.Color, 0, len(items))
	for _, s := range items {
		c, err := ParseColor(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
