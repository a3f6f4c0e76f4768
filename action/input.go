package action

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxButtons is the largest button count an Input can address.
// The count actually present on a device comes from its layout.
const MaxButtons = 16

// Input identifies one physical control transition
type Input uint8

const (
	Dial    Input = iota // any rotation, callback only
	DialCW               // clockwise step
	DialCCW              // counter-clockwise step

	buttonBase // first button input, see ButtonPress

	// DialPress is the push switch of the dial, wired as button 1
	DialPress = buttonBase
)

// ButtonPress returns the press transition of button n (1-based)
func ButtonPress(n int) Input {
	return buttonBase + Input((n-1)*2)
}

// ButtonRelease returns the release transition of button n (1-based)
func ButtonRelease(n int) Input {
	return buttonBase + Input((n-1)*2+1)
}

// Button reports the button number and transition for button inputs.
// ok is false for dial inputs.
func (in Input) Button() (n int, pressed bool, ok bool) {
	if in < buttonBase || !in.Valid() {
		return 0, false, false
	}
	off := int(in - buttonBase)
	return off/2 + 1, off%2 == 0, true
}

// Valid reports whether in is inside the enumerated set
func (in Input) Valid() bool {
	return in < buttonBase+Input(2*MaxButtons)
}

func (in Input) String() string {
	switch in {
	case Dial:
		return "JOG"
	case DialCW:
		return "JOG_CW"
	case DialCCW:
		return "JOG_CCW"
	}
	n, pressed, ok := in.Button()
	if !ok {
		return fmt.Sprintf("INPUT(%d)", uint8(in))
	}
	if pressed {
		return fmt.Sprintf("SW%d_PRESS", n)
	}
	return fmt.Sprintf("SW%d_RELEASE", n)
}

// ParseInput parses names produced by Input.String (case-insensitive)
func ParseInput(s string) (Input, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	switch name {
	case "JOG", "DIAL":
		return Dial, nil
	case "JOG_CW", "DIAL_CW":
		return DialCW, nil
	case "JOG_CCW", "DIAL_CCW":
		return DialCCW, nil
	case "JOG_PRESS", "DIAL_PRESS":
		return DialPress, nil
	}

	if !strings.HasPrefix(name, "SW") {
		return 0, fmt.Errorf("unknown input %q", s)
	}
	num, edge, found := strings.Cut(name[2:], "_")
	if !found {
		return 0, fmt.Errorf("unknown input %q", s)
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 1 || n > MaxButtons {
		return 0, fmt.Errorf("button out of range in %q", s)
	}
	switch edge {
	case "PRESS":
		return ButtonPress(n), nil
	case "RELEASE":
		return ButtonRelease(n), nil
	}
	return 0, fmt.Errorf("unknown input %q", s)
}

// Inputs lists every input of a device with the given button count,
// dial inputs first
func Inputs(buttons int) []Input {
	out := []Input{Dial, DialCW, DialCCW}
	for n := 1; n <= buttons && n <= MaxButtons; n++ {
		out = append(out, ButtonPress(n), ButtonRelease(n))
	}
	return out
}
