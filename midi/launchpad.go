package midi

import (
	"fmt"
	"sync"
	"sync/atomic"

	colorful "github.com/lucasb-eyer/go-colorful"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"go-inkdeck/debug"
)

var ledSendCount uint64

// LaunchpadController handles a Novation Launchpad X
type LaunchpadController struct {
	id       string
	send     func(msg gomidi.Message) error
	stopFunc func()

	closeOnce sync.Once
	padChan   chan PadEvent
}

// NewLaunchpadController opens the ports of a Launchpad and puts it in
// programmer mode
func NewLaunchpadController(id string, inPort drivers.In, outPort drivers.Out) (*LaunchpadController, error) {
	var send func(gomidi.Message) error
	if outPort != nil {
		var err error
		send, err = gomidi.SendTo(outPort)
		if err != nil {
			return nil, fmt.Errorf("open output: %w", err)
		}
	}
	lp := newLaunchpad(id, send)

	if inPort != nil {
		stop, err := gomidi.ListenTo(inPort, func(msg gomidi.Message, timestampms int32) {
			lp.handle(msg)
		})
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		lp.stopFunc = stop
	}
	return lp, nil
}

func newLaunchpad(id string, send func(gomidi.Message) error) *LaunchpadController {
	lp := &LaunchpadController{
		id:      id,
		send:    send,
		padChan: make(chan PadEvent, 32),
	}
	if send != nil {
		// Programmer mode: F0 00 20 29 02 0C 00 7F F7
		send(gomidi.SysEx([]byte{0x00, 0x20, 0x29, 0x02, 0x0C, 0x00, 0x7F}))
		// Full brightness: F0 00 20 29 02 0C 08 7F F7
		send(gomidi.SysEx([]byte{0x00, 0x20, 0x29, 0x02, 0x0C, 0x08, 0x7F}))
		// LEDs driven by the host only: F0 00 20 29 02 0C 0A 01 01 F7
		send(gomidi.SysEx([]byte{0x00, 0x20, 0x29, 0x02, 0x0C, 0x0A, 0x01, 0x01}))
	}
	return lp
}

// handle turns one incoming message into a PadEvent
func (lp *LaunchpadController) handle(msg gomidi.Message) {
	var channel, key, value uint8
	row, col := -1, -1
	switch {
	case msg.GetNoteOn(&channel, &key, &value):
		row, col = noteToRowCol(key)
	case msg.GetNoteOff(&channel, &key, &value):
		row, col = noteToRowCol(key)
		value = 0
	case msg.GetControlChange(&channel, &key, &value):
		// top row buttons CC 91-98
		row, col = ccToRowCol(key)
	}
	if row < 0 {
		return
	}
	select {
	case lp.padChan <- PadEvent{Row: row, Col: col, Velocity: value, Pressed: value > 0}:
	default:
		debug.LogEvery(10, "launchpad", "pad event dropped")
	}
}

func (lp *LaunchpadController) ID() string {
	return lp.id
}

func (lp *LaunchpadController) Type() ControllerType {
	return ControllerLaunchpad
}

func (lp *LaunchpadController) PadEvents() <-chan PadEvent {
	return lp.padChan
}

// SetLEDBatch sends multiple LED updates using individual NoteOn messages
// (SysEx batching had color issues). The first send error stops the batch.
func (lp *LaunchpadController) SetLEDBatch(updates []LEDUpdate) error {
	if lp.send == nil || len(updates) == 0 {
		return nil
	}

	for _, u := range updates {
		if err := lp.send(gomidi.NoteOn(u.Channel, rowColToNote(u.Row, u.Col), mapRGBToLaunchpad(u.Color))); err != nil {
			return err
		}
	}

	count := atomic.AddUint64(&ledSendCount, uint64(len(updates)))
	if count%100 < uint64(len(updates)) {
		debug.Log("lp-send", "batch count=%d (this batch=%d)", count, len(updates))
	}
	return nil
}

// Launchpad X palette, approximate RGB values for key colors
var palette = []struct {
	velocity uint8
	color    colorful.Color
}{
	{0, rgb(0, 0, 0)},         // off
	{5, rgb(255, 0, 0)},       // red
	{6, rgb(255, 80, 80)},     // bright red
	{7, rgb(180, 60, 60)},     // dim red
	{9, rgb(255, 100, 0)},     // orange
	{11, rgb(180, 80, 40)},    // dim orange
	{13, rgb(255, 200, 0)},    // yellow
	{17, rgb(0, 180, 0)},      // green
	{19, rgb(0, 100, 0)},      // dim green
	{21, rgb(0, 255, 0)},      // bright green
	{37, rgb(0, 200, 200)},    // cyan
	{43, rgb(40, 60, 120)},    // dim blue
	{45, rgb(0, 100, 255)},    // blue
	{47, rgb(80, 150, 255)},   // bright blue
	{49, rgb(150, 0, 200)},    // purple
	{53, rgb(255, 80, 180)},   // pink
	{78, rgb(100, 100, 255)},  // light blue
	{84, rgb(255, 150, 50)},   // bright orange
	{87, rgb(150, 255, 100)},  // lime
	{97, rgb(180, 180, 60)},   // dim yellow
	{1, rgb(60, 60, 60)},      // dim grey
	{119, rgb(255, 255, 255)}, // white
}

func rgb(r, g, b uint8) colorful.Color {
	return colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
}

// mapRGBToLaunchpad finds the nearest palette velocity for an RGB value
func mapRGBToLaunchpad(c [3]uint8) uint8 {
	want := rgb(c[0], c[1], c[2])
	best := palette[0].velocity
	bestDist := want.DistanceRgb(palette[0].color)
	for _, p := range palette[1:] {
		if d := want.DistanceRgb(p.color); d < bestDist {
			best, bestDist = p.velocity, d
		}
	}
	return best
}

// Close turns every LED off and stops listening
func (lp *LaunchpadController) Close() error {
	lp.closeOnce.Do(func() {
		if lp.send != nil {
			var updates []LEDUpdate
			for row := 0; row < 9; row++ {
				for col := 0; col < 9; col++ {
					if row == 8 && col == 8 {
						continue // no LED at 8,8
					}
					updates = append(updates, LEDUpdate{Row: row, Col: col})
				}
			}
			lp.SetLEDBatch(updates)
		}
		if lp.stopFunc != nil {
			lp.stopFunc()
		}
		close(lp.padChan)
	})
	return nil
}

// Launchpad X note mapping
// 8x8 Grid:  Row 0 (bottom) = notes 11-18, Row 7 = notes 81-88
// Side col:  Col 8 (right side scene buttons) = notes 19, 29, 39, 49, 59, 69, 79, 89
// Top row:   Row 8 (top control row) = CC 91-98 (handled via CC messages)

func rowColToNote(row, col int) uint8 {
	// Top row uses CC, but for LED control we use notes 91-98
	if row == 8 {
		return uint8(91 + col)
	}
	return uint8((row+1)*10 + col + 1)
}

func noteToRowCol(note uint8) (row, col int) {
	if note >= 91 && note <= 98 {
		return 8, int(note - 91)
	}
	row = int(note/10) - 1
	col = int(note%10) - 1
	// 8x8 grid plus side column (col 8)
	if row < 0 || row > 7 || col < 0 || col > 8 {
		return -1, -1
	}
	return row, col
}

func ccToRowCol(cc uint8) (row, col int) {
	if cc >= 91 && cc <= 98 {
		return 8, int(cc - 91)
	}
	return -1, -1
}
