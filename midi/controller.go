package midi

// ControllerType identifies the kind of controller
type ControllerType int

const (
	ControllerUnknown ControllerType = iota
	ControllerLaunchpad
)

func (t ControllerType) String() string {
	if t == ControllerLaunchpad {
		return "launchpad"
	}
	return "unknown"
}

// PadEvent is sent when a pad or top-row button changes state
type PadEvent struct {
	Row, Col int
	Velocity uint8
	Pressed  bool
}

// LEDUpdate sets one pad colour
type LEDUpdate struct {
	Row, Col int
	Color    [3]uint8
	Channel  uint8
}

// Controller is a grid controller the pad can be emulated on
type Controller interface {
	ID() string
	Type() ControllerType

	// PadEvents is closed when the controller goes away
	PadEvents() <-chan PadEvent

	SetLEDBatch(updates []LEDUpdate) error

	Close() error
}

// Channel modes for LED updates
const (
	ChannelStatic uint8 = 0 // solid color
	ChannelFlash  uint8 = 1 // flashing A/B alternating
	ChannelPulse  uint8 = 2 // pulsing (fades)
)
