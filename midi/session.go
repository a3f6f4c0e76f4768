package midi

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"go-inkdeck/action"
	"go-inkdeck/debug"
	"go-inkdeck/device"
	"go-inkdeck/errcode"
)

// LED refresh rate
const ledFPS = 30

// LaunchpadSession emulates the pad on a Launchpad. Region content becomes
// pad colours; sequences are played on the host through an Emitter since
// the Launchpad cannot type.
type LaunchpadSession struct {
	*device.State

	pads PadMap
	emit action.Emitter
	log  *zap.SugaredLogger

	mu      sync.Mutex
	ctrl    Controller
	regions map[Pad][3]uint8
	leds    map[Pad][3]uint8
	prev    map[Pad][3]uint8 // for diffing
}

// NewLaunchpadSession creates a session with no controller attached yet
func NewLaunchpadSession(l device.Layout, emit action.Emitter) *LaunchpadSession {
	if emit == nil {
		emit = action.NewLogEmitter()
	}
	return &LaunchpadSession{
		State:   device.NewState(l),
		pads:    NewPadMap(l),
		emit:    emit,
		log:     debug.Logger("launchpad"),
		regions: make(map[Pad][3]uint8),
		leds:    make(map[Pad][3]uint8),
		prev:    make(map[Pad][3]uint8),
	}
}

func (s *LaunchpadSession) AssignAction(in action.Input, seq action.Sequence) error {
	if !in.Valid() {
		return errcode.New(errcode.Error, "assign", in.String())
	}
	s.State.Assign(in, seq)
	return nil
}

// Flush shows changed regions. Without a controller the changes stay
// staged until one is attached.
func (s *LaunchpadSession) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctrl == nil {
		return errcode.New(errcode.DeviceUnavailable, "flush", "no launchpad")
	}
	changes := s.State.Changes()
	for r, c := range changes {
		if pad, ok := s.pads.RegionPad(r); ok {
			s.regions[pad] = RegionColor(c)
		}
	}
	if err := s.sendLocked(); err != nil {
		return err
	}
	s.State.Commit(changes)
	return nil
}

// sendLocked sends only changed pads to the controller. Caller holds mu.
func (s *LaunchpadSession) sendLocked() error {
	next := make(map[Pad][3]uint8, len(s.regions)+len(s.leds))
	for p, c := range s.regions {
		next[p] = c
	}
	for p, c := range s.leds {
		next[p] = c
	}

	var updates []LEDUpdate
	for p, c := range next {
		if prev, ok := s.prev[p]; !ok || prev != c {
			updates = append(updates, LEDUpdate{Row: p[0], Col: p[1], Color: c})
		}
	}
	for p := range s.prev {
		if _, ok := next[p]; !ok {
			updates = append(updates, LEDUpdate{Row: p[0], Col: p[1]})
		}
	}
	if len(updates) == 0 {
		return nil
	}
	if err := s.ctrl.SetLEDBatch(updates); err != nil {
		// resend everything next time
		s.prev = make(map[Pad][3]uint8)
		return errcode.Wrap(errcode.DeviceUnavailable, "send", err)
	}
	s.prev = next
	return nil
}

// pushLEDs copies the strip onto its pads when it changed
func (s *LaunchpadSession) pushLEDs() {
	colors, dirty := s.LEDs.Take()
	if !dirty {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range colors {
		if pad, ok := s.pads.LEDPad(i); ok {
			s.leds[pad] = device.RGB8(c)
		}
	}
	if s.ctrl == nil {
		return
	}
	if err := s.sendLocked(); err != nil {
		s.LEDs.MarkDirty()
		debug.LogEvery(30, "launchpad", "led push: %v", err)
	}
}

// Attach makes c the controller the session draws on and reads from. A nil
// c detaches.
func (s *LaunchpadSession) Attach(c Controller) {
	s.mu.Lock()
	s.ctrl = c
	s.prev = make(map[Pad][3]uint8)
	clear(s.regions)
	s.mu.Unlock()

	if c == nil {
		s.log.Infow("launchpad detached")
		return
	}
	s.log.Infow("launchpad attached", "id", c.ID())
	// a fresh device shows nothing: resend every region and LED
	s.State.Invalidate()
	go s.readLoop(c)
}

// Attached reports whether a controller is attached
func (s *LaunchpadSession) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl != nil
}

func (s *LaunchpadSession) readLoop(c Controller) {
	for ev := range c.PadEvents() {
		in, ok := s.pads.Input(ev)
		if !ok {
			continue
		}
		var err error
		switch in {
		case action.DialCW, action.DialCCW:
			err = s.State.Turn(in == action.DialCW, s.emit)
		default:
			err = s.State.Trigger(in, s.emit)
		}
		if err != nil {
			debug.Log("launchpad", "emit %s: %v", in, err)
		}
	}
}

// Run follows hot-plug events from dm and pushes LEDs until ctx is done
func (s *LaunchpadSession) Run(ctx context.Context, dm *DeviceManager) {
	ticker := time.NewTicker(time.Second / ledFPS)
	defer ticker.Stop()

	events := dm.Events()
	for {
		select {
		case <-ctx.Done():
			s.Attach(nil)
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleDevice(ev)
		case <-ticker.C:
			s.pushLEDs()
		}
	}
}

func (s *LaunchpadSession) handleDevice(ev DeviceEvent) {
	s.mu.Lock()
	current := s.ctrl
	s.mu.Unlock()

	switch ev.Type {
	case DeviceConnected:
		if current == nil && ev.Controller.Type() == ControllerLaunchpad {
			s.Attach(ev.Controller)
		}
	case DeviceDisconnected:
		if current != nil && current.ID() == ev.ID {
			s.Attach(nil)
		}
	}
}
