// Package mode implements the mode lifecycle: the contract every mode
// fulfils, the scheduler that drives the single active mode, and the jog
// dial function toggle.
package mode

import (
	"time"

	"go-inkdeck/device"
)

// NoPoll is the Poll result meaning "do not call again until the next
// activation". Any non-positive duration has the same effect.
const NoPoll time.Duration = 0

// Session is what a mode talks to: the device capabilities plus Post,
// which runs fn serialized with every other callback of the mode. Async
// event sources (remote application state) feed a mode through Post.
type Session interface {
	device.Session
	Post(fn func())
}

// Mode is one configuration of the pad.
//
// Activate sets every region the mode uses (blanking unused ones), binds its
// inputs and flushes once. Deactivate removes every callback the mode
// installed but leaves the display alone: the next Activate overwrites it.
// Poll returns the delay before its next call, or NoPoll. Animate runs at
// the tick rate and must only do colour arithmetic.
type Mode interface {
	Name() string
	Activate(s Session) error
	Poll(s Session) (time.Duration, error)
	Animate(s Session) error
	Deactivate(s Session) error
}

// RegionUser is implemented by modes that list the regions they draw.
// Activate must set every one of them before its first flush.
type RegionUser interface {
	Regions() []device.Region
}

// State is the lifecycle state of one activation. Its session refuses
// device calls once it is Inactive.
type State uint8

const (
	Inactive State = iota
	Active
)

func (st State) String() string {
	if st == Active {
		return "active"
	}
	return "inactive"
}
