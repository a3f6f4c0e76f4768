package midi

import (
	"context"
	"strings"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
	"go.uber.org/zap"

	"go-inkdeck/debug"
)

// DeviceEvent is emitted when controllers connect/disconnect
type DeviceEvent struct {
	Type       DeviceEventType
	Controller Controller
	ID         string
}

type DeviceEventType int

const (
	DeviceConnected DeviceEventType = iota
	DeviceDisconnected
)

// Ports lists the MIDI port names the driver sees
type Ports struct {
	In, Out []string
}

// portLister abstracts the driver so scans can be faked
type portLister func() ([]drivers.In, []drivers.Out)

func driverPorts() ([]drivers.In, []drivers.Out) {
	return gomidi.GetInPorts(), gomidi.GetOutPorts()
}

// DeviceManager handles hot-plug detection of Launchpads
type DeviceManager struct {
	controllers map[string]Controller
	mu          sync.RWMutex
	events      chan DeviceEvent
	pollRate    time.Duration
	list        portLister
	log         *zap.SugaredLogger
}

// NewDeviceManager creates a new device manager
func NewDeviceManager() *DeviceManager {
	return &DeviceManager{
		controllers: make(map[string]Controller),
		events:      make(chan DeviceEvent, 16),
		pollRate:    time.Second,
		list:        driverPorts,
		log:         debug.Logger("midi"),
	}
}

// Events returns a channel of device connect/disconnect events. It is
// closed when Run returns.
func (dm *DeviceManager) Events() <-chan DeviceEvent {
	return dm.events
}

// Controllers returns a snapshot of connected controllers
func (dm *DeviceManager) Controllers() map[string]Controller {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	out := make(map[string]Controller, len(dm.controllers))
	for k, v := range dm.controllers {
		out[k] = v
	}
	return out
}

// GetLaunchpad returns the first connected Launchpad (or nil)
func (dm *DeviceManager) GetLaunchpad() Controller {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	for _, c := range dm.controllers {
		if c.Type() == ControllerLaunchpad {
			return c
		}
	}
	return nil
}

// ListPorts returns the port names, or ok=false when the driver hangs
func (dm *DeviceManager) ListPorts() (p Ports, ok bool) {
	in, out, ok := dm.ports()
	for _, port := range in {
		p.In = append(p.In, port.String())
	}
	for _, port := range out {
		p.Out = append(p.Out, port.String())
	}
	return p, ok
}

// Run polls for controllers until ctx is done (blocking - run in goroutine)
func (dm *DeviceManager) Run(ctx context.Context) {
	ticker := time.NewTicker(dm.pollRate)
	defer ticker.Stop()

	dm.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			dm.closeAll()
			close(dm.events)
			return
		case <-ticker.C:
			dm.scan(ctx)
		}
	}
}

// ports reads the port lists with a timeout (CoreMIDI can hang)
func (dm *DeviceManager) ports() ([]drivers.In, []drivers.Out, bool) {
	type portsResult struct {
		in  []drivers.In
		out []drivers.Out
	}
	ch := make(chan portsResult, 1)
	go func() {
		in, out := dm.list()
		ch <- portsResult{in, out}
	}()

	select {
	case r := <-ch:
		return r.in, r.out, true
	case <-time.After(3 * time.Second):
		// User needs to run: sudo killall coreaudiod midiserver
		debug.LogEvery(10, "midi", "port scan timed out")
		return nil, nil, false
	}
}

func (dm *DeviceManager) emit(ctx context.Context, ev DeviceEvent) {
	select {
	case dm.events <- ev:
	case <-ctx.Done():
	}
}

func (dm *DeviceManager) scan(ctx context.Context) {
	inPorts, outPorts, ok := dm.ports()
	if !ok {
		return
	}

	seen := make(map[string]bool)
	for _, inPort := range inPorts {
		name := inPort.String()
		if !isLaunchpad(name) {
			continue
		}
		seen[name] = true

		dm.mu.RLock()
		_, exists := dm.controllers[name]
		dm.mu.RUnlock()
		if exists {
			continue
		}

		var outPort drivers.Out
		for _, op := range outPorts {
			if strings.EqualFold(op.String(), name) {
				outPort = op
				break
			}
		}
		lp, err := NewLaunchpadController(name, inPort, outPort)
		if err != nil {
			dm.log.Warnw("Cannot open launchpad", "port", name, "error", err)
			continue
		}

		dm.mu.Lock()
		dm.controllers[name] = lp
		dm.mu.Unlock()
		dm.log.Infow("Launchpad connected", "port", name)
		dm.emit(ctx, DeviceEvent{Type: DeviceConnected, Controller: lp, ID: name})
	}

	dm.mu.Lock()
	var gone []string
	for id, c := range dm.controllers {
		if !seen[id] {
			c.Close()
			delete(dm.controllers, id)
			gone = append(gone, id)
		}
	}
	dm.mu.Unlock()

	for _, id := range gone {
		dm.log.Infow("Launchpad disconnected", "port", id)
		dm.emit(ctx, DeviceEvent{Type: DeviceDisconnected, ID: id})
	}
}

func (dm *DeviceManager) closeAll() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, c := range dm.controllers {
		c.Close()
	}
	dm.controllers = make(map[string]Controller)
}

func isLaunchpad(name string) bool {
	name = strings.ToLower(name)
	return strings.Contains(name, "launchpad") && strings.Contains(name, "midi")
}
