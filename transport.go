package main

import (
	"context"

	"go.uber.org/zap"

	"go-inkdeck/action"
	"go-inkdeck/config"
	"go-inkdeck/device"
	"go-inkdeck/device/sim"
	"go-inkdeck/errcode"
	"go-inkdeck/inkkeys"
	"go-inkdeck/midi"
)

// transport is an opened device session plus the state the UI draws
type transport struct {
	name    string
	session device.Session
	state   *device.State
	sim     *sim.Session // only for the simulator
}

// openTransport opens the configured device. Hardware sessions keep
// running until ctx is done.
func openTransport(ctx context.Context, cfg config.DeviceConfig, l device.Layout, emit action.Emitter, logger *zap.SugaredLogger) (*transport, error) {
	switch cfg.Transport {
	case config.TransportSerial:
		if cfg.Port == "" {
			return nil, errcode.New(errcode.InvalidConfig, "device.port", "serial transport needs a port")
		}
		s, err := inkkeys.Dial(ctx, cfg.Port, cfg.Baud, l)
		if err != nil {
			return nil, err
		}
		logger.Infow("Opened serial pad", "port", cfg.Port, "baud", cfg.Baud)
		return &transport{name: "serial", session: s, state: s.State}, nil

	case config.TransportLaunchpad:
		lp := midi.NewLaunchpadSession(l, emit)
		dm := midi.NewDeviceManager()
		go dm.Run(ctx)
		go lp.Run(ctx, dm)
		logger.Info("Waiting for a Launchpad")
		return &transport{name: "launchpad", session: lp, state: lp.State}, nil
	}

	s := sim.New(l, emit)
	return &transport{name: "sim", session: s, state: s.State, sim: s}, nil
}

// inject plays one input as if it came from the device
func (t *transport) inject(in action.Input, emit action.Emitter) error {
	if t.sim != nil {
		return t.sim.Input(in)
	}
	switch in {
	case action.DialCW, action.DialCCW:
		return t.state.Turn(in == action.DialCW, emit)
	}
	return t.state.Trigger(in, emit)
}

func deviceLayout(cfg *config.Config) device.Layout {
	return device.Layout{Buttons: cfg.Device.Buttons, LEDs: cfg.Device.LEDs}
}
