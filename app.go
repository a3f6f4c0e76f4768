package main

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"go-inkdeck/action"
	"go-inkdeck/config"
	"go-inkdeck/device"
	"go-inkdeck/errcode"
	"go-inkdeck/mode"
	"go-inkdeck/modes"
	"go-inkdeck/selector"
)

// switchTimeout bounds a switch asked for from the command line
const switchTimeout = 5 * time.Second

// app ties the config, the mode registry and the scheduler together and
// rebuilds the registry when the config changes
type app struct {
	cfg    atomic.Pointer[config.Config]
	modes  atomic.Pointer[mode.Registry]
	layout device.Layout

	dev   *transport
	sched *mode.Scheduler
	sel   *selector.Selector // nil without a window probe
	emit  *action.LogEmitter
	deps  modes.Deps
	log   *zap.SugaredLogger
}

func newApp(cfg *config.Config, dev *transport, emit *action.LogEmitter, logger *zap.SugaredLogger) (*app, error) {
	a := &app{
		layout: dev.state.Layout(),
		dev:    dev,
		emit:   emit,
		log:    logger,
	}
	reg, err := modes.BuildAll(cfg, a.layout, a.deps, logger.Named("modes"))
	if err != nil {
		return nil, err
	}
	a.cfg.Store(cfg)
	a.modes.Store(reg)

	a.sched = mode.NewScheduler(dev.session, mode.Options{
		FPS:              cfg.Scheduler.FPS,
		Strict:           cfg.Scheduler.Strict,
		RetryInterval:    cfg.Scheduler.Retry,
		MaxRetryInterval: cfg.Scheduler.MaxRetry,
		QueueLen:         cfg.Scheduler.SwitchQueue,
		Logger:           logger.Named("sched"),
	})

	if cfg.Selector.Command != "" {
		probe, err := selector.CommandProbe(cfg.Selector.Command)
		if err != nil {
			logger.Warnw("Window selection disabled", "error", err)
		} else {
			a.sel = selector.New(cfg, reg, probe, a.sched, logger)
		}
	}
	return a, nil
}

func (a *app) registry() *mode.Registry {
	return a.modes.Load()
}

// start runs the scheduler, activates the first mode and starts the
// selector. It returns once the first mode is active.
func (a *app) start(ctx context.Context) {
	go a.sched.Run(ctx)

	cfg := a.cfg.Load()
	first, err := a.registry().Get(cfg.Selector.Fallback)
	if err != nil {
		first = a.registry().Next("")
	}
	sctx, cancel := context.WithTimeout(ctx, switchTimeout)
	defer cancel()
	if err := a.sched.SwitchTo(sctx, first); err != nil {
		a.log.Warnw("First mode failed to activate", "mode", first.Name(), "error", err)
	}

	if a.sel != nil {
		go a.sel.Run(ctx)
	}
}

// apply swaps in a new config: the registry is rebuilt and the active mode
// is re-activated from its new definition, or the fallback when it is gone
func (a *app) apply(cfg *config.Config) error {
	layout := deviceLayout(cfg)
	if layout != a.layout {
		a.log.Warnw("Device layout changes need a restart", "configured", layout, "active", a.layout)
	}
	old := a.cfg.Load()
	if cfg.Device.Transport != old.Device.Transport || cfg.Device.Port != old.Device.Port {
		a.log.Warnw("Transport changes need a restart", "transport", cfg.Device.Transport)
	}

	reg, err := modes.BuildAll(cfg, a.layout, a.deps, a.log.Named("modes"))
	if err != nil {
		a.log.Warnw("Keeping previous modes", "error", err)
		return err
	}
	a.cfg.Store(cfg)
	a.modes.Store(reg)
	if a.sel != nil {
		a.sel.Update(cfg, reg)
	}

	name := a.sched.CurrentName()
	next, err := reg.Get(name)
	if err != nil {
		if next, err = reg.Get(cfg.Selector.Fallback); err != nil {
			next = reg.Next("")
		}
	}
	a.log.Infow("Re-activating mode", "mode", next.Name(), "was", name)
	return a.sched.RequestSwitch(next)
}

// reload reads the config file again
func (a *app) reload() error {
	cfg, err := config.Load(a.cfg.Load().Path, a.log)
	if err != nil {
		return err
	}
	return a.apply(cfg)
}

// exec runs one host command. quit reports a quit command.
func (a *app) exec(ctx context.Context, cmd selector.Command) (quit bool, err error) {
	switch cmd.Kind {
	case selector.CmdMode:
		m, err := a.registry().Get(cmd.Mode)
		if err != nil {
			return false, err
		}
		sctx, cancel := context.WithTimeout(ctx, switchTimeout)
		defer cancel()
		return false, a.sched.SwitchTo(sctx, m)
	case selector.CmdPress, selector.CmdRelease, selector.CmdTurn:
		return false, a.dev.inject(cmd.Input, a.emit)
	case selector.CmdReload:
		return false, a.reload()
	case selector.CmdQuit:
		return true, nil
	case 0:
		return false, nil
	}
	return false, errcode.New(errcode.Error, "exec", cmd.Kind.String())
}
