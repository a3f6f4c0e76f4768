package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"go-inkdeck/action"
	"go-inkdeck/config"
	"go-inkdeck/debug"
	"go-inkdeck/theme"
	"go-inkdeck/tui"
)

var (
	configFlag   = flag.String("config", "", "config file (default ./inkdeck.yaml, then ~/.config/inkdeck/config.yaml)")
	headlessFlag = flag.Bool("headless", false, "no TUI; read commands from stdin")
	debugFlag    = flag.Bool("debug", false, "write a debug log to ~/.config/inkdeck/debug.log")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if *debugFlag {
		if err := debug.Enable("", ""); err != nil {
			return fmt.Errorf("debug log: %w", err)
		}
	}
	defer debug.Disable()

	path := config.Find(*configFlag)
	cfg, err := config.Load(path, debug.Logger())
	if err != nil {
		return err
	}
	if !*debugFlag && cfg.Log.Path != "" {
		if err := debug.Enable(cfg.Log.Path, cfg.Log.Level); err != nil {
			return fmt.Errorf("log: %w", err)
		}
	}
	logger := debug.Logger("inkdeck")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	emit := action.NewLogEmitter()
	layout := deviceLayout(cfg)
	dev, err := openTransport(ctx, cfg.Device, layout, emit, logger)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, dev, emit, logger)
	if err != nil {
		return err
	}
	a.start(ctx)

	go func() {
		err := config.Watch(ctx, cfg.Path, logger, func(next *config.Config) {
			if err := a.apply(next); err != nil {
				logger.Warnw("Config change not applied", "error", err)
			}
		})
		if err != nil {
			logger.Warnw("Not watching config", "error", err)
		}
	}()

	if *headlessFlag {
		fmt.Printf("inkdeck %s: %d modes, active %s\n", dev.name, a.registry().Len(), a.sched.CurrentName())
		return runCommands(ctx, a, os.Stdin, os.Stdout)
	}

	m := tui.NewModel(tui.Deps{
		Display:   dev.state,
		LEDs:      dev.state.LEDs,
		Sim:       dev.sim,
		Scheduler: a.sched,
		Modes:     a.registry,
		Stats:     a.sched.Stats(),
		Recent:    emit.Recent,
		Reload:    a.reload,
		Transport: dev.name,
	}, theme.New(theme.Default()))
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
