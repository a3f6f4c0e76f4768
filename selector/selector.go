// Package selector picks the mode that fits the focused window and parses
// host commands.
package selector

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"sync"
	"time"

	"github.com/google/shlex"
	"go.uber.org/zap"

	"go-inkdeck/config"
	"go-inkdeck/errcode"
	"go-inkdeck/mode"
)

// Probe reports the title of the focused window
type Probe func(ctx context.Context) (string, error)

// CommandProbe runs a command line and returns its trimmed output. The
// line is split with shell quoting rules.
func CommandProbe(line string) (Probe, error) {
	args, err := shlex.Split(line)
	if err != nil {
		return nil, errcode.Wrap(errcode.InvalidConfig, "selector.command", err)
	}
	if len(args) == 0 {
		return nil, errcode.New(errcode.InvalidConfig, "selector.command", "empty command")
	}
	return func(ctx context.Context) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		out, err := exec.CommandContext(ctx, args[0], args[1:]...).Output()
		if err != nil {
			return "", fmt.Errorf("%s: %w", args[0], err)
		}
		return string(bytes.TrimSpace(out)), nil
	}, nil
}

// Switcher is the part of the scheduler the selector drives
type Switcher interface {
	RequestSwitch(m mode.Mode) error
	CurrentName() string
}

type rule struct {
	mode    string
	matches []*regexp.Regexp
}

// Selector polls a Probe and requests a switch whenever the matching mode
// changes. Windows no rule matches select the fallback mode.
type Selector struct {
	probe    Probe
	interval time.Duration
	sw       Switcher
	log      *zap.SugaredLogger

	mu       sync.Mutex
	rules    []rule
	fallback string
	registry *mode.Registry
	last     string
}

// New creates a selector for cfg. Modes whose patterns do not compile are
// left out of matching.
func New(cfg *config.Config, reg *mode.Registry, probe Probe, sw Switcher, logger *zap.SugaredLogger) *Selector {
	s := &Selector{
		probe:    probe,
		interval: cfg.Selector.Interval,
		sw:       sw,
		log:      logger.Named("selector"),
	}
	s.Update(cfg, reg)
	return s
}

// Update swaps in the rules and modes of a reloaded config
func (s *Selector) Update(cfg *config.Config, reg *mode.Registry) {
	var rules []rule
	for _, m := range cfg.Modes {
		r := rule{mode: m.Name}
		for _, pat := range m.Match {
			re, err := regexp.Compile(pat)
			if err != nil {
				s.log.Warnw("Ignoring bad match pattern", "mode", m.Name, "pattern", pat, "error", err)
				continue
			}
			r.matches = append(r.matches, re)
		}
		if len(r.matches) > 0 {
			rules = append(rules, r)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = rules
	s.fallback = cfg.Selector.Fallback
	s.registry = reg
	s.last = ""
}

// Match returns the mode for a window title: the first mode with a
// matching pattern, else the fallback
func (s *Selector) Match(title string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rules {
		for _, re := range r.matches {
			if re.MatchString(title) {
				return r.mode
			}
		}
	}
	return s.fallback
}

// Run polls until ctx is done
func (s *Selector) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.interval = time.Second
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

// Check probes once and requests a switch when the selected mode changed
// since the last check
func (s *Selector) Check(ctx context.Context) {
	title, err := s.probe(ctx)
	if err != nil {
		s.log.Debugw("Window probe failed", "error", err)
		return
	}
	name := s.Match(title)

	s.mu.Lock()
	reg := s.registry
	changed := name != "" && name != s.last
	s.mu.Unlock()
	if !changed {
		return
	}

	m, err := reg.Get(name)
	if err != nil {
		s.log.Warnw("Selected mode missing", "mode", name, "window", title)
		s.remember(name)
		return
	}
	if s.sw.CurrentName() == name {
		s.remember(name)
		return
	}
	if err := s.sw.RequestSwitch(m); err != nil {
		// SwitchPending: try again on the next check
		s.log.Debugw("Switch request refused", "mode", name, "error", err)
		return
	}
	s.log.Infow("Window selected mode", "mode", name, "window", title)
	s.remember(name)
}

func (s *Selector) remember(name string) {
	s.mu.Lock()
	s.last = name
	s.mu.Unlock()
}
