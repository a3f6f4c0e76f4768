package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"go-inkdeck/action"
	"go-inkdeck/device"
	"go-inkdeck/device/sim"
	"go-inkdeck/mode"
	"go-inkdeck/status"
	"go-inkdeck/theme"
)

type namedMode string

func (m namedMode) Name() string                             { return string(m) }
func (m namedMode) Activate(mode.Session) error              { return nil }
func (m namedMode) Poll(mode.Session) (time.Duration, error) { return mode.NoPoll, nil }
func (m namedMode) Animate(mode.Session) error               { return nil }
func (m namedMode) Deactivate(mode.Session) error            { return nil }

func newTestModel(t *testing.T) (Model, *sim.Session) {
	t.Helper()
	emit := action.NewLogEmitter()
	s := sim.New(device.DefaultLayout, emit)
	stats := status.NewRegistry()
	sched := mode.NewScheduler(s, mode.Options{Stats: stats})
	reg := mode.NewRegistry(namedMode("Default"), namedMode("Gimp"))
	m := NewModel(Deps{
		Display:   s,
		LEDs:      s.LEDs,
		Sim:       s,
		Scheduler: sched,
		Modes:     func() *mode.Registry { return reg },
		Stats:     stats,
		Recent:    emit.Recent,
		Transport: "sim",
	}, theme.New(theme.Default()))
	return m, s
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestDigitsTapButtons(t *testing.T) {
	m, s := newTestModel(t)
	var got []string
	s.RegisterCallback(action.ButtonPress(3), func() { got = append(got, "press") })
	s.RegisterCallback(action.ButtonRelease(3), func() { got = append(got, "release") })
	s.RegisterCallback(action.Dial, func() { got = append(got, "dial") })

	next, _ := m.Update(key("3"))
	next, _ = next.Update(key("right"))
	next.Update(key("0")) // not a button

	if strings.Join(got, ",") != "press,release,dial" {
		t.Errorf("callbacks = %v", got)
	}
}

func TestTabRequestsNextMode(t *testing.T) {
	m, _ := newTestModel(t)
	_, cmd := m.Update(key("tab"))
	if cmd == nil {
		t.Fatal("tab returned no command")
	}
	msg := cmd()
	if got, ok := msg.(statusMsg); !ok || string(got) != "switching to Default" {
		t.Errorf("tab result = %#v", msg)
	}
}

func TestView(t *testing.T) {
	m, s := newTestModel(t)
	s.SetText(device.RegionTitle, "Default", true)
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	out := m.View()
	for _, want := range []string{"inkdeck", "sim", "Default", "Gimp", "tap button"} {
		if !strings.Contains(out, want) {
			t.Errorf("view lacks %q", want)
		}
	}

	next, _ := m.Update(key("c"))
	if s.Connected() {
		t.Error("c did not unplug the simulator")
	}
	if !strings.Contains(next.View(), "connected=false") {
		t.Error("status line missing")
	}
}
