package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-inkdeck/device"
	"go-inkdeck/device/sim"
	"go-inkdeck/mode"
	"go-inkdeck/status"
	"go-inkdeck/theme"
	"go-inkdeck/widgets"
)

// frame is the redraw rate for LED animation
const frame = time.Second / 15

// Display is the state of whatever transport is in use
type Display interface {
	Layout() device.Layout
	Shown() map[device.Region]device.Content
}

// Deps is what the model drives and shows
type Deps struct {
	Display   Display
	LEDs      *device.LEDStrip
	Sim       *sim.Session // nil for hardware transports
	Scheduler *mode.Scheduler
	Modes     func() *mode.Registry // current registry, replaced on reload
	Stats     *status.Registry
	Recent    func() []string // recently emitted sequences
	Reload    func() error
	Transport string
}

type Model struct {
	deps     Deps
	Theme    *theme.Theme
	status   string
	quitting bool
}

// UpdateMsg arrives after every simulator flush
type UpdateMsg struct{}

type frameMsg struct{}

type statusMsg string

func NewModel(deps Deps, th *theme.Theme) Model {
	return Model{deps: deps, Theme: th}
}

func ListenForUpdates(s *sim.Session) tea.Cmd {
	return func() tea.Msg {
		<-s.Updates()
		return UpdateMsg{}
	}
}

func tick() tea.Cmd {
	return tea.Tick(frame, func(time.Time) tea.Msg { return frameMsg{} })
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tick()}
	if m.deps.Sim != nil {
		cmds = append(cmds, ListenForUpdates(m.deps.Sim))
	}
	return tea.Batch(cmds...)
}

// switchCmd runs a switch off the UI goroutine
func (m Model) switchCmd(target mode.Mode) tea.Cmd {
	if target == nil {
		return nil
	}
	return func() tea.Msg {
		if err := m.deps.Scheduler.RequestSwitch(target); err != nil {
			return statusMsg(fmt.Sprintf("switch %s: %v", target.Name(), err))
		}
		return statusMsg("switching to " + target.Name())
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		key := msg.String()
		switch key {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "tab":
			return m, m.switchCmd(m.deps.Modes().Next(m.deps.Scheduler.CurrentName()))

		case "r":
			if m.deps.Reload == nil {
				return m, nil
			}
			return m, func() tea.Msg {
				if err := m.deps.Reload(); err != nil {
					return statusMsg("reload: " + err.Error())
				}
				return statusMsg("config reloaded")
			}

		case "c":
			if m.deps.Sim != nil {
				on := !m.deps.Sim.Connected()
				m.deps.Sim.SetConnected(on)
				m.status = fmt.Sprintf("connected=%v", on)
			}
		}

		if m.deps.Sim == nil {
			return m, nil
		}
		switch key {
		case "left", "h":
			m.input(m.deps.Sim.Turn(-1))
		case "right", "l":
			m.input(m.deps.Sim.Turn(1))
		case "1", "2", "3", "4", "5", "6", "7", "8", "9":
			n := int(key[0] - '0')
			if n <= m.deps.Display.Layout().Buttons {
				m.input(m.deps.Sim.Tap(n))
			}
		}

	case UpdateMsg:
		return m, ListenForUpdates(m.deps.Sim)

	case frameMsg:
		return m, tick()

	case statusMsg:
		m.status = string(msg)
	}

	return m, nil
}

func (m *Model) input(err error) {
	if err != nil {
		m.status = err.Error()
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	warnStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())

	link := m.Theme.Symbols.Attached
	if m.deps.Sim != nil && !m.deps.Sim.Connected() {
		link = m.Theme.Symbols.Detached
	}
	header := headerStyle.Render(fmt.Sprintf("inkdeck  %s %c  mode:%s",
		m.deps.Transport, link, m.deps.Scheduler.CurrentName()))

	leds := m.deps.LEDs.Snapshot()
	pad := widgets.RenderPad(widgets.PadView{
		Layout: m.deps.Display.Layout(),
		Shown:  m.deps.Display.Shown(),
		LEDs:   leds,
	}, m.Theme)

	side := lipgloss.JoinVertical(lipgloss.Left, m.modesView(), "", m.statsView(dimStyle), "", m.recentView(dimStyle))

	help := widgets.RenderKeyHelp([]widgets.KeySection{{Keys: m.keys()}})

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")
	out.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, pad, "    ", side))
	out.WriteString("\n\n")
	out.WriteString(dimStyle.Render(help))
	if m.status != "" {
		out.WriteString("\n")
		out.WriteString(warnStyle.Render(m.status))
	}
	return out.String()
}

func (m Model) keys() []widgets.KeyBinding {
	keys := []widgets.KeyBinding{
		{Key: "tab", Desc: "next mode"},
		{Key: "r", Desc: "reload config"},
		{Key: "q", Desc: "quit"},
	}
	if m.deps.Sim != nil {
		keys = append([]widgets.KeyBinding{
			{Key: "1-9", Desc: "tap button"},
			{Key: "←/→", Desc: "turn dial"},
			{Key: "c", Desc: "unplug/replug"},
		}, keys...)
	}
	return keys
}

func (m Model) modesView() string {
	current := m.deps.Scheduler.CurrentName()
	active := lipgloss.NewStyle().Foreground(m.Theme.Success())
	var lines []string
	for _, name := range m.deps.Modes().Names() {
		if name == current {
			lines = append(lines, active.Render("▸ "+name))
		} else {
			lines = append(lines, "  "+name)
		}
	}
	return strings.Join(lines, "\n")
}

func (m Model) statsView(style lipgloss.Style) string {
	if m.deps.Stats == nil {
		return ""
	}
	snap := m.deps.Stats.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var lines []string
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%-24s %d", k, snap[k]))
	}
	return style.Render(strings.Join(lines, "\n"))
}

func (m Model) recentView(style lipgloss.Style) string {
	if m.deps.Recent == nil {
		return ""
	}
	recent := m.deps.Recent()
	if len(recent) == 0 {
		return ""
	}
	return style.Render("emitted:\n  " + strings.Join(recent, "\n  "))
}
