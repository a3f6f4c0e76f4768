package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	colorful "github.com/lucasb-eyer/go-colorful"

	"go-inkdeck/device"
	"go-inkdeck/theme"
)

// cellWidth is the inner width of one button cell
const cellWidth = 10

// PadView is what the pad currently shows
type PadView struct {
	Layout device.Layout
	Shown  map[device.Region]device.Content
	LEDs   []colorful.Color
}

// RenderLED renders a single coloured LED
func RenderLED(c colorful.Color, th *theme.Theme) string {
	rgb := theme.FromColor(c)
	if rgb == (theme.RGB{}) {
		return lipgloss.NewStyle().Foreground(th.Muted()).Render(string(th.Symbols.LEDOff))
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(rgb.Hex())).Render(string(th.Symbols.LED))
}

// RenderLEDStrip renders the strip on one line with spacing
func RenderLEDStrip(colors []colorful.Color, th *theme.Theme) string {
	parts := make([]string, len(colors))
	for i, c := range colors {
		parts[i] = RenderLED(c, th)
	}
	return strings.Join(parts, " ")
}

// RegionLabel is the plain text of a region: icons get their decoration
// symbol in front
func RegionLabel(c device.Content, th *theme.Theme) string {
	switch c.Kind {
	case device.KindText:
		return c.Text
	case device.KindIcon:
		sym := th.Symbols.Icon
		switch {
		case c.Crossed:
			sym = th.Symbols.Crossed
		case c.Marked:
			sym = th.Symbols.Marked
		}
		return string(sym) + " " + c.Icon
	}
	return ""
}

// RenderRegion renders one button cell with its number in the border
func RenderRegion(n int, c device.Content, th *theme.Theme) string {
	style := lipgloss.NewStyle().
		Width(cellWidth).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(th.Muted()).
		Foreground(th.FG())

	switch {
	case c.Kind == device.KindText && c.Inverted:
		style = style.Foreground(th.BG()).Background(th.FG())
	case c.Kind == device.KindIcon && c.Crossed:
		style = style.Foreground(th.Danger())
	case c.Kind == device.KindIcon && c.Marked:
		style = style.Foreground(th.Success()).BorderForeground(th.Success())
	case c.Kind == device.KindBlank:
		style = style.Foreground(th.Muted())
	}
	if c.Centered {
		style = style.Align(lipgloss.Center)
	}

	label := truncate(RegionLabel(c, th), cellWidth)
	num := lipgloss.NewStyle().Foreground(th.Dim()).Render(fmt.Sprintf("%d", n))
	return lipgloss.JoinVertical(lipgloss.Left, num, style.Render(label))
}

// RenderPad renders the title, the dial (button 1) and the remaining
// buttons in rows of four
func RenderPad(v PadView, th *theme.Theme) string {
	title := v.Shown[device.RegionTitle]
	titleStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(th.FG())
	if title.Inverted {
		titleStyle = titleStyle.Foreground(th.BG()).Background(th.Between(theme.RoleFG, theme.RoleAccent, 0.3))
	}

	var rows []string
	rows = append(rows, titleStyle.Render(RegionLabel(title, th)))

	if v.Layout.Buttons >= 1 {
		dial := v.Shown[device.Button(1)]
		rows = append(rows, fmt.Sprintf("%c %s %c  %s",
			th.Symbols.DialCCW, "dial", th.Symbols.DialCW,
			lipgloss.NewStyle().Foreground(th.Accent()).Render(RegionLabel(dial, th))))
	}

	var cells []string
	for n := 2; n <= v.Layout.Buttons; n++ {
		cells = append(cells, RenderRegion(n, v.Shown[device.Button(n)], th))
		if len(cells) == 4 || n == v.Layout.Buttons {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
			cells = nil
		}
	}

	if len(v.LEDs) > 0 {
		rows = append(rows, "", RenderLEDStrip(v.LEDs, th))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// RenderKeyHelp formats key bindings in a friendly way
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		if sec.Title != "" {
			lines = append(lines, sec.Title)
		}
		for _, k := range sec.Keys {
			lines = append(lines, fmt.Sprintf("  %-12s %s", k.Key, k.Desc))
		}
	}
	return strings.Join(lines, "\n")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}
