package theme

import (
	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	LED      rune // ● one strip LED
	LEDOff   rune // · dark LED
	Marked   rune // ◆ highlighted icon (active scene)
	Crossed  rune // ✗ struck-through icon (hidden source)
	Icon     rune // ◇ plain icon
	DialCW   rune // ↻
	DialCCW  rune // ↺
	Attached rune // ■ device present
	Detached rune // □ device missing
}

func New(palette *Palette) *Theme {
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			LED:    '●',
			LEDOff: '·',

			Marked:  '◆',
			Crossed: '✗',
			Icon:    '◇',

			DialCW:  '↻',
			DialCCW: '↺',

			Attached: '■',
			Detached: '□',
		},
	}
}

// Color roles mapped to palette entries
const (
	RoleBG      = 0 // night
	RoleSurface = 1 // slate
	RoleMuted   = 2 // steel
	RoleDim     = 3 // fog
	RoleFG      = 4 // paper
	RoleAccent  = 5 // ink blue
	RoleSuccess = 6 // leaf
	RoleWarning = 7 // amber
	RoleDanger  = 8 // coral
	RoleBright  = 9 // white
)

// Style helpers

func (t *Theme) BG() lipgloss.Color      { return t.role(RoleBG) }
func (t *Theme) Surface() lipgloss.Color { return t.role(RoleSurface) }
func (t *Theme) Muted() lipgloss.Color   { return t.role(RoleMuted) }
func (t *Theme) Dim() lipgloss.Color     { return t.role(RoleDim) }
func (t *Theme) FG() lipgloss.Color      { return t.role(RoleFG) }
func (t *Theme) Accent() lipgloss.Color  { return t.role(RoleAccent) }
func (t *Theme) Success() lipgloss.Color { return t.role(RoleSuccess) }
func (t *Theme) Warning() lipgloss.Color { return t.role(RoleWarning) }
func (t *Theme) Danger() lipgloss.Color  { return t.role(RoleDanger) }
func (t *Theme) Bright() lipgloss.Color  { return t.role(RoleBright) }

// Between blends two roles, used for the inverted title background
func (t *Theme) Between(a, b int, frac float64) lipgloss.Color {
	return lipgloss.Color(t.Palette.Blend(a, b, frac).Hex())
}

func (t *Theme) role(i int) lipgloss.Color {
	return lipgloss.Color(t.Palette.Index(i).Hex())
}
