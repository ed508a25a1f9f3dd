package theme

import (
	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	// Transport
	Play  rune // ▶
	Pause rune // ‖
	Stop  rune // ■

	// Arrangement lanes
	Clip     rune // █ clip body
	Note     rune // ● note start inside a clip
	Empty    rune // · empty cell
	Playhead rune // │ playhead column
	LoopMark rune // ┆ loop bound

	// Track flags
	Muted rune // M
	Solo  rune // S
}

func New(palette *Palette) *Theme {
	if palette == nil {
		palette = Default()
	}
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			Play:  '▶',
			Pause: '‖',
			Stop:  '■',

			Clip:     '█',
			Note:     '●',
			Empty:    '·',
			Playhead: '│',
			LoopMark: '┆',

			Muted: 'M',
			Solo:  'S',
		},
	}
}

// Color roles mapped to palette positions (0-1)
const (
	RoleBG      = 0.0
	RoleSurface = 0.1
	RoleMuted   = 0.2
	RoleFG      = 0.4
	RoleAccent  = 0.5
	RoleCursor  = 0.6
	RoleActive  = 0.7
	RoleWarning = 0.8
	RoleAlert   = 1.0
)

func (t *Theme) BG() lipgloss.Color      { return t.Color(RoleBG) }
func (t *Theme) FG() lipgloss.Color      { return t.Color(RoleFG) }
func (t *Theme) Accent() lipgloss.Color  { return t.Color(RoleAccent) }
func (t *Theme) Muted() lipgloss.Color   { return t.Color(RoleMuted) }
func (t *Theme) Active() lipgloss.Color  { return t.Color(RoleActive) }
func (t *Theme) Cursor() lipgloss.Color  { return t.Color(RoleCursor) }
func (t *Theme) Warning() lipgloss.Color { return t.Color(RoleWarning) }
func (t *Theme) Alert() lipgloss.Color   { return t.Color(RoleAlert) }

// Color returns lipgloss color for any normalized value 0-1
func (t *Theme) Color(norm float64) lipgloss.Color {
	return lipgloss.Color(t.Palette.Lookup(norm).Hex())
}

// Hex returns a lipgloss color for a #rrggbb string such as a clip color,
// or the foreground color if it does not parse.
func (t *Theme) Hex(s string) lipgloss.Color {
	c, err := ParseHex(s)
	if err != nil {
		return t.FG()
	}
	return lipgloss.Color(c.Hex())
}
