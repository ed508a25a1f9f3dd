package widgets

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"allolib-studio/theme"
)

// Window maps arrangement seconds onto terminal columns.
type Window struct {
	Width          int
	Start          float64 // seconds at column 0
	SecondsPerCell float64

	Playhead  float64
	Loop      bool
	LoopStart float64
	LoopEnd   float64
}

// Column returns the column holding seconds, which may be off screen.
func (w Window) Column(seconds float64) int {
	if w.SecondsPerCell <= 0 {
		return 0
	}
	return int(math.Floor((seconds - w.Start) / w.SecondsPerCell))
}

// Follow scrolls the window so the playhead stays on screen.
func (w Window) Follow() Window {
	if w.Width <= 0 || w.SecondsPerCell <= 0 {
		return w
	}
	span := float64(w.Width) * w.SecondsPerCell
	if w.Playhead < w.Start || w.Playhead >= w.Start+span {
		pages := math.Floor(w.Playhead / span)
		w.Start = math.Max(0, pages*span)
	}
	return w
}

// Block is one clip instance on a lane.
type Block struct {
	Start, End float64
	Color      string
	NoteStarts []float64 // absolute
}

// Cell is one rendered lane column.
type Cell struct {
	Glyph rune
	Color string // "" uses the lane color
	Mark  bool   // playhead or loop bound
}

// LaneCells lays blocks out on w. The playhead wins over loop bounds, which
// win over clip contents.
func LaneCells(sym theme.Symbols, w Window, blocks []Block) []Cell {
	cells := make([]Cell, max(w.Width, 0))
	for i := range cells {
		cells[i] = Cell{Glyph: sym.Empty}
	}
	put := func(col int, c Cell) {
		if col >= 0 && col < len(cells) {
			cells[col] = c
		}
	}

	for _, b := range blocks {
		from, to := w.Column(b.Start), w.Column(b.End-1e-9)
		for col := max(from, 0); col <= to && col < len(cells); col++ {
			cells[col] = Cell{Glyph: sym.Clip, Color: b.Color}
		}
		for _, s := range b.NoteStarts {
			put(w.Column(s), Cell{Glyph: sym.Note, Color: b.Color})
		}
	}

	if w.Loop {
		put(w.Column(w.LoopStart), Cell{Glyph: sym.LoopMark, Mark: true})
		put(w.Column(w.LoopEnd), Cell{Glyph: sym.LoopMark, Mark: true})
	}
	put(w.Column(w.Playhead), Cell{Glyph: sym.Playhead, Mark: true})
	return cells
}

// RenderLane renders a lane row with the theme's colors.
func RenderLane(th *theme.Theme, w Window, blocks []Block) string {
	var out strings.Builder
	for _, c := range LaneCells(th.Symbols, w, blocks) {
		style := lipgloss.NewStyle().Foreground(th.Muted())
		switch {
		case c.Mark:
			style = style.Foreground(th.Cursor())
		case c.Color != "":
			style = style.Foreground(th.Hex(c.Color))
		}
		out.WriteString(style.Render(string(c.Glyph)))
	}
	return out.String()
}

// Ruler labels every whole second that starts a column, spaced so labels
// never overlap.
func Ruler(w Window) string {
	row := []rune(strings.Repeat(" ", max(w.Width, 0)))
	next := 0
	for col := 0; col < len(row); col++ {
		if col < next {
			continue
		}
		t := w.Start + float64(col)*w.SecondsPerCell
		sec := math.Max(0, math.Ceil(t-1e-9))
		if w.Column(sec) != col {
			continue
		}
		label := []rune(fmt.Sprintf("%.0f", sec))
		if col+len(label) > len(row) {
			break
		}
		copy(row[col:], label)
		next = col + len(label) + 1
	}
	return string(row)
}

// RenderLegendItem renders a single legend item: "█ Name - description"
func RenderLegendItem(th *theme.Theme, color, name, desc string) string {
	sw := lipgloss.NewStyle().Foreground(th.Hex(color)).Render(string(th.Symbols.Clip))
	return fmt.Sprintf("  %s %s - %s", sw, name, desc)
}
