package widgets

import (
	"testing"

	"allolib-studio/theme"
)

func glyphs(cells []Cell) string {
	rs := make([]rune, len(cells))
	for i, c := range cells {
		rs[i] = c.Glyph
	}
	return string(rs)
}

func TestLaneCells(t *testing.T) {
	sym := theme.New(nil).Symbols
	w := Window{Width: 10, SecondsPerCell: 0.5, Playhead: 4.2}
	blocks := []Block{{Start: 1, End: 3, Color: "#ff0000", NoteStarts: []float64{1.5}}}

	got := glyphs(LaneCells(sym, w, blocks))
	want := "··█●██··│·"
	if got != want {
		t.Fatalf("lane = %q, want %q", got, want)
	}
}

func TestLaneCellsLoopMarks(t *testing.T) {
	sym := theme.New(nil).Symbols
	w := Window{Width: 6, SecondsPerCell: 1, Playhead: 99, Loop: true, LoopStart: 1, LoopEnd: 4}
	if got, want := glyphs(LaneCells(sym, w, nil)), "·┆··┆·"; got != want {
		t.Fatalf("lane = %q, want %q", got, want)
	}
}

func TestFollow(t *testing.T) {
	w := Window{Width: 10, SecondsPerCell: 1, Playhead: 23}
	if got := w.Follow().Start; got != 20 {
		t.Fatalf("Follow start = %v, want 20", got)
	}
	w.Start, w.Playhead = 20, 25
	if got := w.Follow().Start; got != 20 {
		t.Fatalf("visible playhead moved window to %v", got)
	}
}

func TestRuler(t *testing.T) {
	w := Window{Width: 8, SecondsPerCell: 0.5}
	if got, want := Ruler(w), "0 1 2 3 "; got != want {
		t.Fatalf("ruler = %q, want %q", got, want)
	}
}
