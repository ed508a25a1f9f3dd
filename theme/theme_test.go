package theme

import (
	"strings"
	"testing"
)

func TestParseGPL(t *testing.T) {
	p, err := ParseGPL(strings.NewReader("GIMP Palette\nName: two\n# comment\n0 0 0\n255 255 255 white\n"))
	if err != nil {
		t.Fatalf("ParseGPL: %v", err)
	}
	if p.Name != "two" || len(p.Colors) != 2 {
		t.Fatalf("palette = %+v", p)
	}
	if got := p.Lookup(0.5); got != (RGB{127, 127, 127}) {
		t.Fatalf("Lookup(0.5) = %v", got)
	}
	if _, err := ParseGPL(strings.NewReader("GIMP Palette\n")); err == nil {
		t.Fatalf("empty palette should fail")
	}
}

func TestHex(t *testing.T) {
	c, err := ParseHex("#61afef")
	if err != nil || c != (RGB{0x61, 0xaf, 0xef}) || c.Hex() != "#61afef" {
		t.Fatalf("ParseHex = %v, %v", c, err)
	}
	if _, err := ParseHex("#fff"); err == nil {
		t.Fatalf("short hex should fail")
	}
	th := New(nil)
	if th.Hex("nope") != th.FG() {
		t.Fatalf("bad hex should fall back to FG")
	}
}

func TestDefaultPalette(t *testing.T) {
	p := Default()
	if len(p.Colors) != 10 {
		t.Fatalf("default colors = %d, want 10", len(p.Colors))
	}
}
