package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"allolib-studio/sequencer"
)

// frameMsg is delivered once per frame interval.
type frameMsg time.Time

// Pump is the terminal host's frame service. Callbacks requested between
// two frames run together on the next frameMsg, inside Update, so the
// transport only ever runs on the program goroutine.
type Pump struct {
	*sequencer.ManualPump
	Interval time.Duration
}

// NewPump returns a pump ticking frameRate times per second.
func NewPump(frameRate int) *Pump {
	if frameRate <= 0 {
		frameRate = 60
	}
	return &Pump{
		ManualPump: sequencer.NewManualPump(),
		Interval:   time.Second / time.Duration(frameRate),
	}
}

// Tick schedules the next frame.
func (p *Pump) Tick() tea.Cmd {
	return tea.Tick(p.Interval, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}
