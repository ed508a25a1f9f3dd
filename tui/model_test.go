package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"allolib-studio/config"
	"allolib-studio/sequencer"
	"allolib-studio/studio"
)

func newTestModel(t *testing.T) Model {
	t.Helper()
	cfg := config.DefaultConfig()
	pump := NewPump(cfg.Transport.FrameRate)
	s, err := studio.New(cfg, pump, nil)
	if err != nil {
		t.Fatalf("studio.New: %v", err)
	}
	return NewModel(s, pump, nil)
}

func press(t *testing.T, m Model, keys string) Model {
	t.Helper()
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(keys)})
	return next.(Model)
}

func frame(m Model) (Model, tea.Cmd) {
	next, cmd := m.Update(frameMsg(time.Now()))
	return next.(Model), cmd
}

func TestPlayPauseThroughPump(t *testing.T) {
	m := newTestModel(t)
	tr := m.Studio.Transport

	m = press(t, m, "p")
	if tr.State() != sequencer.Playing {
		t.Fatalf("state after p = %v, want playing", tr.State())
	}
	if m.Pump.Pending() != 1 {
		t.Fatalf("pending frames = %d, want 1", m.Pump.Pending())
	}

	m, cmd := frame(m)
	if cmd == nil {
		t.Fatalf("frame did not schedule the next tick")
	}
	if m.Pump.Pending() != 1 {
		t.Fatalf("playing transport did not request another frame")
	}

	m = press(t, m, "p")
	if tr.State() != sequencer.Paused || m.Pump.Pending() != 0 {
		t.Fatalf("pause: state %v pending %d", tr.State(), m.Pump.Pending())
	}

	m = press(t, m, "s")
	if tr.State() != sequencer.Stopped || tr.Position() != 0 {
		t.Fatalf("stop: state %v position %v", tr.State(), tr.Position())
	}
}

func TestEditKeysGoThroughHistory(t *testing.T) {
	m := newTestModel(t)
	arr := m.Studio.Arrangement

	m = press(t, m, "n")
	if m.status == "" {
		t.Fatalf("note without a clip should report an error")
	}

	m = press(t, m, "c")
	if len(arr.Instances()) != 1 || len(arr.Tracks()) != 1 {
		t.Fatalf("instances %d tracks %d after c", len(arr.Instances()), len(arr.Tracks()))
	}

	m = press(t, m, "n")
	clip := arr.Clips()[0]
	if len(clip.Notes) != 1 || clip.Notes[0].Frequency != defaultFrequency {
		t.Fatalf("notes after n = %+v", clip.Notes)
	}
	if got := m.Studio.Commands.UndoDescription(); got == "" {
		t.Fatalf("note was not recorded")
	}

	m = press(t, m, "m")
	if tr, _ := arr.Track(0); !tr.Muted {
		t.Fatalf("m did not mute the selected lane")
	}

	m = press(t, m, "u")
	if tr, _ := arr.Track(0); tr.Muted {
		t.Fatalf("undo did not unmute")
	}
	m = press(t, m, "u")
	if len(arr.Clips()[0].Notes) != 0 {
		t.Fatalf("undo did not remove the note")
	}
	m = press(t, m, "U")
	if len(arr.Clips()[0].Notes) != 1 {
		t.Fatalf("redo did not restore the note")
	}

	m = press(t, m, "x")
	if len(arr.Instances()) != 0 {
		t.Fatalf("x did not remove the instance")
	}
}

func TestLaneSelectionAndLoop(t *testing.T) {
	m := newTestModel(t)
	m = press(t, m, "j")
	if m.track != 0 {
		t.Fatalf("selection moved past the new-lane row: %d", m.track)
	}
	m = press(t, m, "o")
	if on, _, _ := m.Studio.Arrangement.Loop(); !on {
		t.Fatalf("o did not enable the loop")
	}
	m = press(t, m, "l")
	if got, want := m.Studio.Transport.Position(), 0.5; got != want {
		t.Fatalf("seek forward = %v, want one beat %v", got, want)
	}
}

func TestViewShowsLanesAndHistory(t *testing.T) {
	m := newTestModel(t)
	m = press(t, m, "c")
	view := m.View()
	for _, want := range []string{"allolib-studio", "SineEnv", "undo: Place clip", "cameraFov 60.00"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestQuitClosesTransport(t *testing.T) {
	m := newTestModel(t)
	m = press(t, m, "p")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatalf("quit returned no command")
	}
	if next.(Model).Pump.Pending() != 0 {
		t.Fatalf("quit left a frame pending")
	}
	if next.(Model).View() != "" {
		t.Fatalf("view after quit should be empty")
	}
}
