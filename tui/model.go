// Package tui is the terminal host: it pumps frames for the transport,
// maps keys onto edits and renders the arrangement.
package tui

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"allolib-studio/command"
	"allolib-studio/debug"
	"allolib-studio/sequencer"
	"allolib-studio/studio"
	"allolib-studio/theme"
	"allolib-studio/widgets"
)

const (
	labelWidth   = 16
	minLaneWidth = 16

	defaultFrequency = 440
	defaultAmplitude = 0.5
)

var errNoClipAtPlayhead = errors.New("no clip under the playhead on this lane")

// Model is the bubbletea model of the studio screen.
type Model struct {
	Studio *studio.Studio
	Pump   *Pump
	Theme  *theme.Theme

	keys     keyMap
	help     help.Model
	track    int
	width    int
	start    float64 // first visible second
	status   string
	quitting bool
}

// NewModel returns a model over s. s.Transport must have been built with
// pump.
func NewModel(s *studio.Studio, pump *Pump, th *theme.Theme) Model {
	if th == nil {
		th = theme.New(nil)
	}
	h := help.New()
	h.Styles.ShortKey = lipgloss.NewStyle().Foreground(th.Accent())
	h.Styles.ShortDesc = lipgloss.NewStyle().Foreground(th.Muted())
	h.Styles.FullKey = h.Styles.ShortKey
	h.Styles.FullDesc = h.Styles.ShortDesc
	return Model{
		Studio: s,
		Pump:   pump,
		Theme:  th,
		keys:   defaultKeyMap(),
		help:   h,
		width:  80,
	}
}

func (m Model) Init() tea.Cmd {
	return m.Pump.Tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case frameMsg:
		m.Pump.Step()
		m.start = m.window().Follow().Start
		return m, m.Pump.Tick()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := m.Studio
	tr := s.Transport
	arr := s.Arrangement
	m.status = ""

	var err error
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		s.Close()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Play):
		if tr.State() == sequencer.Playing {
			tr.Pause()
		} else {
			tr.Play()
		}

	case key.Matches(msg, m.keys.Stop):
		tr.Stop()
		m.start = 0

	case key.Matches(msg, m.keys.Back):
		tr.SetPosition(tr.Position() - m.beat())
		m.start = m.window().Follow().Start

	case key.Matches(msg, m.keys.Forward):
		tr.SetPosition(tr.Position() + m.beat())
		m.start = m.window().Follow().Start

	case key.Matches(msg, m.keys.Up):
		m.track = max(m.track-1, 0)

	case key.Matches(msg, m.keys.Down):
		m.track = min(m.track+1, len(arr.Tracks()))

	case key.Matches(msg, m.keys.AddNote):
		err = m.addNote()

	case key.Matches(msg, m.keys.PlaceClip):
		var c *sequencer.Clip
		if c, err = s.PlaceClip(m.track, tr.Position()); err == nil {
			m.status = "placed " + c.Name
		}

	case key.Matches(msg, m.keys.RemoveClip):
		err = m.removeClip()

	case key.Matches(msg, m.keys.Undo):
		if !s.Commands.Undo() {
			m.status = "nothing to undo"
		}

	case key.Matches(msg, m.keys.Redo):
		if !s.Commands.Redo() {
			m.status = "nothing to redo"
		}

	case key.Matches(msg, m.keys.Loop):
		on, _, _ := arr.Loop()
		arr.SetLoopEnabled(!on)

	case key.Matches(msg, m.keys.Mute):
		err = m.toggleTrack(func(t sequencer.Track) (command.Command, error) {
			return arr.SetTrackMutedCommand(m.track, !t.Muted)
		})

	case key.Matches(msg, m.keys.Solo):
		err = m.toggleTrack(func(t sequencer.Track) (command.Command, error) {
			return arr.SetTrackSoloCommand(m.track, !t.Solo)
		})

	case key.Matches(msg, m.keys.Save):
		if err = s.Save(); err == nil {
			m.status = "saved"
		}

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}

	if err != nil {
		debug.Log("tui", "%s: %v", msg.String(), err)
		m.status = err.Error()
	}
	return m, nil
}

func (m Model) beat() float64 {
	return 60 / m.Studio.Arrangement.BPM()
}

// instanceAtPlayhead finds the instance on the selected lane that covers
// the playhead.
func (m Model) instanceAtPlayhead() (sequencer.ClipInstance, *sequencer.Clip, bool) {
	arr := m.Studio.Arrangement
	pos := m.Studio.Transport.Position()
	for _, inst := range arr.Instances() {
		if inst.TrackIndex != m.track {
			continue
		}
		c := arr.Clip(inst.ClipID)
		if c != nil && pos >= inst.StartTime && pos < inst.StartTime+c.Duration {
			return inst, c, true
		}
	}
	return sequencer.ClipInstance{}, nil, false
}

func (m Model) addNote() error {
	inst, c, ok := m.instanceAtPlayhead()
	if !ok {
		return errNoClipAtPlayhead
	}
	arr := m.Studio.Arrangement
	rel := arr.Snap(m.Studio.Transport.Position() - inst.StartTime)
	cmd, err := arr.AddNoteCommand(c.ID, sequencer.Note{
		StartTime: max(rel, 0),
		Duration:  arr.GridSize(),
		Frequency: defaultFrequency,
		Amplitude: defaultAmplitude,
	})
	if err != nil {
		return err
	}
	m.Studio.Commands.Execute(cmd)
	return nil
}

func (m Model) removeClip() error {
	inst, _, ok := m.instanceAtPlayhead()
	if !ok {
		return errNoClipAtPlayhead
	}
	cmd, err := m.Studio.Arrangement.RemoveClipInstanceCommand(inst.ID)
	if err != nil {
		return err
	}
	m.Studio.Commands.Execute(cmd)
	return nil
}

func (m Model) toggleTrack(build func(sequencer.Track) (command.Command, error)) error {
	t, ok := m.Studio.Arrangement.Track(m.track)
	if !ok {
		return fmt.Errorf("%w: %d", sequencer.ErrTrackNotFound, m.track)
	}
	cmd, err := build(t)
	if err != nil {
		return err
	}
	m.Studio.Commands.Execute(cmd)
	return nil
}

func (m Model) window() widgets.Window {
	arr := m.Studio.Arrangement
	on, ls, le := arr.Loop()
	return widgets.Window{
		Width:          max(m.width-labelWidth-4, minLaneWidth),
		Start:          m.start,
		SecondsPerCell: arr.GridSize() / arr.Viewport().ZoomX,
		Playhead:       m.Studio.Transport.Position(),
		Loop:           on,
		LoopStart:      ls,
		LoopEnd:        le,
	}
}

func (m Model) blocks(track int) []widgets.Block {
	arr := m.Studio.Arrangement
	var out []widgets.Block
	for _, inst := range arr.Instances() {
		if inst.TrackIndex != track {
			continue
		}
		c := arr.Clip(inst.ClipID)
		if c == nil {
			continue
		}
		b := widgets.Block{Start: inst.StartTime, End: inst.StartTime + c.Duration, Color: c.Color}
		for _, n := range c.Notes {
			b.NoteStarts = append(b.NoteStarts, inst.StartTime+n.StartTime)
		}
		out = append(out, b)
	}
	return out
}

func formatTime(seconds float64) string {
	mins := int(seconds) / 60
	return fmt.Sprintf("%02d:%06.3f", mins, math.Mod(seconds, 60))
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	s := m.Studio
	arr := s.Arrangement
	tr := s.Transport

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	selStyle := lipgloss.NewStyle().Foreground(m.Theme.Cursor())
	statusStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())

	glyph := m.Theme.Symbols.Stop
	switch tr.State() {
	case sequencer.Playing:
		glyph = m.Theme.Symbols.Play
	case sequencer.Paused:
		glyph = m.Theme.Symbols.Pause
	}
	loop := "off"
	if on, ls, le := arr.Loop(); on {
		loop = fmt.Sprintf("%g-%gs", ls, le)
	}
	header := headerStyle.Render(fmt.Sprintf("allolib-studio  %c %-7s %s  %3.0fbpm  loop:%s  voices:%d",
		glyph, tr.State(), formatTime(tr.Position()), arr.BPM(), loop, len(tr.HeldVoices())))

	w := m.window()
	var lanes []string
	lanes = append(lanes, dimStyle.Render(strings.Repeat(" ", labelWidth)+widgets.Ruler(w)))
	tracks := arr.Tracks()
	for i, t := range tracks {
		lanes = append(lanes, m.laneLabel(i, t, selStyle, dimStyle)+widgets.RenderLane(m.Theme, w, m.blocks(i)))
	}
	if len(tracks) == 0 || m.track == len(tracks) {
		label := fmt.Sprintf("%-*s", labelWidth, " + new lane")
		if m.track == len(tracks) {
			label = selStyle.Render(label)
		} else {
			label = dimStyle.Render(label)
		}
		lanes = append(lanes, label+widgets.RenderLane(m.Theme, w, nil))
	}

	history := dimStyle.Render(fmt.Sprintf("undo: %s   redo: %s",
		orNone(s.Commands.UndoDescription()), orNone(s.Commands.RedoDescription())))

	sections := []string{header, dimStyle.Render(m.environmentLine()), "", strings.Join(lanes, "\n"), "", history}
	if m.status != "" {
		sections = append(sections, statusStyle.Render(m.status))
	}
	sections = append(sections, "", m.help.View(m.keys))

	return lipgloss.NewStyle().Padding(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m Model) laneLabel(i int, t sequencer.Track, sel, dim lipgloss.Style) string {
	flags := []rune{' ', ' '}
	if t.Muted {
		flags[0] = m.Theme.Symbols.Muted
	}
	if t.Solo {
		flags[1] = m.Theme.Symbols.Solo
	}
	name := t.Name
	if t.SynthName != "" {
		name = t.SynthName
	}
	if len(name) > labelWidth-4 {
		name = name[:labelWidth-4]
	}
	label := fmt.Sprintf("%-*s%s  ", labelWidth-4, name, string(flags))
	if i == m.track {
		return sel.Render(label)
	}
	return dim.Render(label)
}

// environmentLine samples the numeric environment properties at the
// playhead.
func (m Model) environmentLine() string {
	env := m.Studio.Environment
	pos := m.Studio.Transport.Position()
	var parts []string
	for _, p := range env.Properties() {
		if v, ok := env.ValueAtTime(p, pos).(float64); ok {
			parts = append(parts, fmt.Sprintf("%s %.2f", p, v))
		}
	}
	return strings.Join(parts, "  ")
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
