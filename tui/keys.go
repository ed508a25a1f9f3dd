package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Play    key.Binding
	Stop    key.Binding
	Back    key.Binding
	Forward key.Binding
	Up      key.Binding
	Down    key.Binding

	AddNote    key.Binding
	PlaceClip  key.Binding
	RemoveClip key.Binding
	Undo       key.Binding
	Redo       key.Binding

	Loop key.Binding
	Mute key.Binding
	Solo key.Binding
	Save key.Binding
	Help key.Binding
	Quit key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Play:    key.NewBinding(key.WithKeys(" ", "p"), key.WithHelp("space", "play/pause")),
		Stop:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop")),
		Back:    key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "seek back")),
		Forward: key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "seek fwd")),
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "prev lane")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "next lane")),

		AddNote:    key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "note at playhead")),
		PlaceClip:  key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "new clip")),
		RemoveClip: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "remove clip")),
		Undo:       key.NewBinding(key.WithKeys("u", "ctrl+z"), key.WithHelp("u", "undo")),
		Redo:       key.NewBinding(key.WithKeys("U", "ctrl+y"), key.WithHelp("U", "redo")),

		Loop: key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "loop")),
		Mute: key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mute")),
		Solo: key.NewBinding(key.WithKeys("S"), key.WithHelp("S", "solo")),
		Save: key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "save")),
		Help: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Play, k.Stop, k.AddNote, k.Undo, k.Redo, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Play, k.Stop, k.Back, k.Forward, k.Loop},
		{k.Up, k.Down, k.Mute, k.Solo},
		{k.AddNote, k.PlaceClip, k.RemoveClip},
		{k.Undo, k.Redo, k.Save, k.Help, k.Quit},
	}
}
