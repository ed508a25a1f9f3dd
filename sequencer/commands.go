package sequencer

import (
	"fmt"

	"allolib-studio/command"
)

// Command type tags.
const (
	CmdAddNote        = "sequencer.addNote"
	CmdRemoveNote     = "sequencer.removeNote"
	CmdUpdateNote     = "sequencer.updateNote"
	CmdAddInstance    = "sequencer.addInstance"
	CmdMoveInstance   = "sequencer.moveInstance"
	CmdRemoveInstance = "sequencer.removeInstance"
	CmdTrackMute      = "sequencer.trackMute"
	CmdTrackSolo      = "sequencer.trackSolo"
	CmdDeleteClip     = "sequencer.deleteClip"
)

// clipExtent is the part of a clip a note edit may change as a side effect.
type clipExtent struct {
	duration float64
	dirty    bool
}

func extentOf(c *Clip) clipExtent { return clipExtent{c.Duration, c.Dirty} }

func (a *Arrangement) restoreExtent(clipID string, e clipExtent) {
	if c := a.Clip(clipID); c != nil {
		c.Duration = e.duration
		c.Dirty = e.dirty
	}
}

// setTracks replaces the lanes with copies of tracks.
func (a *Arrangement) setTracks(tracks []Track) {
	a.tracks = nil
	for i := range tracks {
		t := tracks[i]
		a.tracks = append(a.tracks, &t)
	}
}

func (a *Arrangement) warn(op string, err error) {
	if err != nil {
		a.logger.Warn("sequencer command failed", "category", "sequencer", "op", op, "err", err)
	}
}

// AddNoteCommand adds n to a clip ("" for the active clip) through the undo
// history. The note keeps one id across undo and redo.
func (a *Arrangement) AddNoteCommand(clipID string, n Note) (command.Command, error) {
	c, err := a.resolveClip(clipID)
	if err != nil {
		return nil, err
	}
	clipID = c.ID
	if n.ID == "" {
		n.ID = newID()
	}
	var before clipExtent
	return command.Func(command.Spec{
		Type:        CmdAddNote,
		Description: fmt.Sprintf("Add note at %.3fs", n.StartTime),
		Execute: func() {
			if c := a.Clip(clipID); c != nil {
				before = extentOf(c)
			}
			_, err := a.AddNote(clipID, n)
			a.warn(CmdAddNote, err)
		},
		Undo: func() {
			_, _, err := a.RemoveNote(clipID, n.ID)
			a.warn(CmdAddNote, err)
			a.restoreExtent(clipID, before)
		},
	}), nil
}

// RemoveNoteCommand deletes a note through the undo history. Undo puts it
// back at its old index.
func (a *Arrangement) RemoveNoteCommand(clipID, noteID string) (command.Command, error) {
	c, err := a.resolveClip(clipID)
	if err != nil {
		return nil, err
	}
	if c.noteIndex(noteID) < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoteNotFound, noteID)
	}
	clipID = c.ID
	var (
		removed Note
		index   int
		before  clipExtent
	)
	return command.Func(command.Spec{
		Type:        CmdRemoveNote,
		Description: "Remove note",
		Execute: func() {
			if c := a.Clip(clipID); c != nil {
				before = extentOf(c)
			}
			var err error
			removed, index, err = a.RemoveNote(clipID, noteID)
			a.warn(CmdRemoveNote, err)
		},
		Undo: func() {
			c := a.Clip(clipID)
			if c == nil || index < 0 {
				return
			}
			a.insertNote(c, index, removed)
			a.restoreExtent(clipID, before)
		},
	}), nil
}

// UpdateNoteCommand replaces a note's fields through the undo history.
func (a *Arrangement) UpdateNoteCommand(clipID, noteID string, n Note) (command.Command, error) {
	c, err := a.resolveClip(clipID)
	if err != nil {
		return nil, err
	}
	if c.noteIndex(noteID) < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoteNotFound, noteID)
	}
	clipID = c.ID
	var (
		prev   Note
		before clipExtent
	)
	return command.Func(command.Spec{
		Type:        CmdUpdateNote,
		Description: "Edit note",
		Execute: func() {
			if c := a.Clip(clipID); c != nil {
				before = extentOf(c)
			}
			var err error
			prev, err = a.UpdateNote(clipID, noteID, n)
			a.warn(CmdUpdateNote, err)
		},
		Undo: func() {
			c := a.Clip(clipID)
			if c == nil {
				return
			}
			if i := c.noteIndex(noteID); i >= 0 {
				c.Notes[i] = prev
			}
			a.restoreExtent(clipID, before)
		},
	}), nil
}

// AddClipInstanceCommand places a clip through the undo history. Redo
// restores the same instance id.
func (a *Arrangement) AddClipInstanceCommand(clipID string, trackIndex int, start float64) (command.Command, error) {
	if a.Clip(clipID) == nil {
		return nil, fmt.Errorf("%w: %s", ErrClipNotFound, clipID)
	}
	if trackIndex < 0 {
		return nil, fmt.Errorf("%w: track index %d", ErrInvalidValue, trackIndex)
	}
	var (
		inst    ClipInstance
		created bool
		before  []Track
		after   []Track
	)
	return command.Func(command.Spec{
		Type:        CmdAddInstance,
		Description: "Place clip",
		Execute: func() {
			before = a.Tracks()
			if created {
				a.setTracks(after)
				a.restoreInstance(inst, len(a.instances))
				return
			}
			var err error
			inst, err = a.AddClipInstance(clipID, trackIndex, start)
			created = err == nil
			after = a.Tracks()
			a.warn(CmdAddInstance, err)
		},
		Undo: func() {
			if !created {
				return
			}
			_, err := a.RemoveClipInstance(inst.ID)
			a.warn(CmdAddInstance, err)
			a.setTracks(before)
		},
	}), nil
}

// RemoveClipInstanceCommand deletes a placement through the undo history.
func (a *Arrangement) RemoveClipInstanceCommand(id string) (command.Command, error) {
	if _, ok := a.Instance(id); !ok {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	var (
		removed ClipInstance
		index   = -1
	)
	return command.Func(command.Spec{
		Type:        CmdRemoveInstance,
		Description: "Remove clip instance",
		Execute: func() {
			var err error
			removed, index, err = a.removeInstance(id)
			a.warn(CmdRemoveInstance, err)
		},
		Undo: func() {
			if index >= 0 {
				a.restoreInstance(removed, index)
			}
		},
	}), nil
}

// Placement is where an instance sits.
type Placement struct {
	StartTime  float64
	TrackIndex int
}

// MoveClipInstanceCommand moves a placement through the undo history. The
// target is snapped now; consecutive drags of one instance merge. Lanes the
// move creates stay after undo.
func (a *Arrangement) MoveClipInstanceCommand(id string, start float64, trackIndex int) (command.Command, error) {
	inst, ok := a.Instance(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	if trackIndex < 0 {
		return nil, fmt.Errorf("%w: track index %d", ErrInvalidValue, trackIndex)
	}
	before := Placement{StartTime: inst.StartTime, TrackIndex: inst.TrackIndex}
	after := Placement{StartTime: a.placement(start), TrackIndex: trackIndex}
	return command.NewValueChange(CmdMoveInstance, id, "Move clip", before, after, func(p Placement) {
		a.warn(CmdMoveInstance, a.setPlacement(id, p.StartTime, p.TrackIndex))
	}), nil
}

// SetTrackMutedCommand toggles a lane's mute through the undo history.
func (a *Arrangement) SetTrackMutedCommand(index int, muted bool) (command.Command, error) {
	t, ok := a.Track(index)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrTrackNotFound, index)
	}
	return command.NewValueChange(CmdTrackMute, t.ID, fmt.Sprintf("Mute %s", t.Name), t.Muted, muted, func(v bool) {
		a.warn(CmdTrackMute, a.SetTrackMuted(index, v))
	}), nil
}

// SetTrackSoloCommand toggles a lane's solo through the undo history.
func (a *Arrangement) SetTrackSoloCommand(index int, solo bool) (command.Command, error) {
	t, ok := a.Track(index)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrTrackNotFound, index)
	}
	return command.NewValueChange(CmdTrackSolo, t.ID, fmt.Sprintf("Solo %s", t.Name), t.Solo, solo, func(v bool) {
		a.warn(CmdTrackSolo, a.SetTrackSolo(index, v))
	}), nil
}

// DeleteClipCommand deletes a clip and its instances through the undo
// history. Undo restores the whole arrangement as it was.
func (a *Arrangement) DeleteClipCommand(id string) (command.Command, error) {
	c := a.Clip(id)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrClipNotFound, id)
	}
	var before []byte
	return command.Func(command.Spec{
		Type:        CmdDeleteClip,
		Description: fmt.Sprintf("Delete %s", c.Name),
		Execute: func() {
			var err error
			before, err = a.MarshalState()
			a.warn(CmdDeleteClip, err)
			a.warn(CmdDeleteClip, a.DeleteClip(id))
		},
		Undo: func() {
			if before != nil {
				a.warn(CmdDeleteClip, a.RestoreState(before))
			}
		},
	}), nil
}
