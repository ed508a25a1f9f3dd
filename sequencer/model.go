package sequencer

import (
	"errors"

	"allolib-studio/projectfs"
	"allolib-studio/synthseq"
)

// MinNoteDuration is the shortest note, in seconds. Shorter durations are
// clamped up to it.
const MinNoteDuration = 0.01

// DefaultClipDuration is the length of a new empty clip, in seconds.
const DefaultClipDuration = 4.0

// Palette is cycled through by clip and track count.
var Palette = [8]string{
	"#e06c75", "#98c379", "#e5c07b", "#61afef",
	"#c678dd", "#56b6c2", "#d19a66", "#abb2bf",
}

var (
	ErrNoSynthClasses   = errors.New("no synth classes are defined; compile a project with a SynthVoice first")
	ErrClipNotFound     = errors.New("clip not found")
	ErrNoActiveClip     = errors.New("no active clip")
	ErrNoteNotFound     = errors.New("note not found")
	ErrDuplicateNote    = errors.New("note id already in clip")
	ErrInstanceNotFound = errors.New("clip instance not found")
	ErrTrackNotFound    = errors.New("track not found")
	ErrInvalidValue     = errors.New("invalid value")
	ErrNoFileStore      = errors.New("no project file store attached")
)

// Note is a single event inside a clip. StartTime is relative to the clip.
type Note struct {
	ID         string    `json:"id"`
	StartTime  float64   `json:"startTime"`
	Duration   float64   `json:"duration"`
	SynthName  string    `json:"synthName"`
	Frequency  float64   `json:"frequency"`
	Amplitude  float64   `json:"amplitude"`
	Params     []float64 `json:"params,omitempty"`
	ParamNames []string  `json:"paramNames,omitempty"`
	Selected   bool      `json:"selected,omitempty"`
	Muted      bool      `json:"muted,omitempty"`
}

// End is StartTime + Duration.
func (n Note) End() float64 { return n.StartTime + n.Duration }

func (n Note) clone() Note {
	n.Params = append([]float64(nil), n.Params...)
	n.ParamNames = append([]string(nil), n.ParamNames...)
	return n
}

// Clip is a reusable container of notes with its own time origin.
type Clip struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Duration  float64 `json:"duration"`
	Color     string  `json:"color"`
	Notes     []Note  `json:"notes,omitempty"`
	SynthName string  `json:"synthName"`
	FilePath  string  `json:"filePath,omitempty"`

	// Dirty is set while the notes differ from the file at FilePath.
	Dirty bool `json:"dirty,omitempty"`
}

func (c *Clip) noteIndex(id string) int {
	for i := range c.Notes {
		if c.Notes[i].ID == id {
			return i
		}
	}
	return -1
}

// Note returns the note with id.
func (c *Clip) Note(id string) (Note, bool) {
	if i := c.noteIndex(id); i >= 0 {
		return c.Notes[i], true
	}
	return Note{}, false
}

// LastNoteEnd is the latest end time of any note, or 0.
func (c *Clip) LastNoteEnd() float64 {
	end := 0.0
	for _, n := range c.Notes {
		end = max(end, n.End())
	}
	return end
}

func (c *Clip) clone() *Clip {
	cp := *c
	cp.Notes = make([]Note, len(c.Notes))
	for i, n := range c.Notes {
		cp.Notes[i] = n.clone()
	}
	return &cp
}

// ClipInstance places a clip on a track lane at an absolute time.
type ClipInstance struct {
	ID         string  `json:"id"`
	ClipID     string  `json:"clipId"`
	TrackIndex int     `json:"trackIndex"`
	StartTime  float64 `json:"startTime"`
}

// Track is an arrangement lane. Tracks are locked to one synth; a track
// with an empty SynthName is a plain numbered lane.
type Track struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	Muted     bool   `json:"muted"`
	Solo      bool   `json:"solo"`
	SynthName string `json:"synthName"`
}

// ArrangementNote is a note resolved to absolute arrangement time.
type ArrangementNote struct {
	Note
	ClipID        string
	InstanceID    string
	TrackIndex    int
	AbsoluteStart float64
}

// AbsoluteEnd is the absolute time the note stops.
func (n ArrangementNote) AbsoluteEnd() float64 { return n.AbsoluteStart + n.Duration }

// Key identifies the note within its instance, so two placements of one
// clip never share a key.
func (n ArrangementNote) Key() string { return n.InstanceID + "/" + n.ID }

// Viewport is display state for the clip editor and arrangement view.
type Viewport struct {
	ScrollX float64 `json:"scrollX"`
	ScrollY float64 `json:"scrollY"`
	ZoomX   float64 `json:"zoomX"`
	ZoomY   float64 `json:"zoomY"`
	MinFreq float64 `json:"minFreq"`
	MaxFreq float64 `json:"maxFreq"`
}

// MinZoom is the smallest zoom factor a viewport accepts.
const MinZoom = 0.01

// DefaultViewport is the view of a fresh arrangement.
func DefaultViewport() Viewport {
	return Viewport{ZoomX: 1, ZoomY: 1, MinFreq: 20, MaxFreq: 20000}
}

func (v Viewport) clamped() Viewport {
	v.ScrollX = max(v.ScrollX, 0)
	v.ScrollY = max(v.ScrollY, 0)
	v.ZoomX = max(v.ZoomX, MinZoom)
	v.ZoomY = max(v.ZoomY, MinZoom)
	v.MinFreq = max(v.MinFreq, 0)
	if v.MaxFreq <= v.MinFreq {
		v.MaxFreq = v.MinFreq + 1
	}
	return v
}

// SynthRegistry reports the synth classes the running project defines.
type SynthRegistry interface {
	SynthNames() []string
}

// StaticSynths is a fixed SynthRegistry.
type StaticSynths []string

func (s StaticSynths) SynthNames() []string { return s }

// FileStore is the slice of the project file tree the arrangement reads
// and writes clip files and the manifest through.
type FileStore interface {
	GetFileByPath(path string) (projectfs.File, bool)
	CreateDataFile(path, content string) error
	UpdateFileContent(path, content string) error
	CreateFolder(name, parent string) (string, error)
}

// SequenceCodec parses and serializes clip files.
type SequenceCodec interface {
	Parse(text string) (synthseq.Sequence, error)
	Serialize(seq synthseq.Sequence) string
}
