package sequencer

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"allolib-studio/projectfs"
	"allolib-studio/synthseq"
)

// Project layout.
const (
	ManifestPath    = "arrangement.json"
	SequencesFolder = "sequences"
	ClipExt         = ".synthSequence"
	ManifestVersion = 1
)

// Manifest is the persisted arrangement.
type Manifest struct {
	Version       int                `json:"version"`
	BPM           float64            `json:"bpm"`
	LoopEnabled   bool               `json:"loopEnabled"`
	LoopStart     float64            `json:"loopStart"`
	LoopEnd       float64            `json:"loopEnd"`
	Tracks        []ManifestTrack    `json:"tracks"`
	ClipInstances []ManifestInstance `json:"clipInstances"`
}

// ManifestTrack is a persisted lane.
type ManifestTrack struct {
	SynthName string `json:"synthName"`
	Muted     bool   `json:"muted"`
	Solo      bool   `json:"solo"`
}

// ManifestInstance is a persisted placement.
type ManifestInstance struct {
	FilePath       string  `json:"filePath"`
	TrackSynthName string  `json:"trackSynthName"`
	StartTime      float64 `json:"startTime"`
}

// uniqueClipPath derives an unused clip file path from a clip name.
func (a *Arrangement) uniqueClipPath(name string) string {
	base := projectfs.SanitizeName(name)
	for i := 1; ; i++ {
		file := base + ClipExt
		if i > 1 {
			file = fmt.Sprintf("%s-%d%s", base, i, ClipExt)
		}
		p := path.Join(SequencesFolder, file)
		if a.clipByPath(p) != nil {
			continue
		}
		if a.files != nil {
			if _, ok := a.files.GetFileByPath(p); ok {
				continue
			}
		}
		return p
	}
}

func (a *Arrangement) ensureFolder(dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	if f, ok := a.files.GetFileByPath(dir); ok {
		if !f.IsFolder {
			return fmt.Errorf("%s is not a folder", dir)
		}
		return nil
	}
	if err := a.ensureFolder(path.Dir(dir)); err != nil {
		return err
	}
	parent := path.Dir(dir)
	if parent == "." {
		parent = ""
	}
	_, err := a.files.CreateFolder(path.Base(dir), parent)
	return err
}

func (a *Arrangement) writeFile(p, content string) error {
	if a.files == nil {
		return ErrNoFileStore
	}
	if _, ok := a.files.GetFileByPath(p); ok {
		return a.files.UpdateFileContent(p, content)
	}
	if err := a.ensureFolder(path.Dir(p)); err != nil {
		return err
	}
	return a.files.CreateDataFile(p, content)
}

func (a *Arrangement) readFile(p string) (string, error) {
	if a.files == nil {
		return "", ErrNoFileStore
	}
	f, ok := a.files.GetFileByPath(p)
	if !ok || f.IsFolder {
		return "", fmt.Errorf("%w: %s", projectfs.ErrNotFound, p)
	}
	return f.Content, nil
}

// clipSequence converts a clip to the file representation. A file has one
// parameter layout: the first note that names its parameters sets it, and
// notes with a different layout are remapped by parameter name.
func (a *Arrangement) clipSequence(c *Clip) synthseq.Sequence {
	seq := synthseq.Sequence{Tempo: a.bpm, ParamNames: synthseq.DefaultParamNames}
	for _, n := range c.Notes {
		if len(n.ParamNames) > 0 {
			seq.ParamNames = n.ParamNames
			break
		}
	}
	ampIdx, freqIdx := seq.AmplitudeIndex(), seq.FrequencyIndex()

	for _, n := range c.Notes {
		params := append([]float64(nil), n.Params...)
		if len(n.ParamNames) > 0 && !slices.Equal(n.ParamNames, seq.ParamNames) {
			params = remapParams(seq.ParamNames, n.ParamNames, n.Params)
		}
		if len(params) == 0 {
			params = defaultParams(len(seq.ParamNames))
		}
		if ampIdx >= 0 && ampIdx < len(params) {
			params[ampIdx] = n.Amplitude
		}
		if freqIdx >= 0 && freqIdx < len(params) {
			params[freqIdx] = n.Frequency
		}
		seq.Events = append(seq.Events, synthseq.Event{
			Start:     n.StartTime,
			Duration:  n.Duration,
			SynthName: n.SynthName,
			Params:    params,
		})
	}
	return seq
}

// remapParams reorders params laid out as from into the layout names.
// Names missing from from take their default.
func remapParams(names, from []string, params []float64) []float64 {
	out := defaultParams(len(names))
	for j, name := range names {
		if i := slices.Index(from, name); i >= 0 && i < len(params) {
			out[j] = params[i]
		}
	}
	return out
}

// defaultParams are amplitude, frequency, attack, release and pan for the
// stock layout; other layouts start from zeros.
func defaultParams(n int) []float64 {
	out := make([]float64, n)
	stock := []float64{0.5, 440, 0.01, 0.1, 0}
	copy(out, stock)
	return out
}

func (a *Arrangement) writeClipFile(c *Clip) error {
	return a.writeFile(c.FilePath, a.codec.Serialize(a.clipSequence(c)))
}

// SaveClip writes a clip to its backing file, deriving a path for clips
// that have none, and clears the dirty flag.
func (a *Arrangement) SaveClip(id string) error {
	c := a.Clip(id)
	if c == nil {
		return fmt.Errorf("%w: %s", ErrClipNotFound, id)
	}
	if c.FilePath == "" {
		c.FilePath = a.uniqueClipPath(c.Name)
	}
	if err := a.writeClipFile(c); err != nil {
		return fmt.Errorf("save clip %s: %w", c.Name, err)
	}
	c.Dirty = false
	return nil
}

// parseClipFile reads a clip file into a detached clip.
func (a *Arrangement) parseClipFile(p string) (*Clip, error) {
	text, err := a.readFile(p)
	if err != nil {
		return nil, err
	}
	seq, err := a.codec.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", p, err)
	}

	ampIdx, freqIdx := seq.AmplitudeIndex(), seq.FrequencyIndex()
	c := &Clip{
		Name:     strings.TrimSuffix(path.Base(p), ClipExt),
		FilePath: p,
		Duration: DefaultClipDuration,
	}
	for _, ev := range seq.Events {
		n := Note{
			ID:         newID(),
			StartTime:  ev.Start,
			Duration:   ev.Duration,
			SynthName:  ev.SynthName,
			Params:     append([]float64(nil), ev.Params...),
			ParamNames: append([]string(nil), seq.ParamNames...),
		}
		if ampIdx >= 0 && ampIdx < len(ev.Params) {
			n.Amplitude = ev.Params[ampIdx]
		}
		if freqIdx >= 0 && freqIdx < len(ev.Params) {
			n.Frequency = ev.Params[freqIdx]
		}
		n = normalizeNote(n)
		c.Notes = append(c.Notes, n)
		if c.SynthName == "" {
			c.SynthName = n.SynthName
		}
	}
	if len(c.Notes) > 0 {
		c.Duration = max(c.LastNoteEnd(), MinNoteDuration)
	}
	return c, nil
}

// LoadClipFile loads a clip file. A clip already backed by the same file
// is refreshed in place; otherwise a new clip is added. File-backed clips
// are not gated on known synth classes.
func (a *Arrangement) LoadClipFile(p string) (*Clip, error) {
	clean, err := projectfs.CleanPath(p)
	if err != nil {
		return nil, err
	}
	parsed, err := a.parseClipFile(clean)
	if err != nil {
		return nil, err
	}
	return a.adoptClip(parsed), nil
}

func (a *Arrangement) adoptClip(parsed *Clip) *Clip {
	if c := a.clipByPath(parsed.FilePath); c != nil {
		c.Notes = parsed.Notes
		c.Duration = parsed.Duration
		if parsed.SynthName != "" {
			c.SynthName = parsed.SynthName
		}
		c.Dirty = false
		return c
	}
	parsed.ID = newID()
	parsed.Color = Palette[len(a.clips)%len(Palette)]
	a.clips = append(a.clips, parsed)
	if a.activeID == "" {
		a.activeID = parsed.ID
	}
	return parsed
}

// Manifest builds the persisted form of the arrangement. Instances on a
// lane without a synth are keyed by their clip's synth.
func (a *Arrangement) Manifest() Manifest {
	m := Manifest{
		Version:     ManifestVersion,
		BPM:         a.bpm,
		LoopEnabled: a.loopEnabled,
		LoopStart:   a.loopStart,
		LoopEnd:     a.loopEnd,
	}
	for _, t := range a.tracks {
		m.Tracks = append(m.Tracks, ManifestTrack{SynthName: t.SynthName, Muted: t.Muted, Solo: t.Solo})
	}
	for _, inst := range a.instances {
		c := a.Clip(inst.ClipID)
		if c == nil {
			continue
		}
		synth := c.SynthName
		if inst.TrackIndex < len(a.tracks) && a.tracks[inst.TrackIndex].SynthName != "" {
			synth = a.tracks[inst.TrackIndex].SynthName
		}
		m.ClipInstances = append(m.ClipInstances, ManifestInstance{
			FilePath:       c.FilePath,
			TrackSynthName: synth,
			StartTime:      inst.StartTime,
		})
	}
	return m
}

// SaveArrangement saves every placed clip that is dirty or has no file,
// then writes the manifest.
func (a *Arrangement) SaveArrangement() error {
	if a.files == nil {
		return ErrNoFileStore
	}
	saved := make(map[string]bool)
	for _, inst := range a.instances {
		c := a.Clip(inst.ClipID)
		if c == nil || saved[c.ID] {
			continue
		}
		saved[c.ID] = true
		if c.Dirty || c.FilePath == "" {
			if err := a.SaveClip(c.ID); err != nil {
				return err
			}
		}
	}

	data, err := json.MarshalIndent(a.Manifest(), "", "  ")
	if err != nil {
		return err
	}
	return a.writeFile(ManifestPath, string(data))
}

// LoadArrangement replaces the lanes, placements and transport settings
// with the saved manifest. Every referenced clip file is read and parsed
// before anything changes, so a missing or broken file leaves the
// arrangement untouched.
func (a *Arrangement) LoadArrangement() error {
	text, err := a.readFile(ManifestPath)
	if err != nil {
		return err
	}
	var m Manifest
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		return fmt.Errorf("decode %s: %w", ManifestPath, err)
	}
	if m.Version > ManifestVersion {
		return fmt.Errorf("%s: unsupported version %d", ManifestPath, m.Version)
	}

	parsed := make(map[string]*Clip)
	var errs []error
	for _, mi := range m.ClipInstances {
		if _, ok := parsed[mi.FilePath]; ok {
			continue
		}
		c, err := a.parseClipFile(mi.FilePath)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		parsed[mi.FilePath] = c
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("load arrangement: %w", err)
	}

	a.instances = nil
	a.tracks = nil
	if m.BPM > 0 {
		a.bpm = m.BPM
	}
	a.loopEnabled = m.LoopEnabled
	if m.LoopEnd > m.LoopStart {
		a.loopStart, a.loopEnd = max(m.LoopStart, 0), m.LoopEnd
	}
	for _, mt := range m.Tracks {
		i := a.TrackForSynth(mt.SynthName)
		a.tracks[i].Muted = mt.Muted
		a.tracks[i].Solo = mt.Solo
	}
	for _, mi := range m.ClipInstances {
		c := a.adoptClip(parsed[mi.FilePath])
		// parsed clips are shared by every instance of the same file
		parsed[mi.FilePath] = c
		track := 0
		if mi.TrackSynthName != "" {
			track = a.TrackForSynth(mi.TrackSynthName)
		}
		a.ensureTrack(track)
		a.instances = append(a.instances, &ClipInstance{
			ID:         newID(),
			ClipID:     c.ID,
			TrackIndex: track,
			StartTime:  max(mi.StartTime, 0),
		})
	}
	a.logger.Debug("arrangement loaded", "category", "sequencer",
		"tracks", len(a.tracks), "instances", len(a.instances))
	return nil
}
