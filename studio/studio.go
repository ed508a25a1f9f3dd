// Package studio wires the state core together: project files, the
// arrangement, the environment, undo history, snapshot transactions and the
// transport.
package studio

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"allolib-studio/command"
	"allolib-studio/config"
	"allolib-studio/debug"
	"allolib-studio/keyframe"
	"allolib-studio/projectfs"
	"allolib-studio/sequencer"
	"allolib-studio/synthseq"
	"allolib-studio/transaction"
)

// Studio is one open project and the state core editing it.
type Studio struct {
	Config       *config.Config
	Files        *projectfs.Store
	Arrangement  *sequencer.Arrangement
	Environment  *keyframe.Store
	Commands     *command.Stack
	Transactions *transaction.Manager
	Transport    *sequencer.Transport

	// Dir is the on-disk project directory, "" for an unsaved project.
	Dir string

	logger *slog.Logger
}

// New builds a studio from cfg. pump and runtime may be nil.
func New(cfg *config.Config, pump sequencer.FramePump, runtime sequencer.VoiceRuntime) (*Studio, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := debug.Logger().With("category", "studio")

	s := &Studio{
		Config:      cfg,
		Files:       projectfs.New(),
		Environment: keyframe.DefaultEnvironment(),
		Commands:    command.NewStack(command.WithMaxHistory(cfg.History.MaxUndo)),
		logger:      logger,
	}
	s.Arrangement = sequencer.NewArrangement(
		sequencer.WithSynths(sequencer.StaticSynths(cfg.Synths)),
		sequencer.WithFileStore(s.Files),
		sequencer.WithCodec(synthseq.Codec{}),
	)
	if err := s.applySettings(); err != nil {
		return nil, err
	}

	tx, err := transaction.New(
		[]transaction.Store{s.Arrangement, s.Environment, s.Files},
		transaction.WithMaxHistory(cfg.History.MaxTransactions),
		transaction.WithCommandStack(s.Commands),
	)
	if err != nil {
		return nil, err
	}
	s.Transactions = tx

	opts := []sequencer.TransportOption{}
	if pump != nil {
		opts = append(opts, sequencer.WithPump(pump))
	}
	if runtime != nil {
		opts = append(opts, sequencer.WithVoiceRuntime(runtime))
	}
	s.Transport = sequencer.NewTransport(s.Arrangement, opts...)
	return s, nil
}

func (s *Studio) applySettings() error {
	tc := s.Config.Transport
	a := s.Arrangement
	if err := a.SetBPM(tc.BPM); err != nil {
		return err
	}
	a.SetLoopEnabled(tc.LoopEnabled)
	if tc.LoopEnd > tc.LoopStart {
		if err := a.SetLoopRegion(tc.LoopStart, tc.LoopEnd); err != nil {
			return err
		}
	}
	a.SetSnapEnabled(s.Config.Grid.Snap)
	return a.SetGridSize(s.Config.Grid.Size)
}

// Open loads the project at dir. A directory without a manifest opens as
// an empty arrangement. History is cleared either way.
func (s *Studio) Open(dir string) error {
	s.Transport.Stop()
	if err := s.Files.LoadDir(dir); err != nil {
		return fmt.Errorf("open %s: %w", dir, err)
	}
	s.Arrangement.Reset()
	if err := s.applySettings(); err != nil {
		return err
	}
	if s.Files.Exists(sequencer.ManifestPath) {
		if err := s.Arrangement.LoadArrangement(); err != nil {
			return fmt.Errorf("open %s: %w", dir, err)
		}
	}
	s.Dir = dir
	s.Commands.Clear()
	s.logger.Info("project opened", "dir", dir, "clips", len(s.Arrangement.Clips()))
	return nil
}

// OpenProject opens (creating if needed) a named project under the
// configured projects directory.
func (s *Studio) OpenProject(name string) error {
	dir, err := s.projectDir(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return s.Open(dir)
}

func (s *Studio) projectDir(name string) (string, error) {
	if s.Config.ProjectsDir != "" {
		return filepath.Join(s.Config.ProjectsDir, projectfs.SanitizeName(name)), nil
	}
	return projectfs.ProjectDir(name)
}

// Save writes the manifest and dirty clips into the project files and
// exports them to Dir.
func (s *Studio) Save() error {
	if s.Dir == "" {
		return errors.New("no project directory")
	}
	if err := s.Arrangement.SaveArrangement(); err != nil {
		return err
	}
	if err := s.Files.SaveToDir(s.Dir); err != nil {
		return err
	}
	s.logger.Info("project saved", "dir", s.Dir, "files", s.Files.Len())
	return nil
}

// Close stops playback and releases held voices.
func (s *Studio) Close() {
	s.Transport.Close()
}

// PlaceClip creates a clip and places it on a lane as one undo step. The
// clip uses the lane's synth, or the first known synth on an unlocked lane.
func (s *Studio) PlaceClip(trackIndex int, start float64) (*sequencer.Clip, error) {
	synth := ""
	if tr, ok := s.Arrangement.Track(trackIndex); ok {
		synth = tr.SynthName
	}
	if synth == "" && len(s.Config.Synths) > 0 {
		synth = s.Config.Synths[0]
	}
	res := transaction.RunUndoable(s.Transactions, "Place clip", func() (*sequencer.Clip, error) {
		c, err := s.Arrangement.CreateClip(synth, sequencer.ClipOptions{})
		if err != nil {
			return nil, err
		}
		if _, err := s.Arrangement.AddClipInstance(c.ID, trackIndex, start); err != nil {
			return nil, err
		}
		return c, nil
	})
	return res.Value, res.Err
}
