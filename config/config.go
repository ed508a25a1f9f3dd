package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// HistoryConfig bounds the undo and transaction histories.
type HistoryConfig struct {
	MaxUndo         int `json:"maxUndo,omitempty" yaml:"maxUndo,omitempty"`
	MaxTransactions int `json:"maxTransactions,omitempty" yaml:"maxTransactions,omitempty"`
}

// TransportConfig holds playback defaults.
type TransportConfig struct {
	FrameRate   int     `json:"frameRate,omitempty" yaml:"frameRate,omitempty"`
	BPM         float64 `json:"bpm,omitempty" yaml:"bpm,omitempty"`
	LoopEnabled bool    `json:"loopEnabled,omitempty" yaml:"loopEnabled,omitempty"`
	LoopStart   float64 `json:"loopStart,omitempty" yaml:"loopStart,omitempty"`
	LoopEnd     float64 `json:"loopEnd,omitempty" yaml:"loopEnd,omitempty"`
}

// GridConfig controls placement snapping.
type GridConfig struct {
	Snap bool    `json:"snap" yaml:"snap"`
	Size float64 `json:"size,omitempty" yaml:"size,omitempty"`
}

// MIDIConfig defines the voice output
type MIDIConfig struct {
	PortName string `json:"portName,omitempty" yaml:"portName,omitempty"`
	Channel  int    `json:"channel,omitempty" yaml:"channel,omitempty"`
}

// LogConfig sets up the debug log.
type LogConfig struct {
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
	File  string `json:"file,omitempty" yaml:"file,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	History     HistoryConfig   `json:"history" yaml:"history"`
	Transport   TransportConfig `json:"transport" yaml:"transport"`
	Grid        GridConfig      `json:"grid" yaml:"grid"`
	Synths      []string        `json:"synths,omitempty" yaml:"synths,omitempty"`
	MIDI        MIDIConfig      `json:"midi" yaml:"midi"`
	ProjectsDir string          `json:"projectsDir,omitempty" yaml:"projectsDir,omitempty"`
	Log         LogConfig       `json:"log" yaml:"log"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		History: HistoryConfig{
			MaxUndo:         100,
			MaxTransactions: 50,
		},
		Transport: TransportConfig{
			FrameRate: 60,
			BPM:       120,
			LoopEnd:   8,
		},
		Grid: GridConfig{
			Snap: true,
			Size: 0.25,
		},
		Synths: []string{"SineEnv"},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "allolib-studio"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from the default path, or returns defaults if not
// found.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFile(path)
}

// LoadFile reads path over the defaults. A missing file yields the
// defaults. JSON may carry comments and trailing commas; .yaml and .yml
// files are read as YAML.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(jsonc.ToJSON(data), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the studio cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.History.MaxUndo < 1:
		return fmt.Errorf("history.maxUndo must be at least 1, got %d", c.History.MaxUndo)
	case c.History.MaxTransactions < 1:
		return fmt.Errorf("history.maxTransactions must be at least 1, got %d", c.History.MaxTransactions)
	case c.Transport.FrameRate < 1 || c.Transport.FrameRate > 240:
		return fmt.Errorf("transport.frameRate must be 1-240, got %d", c.Transport.FrameRate)
	case c.Transport.BPM <= 0:
		return fmt.Errorf("transport.bpm must be positive, got %v", c.Transport.BPM)
	case c.Transport.LoopEnd <= c.Transport.LoopStart:
		return fmt.Errorf("transport.loopEnd (%v) must be after loopStart (%v)", c.Transport.LoopEnd, c.Transport.LoopStart)
	case c.Grid.Size <= 0:
		return fmt.Errorf("grid.size must be positive, got %v", c.Grid.Size)
	case c.MIDI.Channel < 0 || c.MIDI.Channel > 15:
		return fmt.Errorf("midi.channel must be 0-15, got %d", c.MIDI.Channel)
	}
	return nil
}

// Save writes the config to the default path.
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes the config to path as JSON or, for .yaml/.yml, YAML.
func (c *Config) SaveFile(path string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
