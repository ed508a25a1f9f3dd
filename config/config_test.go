package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMissingFileIsDefault(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "none.json"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Fatalf("cfg = %+v, want defaults", cfg)
	}
}

func TestJSONWithComments(t *testing.T) {
	path := writeFile(t, "config.json", `{
		// slower frames on battery
		"transport": {"frameRate": 30, "bpm": 90,},
		"midi": {"portName": "FluidSynth", "channel": 3},
	}`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Transport.FrameRate != 30 || cfg.Transport.BPM != 90 {
		t.Fatalf("transport = %+v", cfg.Transport)
	}
	if cfg.MIDI.PortName != "FluidSynth" || cfg.MIDI.Channel != 3 {
		t.Fatalf("midi = %+v", cfg.MIDI)
	}
	if cfg.History.MaxUndo != 100 || cfg.Grid.Size != 0.25 {
		t.Fatalf("unset sections lost their defaults: %+v", cfg)
	}
}

func TestYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", "synths: [SineEnv, Pluck]\ngrid:\n  snap: false\n  size: 0.5\n")
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !reflect.DeepEqual(cfg.Synths, []string{"SineEnv", "Pluck"}) {
		t.Fatalf("synths = %v", cfg.Synths)
	}
	if cfg.Grid.Snap || cfg.Grid.Size != 0.5 {
		t.Fatalf("grid = %+v", cfg.Grid)
	}
}

func TestInvalidValues(t *testing.T) {
	for _, content := range []string{
		`{"history": {"maxUndo": -1}}`,
		`{"transport": {"frameRate": 1000}}`,
		`{"transport": {"loopStart": 4, "loopEnd": 2}}`,
		`{"midi": {"channel": 16}}`,
		`{"grid": {"size": -0.25}}`,
		`{not json`,
	} {
		if _, err := LoadFile(writeFile(t, "config.json", content)); err == nil {
			t.Fatalf("LoadFile(%s) succeeded, want error", content)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "nested/config.yml"} {
		path := filepath.Join(t.TempDir(), name)
		cfg := DefaultConfig()
		cfg.ProjectsDir = "/tmp/projects"
		cfg.Transport.LoopEnabled = true
		if err := cfg.SaveFile(path); err != nil {
			t.Fatalf("SaveFile(%s): %v", name, err)
		}
		loaded, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile(%s): %v", name, err)
		}
		if !reflect.DeepEqual(loaded, cfg) {
			t.Fatalf("%s round trip:\n%+v\n%+v", name, loaded, cfg)
		}
		data, _ := os.ReadFile(path)
		if strings.HasSuffix(name, ".json") && !strings.Contains(string(data), `"projectsDir"`) {
			t.Fatalf("json output = %s", data)
		}
	}
}
