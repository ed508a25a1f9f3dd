package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	flag "github.com/spf13/pflag"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"allolib-studio/config"
	"allolib-studio/debug"
	"allolib-studio/midi"
	"allolib-studio/sequencer"
	"allolib-studio/studio"
	"allolib-studio/theme"
	"allolib-studio/tui"
)

func main() {
	var (
		configPath  = flag.String("config", "", "config file (default ~/.config/allolib-studio/config.json)")
		project     = flag.String("project", "default", "project name or directory")
		midiPort    = flag.String("midi-port", "", "MIDI output port (substring match)")
		logLevel    = flag.String("log-level", "", "log level: debug, info, warn, error")
		debugStderr = flag.Bool("debug", false, "also log to stderr")
		palettePath = flag.String("palette", "", "GIMP palette file for the UI")
	)
	flag.Parse()

	if err := run(*configPath, *project, *midiPort, *logLevel, *debugStderr, *palettePath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, project, midiPort, logLevel string, debugStderr bool, palettePath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if midiPort != "" {
		cfg.MIDI.PortName = midiPort
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	debug.SetLevel(debug.ParseLevel(cfg.Log.Level))
	if err := debug.Enable(cfg.Log.File, debugStderr); err != nil {
		return err
	}
	defer debug.Disable()

	var voices sequencer.VoiceRuntime
	send, port, err := midi.OpenOutput(cfg.MIDI.PortName)
	if err != nil {
		// Editing works without audio.
		debug.Warn("main", "no MIDI output: %v", err)
	} else {
		debug.Log("main", "MIDI output %s", port)
		voices = midi.NewVoiceRuntime(send, uint8(cfg.MIDI.Channel))
	}
	defer midi.Close()

	pump := tui.NewPump(cfg.Transport.FrameRate)
	s, err := studio.New(cfg, pump, voices)
	if err != nil {
		return err
	}
	defer s.Close()

	if fi, statErr := os.Stat(project); statErr == nil && fi.IsDir() {
		err = s.Open(project)
	} else {
		err = s.OpenProject(project)
	}
	if err != nil {
		return err
	}

	var palette *theme.Palette
	if palettePath != "" {
		if palette, err = theme.LoadGPL(palettePath); err != nil {
			return err
		}
	}

	m := tui.NewModel(s, pump, theme.New(palette))
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}
