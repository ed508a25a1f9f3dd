package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	flag "github.com/spf13/pflag"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"allolib-studio/config"
	"allolib-studio/debug"
	"allolib-studio/midi"
	"allolib-studio/sequencer"
	"allolib-studio/studio"
)

var (
	portName = flag.StringP("port", "p", "", "MIDI output port (substring match)")
	channel  = flag.Uint8P("channel", "c", 0, "MIDI channel 0-15")
	dryRun   = flag.Bool("dry-run", false, "print voices instead of sending MIDI")
	fps      = flag.Int("fps", 60, "frames per second")
	verbose  = flag.BoolP("verbose", "v", false, "log to stderr")
)

func main() {
	flag.Usage = usage
	flag.Parse()
	if *verbose {
		debug.SetLevel(debug.ParseLevel("debug"))
		debug.EnableWriter(os.Stderr)
	}

	var err error
	switch flag.Arg(0) {
	case "list":
		err = listPorts()
	case "tone":
		err = tone()
	case "play":
		if flag.NArg() < 2 {
			usage()
			os.Exit(2)
		}
		err = play(flag.Arg(1))
	default:
		usage()
		return
	}
	midi.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Voice runtime test")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list          - List MIDI output ports")
	fmt.Println("  tone          - Play A4 for one second")
	fmt.Println("  play <dir>    - Play a project's arrangement headless")
	fmt.Println("")
	flag.PrintDefaults()
}

func listPorts() error {
	fmt.Println("=== MIDI Output Ports ===")
	fmt.Printf("(waiting up to %s...)\n", midi.PortTimeout)
	names, err := midi.ListOutputs()
	if err != nil {
		return err
	}
	for i, n := range names {
		fmt.Printf("  %d: %s\n", i, n)
	}
	return nil
}

// printRuntime reports voices on stdout.
type printRuntime struct{ start time.Time }

func (r printRuntime) TriggerVoice(id int, frequency, amplitude, duration float64) {
	fmt.Printf("%8.3fs  on  #%-4d %7.2fHz amp %.2f dur %.3fs\n",
		time.Since(r.start).Seconds(), id, frequency, amplitude, duration)
}

func (r printRuntime) ReleaseVoice(id int) {
	fmt.Printf("%8.3fs  off #%d\n", time.Since(r.start).Seconds(), id)
}

func openRuntime() (sequencer.VoiceRuntime, error) {
	if *dryRun {
		return printRuntime{start: time.Now()}, nil
	}
	send, name, err := midi.OpenOutput(*portName)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Sending to %s, channel %d\n", name, *channel)
	return midi.NewVoiceRuntime(send, *channel), nil
}

func tone() error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	rt.TriggerVoice(1, 440, 0.8, 1)
	time.Sleep(time.Second)
	rt.ReleaseVoice(1)
	return nil
}

func play(dir string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}

	pump := sequencer.NewManualPump()
	s, err := studio.New(config.DefaultConfig(), pump, rt)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.Open(dir); err != nil {
		return err
	}

	end := s.Arrangement.ArrangementEnd()
	loop, _, _ := s.Arrangement.Loop()
	fmt.Printf("Playing %d clips, %.2fs", len(s.Arrangement.Clips()), end)
	if loop {
		fmt.Print(" (looping, ctrl+c to stop)")
	}
	fmt.Println()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	ticker := time.NewTicker(time.Second / time.Duration(max(*fps, 1)))
	defer ticker.Stop()

	s.Transport.Play()
	for {
		select {
		case <-interrupt:
			fmt.Println("\nstopped")
			s.Transport.Stop()
			return nil
		case <-ticker.C:
			pump.Step()
			if !loop && s.Transport.Position() >= end {
				s.Transport.Stop()
				return nil
			}
		}
	}
}
