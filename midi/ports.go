package midi

import (
	"errors"
	"fmt"
	"strings"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// PortTimeout bounds a port scan; CoreMIDI can hang.
const PortTimeout = 3 * time.Second

var (
	ErrNoPort      = errors.New("midi output port not found")
	ErrScanTimeout = errors.New("midi port scan timed out")
)

func outPorts(timeout time.Duration) ([]drivers.Out, error) {
	ch := make(chan []drivers.Out, 1)
	go func() {
		ch <- gomidi.GetOutPorts()
	}()

	select {
	case outs := <-ch:
		return outs, nil
	case <-time.After(timeout):
		// User needs to run: sudo killall coreaudiod midiserver
		return nil, ErrScanTimeout
	}
}

// ListOutputs returns the names of the available output ports.
func ListOutputs() ([]string, error) {
	outs, err := outPorts(PortTimeout)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(outs))
	for i, p := range outs {
		names[i] = p.String()
	}
	return names, nil
}

// MatchPort picks the port named name: an exact match first, then the
// first case-insensitive substring match. Empty name picks the first port.
func MatchPort(names []string, name string) (int, bool) {
	if len(names) == 0 {
		return -1, false
	}
	if name == "" {
		return 0, true
	}
	for i, n := range names {
		if n == name {
			return i, true
		}
	}
	want := strings.ToLower(name)
	for i, n := range names {
		if strings.Contains(strings.ToLower(n), want) {
			return i, true
		}
	}
	return -1, false
}

// OpenOutput opens the output port matching name and returns its sender.
func OpenOutput(name string) (Sender, string, error) {
	outs, err := outPorts(PortTimeout)
	if err != nil {
		return nil, "", err
	}
	names := make([]string, len(outs))
	for i, p := range outs {
		names[i] = p.String()
	}
	i, ok := MatchPort(names, name)
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", ErrNoPort, name)
	}
	send, err := gomidi.SendTo(outs[i])
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", names[i], err)
	}
	return Sender(send), names[i], nil
}

// Close shuts the MIDI driver down.
func Close() {
	gomidi.CloseDriver()
}
