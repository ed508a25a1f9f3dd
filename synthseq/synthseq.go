// Package synthseq reads and writes the .synthSequence text format used
// for clip files.
//
//	# tempo 120
//	# params amplitude frequency attackTime releaseTime pan
//	@ 0 0.5 SineEnv 0.3 440 0.01 0.1 0
//
// Lines starting with "@" are events: start, duration, synth name, then
// parameter values. Other "#" lines are comments.
package synthseq

import (
	"bufio"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DefaultTempo is used when a file has no tempo line.
const DefaultTempo = 120.0

// DefaultParamNames is the parameter layout of the stock envelope synths.
var DefaultParamNames = []string{"amplitude", "frequency", "attackTime", "releaseTime", "pan"}

// Event is one note line.
type Event struct {
	Start     float64
	Duration  float64
	SynthName string
	Params    []float64
}

// Sequence is a parsed file.
type Sequence struct {
	Events     []Event
	Tempo      float64
	ParamNames []string
}

// ParseError reports the line a parse failed on.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("synthSequence line %d: %s", e.Line, e.Msg)
}

// Codec implements the parse/serialize pair the sequencer uses.
type Codec struct{}

func (Codec) Parse(text string) (Sequence, error) { return Parse(text) }
func (Codec) Serialize(seq Sequence) string { return Serialize(seq) }

// Parse reads a sequence. Events are returned sorted by start time.
func Parse(text string) (Sequence, error) {
	seq := Sequence{Tempo: DefaultTempo}

	scanner := bufio.NewScanner(strings.NewReader(text))
	// A line can be as long as the whole text.
	scanner.Buffer(nil, max(len(text)+1, bufio.MaxScanTokenSize))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		switch {
		case fields[0] == "#":
			if err := parseDirective(&seq, fields[1:], lineNo); err != nil {
				return Sequence{}, err
			}
		case strings.HasPrefix(fields[0], "#"):
			// comment
		case fields[0] == "@":
			ev, err := parseEvent(fields[1:], lineNo)
			if err != nil {
				return Sequence{}, err
			}
			seq.Events = append(seq.Events, ev)
		default:
			return Sequence{}, &ParseError{Line: lineNo, Msg: fmt.Sprintf("unexpected %q", fields[0])}
		}
	}
	if err := scanner.Err(); err != nil {
		return Sequence{}, err
	}

	if seq.ParamNames == nil {
		seq.ParamNames = append([]string(nil), DefaultParamNames...)
	}
	sort.SliceStable(seq.Events, func(i, j int) bool {
		return seq.Events[i].Start < seq.Events[j].Start
	})
	return seq, nil
}

func parseDirective(seq *Sequence, fields []string, lineNo int) error {
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "tempo":
		if len(fields) != 2 {
			return &ParseError{Line: lineNo, Msg: "tempo takes one value"}
		}
		bpm, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || bpm <= 0 {
			return &ParseError{Line: lineNo, Msg: fmt.Sprintf("bad tempo %q", fields[1])}
		}
		seq.Tempo = bpm
	case "params":
		seq.ParamNames = append([]string(nil), fields[1:]...)
	}
	return nil
}

func parseEvent(fields []string, lineNo int) (Event, error) {
	if len(fields) < 3 {
		return Event{}, &ParseError{Line: lineNo, Msg: "event needs start, duration and synth name"}
	}
	start, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || start < 0 {
		return Event{}, &ParseError{Line: lineNo, Msg: fmt.Sprintf("bad start %q", fields[0])}
	}
	dur, err := strconv.ParseFloat(fields[1], 64)
	if err != nil || dur < 0 {
		return Event{}, &ParseError{Line: lineNo, Msg: fmt.Sprintf("bad duration %q", fields[1])}
	}
	ev := Event{Start: start, Duration: dur, SynthName: fields[2]}
	for _, f := range fields[3:] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Event{}, &ParseError{Line: lineNo, Msg: fmt.Sprintf("bad parameter %q", f)}
		}
		ev.Params = append(ev.Params, v)
	}
	return ev, nil
}

// Serialize writes seq in the format Parse reads.
func Serialize(seq Sequence) string {
	var out strings.Builder
	tempo := seq.Tempo
	if tempo <= 0 {
		tempo = DefaultTempo
	}
	fmt.Fprintf(&out, "# tempo %s\n", formatFloat(tempo))
	if len(seq.ParamNames) > 0 {
		fmt.Fprintf(&out, "# params %s\n", strings.Join(seq.ParamNames, " "))
	}
	for _, ev := range seq.Events {
		fmt.Fprintf(&out, "@ %s %s %s", formatFloat(ev.Start), formatFloat(ev.Duration), ev.SynthName)
		for _, p := range ev.Params {
			out.WriteString(" ")
			out.WriteString(formatFloat(p))
		}
		out.WriteString("\n")
	}
	return out.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ParamIndex returns the position of the first parameter whose name is one
// of names, or -1.
func (s Sequence) ParamIndex(names ...string) int {
	for i, p := range s.ParamNames {
		for _, n := range names {
			if strings.EqualFold(p, n) {
				return i
			}
		}
	}
	return -1
}

// AmplitudeIndex locates the amplitude parameter.
func (s Sequence) AmplitudeIndex() int {
	return s.ParamIndex("amplitude", "amp")
}

// FrequencyIndex locates the frequency parameter.
func (s Sequence) FrequencyIndex() int {
	return s.ParamIndex("frequency", "freq")
}
