package midi

import (
	"errors"
	"testing"

	gomidi "gitlab.com/gomidi/midi/v2"
)

type capture struct {
	msgs []gomidi.Message
	err  error
}

func (c *capture) send(msg gomidi.Message) error {
	c.msgs = append(c.msgs, msg)
	return c.err
}

func TestFrequencyToNote(t *testing.T) {
	for _, tc := range []struct {
		hz   float64
		want uint8
	}{
		{440, 69},
		{261.63, 60},
		{466.16, 70},
		{880, 81},
		{0, 69},
		{-5, 69},
		{1, 0},
		{100000, 127},
	} {
		if got := FrequencyToNote(tc.hz); got != tc.want {
			t.Fatalf("FrequencyToNote(%v) = %d, want %d", tc.hz, got, tc.want)
		}
	}
}

func TestAmplitudeToVelocity(t *testing.T) {
	for _, tc := range []struct {
		amp  float64
		want uint8
	}{
		{0, 1},
		{0.5, 64},
		{1, 127},
		{3, 127},
		{-1, 1},
	} {
		if got := AmplitudeToVelocity(tc.amp); got != tc.want {
			t.Fatalf("AmplitudeToVelocity(%v) = %d, want %d", tc.amp, got, tc.want)
		}
	}
}

func TestTriggerRelease(t *testing.T) {
	c := &capture{}
	r := NewVoiceRuntime(c.send, 2)

	r.TriggerVoice(1, 440, 1, 0.5)
	r.TriggerVoice(2, 880, 0.5, 0.5)
	r.ReleaseVoice(1)
	r.ReleaseVoice(1)
	r.ReleaseVoice(99)

	want := []gomidi.Message{
		gomidi.NoteOn(2, 69, 127),
		gomidi.NoteOn(2, 81, 64),
		gomidi.NoteOff(2, 69),
	}
	if len(c.msgs) != len(want) {
		t.Fatalf("sent %d messages, want %d", len(c.msgs), len(want))
	}
	for i := range want {
		if c.msgs[i].String() != want[i].String() {
			t.Fatalf("message %d = %s, want %s", i, c.msgs[i], want[i])
		}
	}
	if r.Held() != 1 {
		t.Fatalf("Held = %d, want 1", r.Held())
	}

	r.AllNotesOff()
	if r.Held() != 0 || c.msgs[len(c.msgs)-1].String() != gomidi.NoteOff(2, 81).String() {
		t.Fatalf("AllNotesOff did not release voice 2")
	}
}

func TestSendErrorsDoNotStick(t *testing.T) {
	c := &capture{err: errors.New("port gone")}
	r := NewVoiceRuntime(c.send, 0)
	r.TriggerVoice(1, 440, 1, 1)
	r.ReleaseVoice(1)
	if r.Held() != 0 {
		t.Fatalf("Held = %d after release with failing port", r.Held())
	}
}

func TestMatchPort(t *testing.T) {
	names := []string{"IAC Driver Bus 1", "FluidSynth virtual port", "fluid"}
	for _, tc := range []struct {
		name string
		want int
		ok   bool
	}{
		{"", 0, true},
		{"fluid", 2, true},
		{"FLUIDSYNTH", 1, true},
		{"iac", 0, true},
		{"launchpad", -1, false},
	} {
		got, ok := MatchPort(names, tc.name)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("MatchPort(%q) = %d, %v, want %d, %v", tc.name, got, ok, tc.want, tc.ok)
		}
	}
	if _, ok := MatchPort(nil, ""); ok {
		t.Fatalf("MatchPort on no ports should fail")
	}
}
