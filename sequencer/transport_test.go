package sequencer

import (
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"

	"allolib-studio/clock"
)

type voiceEvent struct {
	kind string
	id   int
	freq float64
}

func (e voiceEvent) String() string { return fmt.Sprintf("%s %d", e.kind, e.id) }

type recordingRuntime struct {
	events []voiceEvent
}

func (r *recordingRuntime) TriggerVoice(id int, frequency, amplitude, duration float64) {
	r.events = append(r.events, voiceEvent{"trigger", id, frequency})
}

func (r *recordingRuntime) ReleaseVoice(id int) {
	r.events = append(r.events, voiceEvent{"release", id, 0})
}

func (r *recordingRuntime) count(kind string) int {
	n := 0
	for _, e := range r.events {
		if e.kind == kind {
			n++
		}
	}
	return n
}

type transportRig struct {
	arr     *Arrangement
	clip    *Clip
	clock   *clock.FakeClock
	pump    *ManualPump
	runtime *recordingRuntime
	tr      *Transport
}

func newRig(t *testing.T) *transportRig {
	t.Helper()
	arr := NewArrangement(WithSynths(StaticSynths{"SineEnv"}))
	c, err := arr.CreateClip("SineEnv", ClipOptions{Duration: 4})
	if err != nil {
		t.Fatalf("CreateClip: %v", err)
	}
	r := &transportRig{
		arr:     arr,
		clip:    c,
		clock:   clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		pump:    NewManualPump(),
		runtime: &recordingRuntime{},
	}
	r.tr = NewTransport(arr, WithTransportClock(r.clock), WithPump(r.pump), WithVoiceRuntime(r.runtime))
	return r
}

func (r *transportRig) frame(seconds float64) {
	r.clock.AdvanceSeconds(seconds)
	r.pump.Step()
}

func TestConcreteScenario(t *testing.T) {
	r := newRig(t)
	r.arr.AddNote(r.clip.ID, Note{StartTime: 0, Duration: 1, Frequency: 440, Amplitude: 0.5})
	r.arr.AddClipInstance(r.clip.ID, 0, 2)

	r.tr.ScheduleVoices(1.9, 2.1)
	if len(r.runtime.events) != 1 || r.runtime.events[0].kind != "trigger" || r.runtime.events[0].freq != 440 {
		t.Fatalf("events after [1.9, 2.1) = %v, want one trigger", r.runtime.events)
	}
	id := r.runtime.events[0].id
	r.tr.ScheduleVoices(2.1, 2.9)
	r.tr.ScheduleVoices(2.9, 3.1)
	if len(r.runtime.events) != 2 || r.runtime.events[1] != (voiceEvent{"release", id, 0}) {
		t.Fatalf("events = %v, want trigger then release of %d", r.runtime.events, id)
	}
	r.tr.ScheduleVoices(3.1, 10)
	if len(r.runtime.events) != 2 {
		t.Fatalf("extra voice calls: %v", r.runtime.events)
	}
	if len(r.tr.HeldVoices()) != 0 {
		t.Fatalf("held = %v, want none", r.tr.HeldVoices())
	}
}

func TestNoDoubleTriggerOnBoundary(t *testing.T) {
	r := newRig(t)
	r.arr.AddNote(r.clip.ID, Note{StartTime: 1, Duration: 0.5, Frequency: 220})
	r.arr.AddClipInstance(r.clip.ID, 0, 0)

	r.tr.ScheduleVoices(0.9, 1.0)
	if got := r.runtime.count("trigger"); got != 0 {
		t.Fatalf("triggered %d times before the boundary", got)
	}
	r.tr.ScheduleVoices(1.0, 1.1)
	if got := r.runtime.count("trigger"); got != 1 {
		t.Fatalf("triggered %d times, want 1", got)
	}
}

func TestTwoInstancesKeepSeparateVoices(t *testing.T) {
	r := newRig(t)
	r.arr.SetSnapEnabled(false)
	r.arr.AddNote(r.clip.ID, Note{StartTime: 0, Duration: 1, Frequency: 220})
	r.arr.AddClipInstance(r.clip.ID, 0, 0)
	r.arr.AddClipInstance(r.clip.ID, 1, 0.5)

	r.tr.ScheduleVoices(0, 0.75)
	if len(r.tr.HeldVoices()) != 2 {
		t.Fatalf("held = %v, want 2", r.tr.HeldVoices())
	}
	r.tr.ScheduleVoices(0.75, 1.25)
	held := r.tr.HeldVoices()
	if len(held) != 1 || held[0][:2] != "2:" {
		t.Fatalf("held = %v, want only the second instance's voice", held)
	}
}

func TestMutingMidNoteReleasesVoice(t *testing.T) {
	r := newRig(t)
	r.arr.AddNote(r.clip.ID, Note{StartTime: 0, Duration: 1, Frequency: 440})
	r.arr.AddClipInstance(r.clip.ID, 0, 0)

	r.tr.Play()
	r.frame(0.1)
	if got := r.runtime.count("trigger"); got != 1 {
		t.Fatalf("triggers = %d, want 1", got)
	}
	r.arr.SetTrackMuted(0, true)
	r.frame(0.1)
	if got := r.runtime.count("release"); got != 1 {
		t.Fatalf("releases after mute = %d, want 1", got)
	}
	for i := 0; i < 30; i++ {
		r.frame(0.1)
	}
	if len(r.tr.HeldVoices()) != 0 || r.runtime.count("release") != 1 {
		t.Fatalf("held = %v, events = %v", r.tr.HeldVoices(), r.runtime.events)
	}
}

func TestRemovingInstanceMidNoteReleasesVoice(t *testing.T) {
	r := newRig(t)
	r.arr.AddNote(r.clip.ID, Note{StartTime: 0, Duration: 2, Frequency: 440})
	inst, _ := r.arr.AddClipInstance(r.clip.ID, 0, 0)

	r.tr.ScheduleVoices(0, 0.5)
	if len(r.tr.HeldVoices()) != 1 {
		t.Fatalf("held = %v, want 1", r.tr.HeldVoices())
	}
	r.arr.RemoveClipInstance(inst.ID)
	r.tr.ScheduleVoices(0.5, 0.6)
	if len(r.tr.HeldVoices()) != 0 || r.runtime.count("release") != 1 {
		t.Fatalf("held = %v, events = %v", r.tr.HeldVoices(), r.runtime.events)
	}
}

func TestShortenedNoteReleasesVoice(t *testing.T) {
	r := newRig(t)
	n := Note{StartTime: 0, Duration: 2, Frequency: 440}
	added, _ := r.arr.AddNote(r.clip.ID, n)
	r.arr.AddClipInstance(r.clip.ID, 0, 0)

	r.tr.ScheduleVoices(0, 1)
	added.Duration = 0.5
	if _, err := r.arr.UpdateNote(r.clip.ID, added.ID, added); err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}
	r.tr.ScheduleVoices(1, 1.1)
	if len(r.tr.HeldVoices()) != 0 {
		t.Fatalf("held = %v, want none after shortening", r.tr.HeldVoices())
	}
}

func TestTransportStateMachine(t *testing.T) {
	r := newRig(t)
	r.arr.AddNote(r.clip.ID, Note{StartTime: 0, Duration: 10, Frequency: 110})
	r.arr.AddClipInstance(r.clip.ID, 0, 0)

	r.tr.Pause()
	if r.tr.State() != Stopped {
		t.Fatalf("Pause from stopped changed state to %v", r.tr.State())
	}

	r.tr.Play()
	r.tr.Play()
	if r.pump.Pending() != 1 {
		t.Fatalf("pending frames = %d, want 1", r.pump.Pending())
	}
	r.frame(0.5)
	if r.tr.Position() != 0.5 || len(r.tr.HeldVoices()) != 1 {
		t.Fatalf("position %v held %v", r.tr.Position(), r.tr.HeldVoices())
	}

	r.tr.Pause()
	if r.tr.State() != Paused || r.pump.Pending() != 0 {
		t.Fatalf("after pause: state %v pending %d", r.tr.State(), r.pump.Pending())
	}
	if len(r.tr.HeldVoices()) != 0 || r.runtime.count("release") != 1 {
		t.Fatalf("pause left voices: %v", r.runtime.events)
	}

	r.clock.AdvanceSeconds(5)
	r.tr.Play()
	r.frame(0.25)
	if r.tr.Position() != 0.75 {
		t.Fatalf("resume position = %v, want 0.75", r.tr.Position())
	}

	r.tr.Stop()
	if r.tr.State() != Stopped || r.tr.Position() != 0 || r.pump.Pending() != 0 {
		t.Fatalf("after stop: %v at %v, pending %d", r.tr.State(), r.tr.Position(), r.pump.Pending())
	}
}

func TestSeekWhilePlayingReleases(t *testing.T) {
	r := newRig(t)
	r.arr.AddNote(r.clip.ID, Note{StartTime: 0, Duration: 3, Frequency: 110})
	r.arr.AddClipInstance(r.clip.ID, 0, 0)

	r.tr.Play()
	r.frame(0.1)
	r.tr.SetPosition(-4)
	if r.tr.Position() != 0 {
		t.Fatalf("position = %v, want clamp to 0", r.tr.Position())
	}
	if len(r.tr.HeldVoices()) != 0 || r.runtime.count("release") != 1 {
		t.Fatalf("seek did not release: %v", r.runtime.events)
	}
	r.frame(0.1)
	if r.runtime.count("trigger") != 2 {
		t.Fatalf("note at 0 should retrigger after seeking to 0: %v", r.runtime.events)
	}
}

func TestLoopWrapReleasesBeforeRetrigger(t *testing.T) {
	r := newRig(t)
	r.arr.AddNote(r.clip.ID, Note{StartTime: 0, Duration: 3, Frequency: 330})
	r.arr.AddClipInstance(r.clip.ID, 0, 0)
	r.arr.SetLoopRegion(0, 2)
	r.arr.SetLoopEnabled(true)

	r.tr.Play()
	r.frame(0.5)
	r.frame(1.6)

	pos := r.tr.Position()
	if pos < 0.0999 || pos > 0.1001 {
		t.Fatalf("wrapped position = %v, want 0.1", pos)
	}
	want := []string{"trigger 1", "release 1", "trigger 2"}
	if len(r.runtime.events) != len(want) {
		t.Fatalf("events = %v, want %v", r.runtime.events, want)
	}
	for i, e := range r.runtime.events {
		if e.String() != want[i] {
			t.Fatalf("events = %v, want %v", r.runtime.events, want)
		}
	}
}

func TestNoRuntimeStillAdvances(t *testing.T) {
	r := newRig(t)
	r.arr.AddNote(r.clip.ID, Note{StartTime: 0, Duration: 1})
	r.arr.AddClipInstance(r.clip.ID, 0, 0)
	r.tr.SetVoiceRuntime(nil)

	var frames []float64
	r.tr.OnFrame(func(p float64) { frames = append(frames, p) })
	r.tr.Play()
	r.frame(0.25)
	r.frame(0.25)
	if r.tr.Position() != 0.5 || len(frames) != 2 {
		t.Fatalf("position %v frames %v", r.tr.Position(), frames)
	}
	if len(r.runtime.events) != 0 || len(r.tr.HeldVoices()) != 0 {
		t.Fatalf("detached runtime received %v", r.runtime.events)
	}
}

func TestCloseCancelsFrame(t *testing.T) {
	r := newRig(t)
	r.tr.Play()
	r.tr.Close()
	if r.pump.Pending() != 0 {
		t.Fatalf("pending frames after Close = %d", r.pump.Pending())
	}
	if r.pump.Step() != 0 {
		t.Fatalf("a frame ran after Close")
	}
}

// Playing straight through an arrangement triggers every note once and
// leaves nothing held, whatever the frame sizes.
func TestPlaythroughProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		arr := NewArrangement(WithSynths(StaticSynths{"SineEnv"}))
		arr.SetSnapEnabled(false)
		c, _ := arr.CreateClip("SineEnv", ClipOptions{})
		notes := rapid.IntRange(1, 12).Draw(rt, "notes")
		for i := 0; i < notes; i++ {
			arr.AddNote(c.ID, Note{
				StartTime: rapid.Float64Range(0, 4).Draw(rt, "start"),
				Duration:  rapid.Float64Range(0, 2).Draw(rt, "duration"),
			})
		}
		instances := rapid.IntRange(1, 3).Draw(rt, "instances")
		for i := 0; i < instances; i++ {
			arr.AddClipInstance(c.ID, i, rapid.Float64Range(0, 6).Draw(rt, "at"))
		}

		fc := clock.Fake(time.Unix(0, 0))
		pump := NewManualPump()
		rec := &recordingRuntime{}
		tr := NewTransport(arr, WithTransportClock(fc), WithPump(pump), WithVoiceRuntime(rec))
		frames := []time.Duration{
			time.Duration(rapid.IntRange(1, 100).Draw(rt, "frameA")) * time.Millisecond,
			time.Duration(rapid.IntRange(1, 100).Draw(rt, "frameB")) * time.Millisecond,
		}
		tr.Play()
		end := arr.ArrangementEnd() + 1
		for i := 0; tr.Position() <= end; i++ {
			fc.Advance(frames[i%2])
			pump.Step()
		}

		want := len(arr.AllArrangementNotes())
		if got := rec.count("trigger"); got != want {
			rt.Fatalf("triggers = %d, want %d", got, want)
		}
		if got := rec.count("release"); got != want {
			rt.Fatalf("releases = %d, want %d", got, want)
		}
		if len(tr.HeldVoices()) != 0 {
			rt.Fatalf("held after playthrough: %v", tr.HeldVoices())
		}
	})
}
