package sequencer

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"allolib-studio/clock"
	"allolib-studio/debug"
)

// State is the transport state.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// VoiceRuntime starts and stops synth voices. Calls are fire-and-forget.
type VoiceRuntime interface {
	TriggerVoice(id int, frequency, amplitude, duration float64)
	ReleaseVoice(id int)
}

// Transport drives the playhead from the wall clock, one step per host
// frame, and decides which voices start and stop. All methods must be
// called from the goroutine that runs the frame pump.
type Transport struct {
	arr     *Arrangement
	clock   clock.Clock
	pump    FramePump
	runtime VoiceRuntime
	logger  *slog.Logger

	state      State
	position   float64
	anchorTime time.Time
	anchorPos  float64
	frame      FrameID

	nextVoice int
	// held entries are "voiceId:instanceId/noteId"
	held []string

	onFrame []func(position float64)
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithTransportClock sets the wall clock.
func WithTransportClock(c clock.Clock) TransportOption {
	return func(t *Transport) { t.clock = c }
}

// WithPump sets the frame pump. Without one, a ManualPump nobody steps is
// used and Advance has to be called directly.
func WithPump(p FramePump) TransportOption {
	return func(t *Transport) { t.pump = p }
}

// WithVoiceRuntime attaches the audio runtime.
func WithVoiceRuntime(r VoiceRuntime) TransportOption {
	return func(t *Transport) { t.runtime = r }
}

// WithTransportLogger sets the logger.
func WithTransportLogger(l *slog.Logger) TransportOption {
	return func(t *Transport) { t.logger = l }
}

// NewTransport returns a stopped transport over arr.
func NewTransport(arr *Arrangement, opts ...TransportOption) *Transport {
	t := &Transport{
		arr:       arr,
		clock:     clock.Real(),
		nextVoice: 1,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.pump == nil {
		t.pump = NewManualPump()
	}
	if t.logger == nil {
		t.logger = debug.Logger()
	}
	return t
}

// State returns the transport state.
func (t *Transport) State() State { return t.state }

// Position is the playhead in seconds.
func (t *Transport) Position() float64 { return t.position }

// HeldVoices returns the keys of the voices currently sounding.
func (t *Transport) HeldVoices() []string {
	return append([]string(nil), t.held...)
}

// OnFrame registers fn to run after every playhead advance.
func (t *Transport) OnFrame(fn func(position float64)) {
	t.onFrame = append(t.onFrame, fn)
}

// SetVoiceRuntime swaps the audio runtime. Voices held on the old one are
// released first. nil detaches it; the playhead keeps moving silently.
func (t *Transport) SetVoiceRuntime(r VoiceRuntime) {
	t.releaseAll()
	t.runtime = r
}

// Play starts or resumes playback from the current position.
func (t *Transport) Play() {
	if t.state == Playing {
		return
	}
	t.state = Playing
	t.anchor(t.position)
	t.requestFrame()
	debug.Log("transport", "play at %.3f", t.position)
}

// Pause holds the playhead and releases every voice.
func (t *Transport) Pause() {
	if t.state != Playing {
		return
	}
	t.state = Paused
	t.cancelFrame()
	t.releaseAll()
	debug.Log("transport", "pause at %.3f", t.position)
}

// Stop rewinds to zero and releases every voice.
func (t *Transport) Stop() {
	t.state = Stopped
	t.cancelFrame()
	t.position = 0
	t.releaseAll()
	debug.Log("transport", "stop")
}

// SetPosition moves the playhead, clamped to zero. While playing the clock
// anchor restarts at the new position and every voice is released.
func (t *Transport) SetPosition(seconds float64) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		t.logger.Warn("ignoring invalid playhead position", "category", "transport", "position", seconds)
		return
	}
	t.position = max(seconds, 0)
	if t.state == Playing {
		t.anchor(t.position)
		t.releaseAll()
	}
}

// Close cancels the pending frame and silences every voice.
func (t *Transport) Close() {
	t.cancelFrame()
	t.releaseAll()
	if t.state == Playing {
		t.state = Paused
	}
}

func (t *Transport) anchor(pos float64) {
	t.anchorTime = t.clock.Now()
	t.anchorPos = pos
}

func (t *Transport) requestFrame() {
	t.cancelFrame()
	t.frame = t.pump.RequestFrame(t.tick)
}

func (t *Transport) cancelFrame() {
	if t.frame != 0 {
		t.pump.CancelFrame(t.frame)
		t.frame = 0
	}
}

func (t *Transport) tick() {
	t.frame = 0
	if t.state != Playing {
		return
	}
	t.Advance()
	if t.state == Playing {
		t.requestFrame()
	}
}

// Advance moves the playhead to the position the wall clock implies and
// schedules voices for the covered window. Crossing the loop end wraps
// into the loop, releases every voice and schedules from the loop start.
func (t *Transport) Advance() {
	if t.state != Playing {
		return
	}
	now := t.clock.Now()
	prev := t.position
	pos := t.anchorPos + now.Sub(t.anchorTime).Seconds()

	enabled, loopStart, loopEnd := t.arr.Loop()
	if enabled && loopEnd > loopStart && pos >= loopEnd {
		span := loopEnd - loopStart
		pos = loopStart + math.Mod(pos-loopStart, span)
		t.anchorTime = now
		t.anchorPos = pos
		t.releaseAll()
		prev = loopStart
		debug.Log("transport", "loop wrap to %.3f", pos)
	}

	t.position = pos
	if t.runtime != nil {
		t.ScheduleVoices(prev, pos)
	}
	for _, fn := range t.onFrame {
		fn(pos)
	}
}

// ScheduleVoices triggers every note starting in [prev, cur) and releases
// every held note ending in [prev, cur). The half-open window makes a note
// on a frame boundary trigger exactly once. Held voices whose note no longer
// resolves (muted, soloed out, removed) or now ends before cur are released
// too.
func (t *Transport) ScheduleVoices(prev, cur float64) {
	if t.runtime == nil {
		return
	}
	ends := make(map[string]float64)
	for _, n := range t.arr.AllArrangementNotes() {
		ends[n.Key()] = n.AbsoluteEnd()

		start := n.AbsoluteStart
		if start >= prev && start < cur {
			id := t.nextVoice
			t.nextVoice++
			t.runtime.TriggerVoice(id, n.Frequency, n.Amplitude, n.Duration)
			t.held = append(t.held, fmt.Sprintf("%d:%s", id, n.Key()))
		}

		end := n.AbsoluteEnd()
		if end >= prev && end < cur {
			t.releaseNote(n.Key())
		}
	}
	t.releaseStale(ends, cur)
}

func (t *Transport) releaseStale(ends map[string]float64, cur float64) {
	kept := t.held[:0]
	for _, h := range t.held {
		_, key, _ := strings.Cut(h, ":")
		if end, ok := ends[key]; ok && end >= cur {
			kept = append(kept, h)
			continue
		}
		if id, ok := voiceID(h); ok {
			t.runtime.ReleaseVoice(id)
		}
		t.logger.Debug("released orphaned voice", "category", "transport", "voice", h)
	}
	t.held = kept
}

func (t *Transport) releaseNote(key string) {
	suffix := ":" + key
	for i, h := range t.held {
		if !strings.HasSuffix(h, suffix) {
			continue
		}
		if id, ok := voiceID(h); ok {
			t.runtime.ReleaseVoice(id)
		}
		t.held = append(t.held[:i], t.held[i+1:]...)
		return
	}
}

func (t *Transport) releaseAll() {
	if t.runtime != nil {
		for _, h := range t.held {
			if id, ok := voiceID(h); ok {
				t.runtime.ReleaseVoice(id)
			}
		}
	}
	t.held = t.held[:0]
}

func voiceID(held string) (int, bool) {
	head, _, ok := strings.Cut(held, ":")
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(head)
	return id, err == nil
}
