// Package midi plays scheduled voices on a MIDI output: each voice becomes
// a note on one channel.
package midi

import (
	"log/slog"
	"math"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"

	"allolib-studio/debug"
)

// Sender delivers one message to an output port.
type Sender func(gomidi.Message) error

// VoiceRuntime turns trigger/release calls into NoteOn/NoteOff messages.
type VoiceRuntime struct {
	mu      sync.Mutex
	send    Sender
	channel uint8
	notes   map[int]uint8
	logger  *slog.Logger
}

// NewVoiceRuntime sends on channel (0-15) through send.
func NewVoiceRuntime(send Sender, channel uint8) *VoiceRuntime {
	return &VoiceRuntime{
		send:    send,
		channel: channel & 0x0f,
		notes:   make(map[int]uint8),
		logger:  debug.Logger(),
	}
}

// TriggerVoice starts a note for voice id. The duration is not used; the
// scheduler releases the voice.
func (r *VoiceRuntime) TriggerVoice(id int, frequency, amplitude, duration float64) {
	key := FrequencyToNote(frequency)
	vel := AmplitudeToVelocity(amplitude)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes[id] = key
	r.deliver(gomidi.NoteOn(r.channel, key, vel))
}

// ReleaseVoice stops voice id. Unknown ids are ignored.
func (r *VoiceRuntime) ReleaseVoice(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.notes[id]
	if !ok {
		return
	}
	delete(r.notes, id)
	r.deliver(gomidi.NoteOff(r.channel, key))
}

// AllNotesOff releases every sounding voice.
func (r *VoiceRuntime) AllNotesOff() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, key := range r.notes {
		r.deliver(gomidi.NoteOff(r.channel, key))
		delete(r.notes, id)
	}
}

// Held is the number of sounding voices.
func (r *VoiceRuntime) Held() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notes)
}

func (r *VoiceRuntime) deliver(msg gomidi.Message) {
	if r.send == nil {
		return
	}
	if err := r.send(msg); err != nil {
		r.logger.Warn("midi send failed", "category", "midi", "msg", msg.String(), "err", err)
	}
}

// FrequencyToNote maps a frequency in Hz to the nearest MIDI key (A4 = 69).
// Non-positive frequencies map to A4.
func FrequencyToNote(hz float64) uint8 {
	if hz <= 0 || math.IsNaN(hz) || math.IsInf(hz, 0) {
		return 69
	}
	n := math.Round(69 + 12*math.Log2(hz/440))
	return uint8(min(max(n, 0), 127))
}

// AmplitudeToVelocity maps amplitude 0..1 to velocity 1..127.
func AmplitudeToVelocity(amp float64) uint8 {
	if math.IsNaN(amp) {
		return 1
	}
	v := math.Round(amp * 127)
	return uint8(min(max(v, 1), 127))
}
