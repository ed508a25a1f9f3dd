package sequencer

import "sort"

// FrameID identifies a requested frame callback. Zero is never issued.
type FrameID uint64

// FramePump is the host's "call me back next frame" service.
type FramePump interface {
	RequestFrame(fn func()) FrameID
	CancelFrame(id FrameID)
}

// ManualPump is a FramePump stepped explicitly, one frame per Step. Tests
// and the headless player drive the transport with it.
type ManualPump struct {
	next    FrameID
	pending map[FrameID]func()
}

// NewManualPump returns an idle pump.
func NewManualPump() *ManualPump {
	return &ManualPump{pending: make(map[FrameID]func())}
}

func (p *ManualPump) RequestFrame(fn func()) FrameID {
	p.next++
	p.pending[p.next] = fn
	return p.next
}

func (p *ManualPump) CancelFrame(id FrameID) {
	delete(p.pending, id)
}

// Pending is the number of callbacks waiting for the next frame.
func (p *ManualPump) Pending() int { return len(p.pending) }

// Step runs the callbacks requested before the call, in request order.
// Callbacks requested while stepping wait for the next Step. It returns
// how many ran.
func (p *ManualPump) Step() int {
	ids := make([]FrameID, 0, len(p.pending))
	for id := range p.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	ran := 0
	for _, id := range ids {
		fn, ok := p.pending[id]
		if !ok {
			continue
		}
		delete(p.pending, id)
		fn()
		ran++
	}
	return ran
}
