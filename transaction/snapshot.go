// Package transaction wraps multi-store edits in snapshot-backed
// transactions: capture every registered store, run the work, and either
// keep the result or overwrite the stores with the captured state.
package transaction

import (
	"bytes"
	"encoding/hex"
	"sort"
	"time"

	"github.com/zeebo/blake3"
)

// Store is the serializable store contract. RestoreState is a total
// overwrite: RestoreState(MarshalState()) must reproduce the observable
// state exactly, including dropping anything added since.
type Store interface {
	StoreName() string
	MarshalState() ([]byte, error)
	RestoreState(data []byte) error
}

// Snapshot is a full serialized copy of every registered store.
type Snapshot struct {
	States     map[string][]byte `json:"states"`
	CapturedAt time.Time         `json:"capturedAt"`
}

func (s *Snapshot) names() []string {
	names := make([]string, 0, len(s.States))
	for name := range s.States {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Digest is a blake3 hash over the store names and states in name order.
// Two snapshots with equal digests captured the same content.
func (s *Snapshot) Digest() string {
	h := blake3.New()
	for _, name := range s.names() {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write(s.States[name])
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Equal reports whether both snapshots hold byte-identical store states.
// Capture time is ignored.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if s == nil || other == nil {
		return s == other
	}
	if len(s.States) != len(other.States) {
		return false
	}
	for name, state := range s.States {
		o, ok := other.States[name]
		if !ok || !bytes.Equal(state, o) {
			return false
		}
	}
	return true
}

// State returns the serialized state captured for one store.
func (s *Snapshot) State(name string) ([]byte, bool) {
	b, ok := s.States[name]
	return b, ok
}
