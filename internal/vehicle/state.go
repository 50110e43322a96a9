// Package vehicle holds the car's shared state and the drive command link.
package vehicle

import (
	"sync/atomic"
	"time"

	"github.com/dj-oyu/carcam/pkg/types"
)

// State is the process-wide position and auto-mode flag. Readers always
// see a complete position: fixes replace the snapshot, never mutate it.
type State struct {
	pos  atomic.Pointer[types.Position]
	auto atomic.Bool
}

// NewState starts at def until the first GPS fix.
func NewState(def types.Position) *State {
	s := &State{}
	s.pos.Store(&def)
	return s
}

func (s *State) Position() types.Position {
	return *s.pos.Load()
}

func (s *State) SetPosition(p types.Position) {
	s.pos.Store(&p)
}

func (s *State) AutoMode() bool {
	return s.auto.Load()
}

// ToggleAutoMode flips the flag and returns the new value.
func (s *State) ToggleAutoMode() bool {
	for {
		old := s.auto.Load()
		if s.auto.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// Telemetry snapshots the state for websocket subscribers.
func (s *State) Telemetry() types.Telemetry {
	p := s.Position()
	return types.Telemetry{
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		AutoMode:  s.AutoMode(),
		Timestamp: float64(time.Now().UnixMilli()) / 1000,
	}
}
