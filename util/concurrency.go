package util

import (
	"sync/atomic"
)

// WalkGate bounds how many directory reads a single directory walk
// (archive's recursive file collection) may have in flight at once, so a
// pathologically wide tree cannot issue an unbounded number of
// concurrent reads within one worker. It does not limit how many walker
// goroutines exist; each one waits for a slot before reading.
type WalkGate struct {
	inFlight atomic.Int32
	signals  chan struct{}
}

func NewWalkGate(capacity uint32) *WalkGate {
	g := &WalkGate{
		signals: make(chan struct{}, capacity),
	}
	for i := uint32(0); i < capacity; i++ {
		g.signals <- struct{}{}
	}
	return g
}

// InFlight reports how many walkers currently hold a slot. Diagnostic only.
func (g *WalkGate) InFlight() int32 {
	return g.inFlight.Load()
}

func (g *WalkGate) Acquire() {
	<-g.signals
	g.inFlight.Add(1)
}

func (g *WalkGate) Release() {
	g.inFlight.Add(-1)
	g.signals <- struct{}{}
}
