package gateway

import "sync/atomic"

// State is the lifecycle state shared by Server and SessionManager.
type State int32

const (
	StateReady State = iota
	StateStart
	StateShuttingDown
	StateStop
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "Ready"
	case StateStart:
		return "Start"
	case StateShuttingDown:
		return "ShuttingDown"
	case StateStop:
		return "Stop"
	default:
		return "Unknown"
	}
}

// atomicState is an atomic.Int32-backed state variable. Reads are
// lock-free; writes are expected to happen under the owner's mutex so
// transitions remain ordered, matching the teacher's volatile-field +
// lock-guarded-transition pattern.
type atomicState struct {
	v atomic.Int32
}

func (a *atomicState) load() State {
	return State(a.v.Load())
}

func (a *atomicState) store(s State) {
	a.v.Store(int32(s))
}

// compareAndSwap performs the transition iff the current value equals old.
func (a *atomicState) compareAndSwap(old, new State) bool {
	return a.v.CompareAndSwap(int32(old), int32(new))
}
