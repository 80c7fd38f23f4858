// Package opstate tracks the open/close lifecycle of a port or client.
package opstate

import "sync/atomic"

// State is a lifecycle state.
type State uint32

const (
	Closed State = iota
	Closing
	Opening
	Opened
)

func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Closing:
		return "Closing"
	case Opening:
		return "Opening"
	case Opened:
		return "Opened"
	default:
		return "Unknown"
	}
}

// Atomic is a State that can be transitioned concurrently with CAS semantics.
// The zero value is Closed.
type Atomic struct {
	state atomic.Uint32
}

func (st *Atomic) String() string {
	return st.Get().String()
}

// Get returns the current state.
func (st *Atomic) Get() State {
	return State(st.state.Load())
}

// Set forces the state.
func (st *Atomic) Set(s State) {
	st.state.Store(uint32(s))
}

func (st *Atomic) IsClosed() bool { return st.Get() == Closed }

func (st *Atomic) IsOpened() bool { return st.Get() == Opened }

// ToOpening moves Closed -> Opening. It fails if the state is anything else,
// so only one caller can win an open race.
func (st *Atomic) ToOpening() bool {
	return st.state.CompareAndSwap(uint32(Closed), uint32(Opening))
}

// ToOpened moves Opening -> Opened.
func (st *Atomic) ToOpened() bool {
	return st.state.CompareAndSwap(uint32(Opening), uint32(Opened))
}

// ToClosing moves Opened or Opening -> Closing.
func (st *Atomic) ToClosing() bool {
	if st.state.CompareAndSwap(uint32(Opened), uint32(Closing)) {
		return true
	}

	return st.state.CompareAndSwap(uint32(Opening), uint32(Closing))
}

// ToClosed moves Closing -> Closed. It succeeds trivially when already closed.
func (st *Atomic) ToClosed() bool {
	if st.IsClosed() {
		return true
	}

	return st.state.CompareAndSwap(uint32(Closing), uint32(Closed))
}
