package receiver

import (
	"context"
	"slices"
	"sync/atomic"
)

// State is the lifecycle state of a Receiver. States only move forward and
// StateTerminated is final.
type State int32

const (
	StateNotStarted State = iota
	StateStarting
	StateStarted
	StateTerminating
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NotStarted"
	case StateStarting:
		return "Starting"
	case StateStarted:
		return "Started"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

var transitions = map[State][]State{
	StateNotStarted:  {StateStarting, StateTerminating},
	StateStarting:    {StateStarted, StateTerminated},
	StateStarted:     {StateTerminating},
	StateTerminating: {StateTerminated},
}

func canTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// lifecycle holds the receiver state. A transition is a compare-and-swap, so
// whoever wins the swap owns the side effects that follow it.
type lifecycle struct {
	state    atomic.Int32
	onChange func(from, to State)
}

func (l *lifecycle) load() State {
	return State(l.state.Load())
}

// advance moves the state to `to` if the current state is one of `from` and
// the transition is legal. It returns the state observed before the attempt.
func (l *lifecycle) advance(to State, from ...State) (State, bool) {
	for {
		cur := l.load()
		if !slices.Contains(from, cur) || !canTransition(cur, to) {
			return cur, false
		}
		if l.state.CompareAndSwap(int32(cur), int32(to)) {
			if l.onChange != nil {
				l.onChange(cur, to)
			}
			return cur, true
		}
	}
}

func (r *Receiver) State() State { return r.lc.load() }

func (r *Receiver) IsRunning() bool { return r.lc.load() == StateStarted }

func (r *Receiver) IsTerminating() bool { return r.lc.load() == StateTerminating }

func (r *Receiver) IsTerminated() bool { return r.lc.load() == StateTerminated }

func (r *Receiver) stateChanged(from, to State) {
	r.logger.Info(r.ctx, "receiver state transition", "receiver", r.id, "from", from.String(), "to", to.String())
	if r.hooks.OnStateChange != nil {
		r.hooks.OnStateChange(context.Background(), r.id, from, to)
	}
}
