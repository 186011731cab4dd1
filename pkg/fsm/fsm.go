// Package fsm defines the one-method contract shared by pure state machines: given a state and a
// transition, produce the next state.
package fsm

// Transitioner computes the state that follows S when T is applied. Implementations must be pure.
type Transitioner[S, T any] interface {
	NextState(state S, transition T) S
}

// TransitionFunc adapts an ordinary function to Transitioner.
type TransitionFunc[S, T any] func(S, T) S

// NextState calls f.
func (f TransitionFunc[S, T]) NextState(state S, transition T) S {
	return f(state, transition)
}

// Replay folds transitions through m starting at start and returns the final state.
func Replay[S, T any](m Transitioner[S, T], start S, transitions ...T) S {
	state := start
	for _, t := range transitions {
		state = m.NextState(state, t)
	}
	return state
}

// Trace is like Replay but also returns every intermediate state, start included.
func Trace[S, T any](m Transitioner[S, T], start S, transitions ...T) []S {
	states := make([]S, 0, len(transitions)+1)
	states = append(states, start)

	state := start
	for _, t := range transitions {
		state = m.NextState(state, t)
		states = append(states, state)
	}
	return states
}
