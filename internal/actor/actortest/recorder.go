// Package actortest holds doubles for exercising actors in tests.
package actortest

import (
	"context"
	"slices"
	"sync"

	"github.com/havencare/chatsync/internal/actor"
)

// Recorder is a Runtime that keeps every effect it is given. React, when
// set, may answer an effect with follow-up inputs.
type Recorder struct {
	React func(eff actor.Effect) []actor.Input

	mu      sync.Mutex
	effects []actor.Effect
	stops   int
}

var _ actor.Runtime = (*Recorder)(nil)

// HandleEffects implements actor.Runtime.
func (r *Recorder) HandleEffects(_ context.Context, effects []actor.Effect, emit func(actor.Input)) {
	r.mu.Lock()
	r.effects = append(r.effects, effects...)
	react := r.React
	r.mu.Unlock()

	if react == nil {
		return
	}
	for _, eff := range effects {
		for _, in := range react(eff) {
			emit(in)
		}
	}
}

// Stop implements actor.Runtime.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
}

// Effects returns the recorded effects in order.
func (r *Recorder) Effects() []actor.Effect {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.effects)
}

// Stops returns how often Stop was called.
func (r *Recorder) Stops() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stops
}
