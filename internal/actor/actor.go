// Package actor runs a reducer over a single owned state value.
//
// One goroutine drains a mailbox of inputs. For each input a pure reducer
// returns the next state plus declarative effects; the new state is published
// first, then the effects are handed to a Runtime which may feed follow-up
// inputs back through emit. Readers see published states only, so reducers
// must treat state as copy-on-write.
package actor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrStopped is returned when delivering to a stopped actor.
var ErrStopped = errors.New("actor stopped")

// DefaultMailboxSize is the mailbox capacity used unless WithMailboxSize is
// given.
const DefaultMailboxSize = 256

// Input is a command or event delivered to the mailbox. Embed InputBase to
// implement it.
type Input interface {
	input()
}

// Effect is a side effect requested by the reducer. Embed EffectBase to
// implement it.
type Effect interface {
	effect()
}

// InputBase marks a struct as an Input.
type InputBase struct{}

func (InputBase) input() {}

// EffectBase marks a struct as an Effect.
type EffectBase struct{}

func (EffectBase) effect() {}

// ReducerFunc computes the next state. It must not perform I/O, read the
// clock or start goroutines; timestamps and ids arrive inside inputs.
type ReducerFunc[S any] func(state S, in Input) (S, []Effect)

// Runtime executes effects on behalf of the actor.
type Runtime interface {
	// HandleEffects runs on the loop goroutine after the state produced with
	// effects has been published. Slow work must be started asynchronously
	// and report back through emit. ctx is cancelled when the actor stops.
	HandleEffects(ctx context.Context, effects []Effect, emit func(Input))
	// Stop cancels background work. It may be called more than once.
	Stop()
}

// Hooks observe the loop.
type Hooks[S any] struct {
	// OnPanic receives the input being processed and the value of a
	// recovered reducer or runtime panic; the loop then moves on to the next
	// input. A panicking reducer leaves the state unchanged. Without OnPanic
	// the panic crashes the process.
	OnPanic func(in Input, recovered any)
	// OnStep is called after every reduced input.
	OnStep func(in Input, effects int)
}

// Option configures an Actor.
type Option[S any] func(*Actor[S])

// WithHooks installs loop hooks.
func WithHooks[S any](hooks Hooks[S]) Option[S] {
	return func(a *Actor[S]) { a.hooks = hooks }
}

// WithMailboxSize overrides DefaultMailboxSize. Non-positive sizes are
// ignored.
func WithMailboxSize[S any](n int) Option[S] {
	return func(a *Actor[S]) {
		if n > 0 {
			a.mailbox = make(chan Input, n)
		}
	}
}

// Actor owns a state value of type S.
type Actor[S any] struct {
	reduce  ReducerFunc[S]
	runtime Runtime
	hooks   Hooks[S]

	state   atomic.Pointer[S]
	mailbox chan Input

	ctx     context.Context
	stop    context.CancelFunc
	done    chan struct{}
	started sync.Once
}

// New returns a stopped actor holding initial. Call Start to run it.
func New[S any](initial S, reduce ReducerFunc[S], runtime Runtime, opts ...Option[S]) *Actor[S] {
	ctx, stop := context.WithCancel(context.Background())
	a := &Actor[S]{
		reduce:  reduce,
		runtime: runtime,
		mailbox: make(chan Input, DefaultMailboxSize),
		ctx:     ctx,
		stop:    stop,
		done:    make(chan struct{}),
	}
	a.state.Store(&initial)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start runs the loop. Later calls do nothing.
func (a *Actor[S]) Start() {
	a.started.Do(func() { go a.run() })
}

// Stop ends the loop and the runtime. Inputs still queued are discarded.
func (a *Actor[S]) Stop() {
	a.stop()
	if a.runtime != nil {
		a.runtime.Stop()
	}
}

// Done is closed once the loop has exited.
func (a *Actor[S]) Done() <-chan struct{} { return a.done }

// State returns the last published state.
func (a *Actor[S]) State() S {
	return *a.state.Load()
}

// Enqueue delivers in without blocking. It reports false when the actor is
// stopped or the mailbox is full.
func (a *Actor[S]) Enqueue(in Input) bool {
	if in == nil || a.ctx.Err() != nil {
		return false
	}
	select {
	case a.mailbox <- in:
		return true
	default:
		return false
	}
}

// Send delivers in, waiting for mailbox space. Calling it from the loop
// goroutine can deadlock; runtimes use emit instead.
func (a *Actor[S]) Send(ctx context.Context, in Input) error {
	if in == nil {
		return nil
	}
	if a.ctx.Err() != nil {
		return ErrStopped
	}
	select {
	case a.mailbox <- in:
		return nil
	case <-a.ctx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// emit is handed to the runtime. Follow-up inputs are never dropped: when the
// mailbox is full they are delivered from a helper goroutine and may land
// behind inputs sent later.
func (a *Actor[S]) emit(in Input) {
	if in == nil {
		return
	}
	select {
	case a.mailbox <- in:
	default:
		go func() { _ = a.Send(context.Background(), in) }()
	}
}

func (a *Actor[S]) run() {
	defer close(a.done)
	for {
		select {
		case <-a.ctx.Done():
			return
		case in := <-a.mailbox:
			a.process(in)
		}
	}
}

func (a *Actor[S]) process(in Input) {
	if a.hooks.OnPanic != nil {
		defer func() {
			if r := recover(); r != nil {
				a.hooks.OnPanic(in, r)
			}
		}()
	}

	next, effects := a.reduce(a.State(), in)
	a.state.Store(&next)

	if len(effects) > 0 && a.runtime != nil {
		a.runtime.HandleEffects(a.ctx, effects, a.emit)
	}
	if a.hooks.OnStep != nil {
		a.hooks.OnStep(in, len(effects))
	}
}
