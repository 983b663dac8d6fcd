package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/havencare/chatsync/internal/actor"
	"github.com/havencare/chatsync/internal/metrics"
	"github.com/havencare/chatsync/internal/protocol/wire"
	"github.com/havencare/chatsync/pkg/logger"
)

// CommandSender emits commands on the realtime transport. It must return an
// error instead of queueing when the transport is not connected.
type CommandSender interface {
	Send(command wire.EventName, payload any) error
}

// HistorySource fetches a room's backlog in server order.
type HistorySource interface {
	LoadBacklog(ctx context.Context, roomID string) ([]wire.Message, error)
}

// Runtime interprets chat effects.
//
// Runtime never mutates State; results of asynchronous work are emitted back
// into the actor mailbox.
type Runtime struct {
	sender   CommandSender
	history  HistorySource
	clock    actor.Clock
	reporter func(Report)
	onUpdate func(Update)
	metrics  *metrics.Metrics

	mu     sync.Mutex
	timers map[string]armedTimer
}

type armedTimer struct {
	gen   uint64
	timer actor.Timer
}

// NewRuntime returns a Runtime. history, reporter and onUpdate may be nil.
func NewRuntime(sender CommandSender, history HistorySource, clock actor.Clock, reporter func(Report), onUpdate func(Update), m *metrics.Metrics) *Runtime {
	if clock == nil {
		clock = actor.RealClock{}
	}
	return &Runtime{
		sender:   sender,
		history:  history,
		clock:    clock,
		reporter: reporter,
		onUpdate: onUpdate,
		metrics:  m,
		timers:   make(map[string]armedTimer),
	}
}

// HandleEffects implements actor.Runtime.
func (r *Runtime) HandleEffects(ctx context.Context, effects []actor.Effect, emit func(actor.Input)) {
	for _, eff := range effects {
		select {
		case <-ctx.Done():
			return
		default:
		}

		switch e := eff.(type) {
		case effEmit:
			r.emitCommand(e, emit)
		case effLoadHistory:
			r.loadHistory(ctx, e, emit)
		case effStartTimer:
			r.startTimer(ctx, e, emit)
		case effCancelTimer:
			r.cancelTimer(e)
		case effReport:
			r.report(e.Report)
		case effReconciled:
			logger.Debugf("Reconciled %s -> %s in room %s", e.TempID, e.MessageID, e.RoomID)
			r.metrics.MessageReconciled()
		case effNotify:
			if r.onUpdate != nil {
				r.onUpdate(e.Update)
			}
		case effReply:
			e.deliver()
		default:
			// Unknown effect: ignore.
		}
	}
}

// Stop implements actor.Runtime.
func (r *Runtime) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, t := range r.timers {
		t.timer.Stop()
		delete(r.timers, name)
	}
}

func (r *Runtime) emitCommand(eff effEmit, emit func(actor.Input)) {
	if err := r.sender.Send(eff.Command, eff.Payload); err != nil {
		r.metrics.CommandSkipped(string(eff.Command))
		r.report(Report{
			Kind:    KindCommandSkipped,
			Command: eff.Command,
			RoomID:  eff.RoomID,
			Err:     fmt.Errorf("%w: %v", ErrSkipped, err),
		})
		emit(evCommandSkipped{Command: eff.Command, RoomID: eff.RoomID, TempID: eff.TempID})
		return
	}
	r.metrics.CommandSent(string(eff.Command))
}

// loadHistory fetches the backlog in the background so the loop stays
// responsive while the request is in flight.
func (r *Runtime) loadHistory(ctx context.Context, eff effLoadHistory, emit func(actor.Input)) {
	if r.history == nil {
		return
	}
	go func() {
		start := r.clock.Now()
		msgs, err := r.history.LoadBacklog(ctx, eff.RoomID)
		r.metrics.ObserveHistoryLoad(r.clock.Now().Sub(start), err)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			emit(evHistoryFailed{RoomID: eff.RoomID, Err: err})
			return
		}
		emit(evHistoryLoaded{RoomID: eff.RoomID, Messages: msgs})
	}()
}

// startTimer schedules a single named timer and emits evTimerFired when it
// fires. Starting a name that is already armed replaces it.
func (r *Runtime) startTimer(ctx context.Context, eff effStartTimer, emit func(actor.Input)) {
	if eff.Name == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.timers[eff.Name]; ok {
		prev.timer.Stop()
	}
	name, gen := eff.Name, eff.Gen
	t := r.clock.AfterFunc(eff.After, func() {
		r.mu.Lock()
		if cur, ok := r.timers[name]; ok && cur.gen == gen {
			delete(r.timers, name)
		}
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		default:
		}
		emit(evTimerFired{Name: name, Gen: gen})
	})
	r.timers[eff.Name] = armedTimer{gen: gen, timer: t}
}

// cancelTimer cancels a previously started named timer.
func (r *Runtime) cancelTimer(eff effCancelTimer) {
	if eff.Name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[eff.Name]; ok {
		t.timer.Stop()
	}
	delete(r.timers, eff.Name)
}

// pendingTimers returns the number of armed timers.
func (r *Runtime) pendingTimers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

func (r *Runtime) report(rep Report) {
	r.metrics.Reported(string(rep.Kind))
	switch rep.Kind {
	case KindTransportError, KindHistoryLoadError:
		logger.Warnf("%v", rep)
	default:
		logger.Debugf("%v", rep)
	}
	if r.reporter != nil {
		r.reporter(rep)
	}
}
