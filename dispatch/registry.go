// Package dispatch correlates callback identifiers with the envelopes the
// bridge produces for them.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/MeteorsLiu/kvbridge/adapter"
	"github.com/alphadose/haxmap"
)

var (
	ErrNoResult  = fmt.Errorf("no result delivered for callback")
	ErrDuplicate = fmt.Errorf("callback id is already pending")
)

// Handler receives the envelope addressed to its callback id.
type Handler func(env adapter.Envelope)

type waiter struct {
	once sync.Once
	h    Handler
}

// fire reports whether this call ran the handler.
func (p *waiter) fire(env adapter.Envelope) (fired bool) {
	p.once.Do(func() {
		fired = true
		p.h(env)
	})
	return
}

// Registry holds one-shot handlers keyed by callback id.
type Registry struct {
	pending *haxmap.Map[string, *waiter]
}

func NewRegistry() *Registry {
	return &Registry{pending: haxmap.New[string, *waiter]()}
}

// Register installs h for id, replacing any handler still pending.
func (r *Registry) Register(id string, h Handler) {
	r.pending.Set(id, &waiter{h: h})
}

func (r *Registry) Cancel(id string) {
	r.pending.Del(id)
}

// Deliver runs and forgets the handler for id. It reports false when
// nobody was waiting, so every callback fires at most once.
func (r *Registry) Deliver(id string, env adapter.Envelope) bool {
	p, ok := r.pending.Get(id)
	if !ok {
		return false
	}
	r.pending.Del(id)
	return p.fire(env)
}

func (r *Registry) Len() int {
	return int(r.pending.Len())
}

// cancel removes id only while w is still the handler registered for it.
func (r *Registry) cancel(id string, w *waiter) {
	if cur, ok := r.pending.Get(id); ok && cur == w {
		r.pending.Del(id)
	}
}

// Await registers id, runs invoke and blocks until an envelope for id is
// delivered or ctx is done. An id that is already pending is rejected.
func (r *Registry) Await(ctx context.Context, id string, invoke func(id string)) (adapter.Envelope, error) {
	ch := make(chan adapter.Envelope, 1)
	w := &waiter{h: func(env adapter.Envelope) {
		ch <- env
	}}
	if _, loaded := r.pending.GetOrSet(id, w); loaded {
		return adapter.Envelope{}, fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	invoke(id)

	select {
	case env := <-ch:
		return env, nil
	case <-ctx.Done():
		r.cancel(id, w)
		return adapter.Envelope{}, fmt.Errorf("%w: %s: %v", ErrNoResult, id, ctx.Err())
	}
}
