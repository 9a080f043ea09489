// Package loop is the tick queue that drives every workflow coroutine.
package loop

import (
	"sort"
	"sync"
)

// Event selects one of the loop queues.
type Event int

const (
	OnSignal Event = iota
	OnQuery
	OnTick
)

func (e Event) String() string {
	switch e {
	case OnSignal:
		return "signal"
	case OnQuery:
		return "query"
	case OnTick:
		return "tick"
	}
	return "unknown"
}

var order = []Event{OnSignal, OnQuery, OnTick}

// Loop runs one-shot callbacks in rounds: signals first, then queries, then
// ticks, each in FIFO order. Callbacks registered while a round runs wait for
// the next round.
type Loop struct {
	mu        sync.Mutex
	queues    map[Event][]func()
	observers map[int]func()
	nextObs   int
	rounds    uint64
}

func New() *Loop {
	return &Loop{
		queues:    make(map[Event][]func(), len(order)),
		observers: make(map[int]func()),
	}
}

// Once queues fn on event.
func (l *Loop) Once(event Event, fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.queues[event] = append(l.queues[event], fn)
	l.mu.Unlock()
}

// Observe registers fn to run after every non empty round. The returned
// function removes it.
func (l *Loop) Observe(fn func()) func() {
	l.mu.Lock()
	id := l.nextObs
	l.nextObs++
	l.observers[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.observers, id)
		l.mu.Unlock()
	}
}

// Pending reports whether any callback is queued.
func (l *Loop) Pending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, q := range l.queues {
		if len(q) > 0 {
			return true
		}
	}
	return false
}

// Tick runs one round and reports whether anything ran.
func (l *Loop) Tick() bool {
	l.mu.Lock()
	batches := make([][]func(), 0, len(order))
	ran := false
	for _, event := range order {
		q := l.queues[event]
		if len(q) > 0 {
			ran = true
		}
		batches = append(batches, q)
		l.queues[event] = nil
	}
	if ran {
		l.rounds++
	}
	l.mu.Unlock()

	for _, batch := range batches {
		for _, fn := range batch {
			fn()
		}
	}

	if ran {
		l.notify()
	}
	return ran
}

// Run ticks until every queue is empty.
func (l *Loop) Run() {
	for l.Tick() {
	}
}

// Rounds counts the non empty rounds executed so far.
func (l *Loop) Rounds() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rounds
}

func (l *Loop) notify() {
	l.mu.Lock()
	ids := make([]int, 0, len(l.observers))
	for id := range l.observers {
		ids = append(ids, id)
	}
	l.mu.Unlock()

	sort.Ints(ids)
	for _, id := range ids {
		l.mu.Lock()
		fn, ok := l.observers[id]
		l.mu.Unlock()
		if ok {
			fn()
		}
	}
}
