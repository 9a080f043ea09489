// Package router maps inbound request commands onto the routes handling
// them.
package router

import (
	"sort"
	"sync"
)

type Subscription interface {
	Unsubscribe()
}

// Mux keeps the routes registered per command name. The most recent
// registration for a name wins; unsubscribing it uncovers the previous one.
type Mux struct {
	mu         sync.RWMutex
	sorted     []string
	handlers   map[string][]*Entry
	routeMatch func(pattern, name string) bool
	nextID     int
}

type Entry struct {
	mux     *Mux
	id      int
	pattern string
	Route   Route
}

func (e *Entry) Unsubscribe() {
	m := e.mux
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.handlers[e.pattern]
	kept := make([]*Entry, 0, len(old))
	for _, x := range old {
		if x.id != e.id {
			kept = append(kept, x)
		}
	}
	if len(kept) == 0 {
		delete(m.handlers, e.pattern)
		m.resort()
		return
	}
	m.handlers[e.pattern] = kept
}

func NewMux(opts ...Option) *Mux {
	m := &Mux{
		handlers:   make(map[string][]*Entry),
		routeMatch: func(pattern, name string) bool { return pattern == name },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

func (m *Mux) Add(pattern string, route Route) *Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	e := &Entry{
		mux:     m,
		id:      m.nextID,
		pattern: pattern,
		Route:   route,
	}

	m.handlers[pattern] = append(m.handlers[pattern], e)
	m.resort()
	return e
}

// Get returns every entry registered for name, oldest first.
func (m *Mux) Get(name string) []*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.match(name)
}

// Route returns the active route for name.
func (m *Mux) Route(name string) (Route, bool) {
	entries := m.Get(name)
	if len(entries) == 0 {
		return nil, false
	}
	return entries[len(entries)-1].Route, true
}

// Names lists the registered patterns, sorted.
func (m *Mux) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.sorted...)
}

func (m *Mux) match(name string) []*Entry {
	if o, ok := m.handlers[name]; ok {
		return o
	}

	for _, p := range m.sorted {
		if m.routeMatch(p, name) {
			return m.handlers[p]
		}
	}

	return nil
}

func (m *Mux) resort() {
	keys := make([]string, 0, len(m.handlers))
	for k := range m.handlers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	m.sorted = keys
}
