package declaration

import (
	"sync"
)

// Instance is the per run handler table, seeded from a prototype and
// extended by handlers registered while the workflow runs.
type Instance struct {
	prototype *WorkflowPrototype
	mu        sync.RWMutex
	signals   map[string]*Handler
	queries   map[string]*Handler
}

func NewInstance(p *WorkflowPrototype) *Instance {
	in := &Instance{
		prototype: p,
		signals:   make(map[string]*Handler, len(p.signals)),
		queries:   make(map[string]*Handler, len(p.queries)),
	}
	for k, h := range p.signals {
		in.signals[k] = h
	}
	for k, h := range p.queries {
		in.queries[k] = h
	}
	return in
}

func (in *Instance) Prototype() *WorkflowPrototype { return in.prototype }

// AddSignalHandler registers or replaces a signal handler.
func (in *Instance) AddSignalHandler(h *Handler) {
	in.mu.Lock()
	in.signals[h.Name()] = h
	in.mu.Unlock()
}

// AddQueryHandler registers or replaces a query handler.
func (in *Instance) AddQueryHandler(h *Handler) {
	in.mu.Lock()
	in.queries[h.Name()] = h
	in.mu.Unlock()
}

func (in *Instance) SignalHandler(name string) (*Handler, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	h, ok := in.signals[name]
	return h, ok
}

func (in *Instance) QueryHandler(name string) (*Handler, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	h, ok := in.queries[name]
	return h, ok
}

func (in *Instance) SignalNames() []string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return sortedKeys(in.signals)
}

func (in *Instance) QueryNames() []string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return sortedKeys(in.queries)
}
