package declaration

import (
	"sort"
)

// WorkflowDefinition declares a workflow type.
type WorkflowDefinition struct {
	// Name defaults to the function name.
	Name    string
	Func    any
	Signals map[string]any
	Queries map[string]any
}

// ActivityDefinition declares a single activity.
type ActivityDefinition struct {
	Name string
	Func any
}

// WorkflowPrototype is the immutable declaration of a workflow type.
type WorkflowPrototype struct {
	name    string
	handler *Handler
	signals map[string]*Handler
	queries map[string]*Handler
}

func (p *WorkflowPrototype) Name() string { return p.name }

func (p *WorkflowPrototype) Handler() *Handler { return p.handler }

// SignalNames returns the statically declared signals, sorted.
func (p *WorkflowPrototype) SignalNames() []string { return sortedKeys(p.signals) }

// QueryNames returns the statically declared queries, sorted.
func (p *WorkflowPrototype) QueryNames() []string { return sortedKeys(p.queries) }

// ActivityPrototype is the immutable declaration of an activity.
type ActivityPrototype struct {
	name    string
	handler *Handler
}

func (p *ActivityPrototype) Name() string { return p.name }

func (p *ActivityPrototype) Handler() *Handler { return p.handler }

func sortedKeys(m map[string]*Handler) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
