package declaration

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

var contextType = reflect.TypeOf((*context.Context)(nil)).Elem()

// Reader builds prototypes. Workflow handlers receive a context of
// workflowCtx type, activity handlers a context.Context.
type Reader struct {
	workflowCtx reflect.Type
}

func NewReader(workflowCtx reflect.Type) *Reader {
	return &Reader{workflowCtx: workflowCtx}
}

// WorkflowContextType is the context type bound to workflow and signal
// handlers.
func (r *Reader) WorkflowContextType() reflect.Type { return r.workflowCtx }

func (r *Reader) Workflow(def WorkflowDefinition) (*WorkflowPrototype, error) {
	name := strings.TrimSpace(def.Name)
	if name == "" {
		name = FuncName(def.Func)
	}
	if name == "" {
		return nil, invalid("workflow", "name is required")
	}

	handler, err := NewHandler(name, def.Func, r.workflowCtx)
	if err != nil {
		return nil, err
	}
	if !handler.WithContext() {
		return nil, invalid(name, "workflow handler must take the workflow context as first parameter")
	}

	p := &WorkflowPrototype{
		name:    name,
		handler: handler,
		signals: make(map[string]*Handler, len(def.Signals)),
		queries: make(map[string]*Handler, len(def.Queries)),
	}
	for signal, fn := range def.Signals {
		h, err := NewHandler(signal, fn, r.workflowCtx)
		if err != nil {
			return nil, err
		}
		p.signals[signal] = h
	}
	for query, fn := range def.Queries {
		h, err := NewHandler(query, fn, nil)
		if err != nil {
			return nil, err
		}
		if !h.hasValue {
			return nil, invalid(query, "query handlers must return a value")
		}
		p.queries[query] = h
	}
	return p, nil
}

func (r *Reader) Activity(def ActivityDefinition) (*ActivityPrototype, error) {
	name := strings.TrimSpace(def.Name)
	if name == "" {
		name = FuncName(def.Func)
	}
	if name == "" {
		return nil, invalid("activity", "name is required")
	}
	handler, err := NewHandler(name, def.Func, contextType)
	if err != nil {
		return nil, err
	}
	return &ActivityPrototype{name: name, handler: handler}, nil
}

// Activities reads every exported method of obj taking a context.Context as
// first parameter. Other methods are skipped.
func (r *Reader) Activities(obj any, prefix string) ([]*ActivityPrototype, error) {
	if obj == nil {
		return nil, invalid("activity", "activity object is nil")
	}
	v := reflect.ValueOf(obj)
	t := v.Type()

	var out []*ActivityPrototype
	for i := 0; i < t.NumMethod(); i++ {
		method := t.Method(i)
		if !method.IsExported() {
			continue
		}
		mt := method.Type
		// receiver is In(0)
		if mt.NumIn() < 2 || mt.In(1) != contextType {
			continue
		}
		p, err := r.Activity(ActivityDefinition{
			Name: prefix + method.Name,
			Func: v.Method(i).Interface(),
		})
		if err != nil {
			return nil, fmt.Errorf("read activity %s.%s: %w", t, method.Name, err)
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, invalid(t.String(), "no activity methods found")
	}
	return out, nil
}
