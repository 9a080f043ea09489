// Package declaration reads workflow and activity definitions once at
// startup and binds their handlers.
package declaration

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"

	command "github.com/goliatone/go-command-worker"
	"github.com/goliatone/go-command-worker/converter"
)

var (
	errorType  = reflect.TypeOf((*error)(nil)).Elem()
	valuesType = reflect.TypeOf((*converter.Values)(nil)).Elem()
)

// Handler is a function bound once with reflection. Arguments are decoded
// from encoded values into the declared parameter types.
type Handler struct {
	name        string
	fn          reflect.Value
	withContext bool
	rawValues   bool
	params      []reflect.Type
	hasValue    bool
	hasError    bool
}

// NewHandler binds fn. When ctxType is not nil and assignable to the first
// parameter, that parameter receives the invocation context. A single
// converter.Values parameter receives the raw values.
func NewHandler(name string, fn any, ctxType reflect.Type) (*Handler, error) {
	if fn == nil {
		return nil, invalid(name, "handler is nil")
	}
	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func {
		return nil, invalid(name, fmt.Sprintf("handler must be a function, got %s", t))
	}
	if t.IsVariadic() {
		return nil, invalid(name, "variadic handlers are not supported")
	}

	h := &Handler{name: name, fn: v}

	start := 0
	if t.NumIn() > 0 && ctxType != nil && ctxType.AssignableTo(t.In(0)) && t.In(0).Kind() == reflect.Interface {
		h.withContext = true
		start = 1
	}
	for i := start; i < t.NumIn(); i++ {
		h.params = append(h.params, t.In(i))
	}
	if len(h.params) == 1 && h.params[0] == valuesType {
		h.rawValues = true
	}

	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errorType {
			h.hasError = true
		} else {
			h.hasValue = true
		}
	case 2:
		if t.Out(1) != errorType {
			return nil, invalid(name, "second return value must be an error")
		}
		h.hasValue = true
		h.hasError = true
	default:
		return nil, invalid(name, "handlers return at most a value and an error")
	}
	return h, nil
}

func (h *Handler) Name() string { return h.name }

// WithContext reports whether the first parameter takes the invocation
// context.
func (h *Handler) WithContext() bool { return h.withContext }

// ParamTypes returns the decoded parameter types.
func (h *Handler) ParamTypes() []reflect.Type {
	out := make([]reflect.Type, len(h.params))
	copy(out, h.params)
	return out
}

// Invoke decodes args and calls the handler. Missing arguments are passed as
// zero values.
func (h *Handler) Invoke(ctx any, args converter.Values) (any, error) {
	in := make([]reflect.Value, 0, len(h.params)+1)
	if h.withContext {
		ctxType := h.fn.Type().In(0)
		if ctx == nil {
			in = append(in, reflect.Zero(ctxType))
		} else {
			in = append(in, reflect.ValueOf(ctx))
		}
	}

	if h.rawValues {
		if args == nil {
			args = converter.Empty()
		}
		in = append(in, reflect.ValueOf(&args).Elem())
	} else {
		for i, t := range h.params {
			ptr := reflect.New(t)
			if args != nil && i < args.Len() {
				if err := args.Get(i, ptr.Interface()); err != nil {
					return nil, command.CloneError(converter.ErrConversion,
						fmt.Sprintf("decode argument %d of %s", i, h.name), err, nil)
				}
			}
			in = append(in, ptr.Elem())
		}
	}

	out := h.fn.Call(in)

	var value any
	var err error
	switch {
	case h.hasValue && h.hasError:
		value = out[0].Interface()
		err, _ = out[1].Interface().(error)
	case h.hasValue:
		value = out[0].Interface()
	case h.hasError:
		err, _ = out[0].Interface().(error)
	}
	return value, err
}

// FuncName derives a short name from a function value.
func FuncName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return ""
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return ""
	}
	name := f.Name()
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, "-fm")
}

func invalid(name, reason string) error {
	return command.CloneError(command.ErrInvalidDefinition,
		fmt.Sprintf("%s: %s", name, reason), nil, map[string]any{"name": name})
}
