package router

import (
	"context"
	"fmt"

	command "github.com/goliatone/go-command-worker"
	"github.com/goliatone/go-command-worker/promise"
)

// Route answers one inbound request command. A route settles d, possibly
// later than Handle returns. A returned error rejects d when still pending.
type Route interface {
	Name() string
	Handle(ctx context.Context, req *command.Request, headers map[string]any, d *promise.Deferred) error
}

// RouteFunc adapts a function into a Route.
type RouteFunc struct {
	Command string
	Fn      func(ctx context.Context, req *command.Request, headers map[string]any, d *promise.Deferred) error
}

func (r RouteFunc) Name() string { return r.Command }

func (r RouteFunc) Handle(ctx context.Context, req *command.Request, headers map[string]any, d *promise.Deferred) error {
	return r.Fn(ctx, req, headers, d)
}

type Router struct {
	mux          *Mux
	muxOpts      []Option
	logger       command.Logger
	recoverPanic func(funcName string, dst *error, fields ...map[string]any)
}

func New(opts ...RouterOption) *Router {
	r := &Router{logger: command.NopLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.mux = NewMux(r.muxOpts...)
	r.recoverPanic = command.MakePanicHandler(command.LoggerPanicLogger(r.logger))
	return r
}

// Register adds routes under their own names.
func (r *Router) Register(routes ...Route) []Subscription {
	subs := make([]Subscription, 0, len(routes))
	for _, route := range routes {
		subs = append(subs, r.mux.Add(route.Name(), route))
	}
	return subs
}

func (r *Router) Has(name string) bool {
	_, ok := r.mux.Route(name)
	return ok
}

func (r *Router) Names() []string { return r.mux.Names() }

// Dispatch hands req to its route. The returned future settles with the
// route's answer.
func (r *Router) Dispatch(ctx context.Context, req *command.Request, headers map[string]any) promise.Future {
	if err := req.Validate(); err != nil {
		return promise.RejectedWith(err)
	}

	route, ok := r.mux.Route(req.Name())
	if !ok {
		return promise.RejectedWith(command.CloneError(command.ErrRouteNotFound,
			fmt.Sprintf("Unknown request command %q", req.Name()), nil,
			map[string]any{"command": req.Name()}))
	}

	d := promise.NewDeferred(nil)
	if err := r.handle(ctx, route, req, headers, d); err != nil {
		r.logger.Debug("route %s rejected request %d: %v", req.Name(), req.ID(), err)
		d.TrySettle(promise.Fail(err))
	}
	return d
}

func (r *Router) handle(ctx context.Context, route Route, req *command.Request, headers map[string]any, d *promise.Deferred) (err error) {
	defer r.recoverPanic(route.Name(), &err, map[string]any{"request_id": req.ID()})
	return route.Handle(ctx, req, headers, d)
}
