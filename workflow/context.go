// Package workflow runs workflow code on a single threaded cooperative
// scheduler and exposes the deterministic API workflow code is written
// against.
package workflow

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"time"

	command "github.com/goliatone/go-command-worker"
	"github.com/goliatone/go-command-worker/converter"
	"github.com/goliatone/go-command-worker/declaration"
	"github.com/goliatone/go-command-worker/failure"
	"github.com/goliatone/go-command-worker/promise"
	"github.com/goliatone/go-command-worker/transport"
)

// Context is the API available to workflow code. Every operation is replay
// safe: time and replay state come from the orchestrator, effects go out as
// requests.
type Context interface {
	Now() time.Time
	TimeZone() *time.Location
	IsReplaying() bool
	Info() *Info
	Input() converter.Values
	RunID() string
	Logger() command.Logger
	DataConverter() converter.DataConverter
	GetTrace() string

	Client() transport.Client
	Request(req *command.Request) promise.Future

	// Await suspends until v settles. Futures are awaited, requests are sent
	// then awaited, nested workflow functions run inline and any other value
	// is returned as is.
	Await(v any) (any, error)
	AwaitOutcome(v any) promise.Outcome
	AwaitCondition(cond func() bool) error

	SideEffect(fn func() (any, error)) promise.Future
	GetVersion(changeID string, minSupported, maxSupported int) promise.Future
	Timer(d time.Duration) promise.Future

	ExecuteActivity(name string, opts ActivityOptions, args ...any) promise.Future
	NewActivityStub(opts ActivityOptions) *ActivityStub
	ExecuteChildWorkflow(name string, opts ChildWorkflowOptions, args ...any) promise.Future
	NewChildWorkflowStub(name string, opts ChildWorkflowOptions) *ChildWorkflowStub
	NewExternalWorkflowStub(workflowID, runID string) *ExternalWorkflowStub

	NewCancellationScope(fn Func) *Scope
	NewDetachedCancellationScope(fn Func) *Scope
	Go(fn Func) *Scope

	Complete(result any, err error) promise.Future
	ContinueAsNew(name string, opts ContinueAsNewOptions, args ...any) promise.Future

	RegisterSignal(name string, fn any) error
	RegisterQuery(name string, fn any) error
}

// ContextType is used by the declaration reader to detect the context
// parameter of workflow, signal and query handlers.
var ContextType = reflect.TypeOf((*Context)(nil)).Elem()

// Await waits for v and decodes the first value as T.
func Await[T any](ctx Context, v any) (T, error) {
	var out T
	raw, err := ctx.Await(v)
	if err != nil {
		return out, err
	}
	return As[T](raw)
}

// As converts an awaited value into T. Encoded values are decoded, anything
// else must already be a T.
func As[T any](raw any) (T, error) {
	var out T
	if raw == nil {
		return out, nil
	}
	if v, ok := raw.(T); ok {
		return v, nil
	}
	if values, ok := raw.(converter.Values); ok {
		return converter.Decode[T](values, 0)
	}
	return out, command.CloneError(converter.ErrConversion,
		fmt.Sprintf("cannot use %T as %T", raw, out), nil, nil)
}

// runContext is the state shared by every scope of one process.
type runContext struct {
	process    *Process
	services   *Services
	input      *Input
	logger     command.Logger
	trace      string
	conditions []*condition
}

type condition struct {
	check    func() bool
	deferred *promise.Deferred
}

// checkConditions settles every awaited condition that holds.
func (r *runContext) checkConditions() {
	if len(r.conditions) == 0 {
		return
	}
	pending := r.conditions[:0]
	var ready []*condition
	for _, c := range r.conditions {
		if c.check() {
			ready = append(ready, c)
			continue
		}
		pending = append(pending, c)
	}
	r.conditions = pending
	for _, c := range ready {
		c.deferred.TrySettle(promise.Ok(nil))
	}
}

func (r *runContext) removeCondition(target *condition) {
	for i, c := range r.conditions {
		if c == target {
			r.conditions = append(r.conditions[:i], r.conditions[i+1:]...)
			return
		}
	}
}

// scopeContext binds the run context to one scope and its captured client.
type scopeContext struct {
	run    *runContext
	scope  *Scope
	client *transport.CapturedClient
}

func (c *scopeContext) Now() time.Time {
	c.recordTrace()
	return c.run.services.Env.Now()
}

func (c *scopeContext) TimeZone() *time.Location {
	c.recordTrace()
	return c.run.services.Env.TimeZone()
}

func (c *scopeContext) IsReplaying() bool {
	c.recordTrace()
	return c.run.services.Env.IsReplaying()
}

func (c *scopeContext) Info() *Info { return c.run.input.Info }

func (c *scopeContext) Input() converter.Values { return c.run.input.Args }

func (c *scopeContext) RunID() string { return c.run.input.Info.WorkflowExecution.RunID }

func (c *scopeContext) Logger() command.Logger { return c.run.logger }

func (c *scopeContext) DataConverter() converter.DataConverter { return c.run.services.Converter }

// GetTrace returns the call site of the last context call made by this run.
func (c *scopeContext) GetTrace() string { return c.run.trace }

func (c *scopeContext) Client() transport.Client { return c.client }

// Request sends req through the scope client. Cancellable requests are
// cancelled together with the scope.
func (c *scopeContext) Request(req *command.Request) promise.Future {
	c.recordTrace()
	return c.request(req)
}

func (c *scopeContext) request(req *command.Request) promise.Future {
	f := c.client.Request(req)
	c.scope.onRequest(req, f)
	return f
}

func (c *scopeContext) Await(v any) (any, error) {
	c.recordTrace()
	o := c.await(v)
	return o.Value(), o.Err()
}

func (c *scopeContext) AwaitOutcome(v any) promise.Outcome {
	c.recordTrace()
	return c.await(v)
}

func (c *scopeContext) await(v any) promise.Outcome {
	switch x := v.(type) {
	case promise.Future:
		return c.scope.await(x)
	case *command.Request:
		return c.scope.await(c.request(x))
	case Func:
		return settle(x(c))
	case func(Context) (any, error):
		return settle(x(c))
	}
	return promise.Ok(v)
}

func settle(value any, err error) promise.Outcome {
	if err != nil {
		return promise.Fail(err)
	}
	return promise.Ok(value)
}

// AwaitCondition suspends until cond holds. Conditions are checked after
// every loop round.
func (c *scopeContext) AwaitCondition(cond func() bool) error {
	c.recordTrace()
	if cond() {
		return nil
	}
	d := promise.NewDeferred(nil)
	entry := &condition{check: cond, deferred: d}
	c.run.conditions = append(c.run.conditions, entry)

	id := c.scope.addCancelHandler(func() {
		c.run.removeCondition(entry)
		d.TrySettle(promise.Canceled("condition await canceled"))
	})
	d.Then(func(promise.Outcome) { c.scope.removeCancelHandler(id) })

	return c.scope.await(d).Err()
}

// SideEffect runs fn only while not replaying. The recorded value is what
// the orchestrator resolves the request with.
func (c *scopeContext) SideEffect(fn func() (any, error)) promise.Future {
	c.recordTrace()
	var value any
	if !c.run.services.Env.IsReplaying() {
		v, err := fn()
		if err != nil {
			return promise.RejectedWith(err)
		}
		value = v
	}
	payloads, err := c.run.services.Converter.ToPayloads(value)
	if err != nil {
		return promise.RejectedWith(err)
	}
	return c.request(command.SideEffect(c.run.services.IDs, payloads))
}

// GetVersion resolves with the version recorded for changeID.
func (c *scopeContext) GetVersion(changeID string, minSupported, maxSupported int) promise.Future {
	c.recordTrace()
	req := command.GetVersion(c.run.services.IDs, changeID, int64(minSupported), int64(maxSupported))
	return promise.Map(c.request(req), func(v any) (any, error) {
		return As[int](v)
	})
}

func (c *scopeContext) Timer(d time.Duration) promise.Future {
	c.recordTrace()
	return c.request(command.NewTimer(c.run.services.IDs, d))
}

func (c *scopeContext) ExecuteActivity(name string, opts ActivityOptions, args ...any) promise.Future {
	c.recordTrace()
	return c.executeActivity(name, opts, args)
}

func (c *scopeContext) executeActivity(name string, opts ActivityOptions, args []any) promise.Future {
	payloads, err := c.run.services.Converter.ToPayloads(args...)
	if err != nil {
		return promise.RejectedWith(err)
	}
	return c.request(command.ExecuteActivity(c.run.services.IDs, name, payloads, opts.toMap()))
}

func (c *scopeContext) NewActivityStub(opts ActivityOptions) *ActivityStub {
	c.recordTrace()
	return &ActivityStub{ctx: c, options: opts}
}

func (c *scopeContext) ExecuteChildWorkflow(name string, opts ChildWorkflowOptions, args ...any) promise.Future {
	c.recordTrace()
	return c.newChildWorkflowStub(name, opts).Execute(args...)
}

func (c *scopeContext) NewChildWorkflowStub(name string, opts ChildWorkflowOptions) *ChildWorkflowStub {
	c.recordTrace()
	return c.newChildWorkflowStub(name, opts)
}

func (c *scopeContext) newChildWorkflowStub(name string, opts ChildWorkflowOptions) *ChildWorkflowStub {
	if opts.Namespace == "" {
		opts.Namespace = c.run.input.Info.Namespace
	}
	return &ChildWorkflowStub{
		ctx:       c,
		name:      name,
		options:   opts,
		execution: promise.NewDeferred(nil),
	}
}

func (c *scopeContext) NewExternalWorkflowStub(workflowID, runID string) *ExternalWorkflowStub {
	c.recordTrace()
	return &ExternalWorkflowStub{
		ctx:       c,
		namespace: c.run.input.Info.Namespace,
		execution: Execution{ID: workflowID, RunID: runID},
	}
}

// NewCancellationScope runs fn in a child scope cancelled with this one.
func (c *scopeContext) NewCancellationScope(fn Func) *Scope {
	c.recordTrace()
	return c.scope.CreateScope(fn, false)
}

// NewDetachedCancellationScope runs fn in a child scope that survives the
// cancellation of this one.
func (c *scopeContext) NewDetachedCancellationScope(fn Func) *Scope {
	c.recordTrace()
	return c.scope.CreateScope(fn, true)
}

func (c *scopeContext) Go(fn Func) *Scope {
	c.recordTrace()
	return c.scope.CreateScope(fn, false)
}

// Complete stops the run and reports its result.
func (c *scopeContext) Complete(result any, err error) promise.Future {
	c.recordTrace()
	p := c.run.process
	p.completed = true
	p.root.Cancel()

	var fail any
	var payloads command.Payloads
	if err != nil {
		fail = failure.Encode(err).ToMap()
	} else {
		values, encErr := converter.ToValues(c.run.services.Converter, result)
		if encErr != nil {
			fail = failure.Encode(encErr).ToMap()
		} else {
			payloads = values.Payloads()
		}
	}
	return c.request(command.CompleteWorkflow(c.run.services.IDs, payloads, fail))
}

// ContinueAsNew stops the run and asks the orchestrator to start a fresh one.
func (c *scopeContext) ContinueAsNew(name string, opts ContinueAsNewOptions, args ...any) promise.Future {
	c.recordTrace()
	p := c.run.process
	p.completed = true
	p.root.Cancel()

	if name == "" {
		name = c.run.input.Info.WorkflowType.Name
	}
	if opts.TaskQueue == "" {
		opts.TaskQueue = c.run.input.Info.TaskQueueName
	}
	payloads, err := c.run.services.Converter.ToPayloads(args...)
	if err != nil {
		return promise.RejectedWith(err)
	}
	return c.request(command.ContinueAsNew(c.run.services.IDs, name, payloads, opts.toMap()))
}

// RegisterSignal adds a signal handler to this run only.
func (c *scopeContext) RegisterSignal(name string, fn any) error {
	c.recordTrace()
	h, err := declaration.NewHandler(name, fn, ContextType)
	if err != nil {
		return err
	}
	c.run.process.instance.AddSignalHandler(h)
	return nil
}

// RegisterQuery adds a query handler to this run only.
func (c *scopeContext) RegisterQuery(name string, fn any) error {
	c.recordTrace()
	h, err := declaration.NewHandler(name, fn, ContextType)
	if err != nil {
		return err
	}
	c.run.process.instance.AddQueryHandler(h)
	return nil
}

const maxTraceDepth = 16

// recordTrace keeps the call site of the workflow code calling into the
// context.
func (c *scopeContext) recordTrace() {
	pcs := make([]uintptr, maxTraceDepth)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	for {
		frame, more := frames.Next()
		if strings.Contains(frame.Function, "runtime.") {
			break
		}
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	c.run.trace = b.String()
}
