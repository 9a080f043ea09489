package workflow

import (
	"fmt"
	"sort"
	"sync"

	"github.com/goliatone/go-errors"

	command "github.com/goliatone/go-command-worker"
	"github.com/goliatone/go-command-worker/converter"
	"github.com/goliatone/go-command-worker/declaration"
	"github.com/goliatone/go-command-worker/failure"
	"github.com/goliatone/go-command-worker/loop"
	"github.com/goliatone/go-command-worker/promise"
)

var ErrProcessStarted = errors.New("workflow process already started", errors.CategoryConflict).
	WithTextCode("PROCESS_STARTED")

// Process is one running workflow: the per run handler instance and the
// root scope executing the workflow function.
type Process struct {
	services  *Services
	run       *runContext
	instance  *declaration.Instance
	root      *Scope
	scopeSeq  int
	started   bool
	completed bool
	destroyed bool
	unobserve func()
}

// NewProcess prepares a run of proto. Nothing executes before Start.
func NewProcess(services *Services, proto *declaration.WorkflowPrototype, input *Input) *Process {
	services.normalize()
	if input.Args == nil {
		input.Args = converter.NewEncodedValues(nil, services.Converter)
	}
	p := &Process{
		services: services,
		instance: declaration.NewInstance(proto),
	}
	p.run = &runContext{
		process:  p,
		services: services,
		input:    input,
		logger: command.WithLoggerFields(services.Logger, map[string]any{
			"run_id":        input.Info.WorkflowExecution.RunID,
			"workflow_id":   input.Info.WorkflowExecution.ID,
			"workflow_type": proto.Name(),
		}),
	}
	p.root = newScope(p, nil, services.Client, false)
	return p
}

func (p *Process) RunID() string { return p.run.input.Info.WorkflowExecution.RunID }

func (p *Process) Info() *Info { return p.run.input.Info }

func (p *Process) Instance() *declaration.Instance { return p.instance }

// Scope returns the root scope.
func (p *Process) Scope() *Scope { return p.root }

// Context returns the root scope context.
func (p *Process) Context() Context { return p.root.ctx }

func (p *Process) IsCompleted() bool { return p.completed }

func (p *Process) IsDestroyed() bool { return p.destroyed }

// LastTrace returns the call site of the last context call of this run.
func (p *Process) LastTrace() string { return p.run.trace }

func (p *Process) nextScopeID() int {
	p.scopeSeq++
	return p.scopeSeq
}

// Start runs the workflow function until its first suspension. When the
// root scope settles the run is completed with its result unless workflow
// code completed it explicitly.
func (p *Process) Start() error {
	if p.started {
		return command.CloneError(ErrProcessStarted, "", nil, map[string]any{"run_id": p.RunID()})
	}
	p.started = true
	p.unobserve = p.services.Loop.Observe(p.run.checkConditions)

	handler := p.instance.Prototype().Handler()
	args := p.run.input.Args
	p.root.Then(p.onRootSettled)
	p.root.start(func(ctx Context) (any, error) {
		return handler.Invoke(ctx, args)
	})
	return nil
}

func (p *Process) onRootSettled(o promise.Outcome) {
	if p.completed || p.destroyed {
		return
	}
	p.completed = true

	var fail any
	var payloads command.Payloads
	if o.Fulfilled() {
		values, err := converter.ToValues(p.services.Converter, o.Value())
		if err != nil {
			fail = failure.Encode(err).ToMap()
		} else {
			payloads = values.Payloads()
		}
	} else {
		fail = failure.Encode(o.Err()).ToMap()
	}

	req := command.CompleteWorkflow(p.services.IDs, payloads, fail)
	p.root.ctx.client.Request(req).Then(func(res promise.Outcome) {
		if res.Rejected() {
			p.run.logger.Error("complete workflow %s failed: %v", p.RunID(), res.Err())
		}
	})
}

// Signal delivers a signal on the next signal round. The returned future
// resolves once the handler was started.
func (p *Process) Signal(name string, args converter.Values) (promise.Future, error) {
	h, ok := p.instance.SignalHandler(name)
	if !ok {
		return nil, command.NewHandlerNotFoundError("signal", name)
	}
	d := promise.NewDeferred(nil)
	p.services.Loop.Once(loop.OnSignal, func() {
		if p.destroyed {
			d.TrySettle(promise.Fail(command.NewProcessNotFoundError(p.RunID())))
			return
		}
		scope := p.root.CreateScope(func(ctx Context) (any, error) {
			return h.Invoke(ctx, args)
		}, true)
		scope.Then(func(o promise.Outcome) {
			if o.Rejected() {
				p.run.logger.Error("signal %s handler failed: %v", name, o.Err())
			}
		})
		d.TrySettle(promise.Ok(converter.Empty()))
	})
	return d, nil
}

// Query runs a query handler against the current state of the run.
func (p *Process) Query(name string, args converter.Values) (any, error) {
	h, ok := p.instance.QueryHandler(name)
	if !ok {
		return nil, command.NewHandlerNotFoundError("query", name)
	}
	var (
		result any
		err    error
	)
	func() {
		defer command.MakePanicHandler(command.LoggerPanicLogger(p.run.logger))(fmt.Sprintf("query %s", name), &err)
		result, err = h.Invoke(p.root.ctx, args)
	}()
	return result, err
}

// Cancel cancels the root scope.
func (p *Process) Cancel() {
	p.root.Cancel()
}

// Destroy stops the run: queued requests are cancelled locally, sent ones are
// forgotten and suspended coroutines are unwound.
func (p *Process) Destroy() {
	if p.destroyed {
		return
	}
	p.destroyed = true
	if p.unobserve != nil {
		p.unobserve()
	}
	p.run.conditions = nil

	client := p.services.Client
	forgetter, _ := client.(Forgetter)
	for _, req := range p.root.ctx.client.UnresolvedRequests() {
		if client.IsQueued(req) {
			client.Cancel(req)
			continue
		}
		if forgetter != nil {
			forgetter.Forget(req)
		}
	}
	p.root.close()
}

// ProcessCollection holds the running processes keyed by run id.
type ProcessCollection struct {
	mu        sync.RWMutex
	processes map[string]*Process
}

func NewProcessCollection() *ProcessCollection {
	return &ProcessCollection{processes: make(map[string]*Process)}
}

func (c *ProcessCollection) Add(p *Process) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := p.RunID()
	if _, exists := c.processes[id]; exists {
		return command.CloneError(command.ErrDuplicateDefinition,
			fmt.Sprintf("workflow run %s is already running", id), nil, map[string]any{"run_id": id})
	}
	c.processes[id] = p
	return nil
}

// Get returns the process of runID or a not found error.
func (c *ProcessCollection) Get(runID string) (*Process, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.processes[runID]
	if !ok {
		return nil, command.NewProcessNotFoundError(runID)
	}
	return p, nil
}

// Pull removes and returns the process of runID.
func (c *ProcessCollection) Pull(runID string) (*Process, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.processes[runID]
	if !ok {
		return nil, command.NewProcessNotFoundError(runID)
	}
	delete(c.processes, runID)
	return p, nil
}

func (c *ProcessCollection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.processes)
}

// RunIDs returns the run ids, sorted.
func (c *ProcessCollection) RunIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.processes))
	for id := range c.processes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
