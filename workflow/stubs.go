package workflow

import (
	command "github.com/goliatone/go-command-worker"
	"github.com/goliatone/go-command-worker/promise"
)

// ActivityStub executes activities with a fixed set of options.
type ActivityStub struct {
	ctx     *scopeContext
	options ActivityOptions
}

func (s *ActivityStub) Options() ActivityOptions { return s.options }

// Execute schedules the activity and resolves with its encoded result.
func (s *ActivityStub) Execute(name string, args ...any) promise.Future {
	s.ctx.recordTrace()
	return s.ctx.executeActivity(name, s.options, args)
}

// ChildWorkflowStub starts one child workflow and talks to it afterwards.
type ChildWorkflowStub struct {
	ctx       *scopeContext
	name      string
	options   ChildWorkflowOptions
	request   *command.Request
	result    promise.Future
	execution *promise.Deferred
}

func (s *ChildWorkflowStub) WorkflowType() string { return s.name }

func (s *ChildWorkflowStub) Options() ChildWorkflowOptions { return s.options }

// Execute starts the child and resolves with its result. A stub starts its
// child once; later calls return the first result.
func (s *ChildWorkflowStub) Execute(args ...any) promise.Future {
	if s.request != nil {
		return s.result
	}
	if err := s.options.Validate(); err != nil {
		s.result = promise.RejectedWith(err)
		s.execution.TrySettle(promise.Fail(err))
		return s.result
	}
	services := s.ctx.run.services
	payloads, err := services.Converter.ToPayloads(args...)
	if err != nil {
		s.result = promise.RejectedWith(err)
		s.execution.TrySettle(promise.Fail(err))
		return s.result
	}

	s.request = command.ExecuteChildWorkflow(services.IDs, s.name, payloads, s.options.toMap())
	s.result = s.ctx.request(s.request)

	started := s.ctx.request(command.GetChildWorkflowExecution(services.IDs, s.request))
	promise.Follow(s.execution, promise.Map(started, func(v any) (any, error) {
		return As[Execution](v)
	}))
	return s.result
}

// GetExecution resolves with the Execution of the started child.
func (s *ChildWorkflowStub) GetExecution() promise.Future { return s.execution }

// Signal sends a signal to the child once it started.
func (s *ChildWorkflowStub) Signal(name string, args ...any) promise.Future {
	s.ctx.recordTrace()
	d := promise.NewDeferred(nil)
	s.execution.Then(func(o promise.Outcome) {
		if !o.Fulfilled() {
			d.Settle(o)
			return
		}
		exec := o.Value().(Execution)
		services := s.ctx.run.services
		payloads, err := services.Converter.ToPayloads(args...)
		if err != nil {
			d.Reject(err)
			return
		}
		req := command.SignalExternalWorkflow(services.IDs, s.options.Namespace,
			exec.ID, exec.RunID, name, payloads, true)
		promise.Follow(d, s.ctx.request(req))
	})
	return d
}

// ExternalWorkflowStub addresses a workflow run that is not a child of this
// one.
type ExternalWorkflowStub struct {
	ctx       *scopeContext
	namespace string
	execution Execution
}

func (s *ExternalWorkflowStub) Execution() Execution { return s.execution }

func (s *ExternalWorkflowStub) Signal(name string, args ...any) promise.Future {
	s.ctx.recordTrace()
	services := s.ctx.run.services
	payloads, err := services.Converter.ToPayloads(args...)
	if err != nil {
		return promise.RejectedWith(err)
	}
	return s.ctx.request(command.SignalExternalWorkflow(services.IDs, s.namespace,
		s.execution.ID, s.execution.RunID, name, payloads, false))
}

// Cancel requests cancellation of the external run.
func (s *ExternalWorkflowStub) Cancel() promise.Future {
	s.ctx.recordTrace()
	return s.ctx.request(command.CancelExternalWorkflow(s.ctx.run.services.IDs, s.namespace,
		s.execution.ID, s.execution.RunID))
}
