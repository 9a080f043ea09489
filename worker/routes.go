package worker

import (
	"context"
	"fmt"

	command "github.com/goliatone/go-command-worker"
	"github.com/goliatone/go-command-worker/activity"
	"github.com/goliatone/go-command-worker/converter"
	"github.com/goliatone/go-command-worker/loop"
	"github.com/goliatone/go-command-worker/promise"
	"github.com/goliatone/go-command-worker/router"
	"github.com/goliatone/go-command-worker/runner"
	"github.com/goliatone/go-command-worker/workflow"
)

// Inbound request names.
const (
	StartWorkflowName   = "StartWorkflow"
	InvokeSignalName    = "InvokeSignal"
	InvokeQueryName     = "InvokeQuery"
	DestroyWorkflowName = "DestroyWorkflow"
	CancelWorkflowName  = "CancelWorkflow"
	InvokeActivityName  = "InvokeActivity"
	GetWorkerInfoName   = "GetWorkerInfo"
	StackTraceName      = "StackTrace"
)

const paramRunID = "runId"

func (w *Worker) routes() []router.Route {
	return []router.Route{
		&startWorkflow{w: w},
		&invokeSignal{w: w},
		&invokeQuery{w: w},
		&destroyWorkflow{w: w},
		&cancelWorkflow{w: w},
		&invokeActivity{w: w},
		&getWorkerInfo{w: w},
		&stackTrace{w: w},
	}
}

// runID reads the target run id from the request params, falling back to
// the message headers.
func runID(req *command.Request, headers map[string]any) (string, error) {
	if v, ok := req.Param(paramRunID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s, nil
		}
	}
	if v, ok := headers[paramRunID].(string); ok && v != "" {
		return v, nil
	}
	return "", command.NewMalformedError("%s requires the %q of the running workflow process", req.Name(), paramRunID)
}

func stringParam(req *command.Request, key string) (string, error) {
	v, _ := req.Param(key)
	s, ok := v.(string)
	if !ok || s == "" {
		return "", command.NewMalformedError("%s requires a non-empty %q param", req.Name(), key)
	}
	return s, nil
}

func (w *Worker) findProcess(req *command.Request, headers map[string]any) (*workflow.Process, error) {
	id, err := runID(req, headers)
	if err != nil {
		return nil, err
	}
	return w.running.Get(id)
}

func (w *Worker) args(req *command.Request) converter.Values {
	return converter.NewEncodedValues(req.Payloads(), w.converter)
}

type startWorkflow struct{ w *Worker }

func (r *startWorkflow) Name() string { return StartWorkflowName }

func (r *startWorkflow) Handle(_ context.Context, req *command.Request, _ map[string]any, d *promise.Deferred) error {
	input, err := workflow.InputFromRequest(req, r.w.converter)
	if err != nil {
		return err
	}

	name := input.Info.WorkflowType.Name
	proto, ok := r.w.workflows.Get(name)
	if !ok {
		return command.CloneError(command.ErrHandlerNotFound,
			fmt.Sprintf("Workflow with the specified name %q was not registered", name), nil,
			map[string]any{"workflow_type": name})
	}

	p := workflow.NewProcess(r.w.services, proto, input)
	if err := r.w.running.Add(p); err != nil {
		return err
	}
	if err := p.Start(); err != nil {
		return err
	}
	r.w.logger.Debug("workflow %s started with run id %s", name, p.RunID())
	d.Resolve(converter.Empty())
	return nil
}

type invokeSignal struct{ w *Worker }

func (r *invokeSignal) Name() string { return InvokeSignalName }

func (r *invokeSignal) Handle(_ context.Context, req *command.Request, headers map[string]any, d *promise.Deferred) error {
	p, err := r.w.findProcess(req, headers)
	if err != nil {
		return err
	}
	name, err := stringParam(req, "name")
	if err != nil {
		return err
	}
	ack, err := p.Signal(name, r.w.args(req))
	if err != nil {
		return err
	}
	promise.Follow(d, ack)
	return nil
}

type invokeQuery struct{ w *Worker }

func (r *invokeQuery) Name() string { return InvokeQueryName }

func (r *invokeQuery) Handle(_ context.Context, req *command.Request, headers map[string]any, d *promise.Deferred) error {
	p, err := r.w.findProcess(req, headers)
	if err != nil {
		return err
	}
	name, err := stringParam(req, "name")
	if err != nil {
		return err
	}
	if _, ok := p.Instance().QueryHandler(name); !ok {
		return command.NewHandlerNotFoundError("query", name)
	}

	args := r.w.args(req)
	r.w.loop.Once(loop.OnQuery, func() {
		if p.IsDestroyed() {
			d.Reject(command.NewProcessNotFoundError(p.RunID()))
			return
		}
		result, err := p.Query(name, args)
		if err != nil {
			d.Reject(err)
			return
		}
		values, err := converter.ToValues(r.w.converter, result)
		if err != nil {
			d.Reject(err)
			return
		}
		d.Resolve(values)
	})
	return nil
}

type destroyWorkflow struct{ w *Worker }

func (r *destroyWorkflow) Name() string { return DestroyWorkflowName }

func (r *destroyWorkflow) Handle(_ context.Context, req *command.Request, headers map[string]any, d *promise.Deferred) error {
	id, err := runID(req, headers)
	if err != nil {
		return err
	}
	p, err := r.w.running.Pull(id)
	if err != nil {
		return err
	}
	p.Destroy()
	r.w.logger.Debug("workflow run %s destroyed", id)
	d.Resolve(converter.Empty())
	return nil
}

type cancelWorkflow struct{ w *Worker }

func (r *cancelWorkflow) Name() string { return CancelWorkflowName }

func (r *cancelWorkflow) Handle(_ context.Context, req *command.Request, headers map[string]any, d *promise.Deferred) error {
	p, err := r.w.findProcess(req, headers)
	if err != nil {
		return err
	}
	p.Cancel()
	d.Resolve(converter.Empty())
	return nil
}

type invokeActivity struct{ w *Worker }

func (r *invokeActivity) Name() string { return InvokeActivityName }

func (r *invokeActivity) Handle(ctx context.Context, req *command.Request, _ map[string]any, d *promise.Deferred) error {
	raw, ok := req.Param("info")
	if !ok {
		return command.NewMalformedError("%s requires an %q param", req.Name(), "info")
	}
	info, err := activity.InfoFromParam(raw)
	if err != nil {
		return err
	}

	name := info.ActivityType.Name
	proto, ok := r.w.activities.Get(name)
	if !ok {
		return command.CloneError(command.ErrHandlerNotFound,
			fmt.Sprintf("Activity with the specified name %q was not registered", name), nil,
			map[string]any{"activity_type": name})
	}

	h := runner.NewHandler(r.w.activityOptions(info)...)
	args := r.w.args(req)
	result, err := runner.Call(activity.WithInfo(ctx, info), h, func(ctx context.Context) (any, error) {
		return proto.Handler().Invoke(ctx, args)
	})
	if err != nil {
		return err
	}

	values, err := converter.ToValues(r.w.converter, result)
	if err != nil {
		return err
	}
	d.Resolve(values)
	return nil
}

func (w *Worker) activityOptions(info *activity.Info) []runner.Option {
	opts := []runner.Option{
		runner.WithName(info.ActivityType.Name),
		runner.WithLogger(w.logger),
		runner.WithMaxRetries(w.config.ActivityRetries),
		runner.WithTimeout(w.config.ActivityTimeout),
	}
	if !info.Deadline.IsZero() {
		opts = append(opts, runner.WithDeadline(info.Deadline))
	}
	if w.config.ActivityRetries > 0 {
		opts = append(opts, runner.WithRetryStrategy(runner.ExponentialBackoffStrategy{
			Base:   w.config.Relay.RetryBase,
			Factor: 2,
			Max:    w.config.Relay.RetryMax,
		}))
	}
	return opts
}

// WorkerInfo describes the registered workflow and activity types.
type WorkerInfo struct {
	TaskQueue  string         `json:"TaskQueue"`
	Namespace  string         `json:"Namespace"`
	Identity   string         `json:"Identity"`
	Codec      string         `json:"Codec"`
	Workflows  []WorkflowInfo `json:"Workflows"`
	Activities []TypeInfo     `json:"Activities"`
}

type WorkflowInfo struct {
	Name    string   `json:"Name"`
	Queries []string `json:"Queries"`
	Signals []string `json:"Signals"`
}

type TypeInfo struct {
	Name string `json:"Name"`
}

type getWorkerInfo struct{ w *Worker }

func (r *getWorkerInfo) Name() string { return GetWorkerInfoName }

func (r *getWorkerInfo) Handle(_ context.Context, _ *command.Request, _ map[string]any, d *promise.Deferred) error {
	d.Resolve(r.w.Info())
	return nil
}

type stackTrace struct{ w *Worker }

func (r *stackTrace) Name() string { return StackTraceName }

func (r *stackTrace) Handle(_ context.Context, req *command.Request, headers map[string]any, d *promise.Deferred) error {
	p, err := r.w.findProcess(req, headers)
	if err != nil {
		return err
	}
	d.Resolve(p.LastTrace())
	return nil
}

func (w *Worker) Info() WorkerInfo {
	info := WorkerInfo{
		TaskQueue:  w.config.TaskQueue,
		Namespace:  w.config.Namespace,
		Identity:   w.config.Identity,
		Codec:      w.codec.Name(),
		Workflows:  []WorkflowInfo{},
		Activities: []TypeInfo{},
	}
	for _, name := range w.workflows.Names() {
		proto, _ := w.workflows.Get(name)
		info.Workflows = append(info.Workflows, WorkflowInfo{
			Name:    name,
			Queries: proto.QueryNames(),
			Signals: proto.SignalNames(),
		})
	}
	for _, name := range w.activities.Names() {
		info.Activities = append(info.Activities, TypeInfo{Name: name})
	}
	return info
}

