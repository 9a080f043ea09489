package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	command "github.com/goliatone/go-command-worker"
	"github.com/goliatone/go-command-worker/converter"
	"github.com/goliatone/go-command-worker/declaration"
	"github.com/goliatone/go-command-worker/failure"
	"github.com/goliatone/go-command-worker/loop"
	"github.com/goliatone/go-command-worker/promise"
	"github.com/goliatone/go-command-worker/transport"
)

type harness struct {
	t        *testing.T
	queue    *transport.Queue
	client   *transport.DispatchClient
	services *Services
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ids := command.NewSequence()
	queue := transport.NewQueue()
	client := transport.NewDispatchClient(queue, ids)
	return &harness{
		t:      t,
		queue:  queue,
		client: client,
		services: &Services{
			Loop:      loop.New(),
			Client:    client,
			IDs:       ids,
			Env:       NewEnvironment(),
			Converter: converter.Default(),
			Logger:    command.NopLogger{},
		},
	}
}

func (h *harness) start(fn any, args ...any) *Process {
	h.t.Helper()
	proto, err := declaration.NewReader(ContextType).Workflow(declaration.WorkflowDefinition{
		Name: "TestWorkflow",
		Func: fn,
	})
	require.NoError(h.t, err)

	values, err := converter.FromValues(h.services.Converter, args...)
	require.NoError(h.t, err)

	p := NewProcess(h.services, proto, &Input{
		Info: &Info{
			WorkflowExecution: Execution{ID: "wf-1", RunID: "run-1"},
			WorkflowType:      Type{Name: "TestWorkflow"},
			Namespace:         "default",
			TaskQueueName:     "default",
		},
		Args: values,
	})
	require.NoError(h.t, p.Start())
	h.services.Loop.Run()
	return p
}

func (h *harness) flush() []*command.Request {
	var out []*command.Request
	for _, cmd := range h.queue.Flush() {
		if req, ok := cmd.(*command.Request); ok {
			out = append(out, req)
		}
	}
	return out
}

func (h *harness) respond(id uint32, values ...any) {
	h.t.Helper()
	payloads, err := h.services.Converter.ToPayloads(values...)
	require.NoError(h.t, err)
	h.client.Dispatch(command.NewSuccessResponse(id, payloads))
	h.services.Loop.Run()
}

func (h *harness) fail(id uint32, err error) {
	h.client.Dispatch(command.NewErrorResponse(id, 500, err.Error(), failure.Encode(err).ToMap()))
	h.services.Loop.Run()
}

func decodeResult[T any](t *testing.T, req *command.Request) T {
	t.Helper()
	require.Equal(t, command.CompleteWorkflowName, req.Name())
	v, err := converter.Decode[T](converter.NewEncodedValues(req.Payloads(), nil), 0)
	require.NoError(t, err)
	return v
}

func TestSingleActivityWorkflowCompletesWithActivityResult(t *testing.T) {
	h := newHarness(t)
	p := h.start(func(ctx Context, input string) (string, error) {
		return Await[string](ctx, ctx.ExecuteActivity("Upper", ActivityOptions{
			StartToCloseTimeout: time.Second,
		}, input))
	}, "abc")

	reqs := h.flush()
	require.Len(t, reqs, 1)
	assert.Equal(t, command.ExecuteActivityName, reqs[0].Name())
	assert.Equal(t, uint32(command.ReservedIDs+1), reqs[0].ID())

	name, _ := reqs[0].Param("name")
	assert.Equal(t, "Upper", name)
	opts, _ := reqs[0].Param("options")
	assert.Equal(t, int64(time.Second), opts.(map[string]any)["StartToCloseTimeout"])

	arg, err := converter.Decode[string](converter.NewEncodedValues(reqs[0].Payloads(), nil), 0)
	require.NoError(t, err)
	assert.Equal(t, "abc", arg)

	h.respond(reqs[0].ID(), "ABC")

	reqs = h.flush()
	require.Len(t, reqs, 1)
	assert.Equal(t, "ABC", decodeResult[string](t, reqs[0]))

	o, settled := p.Scope().Outcome()
	require.True(t, settled)
	assert.Equal(t, "ABC", o.Value())
	assert.True(t, p.IsCompleted())
}

func TestParallelScopesKeepIssueOrder(t *testing.T) {
	h := newHarness(t)
	p := h.start(func(ctx Context) ([]string, error) {
		branch := func(name string) Func {
			return func(ctx Context) (any, error) {
				return Await[string](ctx, ctx.ExecuteActivity(name, ActivityOptions{}))
			}
		}
		a := ctx.Go(branch("A"))
		b := ctx.Go(branch("B"))

		values, err := Await[[]any](ctx, promise.All(a, b))
		if err != nil {
			return nil, err
		}
		return []string{values[0].(string), values[1].(string)}, nil
	})

	reqs := h.flush()
	require.Len(t, reqs, 2)
	a, b := reqs[0], reqs[1]
	nameA, _ := a.Param("name")
	assert.Equal(t, "A", nameA)
	assert.Less(t, a.ID(), b.ID())

	h.respond(b.ID(), "resultB")
	assert.False(t, p.Scope().IsSettled())
	h.respond(a.ID(), "resultA")

	reqs = h.flush()
	require.Len(t, reqs, 1)
	assert.Equal(t, []string{"resultA", "resultB"}, decodeResult[[]string](t, reqs[0]))
}

func TestSideEffectRunsOnceAcrossExecutionAndReplay(t *testing.T) {
	calls := 0
	wf := func(ctx Context) (int, error) {
		return Await[int](ctx, ctx.SideEffect(func() (any, error) {
			calls++
			return 42, nil
		}))
	}

	live := newHarness(t)
	live.start(wf)
	reqs := live.flush()
	require.Len(t, reqs, 1)
	assert.Equal(t, command.SideEffectName, reqs[0].Name())
	recorded, err := converter.Decode[int](converter.NewEncodedValues(reqs[0].Payloads(), nil), 0)
	require.NoError(t, err)
	assert.Equal(t, 42, recorded)
	live.respond(reqs[0].ID(), 42)
	assert.Equal(t, 42, decodeResult[int](t, live.flush()[0]))

	replay := newHarness(t)
	replay.services.Env.SetReplaying(true)
	replay.start(wf)
	reqs = replay.flush()
	require.Len(t, reqs, 1)
	assert.Equal(t, converter.EncodingNull, reqs[0].Payloads()[0].Encoding())
	replay.respond(reqs[0].ID(), 42)
	assert.Equal(t, 42, decodeResult[int](t, replay.flush()[0]))

	assert.Equal(t, 1, calls)
}

func TestCancelQueuedRequestStaysLocal(t *testing.T) {
	h := newHarness(t)
	h.start(func(ctx Context) (string, error) {
		scope := ctx.NewCancellationScope(func(ctx Context) (any, error) {
			o := ctx.AwaitOutcome(ctx.Timer(time.Minute))
			if o.Cancelled() {
				return "cancelled", nil
			}
			return "fired", o.Err()
		})
		scope.Cancel()
		return Await[string](ctx, scope)
	})

	reqs := h.flush()
	require.Len(t, reqs, 1)
	assert.Equal(t, "cancelled", decodeResult[string](t, reqs[0]))
}

func TestCancelSentRequestIssuesSingleCancel(t *testing.T) {
	h := newHarness(t)
	p := h.start(func(ctx Context) (any, error) {
		return ctx.Await(ctx.Timer(time.Minute))
	})

	reqs := h.flush()
	require.Len(t, reqs, 1)
	timer := reqs[0]
	ms, _ := timer.Param("ms")
	assert.Equal(t, int64(60000), ms)

	p.Cancel()
	p.Cancel()
	h.services.Loop.Run()

	reqs = h.flush()
	require.Len(t, reqs, 1)
	assert.Equal(t, command.CancelName, reqs[0].Name())
	assert.Equal(t, []uint32{timer.ID()}, command.CancelTargets(reqs[0]))

	h.fail(reqs[0].ID(), failure.NewCanceled("timer canceled"))

	reqs = h.flush()
	require.Len(t, reqs, 1)
	raw, ok := reqs[0].Param("failure")
	require.True(t, ok)
	assert.Equal(t, string(failure.KindCanceled), raw.(map[string]any)["kind"])

	o, _ := p.Scope().Outcome()
	assert.True(t, o.Cancelled())

	// a late response for the timer is dropped
	h.respond(timer.ID())
	assert.Empty(t, h.flush())
}

func TestSettledRequestIsNotCancelledAgain(t *testing.T) {
	h := newHarness(t)
	p := h.start(func(ctx Context) (any, error) {
		if _, err := ctx.Await(ctx.Timer(time.Second)); err != nil {
			return nil, err
		}
		return ctx.Await(ctx.Timer(time.Minute))
	})

	reqs := h.flush()
	require.Len(t, reqs, 1)
	first := reqs[0]
	h.respond(first.ID())

	reqs = h.flush()
	require.Len(t, reqs, 1)
	second := reqs[0]
	assert.NotEqual(t, first.ID(), second.ID())

	p.Cancel()
	h.services.Loop.Run()

	cancels := h.flush()
	require.Len(t, cancels, 1)
	assert.Equal(t, command.CancelName, cancels[0].Name())
	assert.Equal(t, []uint32{second.ID()}, command.CancelTargets(cancels[0]))
}

func TestAwaitRunsNestedFuncInline(t *testing.T) {
	h := newHarness(t)
	var steps []string
	var outer, inner Context
	h.start(func(ctx Context) (string, error) {
		outer = ctx
		steps = append(steps, "outer")
		v, err := ctx.Await(Func(func(ctx Context) (any, error) {
			inner = ctx
			steps = append(steps, "inner")
			return Await[string](ctx, ctx.Timer(time.Second))
		}))
		steps = append(steps, "resumed")
		if err != nil {
			return "", err
		}
		return v.(string) + "!", nil
	})

	assert.Equal(t, []string{"outer", "inner"}, steps)
	assert.Same(t, outer.(*scopeContext), inner.(*scopeContext))

	reqs := h.flush()
	require.Len(t, reqs, 1)
	assert.Equal(t, command.NewTimerName, reqs[0].Name())
	h.respond(reqs[0].ID(), "tick")

	assert.Equal(t, []string{"outer", "inner", "resumed"}, steps)
	assert.Equal(t, "tick!", decodeResult[string](t, h.flush()[0]))
}

func TestAwaitLockUnderflowPanics(t *testing.T) {
	h := newHarness(t)
	p := h.start(func(ctx Context) (string, error) { return "done", nil })
	require.True(t, p.Scope().IsSettled())

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, command.HasCode(err, command.ErrCodeAwaitLockUnderflow))

		o, _ := p.Scope().Outcome()
		assert.Equal(t, "done", o.Value())
	}()
	p.Scope().unlock()
}

func TestActivityFailurePropagatesToAwait(t *testing.T) {
	h := newHarness(t)
	var seen error
	h.start(func(ctx Context) (string, error) {
		_, err := ctx.Await(ctx.ExecuteActivity("Boom", ActivityOptions{}))
		seen = err
		return "recovered", nil
	})

	reqs := h.flush()
	h.fail(reqs[0].ID(), failure.NewActivity("Boom", "1", failure.NewApplication("bad input", "ValueError")))

	var af *failure.ActivityFailure
	require.ErrorAs(t, seen, &af)
	assert.Equal(t, "Boom", af.ActivityType)
	assert.Equal(t, "recovered", decodeResult[string](t, h.flush()[0]))
}

func TestWorkflowPanicFailsRun(t *testing.T) {
	h := newHarness(t)
	p := h.start(func(ctx Context) error {
		panic("broken workflow")
	})

	reqs := h.flush()
	require.Len(t, reqs, 1)
	raw, _ := reqs[0].Param("failure")
	assert.Equal(t, "PanicError", raw.(map[string]any)["type"])

	o, _ := p.Scope().Outcome()
	assert.True(t, o.Rejected())
}

func TestSignalWakesConditionAndQueryReadsState(t *testing.T) {
	h := newHarness(t)
	p := h.start(func(ctx Context) (string, error) {
		var name string
		if err := ctx.RegisterSignal("setName", func(v string) { name = v }); err != nil {
			return "", err
		}
		if err := ctx.RegisterQuery("name", func() (string, error) { return name, nil }); err != nil {
			return "", err
		}
		if err := ctx.AwaitCondition(func() bool { return name != "" }); err != nil {
			return "", err
		}
		return "hello " + name, nil
	})
	assert.Empty(t, h.flush())
	assert.Equal(t, []string{"setName"}, p.Instance().SignalNames())

	state, err := p.Query("name", nil)
	require.NoError(t, err)
	assert.Equal(t, "", state)

	_, err = p.Signal("missing", nil)
	assert.True(t, command.HasCode(err, command.ErrCodeHandlerNotFound))

	args, _ := converter.FromValues(nil, "bob")
	ack, err := p.Signal("setName", args)
	require.NoError(t, err)
	assert.False(t, ack.IsSettled())

	h.services.Loop.Run()
	assert.True(t, ack.IsSettled())

	state, err = p.Query("name", nil)
	require.NoError(t, err)
	assert.Equal(t, "bob", state)

	reqs := h.flush()
	require.Len(t, reqs, 1)
	assert.Equal(t, "hello bob", decodeResult[string](t, reqs[0]))
}

func TestCompleteCancelsPendingWork(t *testing.T) {
	h := newHarness(t)
	p := h.start(func(ctx Context) (any, error) {
		ctx.Go(func(ctx Context) (any, error) {
			return ctx.Await(ctx.Timer(time.Hour))
		})
		ctx.Complete("early", nil)
		return nil, nil
	})

	reqs := h.flush()
	require.Len(t, reqs, 1)
	assert.Equal(t, "early", decodeResult[string](t, reqs[0]))
	assert.True(t, p.IsCompleted())
	assert.True(t, p.Scope().IsCancelled())
}

func TestDetachedScopeSurvivesParentCancel(t *testing.T) {
	h := newHarness(t)
	var detached, attached *Scope
	p := h.start(func(ctx Context) (any, error) {
		detached = ctx.NewDetachedCancellationScope(func(ctx Context) (any, error) {
			return ctx.Await(ctx.Timer(time.Second))
		})
		attached = ctx.NewCancellationScope(func(ctx Context) (any, error) {
			return ctx.Await(ctx.Timer(time.Second))
		})
		return ctx.Await(promise.All(detached, attached))
	})
	reqs := h.flush()
	require.Len(t, reqs, 2)

	p.Cancel()
	h.services.Loop.Run()

	assert.False(t, detached.IsCancelled())
	assert.True(t, attached.IsCancelled())

	cancels := h.flush()
	require.Len(t, cancels, 1)
	assert.Equal(t, []uint32{reqs[1].ID()}, command.CancelTargets(cancels[0]))

	// the parent waits for the detached child even after cancellation
	h.respond(cancels[0].ID())
	assert.False(t, p.Scope().IsSettled())
	h.respond(reqs[0].ID())
	assert.True(t, p.Scope().IsSettled())
}

func TestDestroyForgetsSentRequests(t *testing.T) {
	h := newHarness(t)
	p := h.start(func(ctx Context) (any, error) {
		return ctx.Await(ctx.ExecuteActivity("Slow", ActivityOptions{}))
	})
	reqs := h.flush()
	require.Len(t, reqs, 1)
	require.True(t, h.client.IsPending(reqs[0].ID()))

	p.Destroy()
	p.Destroy()

	assert.True(t, p.IsDestroyed())
	assert.False(t, h.client.IsPending(reqs[0].ID()))
	assert.False(t, p.Scope().IsSettled())

	h.respond(reqs[0].ID(), "late")
	assert.Empty(t, h.flush())
}

func TestGetVersionDecodesInteger(t *testing.T) {
	h := newHarness(t)
	h.start(func(ctx Context) (int, error) {
		return Await[int](ctx, ctx.GetVersion("change-1", 1, 3))
	})
	reqs := h.flush()
	require.Len(t, reqs, 1)
	changeID, _ := reqs[0].Param("changeID")
	assert.Equal(t, "change-1", changeID)
	h.respond(reqs[0].ID(), 2)
	assert.Equal(t, 2, decodeResult[int](t, h.flush()[0]))
}

func TestChildWorkflowStubSignalsStartedChild(t *testing.T) {
	h := newHarness(t)
	h.start(func(ctx Context) (string, error) {
		child := ctx.NewChildWorkflowStub("Child", ChildWorkflowOptions{WorkflowID: "child-1"})
		result := child.Execute("in")
		if _, err := ctx.Await(child.Signal("poke", 1)); err != nil {
			return "", err
		}
		return Await[string](ctx, result)
	})

	reqs := h.flush()
	require.Len(t, reqs, 2)
	assert.Equal(t, command.ExecuteChildWorkflowName, reqs[0].Name())
	assert.Equal(t, command.GetChildWorkflowExecutionName, reqs[1].Name())
	opts, _ := reqs[0].Param("options")
	assert.Equal(t, "default", opts.(map[string]any)["Namespace"])

	h.respond(reqs[1].ID(), Execution{ID: "child-1", RunID: "child-run"})
	signals := h.flush()
	require.Len(t, signals, 1)
	assert.Equal(t, command.SignalExternalWorkflowName, signals[0].Name())
	runID, _ := signals[0].Param("runID")
	assert.Equal(t, "child-run", runID)
	childOnly, _ := signals[0].Param("childWorkflowOnly")
	assert.Equal(t, true, childOnly)

	h.respond(signals[0].ID())
	h.respond(reqs[0].ID(), "child done")
	assert.Equal(t, "child done", decodeResult[string](t, h.flush()[0]))
}

func TestChildWorkflowRejectsInvalidCron(t *testing.T) {
	h := newHarness(t)
	var seen error
	h.start(func(ctx Context) (any, error) {
		_, seen = ctx.Await(ctx.ExecuteChildWorkflow("Child", ChildWorkflowOptions{CronSchedule: "every day"}))
		return nil, nil
	})
	assert.True(t, command.HasCode(seen, command.ErrCodeInvalidDefinition))
	for _, req := range h.flush() {
		assert.NotEqual(t, command.ExecuteChildWorkflowName, req.Name())
	}
}

func TestAwaitOutsideCoroutineFails(t *testing.T) {
	h := newHarness(t)
	p := h.start(func(ctx Context) (any, error) {
		return ctx.Await(ctx.Timer(time.Second))
	})
	_, err := p.Context().Await(promise.Resolved(1))
	assert.True(t, command.HasCode(err, ErrCodeNotInCoroutine))
	assert.Contains(t, p.LastTrace(), "workflow")
}

func TestProcessCollection(t *testing.T) {
	h := newHarness(t)
	p := h.start(func(ctx Context) error { return nil })
	c := NewProcessCollection()

	require.NoError(t, c.Add(p))
	assert.True(t, command.HasCode(c.Add(p), command.ErrCodeDuplicateDefinition))
	assert.Equal(t, []string{"run-1"}, c.RunIDs())

	_, err := c.Get("nope")
	assert.True(t, command.HasCode(err, command.ErrCodeProcessNotFound))
	assert.Contains(t, err.Error(), "Workflow with the specified run id nope not found")

	got, err := c.Pull("run-1")
	require.NoError(t, err)
	assert.Same(t, p, got)
	assert.Equal(t, 0, c.Len())
}

func TestEnvironmentUpdate(t *testing.T) {
	env := NewEnvironment()
	env.Update(map[string]any{
		HeaderTickTime: "2024-03-01T10:00:00Z",
		HeaderReplay:   true,
		HeaderTimeZone: "UTC",
	})
	assert.True(t, env.IsReplaying())
	assert.True(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC).Equal(env.Now()))

	env.Update(map[string]any{HeaderReplay: false, HeaderTickTime: "garbage"})
	assert.False(t, env.IsReplaying())
	assert.Equal(t, 2024, env.Now().Year())
}
