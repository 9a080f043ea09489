// Package worker wires the dispatch client, the route table and the
// workflow runtime into the message loop driven by the orchestrator relay.
package worker

import (
	"context"
	stderrors "errors"
	"os"
	"sync"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	command "github.com/goliatone/go-command-worker"
	"github.com/goliatone/go-command-worker/codec"
	"github.com/goliatone/go-command-worker/converter"
	"github.com/goliatone/go-command-worker/declaration"
	"github.com/goliatone/go-command-worker/failure"
	"github.com/goliatone/go-command-worker/loop"
	"github.com/goliatone/go-command-worker/promise"
	"github.com/goliatone/go-command-worker/router"
	"github.com/goliatone/go-command-worker/runner"
	"github.com/goliatone/go-command-worker/transport"
	"github.com/goliatone/go-command-worker/workflow"
)

const ErrCodeRelayUnavailable = "RELAY_UNAVAILABLE"

type Worker struct {
	mu sync.Mutex

	config    Config
	logger    command.Logger
	converter converter.DataConverter
	codec     codec.Codec

	ids    *command.Sequence
	loop   *loop.Loop
	queue  *transport.Queue
	client *transport.DispatchClient
	env    *workflow.Environment

	reader     *declaration.Reader
	workflows  *declaration.Collection[*declaration.WorkflowPrototype]
	activities *declaration.Collection[*declaration.ActivityPrototype]
	running    *workflow.ProcessCollection
	services   *workflow.Services
	router     *router.Router

	recoverPanic func(funcName string, dst *error, fields ...map[string]any)
}

type Option func(*Worker)

func WithConfig(cfg Config) Option {
	return func(w *Worker) {
		w.config = cfg
	}
}

func WithLogger(logger command.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithDataConverter(dc converter.DataConverter) Option {
	return func(w *Worker) {
		if dc != nil {
			w.converter = dc
		}
	}
}

// New builds a worker with an empty registry.
func New(opts ...Option) (*Worker, error) {
	w := &Worker{config: DefaultConfig()}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	if err := w.config.Validate(); err != nil {
		return nil, err
	}
	if w.config.Identity == "" {
		w.config.Identity = uuid.NewString()
	}
	if w.logger == nil {
		logger, err := newLogger(w.config)
		if err != nil {
			return nil, err
		}
		w.logger = logger
	}
	w.logger = command.WithLoggerFields(w.logger, map[string]any{
		"identity":   w.config.Identity,
		"task_queue": w.config.TaskQueue,
	})
	if w.converter == nil {
		w.converter = converter.Default()
	}

	w.codec = codec.GetCodec(w.config.Codec, w.converter)
	w.ids = command.NewSequence(command.SkipIf(func(id uint32) bool {
		return w.client.IsPending(id)
	}))
	w.loop = loop.New()
	w.queue = transport.NewQueue()
	w.client = transport.NewDispatchClient(w.queue, w.ids,
		transport.WithLogger(w.logger),
		transport.WithDataConverter(w.converter),
	)
	w.env = workflow.NewEnvironment()

	w.reader = declaration.NewReader(workflow.ContextType)
	w.workflows = declaration.NewCollection[*declaration.WorkflowPrototype]()
	w.activities = declaration.NewCollection[*declaration.ActivityPrototype]()
	w.running = workflow.NewProcessCollection()
	w.services = &workflow.Services{
		Loop:      w.loop,
		Client:    w.client,
		IDs:       w.ids,
		Env:       w.env,
		Converter: w.converter,
		Logger:    w.logger,
	}

	w.router = router.New(router.WithLogger(w.logger))
	w.router.Register(w.routes()...)
	w.recoverPanic = command.MakePanicHandler(command.LoggerPanicLogger(w.logger))
	return w, nil
}

func newLogger(cfg Config) (command.Logger, error) {
	if cfg.LogBackend != LogBackendZap {
		return command.NewDefaultLogger(os.Stderr, cfg.LogLevel), nil
	}
	level := cfg.LogLevel
	if level == "trace" {
		level = "debug"
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "invalid log level").
			WithTextCode(ErrCodeInvalidConfig)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := zcfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "build zap logger").
			WithTextCode(ErrCodeInvalidConfig)
	}
	return command.WrapZap(logger), nil
}

func (w *Worker) Config() Config { return w.config }

func (w *Worker) Router() *router.Router { return w.router }

func (w *Worker) Running() *workflow.ProcessCollection { return w.running }

func (w *Worker) Environment() *workflow.Environment { return w.env }

func (w *Worker) Codec() codec.Codec { return w.codec }

func (w *Worker) RegisterWorkflow(def declaration.WorkflowDefinition) error {
	proto, err := w.reader.Workflow(def)
	if err != nil {
		return err
	}
	return w.workflows.Add(proto)
}

func (w *Worker) RegisterActivity(def declaration.ActivityDefinition) error {
	proto, err := w.reader.Activity(def)
	if err != nil {
		return err
	}
	return w.activities.Add(proto)
}

// RegisterActivities registers every activity method of obj, each named
// prefix plus the method name.
func (w *Worker) RegisterActivities(obj any, prefix string) error {
	protos, err := w.reader.Activities(obj, prefix)
	if err != nil {
		return err
	}
	for _, p := range protos {
		if err := w.activities.Add(p); err != nil {
			return err
		}
	}
	return nil
}

// Handle processes one inbound message and returns the encoded batch to
// send back. Errors are protocol errors: nothing was routed. A panic drops
// whatever the message queued; a broken dispatch rule is panicked again.
func (w *Worker) Handle(ctx context.Context, msg transport.Message) (body []byte, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	defer w.abortOnViolation(&err)
	defer w.recoverPanic("worker.Handle", &err)

	w.env.Update(msg.Headers)

	cmds, err := w.codec.Decode(msg.Body)
	if err != nil {
		return nil, err
	}

	for _, cmd := range cmds {
		switch c := cmd.(type) {
		case *command.Request:
			w.dispatch(ctx, c, msg.Headers)
		default:
			w.client.Dispatch(c)
		}
	}

	w.loop.Run()
	return w.codec.Encode(w.queue.Flush())
}

func (w *Worker) abortOnViolation(err *error) {
	var perr *command.PanicError
	if !stderrors.As(*err, &perr) {
		return
	}
	if dropped := w.queue.Flush(); len(dropped) > 0 {
		w.logger.Warn("dropped %d queued commands after panic", len(dropped))
	}
	if cause, ok := perr.Value.(error); ok && command.IsInvariantViolation(cause) {
		w.logger.Error("dispatch invariant violated: %v", cause)
		panic(cause)
	}
}

func (w *Worker) dispatch(ctx context.Context, req *command.Request, headers map[string]any) {
	w.router.Dispatch(ctx, req, headers).Then(func(o promise.Outcome) {
		w.queue.Push(w.respond(req, o))
	})
}

func (w *Worker) respond(req *command.Request, o promise.Outcome) command.Command {
	if o.Fulfilled() {
		values, err := converter.ToValues(w.converter, o.Value())
		if err == nil {
			return command.NewSuccessResponse(req.ID(), values.Payloads())
		}
		o = promise.Fail(err)
	}

	err := o.Err()
	w.logger.Debug("request %s#%d failed: %v", req.Name(), req.ID(), err)
	return command.NewErrorResponse(req.ID(), command.HTTPStatus(err), errorMessage(err), failure.Encode(err).ToMap())
}

func errorMessage(err error) string {
	var ge *errors.Error
	if stderrors.As(err, &ge) && ge.Message != "" {
		return ge.Message
	}
	return err.Error()
}

// Run serves relay until it is closed or ctx ends. Protocol errors fail
// the message they came with and are reported through the relay. Broken
// dispatch rules panic out of Run.
func (w *Worker) Run(ctx context.Context, relay transport.Relay) error {
	cfg := w.config.Relay
	awaiter := runner.NewHandler(
		runner.WithName("relay"),
		runner.WithLogger(w.logger),
		runner.WithMaxRetries(cfg.MaxRetries),
		runner.WithRetryStrategy(relayBackoff{runner.ExponentialBackoffStrategy{
			Base:   cfg.RetryBase,
			Factor: 2,
			Max:    cfg.RetryMax,
		}}),
		runner.WithErrorHandler(func(err error) {
			if !transport.IsRelayClosed(err) {
				w.logger.Warn("relay await failed: %v", err)
			}
		}),
	)

	w.logger.Info("worker serving task queue %s", w.config.TaskQueue)
	for {
		msg, err := runner.Call(ctx, awaiter, relay.Await)
		switch {
		case err == nil:
		case transport.IsRelayClosed(err):
			w.logger.Info("relay closed, worker stopping")
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return errors.Wrap(err, errors.CategoryExternal, "relay unavailable").
				WithTextCode(ErrCodeRelayUnavailable)
		}

		body, err := w.Handle(ctx, msg)
		if err != nil {
			w.logger.Error("message rejected: %v", err)
			err = relay.Error(ctx, err)
		} else {
			err = relay.Send(ctx, body, nil)
		}
		if err != nil {
			if transport.IsRelayClosed(err) {
				return nil
			}
			return err
		}
	}
}

// relayBackoff retries transient relay failures and gives up once the relay
// is closed.
type relayBackoff struct {
	runner.ExponentialBackoffStrategy
}

func (b relayBackoff) DecideRetry(attempt int, err error) runner.RetryDecision {
	if transport.IsRelayClosed(err) {
		return runner.RetryDecision{}
	}
	return runner.RetryDecision{
		ShouldRetry: true,
		Delay:       b.SleepDuration(attempt, err),
		Metadata:    map[string]any{"attempt": attempt + 1},
	}
}
