// Package runner executes activity handlers with timeouts, panic capture and
// optional local retries.
package runner

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-errors"

	command "github.com/goliatone/go-command-worker"
)

const ErrCodeRunFailed = "RUN_FAILED"

type Handler struct {
	mu sync.Mutex

	name          string
	logger        command.Logger
	errorHandler  func(error)
	retryStrategy RetryStrategy
	recoverPanic  func(funcName string, dst *error, fields ...map[string]any)

	runs           int
	successfulRuns int

	maxRetries int
	timeout    time.Duration
	deadline   time.Time
}

// NewHandler constructs a Runner from various options, applying defaults if unset.
func NewHandler(opts ...Option) *Handler {
	r := &Handler{
		name:          "runner",
		logger:        command.NopLogger{},
		retryStrategy: NoDelayStrategy{},
	}
	for _, o := range opts {
		if o != nil {
			o(r)
		}
	}
	if r.errorHandler == nil {
		logger := r.logger
		r.errorHandler = func(err error) {
			logger.Warn("runner error: %v", err)
		}
	}
	r.recoverPanic = command.MakePanicHandler(command.LoggerPanicLogger(r.logger))
	return r
}

func (h *Handler) Name() string { return h.name }

// Run calls fn until it succeeds or the retry budget is spent and returns
// the last error.
func (h *Handler) Run(ctx context.Context, fn func(context.Context) error) error {
	h.mu.Lock()
	maxRetries := h.maxRetries
	strategy := h.retryStrategy
	h.mu.Unlock()

	ctx, cancel := h.contextWithSettings(ctx)
	defer cancel()

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = h.attempt(ctx, fn)
		if err == nil || attempt == maxRetries || !retryable(err) || ctx.Err() != nil {
			break
		}

		decision := DecideRetry(strategy, attempt, err)
		h.handleError(errors.Wrap(err, errors.CategoryHandler,
			fmt.Sprintf("runner %s failed, attempt %d of %d", h.name, attempt+1, maxRetries+1)).
			WithTextCode(ErrCodeRunFailed).
			WithMetadata(decision.Metadata))
		if !decision.ShouldRetry {
			break
		}
		if !sleep(ctx, decision.Delay) {
			break
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.runs++

	if err == nil {
		h.successfulRuns++
	} else {
		h.handleError(errors.Wrap(err, errors.CategoryHandler,
			fmt.Sprintf("runner %s failed after %d attempts", h.name, maxRetries+1)).
			WithTextCode(ErrCodeRunFailed))
	}
	return err
}

// Runs returns the number of finished runs and how many succeeded.
func (h *Handler) Runs() (runs, successful int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs, h.successfulRuns
}

func (h *Handler) attempt(ctx context.Context, fn func(context.Context) error) (err error) {
	defer h.recoverPanic(h.name, &err)
	return fn(ctx)
}

func (h *Handler) handleError(err error) {
	h.errorHandler(err)
}

func (h *Handler) contextWithSettings(parent context.Context) (context.Context, context.CancelFunc) {
	switch {
	case h.timeout != 0 && !h.deadline.IsZero():
		ctx, cancelTimeout := context.WithTimeout(parent, h.timeout)
		ctxDeadline, cancelDeadline := context.WithDeadline(ctx, h.deadline)
		return ctxDeadline, func() {
			cancelDeadline()
			cancelTimeout()
		}
	case h.timeout != 0:
		return context.WithTimeout(parent, h.timeout)
	case !h.deadline.IsZero():
		return context.WithDeadline(parent, h.deadline)
	default:
		return parent, func() {}
	}
}

// Call runs fn through h and returns its result.
func Call[R any](ctx context.Context, h *Handler, fn func(context.Context) (R, error)) (R, error) {
	var result R
	err := h.Run(ctx, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}

func retryable(err error) bool {
	var re *errors.RetryableError
	if stderrors.As(err, &re) {
		return re.IsRetryable()
	}
	var pe *command.PanicError
	return !stderrors.As(err, &pe)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
