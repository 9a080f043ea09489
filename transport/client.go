package transport

import (
	"fmt"
	"sync"

	command "github.com/goliatone/go-command-worker"
	"github.com/goliatone/go-command-worker/converter"
	"github.com/goliatone/go-command-worker/failure"
	"github.com/goliatone/go-command-worker/promise"
)

// Client issues requests and settles their futures when responses arrive.
type Client interface {
	Request(req *command.Request) promise.Future
	IsQueued(cmd command.Command) bool
	Cancel(cmd command.Command) promise.Future
	Dispatch(resp command.Command)
	FetchUnresolvedRequests() map[uint32]promise.Future
}

type pendingRequest struct {
	req      *command.Request
	deferred *promise.Deferred
}

// DispatchClient is the root client shared by every workflow run of a worker.
type DispatchClient struct {
	mu         sync.Mutex
	queue      *Queue
	ids        command.IDGenerator
	converter  converter.DataConverter
	logger     command.Logger
	pending    map[uint32]*pendingRequest
	cancelling map[uint32]promise.Future
}

// ClientOption configures a DispatchClient.
type ClientOption func(*DispatchClient)

func WithLogger(logger command.Logger) ClientOption {
	return func(c *DispatchClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithDataConverter(dc converter.DataConverter) ClientOption {
	return func(c *DispatchClient) {
		if dc != nil {
			c.converter = dc
		}
	}
}

// NewDispatchClient builds a root client writing to queue. ids is used for
// the Cancel requests the client issues itself.
func NewDispatchClient(queue *Queue, ids command.IDGenerator, opts ...ClientOption) *DispatchClient {
	c := &DispatchClient{
		queue:      queue,
		ids:        ids,
		converter:  converter.Default(),
		logger:     command.NopLogger{},
		pending:    make(map[uint32]*pendingRequest),
		cancelling: make(map[uint32]promise.Future),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Request registers req and queues it. Registering an id twice is a fatal
// dispatch error and panics.
func (c *DispatchClient) Request(req *command.Request) promise.Future {
	id := req.ID()

	c.mu.Lock()
	if _, dup := c.pending[id]; dup {
		c.mu.Unlock()
		panic(command.NewDuplicateRequestError(id))
	}
	d := promise.NewDeferred(func() { c.Cancel(req) })
	c.pending[id] = &pendingRequest{req: req, deferred: d}
	c.mu.Unlock()

	c.queue.Push(req)
	c.logger.Trace("queued request %s", req)
	return d
}

// IsPending reports whether a request with id awaits a response.
func (c *DispatchClient) IsPending(id uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	return ok
}

func (c *DispatchClient) IsQueued(cmd command.Command) bool {
	return c.queue.Has(cmd.ID())
}

// Cancel cancels a pending request. A request still in the queue is pulled
// and settles as cancelled right away. A request already sent gets a Cancel
// request; the orchestrator answers it with the final outcome of the
// original, which settles the original future as is. Cancel is idempotent.
func (c *DispatchClient) Cancel(cmd command.Command) promise.Future {
	id := cmd.ID()

	c.mu.Lock()
	entry, ok := c.pending[id]
	if !ok {
		c.mu.Unlock()
		return promise.Resolved(nil)
	}
	if f, inFlight := c.cancelling[id]; inFlight {
		c.mu.Unlock()
		return f
	}
	if _, queued := c.queue.Pull(id); queued {
		delete(c.pending, id)
		c.mu.Unlock()

		c.logger.Debug("cancelled queued request %s", entry.req)
		entry.deferred.TrySettle(promise.Canceled(fmt.Sprintf("%s canceled before dispatch", entry.req.Name())))
		return promise.Resolved(nil)
	}
	c.mu.Unlock()

	cancelReq := command.Cancel(c.ids, id)
	f := c.Request(cancelReq)

	c.mu.Lock()
	if !f.IsSettled() {
		c.cancelling[id] = f
	}
	c.mu.Unlock()

	f.Then(func(o promise.Outcome) {
		c.mu.Lock()
		delete(c.cancelling, id)
		original, still := c.pending[id]
		if still {
			delete(c.pending, id)
		}
		c.mu.Unlock()

		if still {
			original.deferred.TrySettle(o)
		}
	})
	return f
}

// Dispatch settles the future of the request a response refers to.
// Responses for unknown ids are dropped.
func (c *DispatchClient) Dispatch(resp command.Command) {
	id := resp.ID()

	c.mu.Lock()
	entry, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("dropping response for unknown command %d", id)
		return
	}

	switch r := resp.(type) {
	case *command.SuccessResponse:
		entry.deferred.TrySettle(promise.Ok(converter.NewEncodedValues(r.Result(), c.converter)))
	case *command.ErrorResponse:
		err := failure.FromErrorResponse(r.Code(), r.Message(), r.Data(), c.converter)
		entry.deferred.TrySettle(promise.Fail(err))
	default:
		c.logger.Warn("unexpected command %T dispatched as response for %d", resp, id)
		entry.deferred.TrySettle(promise.Fail(command.NewMalformedError("unexpected response type %T", resp)))
	}
}

// Forget drops a pending request without settling it. Late responses for
// it are dropped like any unknown id.
func (c *DispatchClient) Forget(cmd command.Command) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := cmd.ID()
	if _, ok := c.pending[id]; !ok {
		return false
	}
	delete(c.pending, id)
	delete(c.cancelling, id)
	c.queue.Pull(id)
	return true
}

// FetchUnresolvedRequests returns every pending request future.
func (c *DispatchClient) FetchUnresolvedRequests() map[uint32]promise.Future {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[uint32]promise.Future, len(c.pending))
	for id, entry := range c.pending {
		out[id] = entry.deferred
	}
	return out
}

// PendingRequest returns the pending request with id.
func (c *DispatchClient) PendingRequest(id uint32) (*command.Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.pending[id]
	if !ok {
		return nil, false
	}
	return entry.req, true
}
