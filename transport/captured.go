package transport

import (
	"sync"

	command "github.com/goliatone/go-command-worker"
	"github.com/goliatone/go-command-worker/promise"
)

// CapturedClient is a view over a parent client that remembers the requests
// issued through it until they settle.
type CapturedClient struct {
	parent Client
	mu     sync.Mutex
	issued map[uint32]*command.Request
	order  []uint32
	open   map[uint32]promise.Future
}

func NewCapturedClient(parent Client) *CapturedClient {
	return &CapturedClient{
		parent: parent,
		issued: make(map[uint32]*command.Request),
		open:   make(map[uint32]promise.Future),
	}
}

func (c *CapturedClient) Request(req *command.Request) promise.Future {
	f := c.parent.Request(req)
	id := req.ID()

	c.mu.Lock()
	c.issued[id] = req
	c.open[id] = f
	c.order = append(c.order, id)
	c.mu.Unlock()

	f.Then(func(promise.Outcome) {
		c.mu.Lock()
		delete(c.open, id)
		delete(c.issued, id)
		c.mu.Unlock()
	})
	return f
}

func (c *CapturedClient) IsQueued(cmd command.Command) bool {
	return c.parent.IsQueued(cmd)
}

func (c *CapturedClient) Cancel(cmd command.Command) promise.Future {
	return c.parent.Cancel(cmd)
}

func (c *CapturedClient) Dispatch(resp command.Command) {
	c.parent.Dispatch(resp)
}

// FetchUnresolvedRequests returns the pending requests issued through this
// view only.
func (c *CapturedClient) FetchUnresolvedRequests() map[uint32]promise.Future {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[uint32]promise.Future, len(c.open))
	for id, f := range c.open {
		out[id] = f
	}
	return out
}

// UnresolvedRequests returns the pending requests of this view in issue
// order.
func (c *CapturedClient) UnresolvedRequests() []*command.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*command.Request, 0, len(c.issued))
	live := c.order[:0]
	for _, id := range c.order {
		if req, ok := c.issued[id]; ok {
			out = append(out, req)
			live = append(live, id)
		}
	}
	c.order = live
	return out
}

// Len counts the pending requests of this view.
func (c *CapturedClient) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.open)
}
