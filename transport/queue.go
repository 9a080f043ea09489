// Package transport correlates outbound requests with inbound responses.
package transport

import (
	"sync"

	command "github.com/goliatone/go-command-worker"
)

// Queue holds outbound commands until the worker flushes them. Issue order
// is kept.
type Queue struct {
	mu    sync.Mutex
	items []command.Command
}

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) Push(cmd command.Command) {
	q.mu.Lock()
	q.items = append(q.items, cmd)
	q.mu.Unlock()
}

// Pull removes and returns the queued request with id.
func (q *Queue) Pull(id uint32) (*command.Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, cmd := range q.items {
		if req, ok := cmd.(*command.Request); ok && req.ID() == id {
			q.items = append(q.items[:i:i], q.items[i+1:]...)
			return req, true
		}
	}
	return nil, false
}

// Has reports whether a request with id is still queued. Responses sharing
// an id with a queued request do not count.
func (q *Queue) Has(id uint32) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, cmd := range q.items {
		if _, ok := cmd.(*command.Request); ok && cmd.ID() == id {
			return true
		}
	}
	return false
}

// Flush empties the queue and returns its content in issue order.
func (q *Queue) Flush() []command.Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
