package transport

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/goliatone/go-errors"

	command "github.com/goliatone/go-command-worker"
)

const ErrCodeRelayClosed = "RELAY_CLOSED"

var ErrRelayClosed = errors.New("relay closed", errors.CategoryExternal).
	WithTextCode(ErrCodeRelayClosed)

// Message is one inbound frame from the sidecar.
type Message struct {
	Body    []byte
	Headers map[string]any
}

// Relay moves message bodies between the worker and the orchestrator
// sidecar. Framing of the underlying stream is the relay's concern.
type Relay interface {
	Await(ctx context.Context) (Message, error)
	Send(ctx context.Context, body []byte, headers map[string]any) error
	Error(ctx context.Context, err error) error
}

// Reply is what the worker wrote back for one message.
type Reply struct {
	Body    []byte
	Headers map[string]any
	Err     error
}

// Pipe is an in-memory relay. The worker side uses the Relay methods, the
// orchestrator side uses Push and Receive.
type Pipe struct {
	in        chan Message
	out       chan Reply
	done      chan struct{}
	closeOnce sync.Once
}

func NewPipe(buffer int) *Pipe {
	return &Pipe{
		in:   make(chan Message, buffer),
		out:  make(chan Reply, buffer),
		done: make(chan struct{}),
	}
}

func (p *Pipe) Await(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-p.done:
		return Message{}, ErrRelayClosed.Clone()
	case msg := <-p.in:
		return msg, nil
	}
}

func (p *Pipe) Send(ctx context.Context, body []byte, headers map[string]any) error {
	return p.reply(ctx, Reply{Body: body, Headers: headers})
}

func (p *Pipe) Error(ctx context.Context, err error) error {
	return p.reply(ctx, Reply{Err: err})
}

func (p *Pipe) reply(ctx context.Context, r Reply) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrRelayClosed.Clone()
	case p.out <- r:
		return nil
	}
}

// Push delivers a message to the worker side.
func (p *Pipe) Push(ctx context.Context, msg Message) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrRelayClosed.Clone()
	case p.in <- msg:
		return nil
	}
}

// Receive waits for the worker's reply to a pushed message.
func (p *Pipe) Receive(ctx context.Context) (Reply, error) {
	select {
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	case r := <-p.out:
		return r, nil
	}
}

// Close makes pending and future Await calls fail with ErrRelayClosed.
func (p *Pipe) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

// IsRelayClosed reports whether err, or an error it wraps, signals a closed
// relay.
func IsRelayClosed(err error) bool {
	for ; err != nil; err = stderrors.Unwrap(err) {
		if command.HasCode(err, ErrCodeRelayClosed) {
			return true
		}
	}
	return false
}
