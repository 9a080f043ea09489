package workflow

import (
	"fmt"
	"sort"

	"github.com/goliatone/go-errors"

	command "github.com/goliatone/go-command-worker"
	"github.com/goliatone/go-command-worker/loop"
	"github.com/goliatone/go-command-worker/promise"
	"github.com/goliatone/go-command-worker/transport"
)

const ErrCodeNotInCoroutine = "NOT_IN_COROUTINE"

var (
	errCoroutineClosed = errors.New("workflow coroutine closed", errors.CategoryInternal).
				WithTextCode("COROUTINE_CLOSED")
	ErrNotInCoroutine = errors.New("await called outside of the workflow coroutine", errors.CategoryInternal).
				WithTextCode(ErrCodeNotInCoroutine)
)

// Func is workflow code run inside a scope.
type Func func(ctx Context) (any, error)

// Scope is a cancellation scope owning one coroutine. It settles once its
// coroutine returned and every child scope and in flight cancellation is
// done.
type Scope struct {
	id       int
	process  *Process
	parent   *Scope
	ctx      *scopeContext
	deferred *promise.Deferred
	co       *coroutine

	awaitLock int
	result    any
	err       error

	cancelID  int
	onCancel  map[int]func()
	detached  bool
	cancelled bool
	closed    bool
	children  []*Scope
}

func newScope(p *Process, parent *Scope, client transport.Client, detached bool) *Scope {
	s := &Scope{
		id:       p.nextScopeID(),
		process:  p,
		parent:   parent,
		deferred: promise.NewDeferred(nil),
		onCancel: make(map[int]func()),
		detached: detached,
	}
	s.ctx = &scopeContext{run: p.run, scope: s, client: transport.NewCapturedClient(client)}
	return s
}

func (s *Scope) ID() int { return s.id }

func (s *Scope) IsDetached() bool { return s.detached }

func (s *Scope) IsCancelled() bool { return s.cancelled }

// Context returns the context bound to this scope.
func (s *Scope) Context() Context { return s.ctx }

// Then implements promise.Future so scopes can be awaited.
func (s *Scope) Then(fn func(promise.Outcome)) { s.deferred.Then(fn) }

func (s *Scope) IsSettled() bool { return s.deferred.IsSettled() }

func (s *Scope) Outcome() (promise.Outcome, bool) { return s.deferred.Outcome() }

func (s *Scope) start(fn Func) {
	s.awaitLock++
	s.co = newCoroutine(fmt.Sprintf("scope-%d", s.id), func() (any, error) {
		return fn(s.ctx)
	})
	s.co.start()
	s.afterStep()
}

func (s *Scope) afterStep() {
	if s.co.isDone() {
		result, err := s.co.outcome()
		s.onResult(result, err)
	}
}

func (s *Scope) onResult(result any, err error) {
	s.result = result
	s.err = err
	s.unlock()
}

// resume continues the coroutine with o. Closed or finished scopes ignore it.
func (s *Scope) resume(o promise.Outcome) {
	if s.closed || s.co == nil || s.co.isDone() {
		return
	}
	s.co.next(o)
	s.afterStep()
}

// await suspends the coroutine until f settles. Resumption always goes
// through the loop.
func (s *Scope) await(f promise.Future) promise.Outcome {
	if s.co == nil || !s.co.isRunning() {
		return promise.Fail(ErrNotInCoroutine.Clone())
	}
	lp := s.process.services.Loop
	f.Then(func(o promise.Outcome) {
		lp.Once(loop.OnTick, func() { s.resume(o) })
	})
	return s.co.suspend()
}

func (s *Scope) unlock() {
	s.awaitLock--
	if s.awaitLock < 0 {
		panic(command.CloneError(command.ErrAwaitLockUnderflow, "", nil, map[string]any{"scope": s.id}))
	}
	if s.awaitLock > 0 {
		return
	}
	if s.err != nil {
		s.deferred.TrySettle(promise.Fail(s.err))
		return
	}
	s.deferred.TrySettle(promise.Ok(s.result))
}

func (s *Scope) addCancelHandler(fn func()) int {
	s.cancelID++
	s.onCancel[s.cancelID] = fn
	return s.cancelID
}

func (s *Scope) removeCancelHandler(id int) {
	delete(s.onCancel, id)
}

// Cancel runs the cancel handlers in registration order, once.
func (s *Scope) Cancel() {
	if s.cancelled {
		return
	}
	s.cancelled = true

	ids := make([]int, 0, len(s.onCancel))
	for id := range s.onCancel {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fn, ok := s.onCancel[id]
		if !ok {
			continue
		}
		delete(s.onCancel, id)
		fn()
	}
}

// CreateScope starts fn in a child scope. The parent does not settle before
// the child. Detached children are left alone when the parent is cancelled.
func (s *Scope) CreateScope(fn Func, detached bool) *Scope {
	child := newScope(s.process, s, s.ctx.client, detached)
	s.children = append(s.children, child)

	s.awaitLock++
	child.deferred.Then(func(promise.Outcome) { s.unlock() })
	if !detached {
		s.addCancelHandler(child.Cancel)
	}

	child.start(fn)
	return child
}

// onRequest ties a cancellable request to this scope: cancelling the scope
// cancels the request while it is pending.
func (s *Scope) onRequest(req *command.Request, f promise.Future) {
	if !req.IsCancellable() {
		return
	}
	client := s.ctx.client
	id := s.addCancelHandler(func() {
		if client.IsQueued(req) {
			client.Cancel(req)
			return
		}
		s.awaitLock++
		client.Cancel(req).Then(func(promise.Outcome) { s.unlock() })
	})
	f.Then(func(promise.Outcome) { s.removeCancelHandler(id) })
}

// Close unwinds this scope and its children without settling them.
func (s *Scope) close() {
	if s.closed {
		return
	}
	s.closed = true
	for _, child := range s.children {
		child.close()
	}
	if s.co != nil {
		s.co.close()
	}
}

// pendingLocks exposes the await lock for diagnostics.
func (s *Scope) pendingLocks() int { return s.awaitLock }
