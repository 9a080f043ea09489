// Package promise provides single-assignment futures settled with a tagged
// outcome: fulfilled, rejected or cancelled.
package promise

import (
	"fmt"
	"sync"

	command "github.com/goliatone/go-command-worker"
	"github.com/goliatone/go-command-worker/failure"
)

type State int

const (
	Pending State = iota
	Fulfilled
	Rejected
	Cancelled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Outcome is the settled state of a future.
type Outcome struct {
	state State
	value any
	err   error
}

func Ok(value any) Outcome {
	return Outcome{state: Fulfilled, value: value}
}

// Fail builds a rejection. Canceled failures become a Cancelled outcome.
func Fail(err error) Outcome {
	if err == nil {
		err = failure.NewApplication("rejected without error", "")
	}
	if failure.IsCanceled(err) {
		return Outcome{state: Cancelled, err: err}
	}
	return Outcome{state: Rejected, err: err}
}

// Canceled builds a Cancelled outcome carrying a canceled failure.
func Canceled(message string) Outcome {
	return Outcome{state: Cancelled, err: failure.NewCanceled(message)}
}

func (o Outcome) State() State { return o.state }

func (o Outcome) Value() any { return o.value }

// Err is nil for fulfilled outcomes and the canceled failure for cancelled
// ones.
func (o Outcome) Err() error { return o.err }

func (o Outcome) Fulfilled() bool { return o.state == Fulfilled }

func (o Outcome) Rejected() bool { return o.state == Rejected }

func (o Outcome) Cancelled() bool { return o.state == Cancelled }

// Future is the read side of a Deferred.
type Future interface {
	// Then attaches a continuation. Continuations run immediately when the
	// future is already settled, otherwise in registration order.
	Then(fn func(Outcome))
	// Cancel asks the producer to cancel. No-op once settled.
	Cancel()
	IsSettled() bool
	Outcome() (Outcome, bool)
}

// Deferred settles exactly once.
type Deferred struct {
	mu        sync.Mutex
	settled   bool
	outcome   Outcome
	callbacks []func(Outcome)
	canceller func()
	cancelled bool
}

// NewDeferred creates a pending deferred. canceller runs at most once, on the
// first Cancel of a pending future.
func NewDeferred(canceller func()) *Deferred {
	return &Deferred{canceller: canceller}
}

func (d *Deferred) Future() Future { return d }

func (d *Deferred) Resolve(value any) {
	d.Settle(Ok(value))
}

func (d *Deferred) Reject(err error) {
	d.Settle(Fail(err))
}

// Settle completes the deferred. Settling twice panics.
func (d *Deferred) Settle(o Outcome) {
	if !d.settle(o) {
		d.mu.Lock()
		prev := d.outcome.state
		d.mu.Unlock()
		panic(command.CloneError(command.ErrAlreadySettled, "", nil,
			map[string]any{"state": prev.String(), "next": o.state.String()}))
	}
}

// TrySettle settles when still pending and reports whether it did.
func (d *Deferred) TrySettle(o Outcome) bool {
	return d.settle(o)
}

func (d *Deferred) settle(o Outcome) bool {
	if o.state == Pending {
		panic(command.CloneError(command.ErrAlreadySettled, "cannot settle with a pending outcome", nil, nil))
	}

	d.mu.Lock()
	if d.settled {
		d.mu.Unlock()
		return false
	}
	d.settled = true
	d.outcome = o
	callbacks := d.callbacks
	d.callbacks = nil
	d.mu.Unlock()

	for _, fn := range callbacks {
		fn(o)
	}
	return true
}

func (d *Deferred) Then(fn func(Outcome)) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	if d.settled {
		o := d.outcome
		d.mu.Unlock()
		fn(o)
		return
	}
	d.callbacks = append(d.callbacks, fn)
	d.mu.Unlock()
}

func (d *Deferred) Cancel() {
	d.mu.Lock()
	if d.settled || d.cancelled {
		d.mu.Unlock()
		return
	}
	d.cancelled = true
	canceller := d.canceller
	d.mu.Unlock()

	if canceller != nil {
		canceller()
	}
}

func (d *Deferred) IsSettled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settled
}

func (d *Deferred) Outcome() (Outcome, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outcome, d.settled
}

// Resolved returns an already fulfilled future.
func Resolved(value any) Future {
	d := NewDeferred(nil)
	d.Resolve(value)
	return d
}

// RejectedWith returns an already rejected (or cancelled) future.
func RejectedWith(err error) Future {
	d := NewDeferred(nil)
	d.Reject(err)
	return d
}

// Settled returns a future already settled with o.
func Settled(o Outcome) Future {
	d := NewDeferred(nil)
	d.Settle(o)
	return d
}
