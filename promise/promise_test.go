package promise

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	command "github.com/goliatone/go-command-worker"
	"github.com/goliatone/go-command-worker/failure"
)

func TestDeferredRunsContinuationsInOrder(t *testing.T) {
	d := NewDeferred(nil)
	var got []string

	d.Then(func(o Outcome) { got = append(got, fmt.Sprintf("a:%v", o.Value())) })
	d.Then(func(o Outcome) { got = append(got, fmt.Sprintf("b:%v", o.Value())) })
	d.Resolve(1)
	d.Then(func(o Outcome) { got = append(got, fmt.Sprintf("c:%v", o.Value())) })

	assert.Equal(t, []string{"a:1", "b:1", "c:1"}, got)
}

func TestDeferredSettlesOnce(t *testing.T) {
	d := NewDeferred(nil)
	d.Resolve("x")

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, command.HasCode(err, command.ErrCodeAlreadySettled))
	}()
	d.Reject(fmt.Errorf("late"))
}

func TestTrySettle(t *testing.T) {
	d := NewDeferred(nil)

	assert.True(t, d.TrySettle(Ok(1)))
	assert.False(t, d.TrySettle(Ok(2)))

	o, ok := d.Outcome()
	require.True(t, ok)
	assert.Equal(t, 1, o.Value())
}

func TestRejectWithCanceledFailureIsCancelled(t *testing.T) {
	d := NewDeferred(nil)
	d.Reject(failure.NewCanceled("stop"))

	o, _ := d.Outcome()
	assert.True(t, o.Cancelled())
	assert.True(t, failure.IsCanceled(o.Err()))

	r := NewDeferred(nil)
	r.Reject(fmt.Errorf("boom"))
	o, _ = r.Outcome()
	assert.True(t, o.Rejected())
}

func TestCancelCallsCancellerOnce(t *testing.T) {
	calls := 0
	d := NewDeferred(func() { calls++ })

	d.Cancel()
	d.Cancel()
	assert.Equal(t, 1, calls)

	settled := NewDeferred(func() { calls++ })
	settled.Resolve(nil)
	settled.Cancel()
	assert.Equal(t, 1, calls)
}

func TestAllKeepsArgumentOrder(t *testing.T) {
	a := NewDeferred(nil)
	b := NewDeferred(nil)
	all := All(a, b)

	b.Resolve("B")
	assert.False(t, all.IsSettled())
	a.Resolve("A")

	o, ok := all.Outcome()
	require.True(t, ok)
	assert.Equal(t, []any{"A", "B"}, o.Value())
}

func TestAllRejectsOnFirstFailure(t *testing.T) {
	a := NewDeferred(nil)
	b := NewDeferred(nil)
	all := All(a, b)

	b.Reject(fmt.Errorf("boom"))
	a.Resolve("A")

	o, _ := all.Outcome()
	assert.True(t, o.Rejected())
	assert.EqualError(t, o.Err(), "boom")
}

func TestAny(t *testing.T) {
	a := NewDeferred(nil)
	b := NewDeferred(nil)
	first := Any(a, b)

	a.Reject(fmt.Errorf("nope"))
	b.Resolve("B")

	o, _ := first.Outcome()
	assert.Equal(t, "B", o.Value())

	c := NewDeferred(nil)
	none := Any(c)
	c.Reject(fmt.Errorf("last"))
	o, _ = none.Outcome()
	assert.EqualError(t, o.Err(), "last")
}

func TestMap(t *testing.T) {
	d := NewDeferred(nil)
	upper := Map(d, func(v any) (any, error) {
		return fmt.Sprintf("%v!", v), nil
	})

	d.Resolve("done")
	o, _ := upper.Outcome()
	assert.Equal(t, "done!", o.Value())

	failed := Map(RejectedWith(fmt.Errorf("x")), func(v any) (any, error) { return v, nil })
	o, _ = failed.Outcome()
	assert.True(t, o.Rejected())
}
