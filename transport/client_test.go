package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	command "github.com/goliatone/go-command-worker"
	"github.com/goliatone/go-command-worker/converter"
	"github.com/goliatone/go-command-worker/failure"
	"github.com/goliatone/go-command-worker/promise"
)

func newClient() (*DispatchClient, *Queue, *command.Sequence) {
	queue := NewQueue()
	seq := command.NewSequence()
	return NewDispatchClient(queue, seq), queue, seq
}

func TestRequestQueuesInIssueOrder(t *testing.T) {
	client, queue, seq := newClient()

	a := command.NewTimer(seq, time.Second)
	b := command.NewTimer(seq, 2*time.Second)
	client.Request(a)
	client.Request(b)

	assert.True(t, client.IsQueued(a))
	out := queue.Flush()
	require.Len(t, out, 2)
	assert.Equal(t, a.ID(), out[0].ID())
	assert.Equal(t, b.ID(), out[1].ID())
	assert.False(t, client.IsQueued(a))
}

func TestDuplicateRequestPanics(t *testing.T) {
	client, _, _ := newClient()
	req := command.NewTimer(command.FixedID(5), time.Second)
	client.Request(req)

	defer func() {
		r := recover()
		require.NotNil(t, r)
		assert.True(t, command.HasCode(r.(error), command.ErrCodeDuplicateRequest))
	}()
	client.Request(command.NewTimer(command.FixedID(5), time.Second))
}

func TestDispatchSuccessAndError(t *testing.T) {
	client, queue, seq := newClient()

	ok := client.Request(command.ExecuteActivity(seq, "Upper", nil, nil))
	bad := client.Request(command.ExecuteActivity(seq, "Upper", nil, nil))
	queue.Flush()

	result, err := converter.Default().ToPayloads("ABC")
	require.NoError(t, err)
	client.Dispatch(command.NewSuccessResponse(command.ReservedIDs+1, result))
	client.Dispatch(command.NewErrorResponse(command.ReservedIDs+2, 500, "boom",
		failure.Encode(failure.NewActivity("Upper", "2", failure.NewApplication("boom", "X"))).ToMap()))

	o, settled := ok.Outcome()
	require.True(t, settled)
	value, err := converter.Decode[string](o.Value().(converter.Values), 0)
	require.NoError(t, err)
	assert.Equal(t, "ABC", value)

	o, settled = bad.Outcome()
	require.True(t, settled)
	assert.True(t, o.Rejected())
	var af *failure.ActivityFailure
	assert.ErrorAs(t, o.Err(), &af)
}

func TestDispatchCanceledFailureSettlesCancelled(t *testing.T) {
	client, queue, seq := newClient()
	f := client.Request(command.NewTimer(seq, time.Second))
	queue.Flush()

	client.Dispatch(command.NewErrorResponse(command.ReservedIDs+1, 500, "canceled",
		failure.Encode(failure.NewCanceled("timer canceled")).ToMap()))

	o, _ := f.Outcome()
	assert.True(t, o.Cancelled())
}

func TestDispatchUnknownIDIsDropped(t *testing.T) {
	client, _, _ := newClient()

	assert.NotPanics(t, func() {
		client.Dispatch(command.NewSuccessResponse(424242, nil))
	})
}

func TestCancelQueuedRequestSettlesLocally(t *testing.T) {
	client, queue, seq := newClient()
	req := command.NewTimer(seq, time.Second)
	f := client.Request(req)

	cancelled := client.Cancel(req)

	assert.True(t, cancelled.IsSettled())
	o, _ := f.Outcome()
	assert.True(t, o.Cancelled())
	assert.Equal(t, 0, queue.Len())
	assert.False(t, client.IsPending(req.ID()))
}

func TestCancelSentRequestIssuesSingleCancel(t *testing.T) {
	client, queue, seq := newClient()
	req := command.NewTimer(seq, time.Second)
	f := client.Request(req)
	queue.Flush()

	first := client.Cancel(req)
	second := client.Cancel(req)
	assert.Same(t, first, second)

	out := queue.Flush()
	require.Len(t, out, 1)
	cancelReq, ok := out[0].(*command.Request)
	require.True(t, ok)
	assert.Equal(t, command.CancelName, cancelReq.Name())
	assert.Equal(t, []uint32{req.ID()}, command.CancelTargets(cancelReq))
	assert.False(t, f.IsSettled())

	canceled := failure.NewCanceled("timer canceled")
	client.Dispatch(command.NewErrorResponse(cancelReq.ID(), 500, canceled.Error(), failure.Encode(canceled).ToMap()))

	o, settled := f.Outcome()
	require.True(t, settled)
	assert.True(t, o.Cancelled())
	assert.True(t, failure.IsCanceled(o.Err()))

	// the orchestrator may still answer the original request; it is dropped
	client.Dispatch(command.NewSuccessResponse(req.ID(), nil))
}

func TestCancelAnswerDeliversOriginalResult(t *testing.T) {
	client, queue, seq := newClient()
	req := command.ExecuteActivity(seq, "Upper", nil, nil)
	f := client.Request(req)
	queue.Flush()

	client.Cancel(req)
	out := queue.Flush()
	require.Len(t, out, 1)

	result, err := converter.Default().ToPayloads("ABC")
	require.NoError(t, err)
	client.Dispatch(command.NewSuccessResponse(out[0].ID(), result))

	o, settled := f.Outcome()
	require.True(t, settled)
	require.True(t, o.Fulfilled())
	v, err := converter.Decode[string](o.Value().(converter.Values), 0)
	require.NoError(t, err)
	assert.Equal(t, "ABC", v)
	assert.False(t, client.IsPending(req.ID()))
}

func TestFutureCancelRoutesToClient(t *testing.T) {
	client, _, seq := newClient()
	f := client.Request(command.NewTimer(seq, time.Second))

	f.Cancel()

	o, _ := f.Outcome()
	assert.True(t, o.Cancelled())
}

func TestCapturedClientTracksOwnRequests(t *testing.T) {
	root, queue, seq := newClient()
	outer := NewCapturedClient(root)
	inner := NewCapturedClient(outer)
	sibling := NewCapturedClient(root)

	a := outer.Request(command.NewTimer(seq, time.Second))
	inner.Request(command.NewTimer(seq, time.Second))
	sibling.Request(command.NewTimer(seq, time.Second))
	queue.Flush()

	assert.Len(t, outer.FetchUnresolvedRequests(), 2)
	assert.Len(t, inner.FetchUnresolvedRequests(), 1)
	assert.Len(t, sibling.FetchUnresolvedRequests(), 1)
	assert.Len(t, root.FetchUnresolvedRequests(), 3)

	root.Dispatch(command.NewSuccessResponse(command.ReservedIDs+1, nil))

	assert.True(t, a.IsSettled())
	assert.Len(t, outer.FetchUnresolvedRequests(), 1)
	require.Len(t, outer.UnresolvedRequests(), 1)
	assert.Equal(t, command.ReservedIDs+2, outer.UnresolvedRequests()[0].ID())
}

func TestSequenceSkipsPendingIDs(t *testing.T) {
	queue := NewQueue()
	var client *DispatchClient
	seq := command.NewSequence(
		command.WithStart(command.MaxID-1),
		command.SkipIf(func(id uint32) bool { return client != nil && client.IsPending(id) }),
	)
	client = NewDispatchClient(queue, seq)

	first := command.NewTimer(command.FixedID(command.ReservedIDs+1), time.Second)
	client.Request(first)

	assert.Equal(t, command.MaxID, seq.Next())
	assert.Equal(t, command.ReservedIDs+2, seq.Next())
}

func TestPipeRelay(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	pipe := NewPipe(1)
	require.NoError(t, pipe.Push(ctx, Message{Body: []byte("[]")}))

	msg, err := pipe.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), msg.Body)

	require.NoError(t, pipe.Send(ctx, []byte("[1]"), nil))
	reply, err := pipe.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("[1]"), reply.Body)

	pipe.Close()
	_, err = pipe.Await(ctx)
	assert.True(t, IsRelayClosed(err))
}

var _ Client = (*DispatchClient)(nil)
var _ Client = (*CapturedClient)(nil)
var _ promise.Future = (*promise.Deferred)(nil)
