package failure

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	command "github.com/goliatone/go-command-worker"
	"github.com/goliatone/go-command-worker/converter"
)

func TestEncodeDecodePreservesNesting(t *testing.T) {
	details, err := converter.FromValues(nil, "detail")
	require.NoError(t, err)

	app := NewApplication("boom", "RuntimeException").WithNonRetryable(true).WithDetails(details)
	chain := NewChildWorkflow("default", "Parent", "wid", "rid", NewActivity("Upper", "7", app))

	info := Encode(chain)
	require.NotNil(t, info)
	assert.Equal(t, KindChildWorkflow, info.Kind)
	require.NotNil(t, info.Cause)
	assert.Equal(t, KindActivity, info.Cause.Kind)
	require.NotNil(t, info.Cause.Cause)
	assert.Equal(t, KindApplication, info.Cause.Cause.Kind)

	decoded := Decode(info, converter.Default())

	var child *ChildWorkflowFailure
	require.ErrorAs(t, decoded, &child)
	assert.Equal(t, "wid", child.WorkflowID)

	var activity *ActivityFailure
	require.ErrorAs(t, decoded, &activity)
	assert.Equal(t, "Upper", activity.ActivityType)

	var appFailure *ApplicationFailure
	require.ErrorAs(t, decoded, &appFailure)
	assert.Equal(t, "RuntimeException", appFailure.Type())
	assert.True(t, appFailure.NonRetryable())

	detail, err := converter.Decode[string](appFailure.Details(), 0)
	require.NoError(t, err)
	assert.Equal(t, "detail", detail)
}

func TestInfoMapRoundTrip(t *testing.T) {
	info := Encode(NewTimeout("slow", "StartToClose"))

	m := info.ToMap()
	assert.Equal(t, "timeout", m["kind"])

	back, ok := InfoFromMap(m)
	require.True(t, ok)
	assert.Equal(t, info, back)
}

func TestFromErrorResponse(t *testing.T) {
	t.Run("failure object", func(t *testing.T) {
		data := Encode(NewCanceled("stop")).ToMap()

		err := FromErrorResponse(500, "ignored", data, nil)
		assert.True(t, IsCanceled(err))
	})

	t.Run("plain data falls back to application failure", func(t *testing.T) {
		err := FromErrorResponse(404, "not found", "nope", nil)

		var app *ApplicationFailure
		require.ErrorAs(t, err, &app)
		assert.Equal(t, "not found", app.Message())
		assert.Equal(t, "ErrorResponse(404)", app.Type())
	})
}

func TestEncodeForeignErrors(t *testing.T) {
	t.Run("go-errors text code", func(t *testing.T) {
		info := Encode(command.NewProcessNotFoundError("r1"))
		assert.Equal(t, KindApplication, info.Kind)
		assert.Equal(t, command.ErrCodeProcessNotFound, info.Type)
	})

	t.Run("non retryable", func(t *testing.T) {
		info := Encode(errors.NewNonRetryable("bad input", errors.CategoryBadInput))
		assert.True(t, info.NonRetryable)
	})

	t.Run("panic keeps stack", func(t *testing.T) {
		info := Encode(&command.PanicError{Func: "wf", Value: "boom", Stack: []byte("trace")})
		assert.Equal(t, "PanicError", info.Type)
		assert.Equal(t, "trace", info.StackTrace)
	})

	t.Run("wrapped typed cause", func(t *testing.T) {
		info := Encode(fmt.Errorf("await: %w", NewCanceled("stop")))
		require.NotNil(t, info.Cause)
		assert.Equal(t, KindCanceled, info.Cause.Kind)
	})
}

func TestIsCanceledThroughChain(t *testing.T) {
	err := NewActivity("Upper", "1", NewCanceled(""))

	assert.True(t, IsCanceled(err))
	assert.False(t, IsCanceled(NewApplication("x", "")))
	assert.False(t, IsCanceled(stderrors.New("x")))
}
