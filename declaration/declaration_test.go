package declaration

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	command "github.com/goliatone/go-command-worker"
	"github.com/goliatone/go-command-worker/converter"
)

type fakeContext interface {
	RunID() string
}

type runCtx struct{ id string }

func (c runCtx) RunID() string { return c.id }

var fakeContextType = reflect.TypeOf((*fakeContext)(nil)).Elem()

func GreetingWorkflow(ctx fakeContext, name string, times int) (string, error) {
	return ctx.RunID() + ":" + strings.Repeat(name, times), nil
}

type textActivities struct{}

func (textActivities) Upper(ctx context.Context, s string) (string, error) {
	return strings.ToUpper(s), nil
}

func (textActivities) Fail(ctx context.Context) error {
	return errors.New("always")
}

func (textActivities) Helper(s string) string { return s }

func TestReaderWorkflowDefaultsNameAndInvokes(t *testing.T) {
	r := NewReader(fakeContextType)

	p, err := r.Workflow(WorkflowDefinition{
		Func:    GreetingWorkflow,
		Signals: map[string]any{"add": func(ctx fakeContext, n int) error { return nil }},
		Queries: map[string]any{"count": func() (int, error) { return 3, nil }},
	})
	require.NoError(t, err)
	assert.Equal(t, "GreetingWorkflow", p.Name())
	assert.Equal(t, []string{"add"}, p.SignalNames())
	assert.Equal(t, []string{"count"}, p.QueryNames())

	args, err := converter.FromValues(nil, "ab", 2)
	require.NoError(t, err)

	out, err := p.Handler().Invoke(runCtx{id: "r1"}, args)
	require.NoError(t, err)
	assert.Equal(t, "r1:abab", out)
}

func TestReaderRejectsInvalidWorkflows(t *testing.T) {
	r := NewReader(fakeContextType)

	tests := []struct {
		name string
		def  WorkflowDefinition
	}{
		{"not a function", WorkflowDefinition{Name: "x", Func: 42}},
		{"missing context", WorkflowDefinition{Name: "x", Func: func(s string) error { return nil }}},
		{"bad returns", WorkflowDefinition{Name: "x", Func: func(ctx fakeContext) (int, int) { return 0, 0 }}},
		{"variadic", WorkflowDefinition{Name: "x", Func: func(ctx fakeContext, v ...int) error { return nil }}},
		{"query without value", WorkflowDefinition{
			Name:    "x",
			Func:    func(ctx fakeContext) error { return nil },
			Queries: map[string]any{"q": func() error { return nil }},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Workflow(tt.def)
			require.Error(t, err)
			assert.True(t, command.HasCode(err, command.ErrCodeInvalidDefinition))
		})
	}
}

func TestReaderActivitiesFromMethods(t *testing.T) {
	r := NewReader(fakeContextType)

	protos, err := r.Activities(textActivities{}, "Text.")
	require.NoError(t, err)

	names := make([]string, 0, len(protos))
	for _, p := range protos {
		names = append(names, p.Name())
	}
	assert.ElementsMatch(t, []string{"Text.Upper", "Text.Fail"}, names)

	for _, p := range protos {
		if p.Name() != "Text.Upper" {
			continue
		}
		args, _ := converter.FromValues(nil, "abc")
		out, err := p.Handler().Invoke(context.Background(), args)
		require.NoError(t, err)
		assert.Equal(t, "ABC", out)
	}
}

func TestHandlerRawValuesAndMissingArgs(t *testing.T) {
	raw, err := NewHandler("raw", func(v converter.Values) int { return v.Len() }, nil)
	require.NoError(t, err)

	args, _ := converter.FromValues(nil, 1, 2, 3)
	out, err := raw.Invoke(nil, args)
	require.NoError(t, err)
	assert.Equal(t, 3, out)

	zero, err := NewHandler("zero", func(s string, n int) (string, error) {
		return s, nil
	}, nil)
	require.NoError(t, err)
	out, err = zero.Invoke(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "", out)

	_, err = zero.Invoke(nil, converter.NewEncodedValues(mustPayloads(t, 5), nil))
	require.Error(t, err)
	assert.True(t, command.HasCode(err, converter.ErrCodeConversion))
}

func TestCollectionRejectsDuplicates(t *testing.T) {
	r := NewReader(fakeContextType)
	c := NewCollection[*ActivityPrototype]()

	p, err := r.Activity(ActivityDefinition{Name: "Upper", Func: textActivities{}.Upper})
	require.NoError(t, err)

	require.NoError(t, c.Add(p))
	err = c.Add(p)
	require.Error(t, err)
	assert.True(t, command.HasCode(err, command.ErrCodeDuplicateDefinition))

	got, ok := c.Get("Upper")
	assert.True(t, ok)
	assert.Same(t, p, got)
	assert.Equal(t, []string{"Upper"}, c.Names())
}

func TestInstanceExtendsPrototype(t *testing.T) {
	r := NewReader(fakeContextType)
	p, err := r.Workflow(WorkflowDefinition{
		Name:    "wf",
		Func:    func(ctx fakeContext) error { return nil },
		Signals: map[string]any{"static": func() {}},
	})
	require.NoError(t, err)

	first := NewInstance(p)
	second := NewInstance(p)

	h, err := NewHandler("dynamic", func(ctx fakeContext) error { return nil }, fakeContextType)
	require.NoError(t, err)
	first.AddSignalHandler(h)

	assert.Equal(t, []string{"dynamic", "static"}, first.SignalNames())
	assert.Equal(t, []string{"static"}, second.SignalNames())

	_, ok := second.SignalHandler("dynamic")
	assert.False(t, ok)
}

func mustPayloads(t *testing.T, values ...any) command.Payloads {
	t.Helper()
	p, err := converter.Default().ToPayloads(values...)
	require.NoError(t, err)
	return p
}
