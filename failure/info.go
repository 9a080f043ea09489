package failure

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-errors"

	command "github.com/goliatone/go-command-worker"
	"github.com/goliatone/go-command-worker/converter"
)

// Source marks failures produced by this worker.
const Source = "GoSDK"

// Info is the wire representation of a failure chain.
type Info struct {
	Message      string           `json:"message"`
	Source       string           `json:"source,omitempty"`
	StackTrace   string           `json:"stackTrace,omitempty"`
	Kind         Kind             `json:"kind"`
	Type         string           `json:"type,omitempty"`
	NonRetryable bool             `json:"nonRetryable,omitempty"`
	Details      command.Payloads `json:"details,omitempty"`

	ActivityType string `json:"activityType,omitempty"`
	ActivityID   string `json:"activityID,omitempty"`
	Identity     string `json:"identity,omitempty"`
	RetryState   string `json:"retryState,omitempty"`

	Namespace    string `json:"namespace,omitempty"`
	WorkflowType string `json:"workflowType,omitempty"`
	WorkflowID   string `json:"workflowID,omitempty"`
	RunID        string `json:"runID,omitempty"`

	TimeoutType string `json:"timeoutType,omitempty"`

	Cause *Info `json:"cause,omitempty"`
}

// ToMap renders the info as a generic map for the wire codecs.
func (i *Info) ToMap() map[string]any {
	if i == nil {
		return nil
	}
	raw, err := json.Marshal(i)
	if err != nil {
		return map[string]any{"message": i.Message, "kind": string(i.Kind)}
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"message": i.Message, "kind": string(i.Kind)}
	}
	return out
}

// InfoFromMap reads an Info out of a decoded wire object. It reports false
// when the object does not look like a failure.
func InfoFromMap(data any) (*Info, bool) {
	m, ok := data.(map[string]any)
	if !ok {
		return nil, false
	}
	if _, hasKind := m["kind"]; !hasKind {
		return nil, false
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, false
	}
	info := &Info{}
	if err := json.Unmarshal(raw, info); err != nil {
		return nil, false
	}
	return info, true
}

// Encode converts an error chain into its wire shape.
func Encode(err error) *Info {
	if err == nil {
		return nil
	}

	switch f := err.(type) {
	case *ApplicationFailure:
		return &Info{
			Message:      f.message,
			Source:       sourceOf(&f.base),
			StackTrace:   f.stackTrace,
			Kind:         KindApplication,
			Type:         f.errType,
			NonRetryable: f.nonRetryable,
			Details:      payloadsOf(f.details),
			Cause:        Encode(f.cause),
		}
	case *ActivityFailure:
		return &Info{
			Message:      f.message,
			Source:       sourceOf(&f.base),
			StackTrace:   f.stackTrace,
			Kind:         KindActivity,
			ActivityType: f.ActivityType,
			ActivityID:   f.ActivityID,
			Identity:     f.Identity,
			RetryState:   f.RetryState,
			Cause:        Encode(f.cause),
		}
	case *ChildWorkflowFailure:
		return &Info{
			Message:      f.message,
			Source:       sourceOf(&f.base),
			StackTrace:   f.stackTrace,
			Kind:         KindChildWorkflow,
			Namespace:    f.Namespace,
			WorkflowType: f.WorkflowType,
			WorkflowID:   f.WorkflowID,
			RunID:        f.RunID,
			RetryState:   f.RetryState,
			Cause:        Encode(f.cause),
		}
	case *CanceledFailure:
		return &Info{
			Message:    f.message,
			Source:     sourceOf(&f.base),
			StackTrace: f.stackTrace,
			Kind:       KindCanceled,
			Details:    payloadsOf(f.details),
			Cause:      Encode(f.cause),
		}
	case *TimeoutFailure:
		return &Info{
			Message:     f.message,
			Source:      sourceOf(&f.base),
			StackTrace:  f.stackTrace,
			Kind:        KindTimeout,
			TimeoutType: f.TimeoutType,
			Details:     payloadsOf(f.LastHeartbeatDetails),
			Cause:       Encode(f.cause),
		}
	case *TerminatedFailure:
		return &Info{
			Message:    f.message,
			Source:     sourceOf(&f.base),
			StackTrace: f.stackTrace,
			Kind:       KindTerminated,
			Cause:      Encode(f.cause),
		}
	case *ServerFailure:
		return &Info{
			Message:      f.message,
			Source:       sourceOf(&f.base),
			StackTrace:   f.stackTrace,
			Kind:         KindServer,
			NonRetryable: f.NonRetryable,
			Cause:        Encode(f.cause),
		}
	}

	return encodeForeign(err)
}

// encodeForeign turns an arbitrary error into an application failure,
// keeping typed failures found further down the chain as the cause.
func encodeForeign(err error) *Info {
	info := &Info{
		Message: err.Error(),
		Source:  Source,
		Kind:    KindApplication,
		Type:    strings.TrimPrefix(fmt.Sprintf("%T", err), "*"),
	}

	var perr *command.PanicError
	if stderrors.As(err, &perr) {
		info.Type = "PanicError"
		info.StackTrace = string(perr.Stack)
	}

	var retryable *errors.RetryableError
	if stderrors.As(err, &retryable) {
		info.NonRetryable = !retryable.IsRetryable()
	}

	var ge *errors.Error
	if stderrors.As(err, &ge) {
		if ge.TextCode != "" {
			info.Type = ge.TextCode
		} else {
			info.Type = string(ge.Category)
		}
	}

	if inner := stderrors.Unwrap(err); inner != nil {
		var typed Failure
		if stderrors.As(inner, &typed) {
			info.Cause = Encode(typed)
		}
	}
	return info
}

// Decode rebuilds the typed failure chain. dc decodes details lazily and may
// be nil.
func Decode(info *Info, dc converter.DataConverter) error {
	if info == nil {
		return nil
	}

	b := base{
		message:    info.Message,
		source:     info.Source,
		stackTrace: info.StackTrace,
		cause:      Decode(info.Cause, dc),
	}

	switch info.Kind {
	case KindActivity:
		return &ActivityFailure{
			base:         b,
			ActivityType: info.ActivityType,
			ActivityID:   info.ActivityID,
			Identity:     info.Identity,
			RetryState:   info.RetryState,
		}
	case KindChildWorkflow:
		return &ChildWorkflowFailure{
			base:         b,
			Namespace:    info.Namespace,
			WorkflowType: info.WorkflowType,
			WorkflowID:   info.WorkflowID,
			RunID:        info.RunID,
			RetryState:   info.RetryState,
		}
	case KindCanceled:
		return &CanceledFailure{base: b, details: valuesOf(info.Details, dc)}
	case KindTimeout:
		return &TimeoutFailure{base: b, TimeoutType: info.TimeoutType, LastHeartbeatDetails: valuesOf(info.Details, dc)}
	case KindTerminated:
		return &TerminatedFailure{base: b}
	case KindServer:
		return &ServerFailure{base: b, NonRetryable: info.NonRetryable}
	}

	return &ApplicationFailure{
		base:         b,
		errType:      info.Type,
		nonRetryable: info.NonRetryable,
		details:      valuesOf(info.Details, dc),
	}
}

// FromErrorResponse builds the failure for an error response. Data that is
// not a failure object yields a plain application failure.
func FromErrorResponse(code uint32, message string, data any, dc converter.DataConverter) error {
	if info, ok := InfoFromMap(data); ok {
		if info.Message == "" {
			info.Message = message
		}
		return Decode(info, dc)
	}
	f := NewApplication(message, "")
	if code > 0 {
		f.errType = fmt.Sprintf("ErrorResponse(%d)", code)
	}
	return f
}

func sourceOf(b *base) string {
	if b.source != "" {
		return b.source
	}
	return Source
}

func payloadsOf(v converter.Values) command.Payloads {
	if v == nil {
		return nil
	}
	return v.Payloads()
}

func valuesOf(p command.Payloads, dc converter.DataConverter) converter.Values {
	if len(p) == 0 {
		return nil
	}
	return converter.NewEncodedValues(p, dc)
}
