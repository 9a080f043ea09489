// Package failure holds the typed failures exchanged with the orchestrator.
package failure

import (
	stderrors "errors"
	"fmt"

	"github.com/goliatone/go-command-worker/converter"
)

// Kind tags a failure on the wire.
type Kind string

const (
	KindApplication   Kind = "application"
	KindActivity      Kind = "activity"
	KindChildWorkflow Kind = "childWorkflow"
	KindCanceled      Kind = "canceled"
	KindTimeout       Kind = "timeout"
	KindTerminated    Kind = "terminated"
	KindServer        Kind = "server"
)

// Failure is implemented by every typed failure.
type Failure interface {
	error
	Kind() Kind
	StackTrace() string
}

type base struct {
	message    string
	source     string
	stackTrace string
	cause      error
}

func (b *base) StackTrace() string { return b.stackTrace }

func (b *base) Source() string { return b.source }

func (b *base) Message() string { return b.message }

func (b *base) Unwrap() error { return b.cause }

func (b *base) describe(prefix string) string {
	msg := prefix
	if b.message != "" {
		if msg != "" {
			msg += ": "
		}
		msg += b.message
	}
	if b.cause != nil {
		msg += ": " + b.cause.Error()
	}
	return msg
}

// ApplicationFailure is raised by workflow or activity code.
type ApplicationFailure struct {
	base
	errType      string
	nonRetryable bool
	details      converter.Values
}

func NewApplication(message, errType string) *ApplicationFailure {
	return &ApplicationFailure{base: base{message: message}, errType: errType}
}

func (f *ApplicationFailure) Kind() Kind { return KindApplication }

func (f *ApplicationFailure) Type() string { return f.errType }

func (f *ApplicationFailure) NonRetryable() bool { return f.nonRetryable }

func (f *ApplicationFailure) Details() converter.Values { return valuesOrEmpty(f.details) }

func (f *ApplicationFailure) WithNonRetryable(v bool) *ApplicationFailure {
	f.nonRetryable = v
	return f
}

func (f *ApplicationFailure) WithDetails(details converter.Values) *ApplicationFailure {
	f.details = details
	return f
}

func (f *ApplicationFailure) WithCause(cause error) *ApplicationFailure {
	f.cause = cause
	return f
}

func (f *ApplicationFailure) WithStackTrace(stack string) *ApplicationFailure {
	f.stackTrace = stack
	return f
}

func (f *ApplicationFailure) Error() string {
	if f.errType != "" {
		return f.describe("") + fmt.Sprintf(" (type: %s, nonRetryable: %t)", f.errType, f.nonRetryable)
	}
	return f.describe("")
}

// ActivityFailure wraps the failure of a scheduled activity.
type ActivityFailure struct {
	base
	ActivityType string
	ActivityID   string
	Identity     string
	RetryState   string
}

func NewActivity(activityType, activityID string, cause error) *ActivityFailure {
	return &ActivityFailure{
		base:         base{message: "activity error", cause: cause},
		ActivityType: activityType,
		ActivityID:   activityID,
	}
}

func (f *ActivityFailure) Kind() Kind { return KindActivity }

func (f *ActivityFailure) Error() string {
	return fmt.Sprintf("activity error (type: %s, id: %s)", f.ActivityType, f.ActivityID) + causeSuffix(f.cause)
}

// ChildWorkflowFailure wraps the failure of a child workflow.
type ChildWorkflowFailure struct {
	base
	Namespace    string
	WorkflowType string
	WorkflowID   string
	RunID        string
	RetryState   string
}

func NewChildWorkflow(namespace, workflowType, workflowID, runID string, cause error) *ChildWorkflowFailure {
	return &ChildWorkflowFailure{
		base:         base{message: "child workflow error", cause: cause},
		Namespace:    namespace,
		WorkflowType: workflowType,
		WorkflowID:   workflowID,
		RunID:        runID,
	}
}

func (f *ChildWorkflowFailure) Kind() Kind { return KindChildWorkflow }

func (f *ChildWorkflowFailure) Error() string {
	return fmt.Sprintf("child workflow error (type: %s, workflowID: %s, runID: %s)", f.WorkflowType, f.WorkflowID, f.RunID) +
		causeSuffix(f.cause)
}

// CanceledFailure reports a cancelled command, scope or workflow.
type CanceledFailure struct {
	base
	details converter.Values
}

func NewCanceled(message string) *CanceledFailure {
	if message == "" {
		message = "canceled"
	}
	return &CanceledFailure{base: base{message: message}}
}

func (f *CanceledFailure) Kind() Kind { return KindCanceled }

func (f *CanceledFailure) Details() converter.Values { return valuesOrEmpty(f.details) }

func (f *CanceledFailure) WithDetails(details converter.Values) *CanceledFailure {
	f.details = details
	return f
}

func (f *CanceledFailure) Error() string { return f.describe("") }

// TimeoutFailure reports an expired timeout.
type TimeoutFailure struct {
	base
	TimeoutType          string
	LastHeartbeatDetails converter.Values
}

func NewTimeout(message, timeoutType string) *TimeoutFailure {
	return &TimeoutFailure{base: base{message: message}, TimeoutType: timeoutType}
}

func (f *TimeoutFailure) Kind() Kind { return KindTimeout }

func (f *TimeoutFailure) Error() string {
	return f.describe("timeout") + fmt.Sprintf(" (type: %s)", f.TimeoutType)
}

// TerminatedFailure reports an externally terminated workflow.
type TerminatedFailure struct {
	base
}

func NewTerminated(message string) *TerminatedFailure {
	return &TerminatedFailure{base: base{message: message}}
}

func (f *TerminatedFailure) Kind() Kind { return KindTerminated }

func (f *TerminatedFailure) Error() string { return f.describe("terminated") }

// ServerFailure is raised by the orchestrator itself.
type ServerFailure struct {
	base
	NonRetryable bool
}

func NewServer(message string, nonRetryable bool) *ServerFailure {
	return &ServerFailure{base: base{message: message}, NonRetryable: nonRetryable}
}

func (f *ServerFailure) Kind() Kind { return KindServer }

func (f *ServerFailure) Error() string { return f.describe("server error") }

// IsCanceled reports whether err is or wraps a CanceledFailure.
func IsCanceled(err error) bool {
	var cf *CanceledFailure
	return stderrors.As(err, &cf)
}

func causeSuffix(cause error) string {
	if cause == nil {
		return ""
	}
	return ": " + cause.Error()
}

func valuesOrEmpty(v converter.Values) converter.Values {
	if v == nil {
		return converter.Empty()
	}
	return v
}
