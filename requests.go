package command

import (
	"time"
)

// Request names understood by the orchestrator.
const (
	ExecuteActivityName           = "ExecuteActivity"
	NewTimerName                  = "NewTimer"
	SideEffectName                = "SideEffect"
	GetVersionName                = "GetVersion"
	SignalExternalWorkflowName    = "SignalExternalWorkflow"
	CancelExternalWorkflowName    = "CancelExternalWorkflow"
	ExecuteChildWorkflowName      = "ExecuteChildWorkflow"
	GetChildWorkflowExecutionName = "GetChildWorkflowExecution"
	CompleteWorkflowName          = "CompleteWorkflow"
	ContinueAsNewName             = "ContinueAsNew"
	CancelName                    = "Cancel"
)

func isCancellableName(name string) bool {
	switch name {
	case NewTimerName, ExecuteActivityName, ExecuteChildWorkflowName, SignalExternalWorkflowName:
		return true
	}
	return false
}

// IDGenerator hands out request ids.
type IDGenerator interface {
	Next() uint32
}

// FixedID always returns the same id, handy for manual commands.
type FixedID uint32

func (f FixedID) Next() uint32 { return uint32(f) }

// ExecuteActivity schedules an activity by name.
func ExecuteActivity(ids IDGenerator, name string, args Payloads, options map[string]any) *Request {
	return NewRequest(ids.Next(), ExecuteActivityName, map[string]any{
		"name":    name,
		"options": orEmpty(options),
		ParamArgs: orNoPayloads(args),
	})
}

// NewTimer starts a durable timer; the duration travels as milliseconds.
func NewTimer(ids IDGenerator, d time.Duration) *Request {
	return NewRequest(ids.Next(), NewTimerName, map[string]any{
		"ms": d.Milliseconds(),
	})
}

// SideEffect records a value computed on first execution.
func SideEffect(ids IDGenerator, value Payloads) *Request {
	return NewRequest(ids.Next(), SideEffectName, map[string]any{
		ParamArgs: orNoPayloads(value),
	})
}

func GetVersion(ids IDGenerator, changeID string, minSupported, maxSupported int64) *Request {
	return NewRequest(ids.Next(), GetVersionName, map[string]any{
		"changeID":     changeID,
		"minSupported": minSupported,
		"maxSupported": maxSupported,
	})
}

func SignalExternalWorkflow(ids IDGenerator, namespace, workflowID, runID, signal string, args Payloads, childWorkflowOnly bool) *Request {
	return NewRequest(ids.Next(), SignalExternalWorkflowName, map[string]any{
		"namespace":         namespace,
		"workflowID":        workflowID,
		"runID":             runID,
		"signal":            signal,
		"childWorkflowOnly": childWorkflowOnly,
		ParamArgs:           orNoPayloads(args),
	})
}

func CancelExternalWorkflow(ids IDGenerator, namespace, workflowID, runID string) *Request {
	return NewRequest(ids.Next(), CancelExternalWorkflowName, map[string]any{
		"namespace":  namespace,
		"workflowID": workflowID,
		"runID":      runID,
	})
}

func ExecuteChildWorkflow(ids IDGenerator, name string, args Payloads, options map[string]any) *Request {
	return NewRequest(ids.Next(), ExecuteChildWorkflowName, map[string]any{
		"name":    name,
		"options": orEmpty(options),
		ParamArgs: orNoPayloads(args),
	})
}

// GetChildWorkflowExecution resolves with the execution of a started child.
func GetChildWorkflowExecution(ids IDGenerator, child *Request) *Request {
	return NewRequest(ids.Next(), GetChildWorkflowExecutionName, map[string]any{
		"id": int64(child.ID()),
	})
}

// CompleteWorkflow finishes the run with either a result or a failure
// object. A nil failure omits the key.
func CompleteWorkflow(ids IDGenerator, result Payloads, failure any) *Request {
	params := map[string]any{
		ParamResult: orNoPayloads(result),
	}
	if failure != nil {
		params["failure"] = failure
	}
	return NewRequest(ids.Next(), CompleteWorkflowName, params)
}

func ContinueAsNew(ids IDGenerator, name string, args Payloads, options map[string]any) *Request {
	return NewRequest(ids.Next(), ContinueAsNewName, map[string]any{
		"name":    name,
		"options": orEmpty(options),
		ParamArgs: orNoPayloads(args),
	})
}

// Cancel asks the orchestrator to cancel previously sent requests.
func Cancel(ids IDGenerator, targets ...uint32) *Request {
	list := make([]any, 0, len(targets))
	for _, id := range targets {
		list = append(list, int64(id))
	}
	return NewRequest(ids.Next(), CancelName, map[string]any{
		"ids": list,
	})
}

// CancelTargets returns the ids carried by a Cancel request.
func CancelTargets(req *Request) []uint32 {
	raw, _ := req.Param("ids")
	list, _ := raw.([]any)
	out := make([]uint32, 0, len(list))
	for _, v := range list {
		if id, ok := ToUint32(v); ok {
			out = append(out, id)
		}
	}
	return out
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func orNoPayloads(p Payloads) Payloads {
	if p == nil {
		return Payloads{}
	}
	return p
}

// ToUint32 converts decoded numeric values into a command id.
func ToUint32(v any) (uint32, bool) {
	n, ok := ToInt64(v)
	if !ok || n < 0 || n > int64(MaxID) {
		return 0, false
	}
	return uint32(n), true
}

// ToInt64 accepts the integer kinds produced by the wire decoders.
func ToInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > uint64(1<<63-1) {
			return 0, false
		}
		return int64(n), true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case float32:
		if n != float32(int64(n)) {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}
