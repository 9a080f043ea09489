package workflow

import (
	"encoding/json"
	"time"

	command "github.com/goliatone/go-command-worker"
	"github.com/goliatone/go-command-worker/converter"
)

// Execution identifies one run of a workflow.
type Execution struct {
	ID    string `json:"ID"`
	RunID string `json:"RunID"`
}

type Type struct {
	Name string `json:"Name"`
}

// Info describes the running workflow as reported by the orchestrator.
type Info struct {
	WorkflowExecution        Execution      `json:"WorkflowExecution"`
	WorkflowType             Type           `json:"WorkflowType"`
	TaskQueueName            string         `json:"TaskQueueName"`
	WorkflowExecutionTimeout time.Duration  `json:"WorkflowExecutionTimeout"`
	WorkflowRunTimeout       time.Duration  `json:"WorkflowRunTimeout"`
	WorkflowTaskTimeout      time.Duration  `json:"WorkflowTaskTimeout"`
	Namespace                string         `json:"Namespace"`
	Attempt                  int            `json:"Attempt"`
	CronSchedule             string         `json:"CronSchedule,omitempty"`
	ContinuedExecutionRunID  string         `json:"ContinuedExecutionRunID,omitempty"`
	ParentWorkflowNamespace  string         `json:"ParentWorkflowNamespace,omitempty"`
	ParentWorkflowExecution  *Execution     `json:"ParentWorkflowExecution,omitempty"`
	Memo                     map[string]any `json:"Memo,omitempty"`
	SearchAttributes         map[string]any `json:"SearchAttributes,omitempty"`
	BinaryChecksum           string         `json:"BinaryChecksum,omitempty"`
}

// Input is the decoded payload of a StartWorkflow request.
type Input struct {
	Info *Info
	Args converter.Values
}

// InputFromRequest reads the workflow info and arguments of req.
func InputFromRequest(req *command.Request, dc converter.DataConverter) (*Input, error) {
	raw, ok := req.Param("info")
	if !ok {
		return nil, command.NewMalformedError("StartWorkflow requires an %q param", "info")
	}
	info, err := decodeInfo(raw)
	if err != nil {
		return nil, err
	}
	if info.WorkflowExecution.RunID == "" {
		return nil, command.NewMalformedError("workflow info must carry a run id")
	}
	if info.Attempt == 0 {
		info.Attempt = 1
	}
	return &Input{
		Info: info,
		Args: converter.NewEncodedValues(req.Payloads(), dc),
	}, nil
}

func decodeInfo(raw any) (*Info, error) {
	if info, ok := raw.(*Info); ok {
		return info, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, command.CloneError(command.ErrMalformedCommand, "workflow info is not encodable", err, nil)
	}
	info := &Info{}
	if err := json.Unmarshal(data, info); err != nil {
		return nil, command.CloneError(command.ErrMalformedCommand, "workflow info is malformed", err, nil)
	}
	return info, nil
}
