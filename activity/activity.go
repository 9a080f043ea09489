// Package activity exposes the invocation details of a running activity to
// its handler.
package activity

import (
	"context"
	"encoding/json"
	"time"

	command "github.com/goliatone/go-command-worker"
)

type WorkflowExecution struct {
	ID    string `json:"ID"`
	RunID string `json:"RunID"`
}

type Type struct {
	Name string `json:"Name"`
}

// Info describes one activity attempt as sent by the orchestrator.
type Info struct {
	TaskToken         []byte            `json:"TaskToken,omitempty"`
	WorkflowType      *Type             `json:"WorkflowType,omitempty"`
	WorkflowNamespace string            `json:"WorkflowNamespace,omitempty"`
	WorkflowExecution WorkflowExecution `json:"WorkflowExecution"`
	ActivityID        string            `json:"ActivityID"`
	ActivityType      Type              `json:"ActivityType"`
	TaskQueue         string            `json:"TaskQueue"`
	HeartbeatTimeout  time.Duration     `json:"HeartbeatTimeout"`
	ScheduledTime     time.Time         `json:"ScheduledTime"`
	StartedTime       time.Time         `json:"StartedTime"`
	Deadline          time.Time         `json:"Deadline"`
	Attempt           int32             `json:"Attempt"`
}

type infoKey struct{}

// WithInfo stores info in ctx.
func WithInfo(ctx context.Context, info *Info) context.Context {
	return context.WithValue(ctx, infoKey{}, info)
}

// GetInfo returns the activity info stored in ctx, or an empty one.
func GetInfo(ctx context.Context) *Info {
	if info, ok := ctx.Value(infoKey{}).(*Info); ok && info != nil {
		return info
	}
	return &Info{}
}

// HasInfo reports whether ctx belongs to an activity invocation.
func HasInfo(ctx context.Context) bool {
	_, ok := ctx.Value(infoKey{}).(*Info)
	return ok
}

// InfoFromParam decodes the "info" param of an InvokeActivity request.
func InfoFromParam(raw any) (*Info, error) {
	if info, ok := raw.(*Info); ok {
		return info, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, command.CloneError(command.ErrMalformedCommand, "activity info is not encodable", err, nil)
	}
	info := &Info{}
	if err := json.Unmarshal(data, info); err != nil {
		return nil, command.CloneError(command.ErrMalformedCommand, "activity info is malformed", err, nil)
	}
	if info.ActivityType.Name == "" {
		return nil, command.NewMalformedError("activity info must name the activity type")
	}
	if info.Attempt == 0 {
		info.Attempt = 1
	}
	return info, nil
}
