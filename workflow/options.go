package workflow

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	command "github.com/goliatone/go-command-worker"
)

// Parent close policies for child workflows.
const (
	ParentClosePolicyTerminate     = 1
	ParentClosePolicyAbandon       = 2
	ParentClosePolicyRequestCancel = 3
)

// Workflow id reuse policies.
const (
	WorkflowIDReusePolicyAllowDuplicate           = 1
	WorkflowIDReusePolicyAllowDuplicateFailedOnly = 2
	WorkflowIDReusePolicyRejectDuplicate          = 3
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// RetryPolicy is forwarded to the orchestrator as is.
type RetryPolicy struct {
	InitialInterval        time.Duration
	BackoffCoefficient     float64
	MaximumInterval        time.Duration
	MaximumAttempts        int
	NonRetryableErrorTypes []string
}

func (p *RetryPolicy) toMap() map[string]any {
	if p == nil {
		return nil
	}
	types := make([]any, 0, len(p.NonRetryableErrorTypes))
	for _, t := range p.NonRetryableErrorTypes {
		types = append(types, t)
	}
	return map[string]any{
		"initial_interval":          int64(p.InitialInterval),
		"backoff_coefficient":       p.BackoffCoefficient,
		"maximum_interval":          int64(p.MaximumInterval),
		"maximum_attempts":          int64(p.MaximumAttempts),
		"non_retryable_error_types": types,
	}
}

// ActivityOptions configures one activity invocation.
type ActivityOptions struct {
	TaskQueue              string
	ScheduleToCloseTimeout time.Duration
	ScheduleToStartTimeout time.Duration
	StartToCloseTimeout    time.Duration
	HeartbeatTimeout       time.Duration
	WaitForCancellation    bool
	ActivityID             string
	RetryPolicy            *RetryPolicy
}

func (o ActivityOptions) toMap() map[string]any {
	m := map[string]any{
		"TaskQueueName":          o.TaskQueue,
		"ScheduleToCloseTimeout": int64(o.ScheduleToCloseTimeout),
		"ScheduleToStartTimeout": int64(o.ScheduleToStartTimeout),
		"StartToCloseTimeout":    int64(o.StartToCloseTimeout),
		"HeartbeatTimeout":       int64(o.HeartbeatTimeout),
		"WaitForCancellation":    o.WaitForCancellation,
		"ActivityID":             o.ActivityID,
	}
	if rp := o.RetryPolicy.toMap(); rp != nil {
		m["RetryPolicy"] = rp
	}
	return m
}

// ChildWorkflowOptions configures a child workflow started by a parent run.
type ChildWorkflowOptions struct {
	Namespace                string
	WorkflowID               string
	TaskQueue                string
	WorkflowExecutionTimeout time.Duration
	WorkflowRunTimeout       time.Duration
	WorkflowTaskTimeout      time.Duration
	WaitForCancellation      bool
	WorkflowIDReusePolicy    int
	RetryPolicy              *RetryPolicy
	CronSchedule             string
	ParentClosePolicy        int
	Memo                     map[string]any
	SearchAttributes         map[string]any
}

// Validate checks the cron schedule when one is set.
func (o ChildWorkflowOptions) Validate() error {
	if o.CronSchedule == "" {
		return nil
	}
	if _, err := cronParser.Parse(o.CronSchedule); err != nil {
		return command.CloneError(command.ErrInvalidDefinition,
			fmt.Sprintf("invalid cron schedule %q", o.CronSchedule), err,
			map[string]any{"cron_schedule": o.CronSchedule})
	}
	return nil
}

func (o ChildWorkflowOptions) toMap() map[string]any {
	reuse := o.WorkflowIDReusePolicy
	if reuse == 0 {
		reuse = WorkflowIDReusePolicyAllowDuplicateFailedOnly
	}
	closePolicy := o.ParentClosePolicy
	if closePolicy == 0 {
		closePolicy = ParentClosePolicyTerminate
	}
	m := map[string]any{
		"Namespace":                o.Namespace,
		"WorkflowID":               o.WorkflowID,
		"TaskQueueName":            o.TaskQueue,
		"WorkflowExecutionTimeout": int64(o.WorkflowExecutionTimeout),
		"WorkflowRunTimeout":       int64(o.WorkflowRunTimeout),
		"WorkflowTaskTimeout":      int64(o.WorkflowTaskTimeout),
		"WaitForCancellation":      o.WaitForCancellation,
		"WorkflowIDReusePolicy":    int64(reuse),
		"CronSchedule":             o.CronSchedule,
		"ParentClosePolicy":        int64(closePolicy),
	}
	if rp := o.RetryPolicy.toMap(); rp != nil {
		m["RetryPolicy"] = rp
	}
	if len(o.Memo) > 0 {
		m["Memo"] = o.Memo
	}
	if len(o.SearchAttributes) > 0 {
		m["SearchAttributes"] = o.SearchAttributes
	}
	return m
}

// ContinueAsNewOptions overrides the settings of the next run.
type ContinueAsNewOptions struct {
	TaskQueue           string
	WorkflowRunTimeout  time.Duration
	WorkflowTaskTimeout time.Duration
}

func (o ContinueAsNewOptions) toMap() map[string]any {
	return map[string]any{
		"TaskQueueName":       o.TaskQueue,
		"WorkflowRunTimeout":  int64(o.WorkflowRunTimeout),
		"WorkflowTaskTimeout": int64(o.WorkflowTaskTimeout),
	}
}
