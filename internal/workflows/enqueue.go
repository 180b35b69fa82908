package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voicesop/internal/dedup"
	"github.com/fyrsmithlabs/voicesop/internal/events"
	"github.com/fyrsmithlabs/voicesop/internal/logging"
	"github.com/fyrsmithlabs/voicesop/internal/metrics"
)

// WorkflowID returns the id of the transcript workflow for a call. Reusing
// it is rejected, so a call is processed at most once.
func WorkflowID(callID string) string {
	return "voice-sop-" + callID
}

// ReminderWorkflowID returns the id of the reminder workflow for a call.
func ReminderWorkflowID(callID string) string {
	return "voice-sop-reminder-" + callID
}

// Starter starts workflow executions. client.Client satisfies it.
type Starter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// Queued identifies a started workflow.
type Queued struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

// Enqueuer hands transcripts to the Temporal worker.
type Enqueuer struct {
	starter       Starter
	taskQueue     string
	reminderAfter time.Duration
	events        events.Publisher
	metrics       *metrics.Metrics
	logger        *logging.Logger
}

// EnqueuerOption configures an Enqueuer.
type EnqueuerOption func(*Enqueuer)

// WithReminderAfter schedules a reminder that long after each delivery.
func WithReminderAfter(d time.Duration) EnqueuerOption {
	return func(e *Enqueuer) { e.reminderAfter = d }
}

// WithEvents publishes a queued event for each started workflow.
func WithEvents(p events.Publisher) EnqueuerOption {
	return func(e *Enqueuer) { e.events = p }
}

// WithMetrics counts rejected duplicates.
func WithMetrics(m *metrics.Metrics) EnqueuerOption {
	return func(e *Enqueuer) { e.metrics = m }
}

// NewEnqueuer returns an enqueuer targeting taskQueue, or DefaultTaskQueue
// when empty.
func NewEnqueuer(starter Starter, taskQueue string, logger *logging.Logger, opts ...EnqueuerOption) *Enqueuer {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	e := &Enqueuer{
		starter:   starter,
		taskQueue: taskQueue,
		events:    events.Nop{},
		logger:    logger.Named("enqueuer"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enqueue starts ProcessTranscriptWorkflow for in. A call whose workflow is
// running or completed returns dedup.ErrDuplicate; a call whose last run
// failed starts again.
func (e *Enqueuer) Enqueue(ctx context.Context, in TranscriptInput) (*Queued, error) {
	if in.CallID == "" {
		return nil, errors.New("call_id is required")
	}
	ctx = logging.WithCallID(ctx, in.CallID)
	if in.ReminderAfter == 0 {
		in.ReminderAfter = e.reminderAfter
	}

	opts := client.StartWorkflowOptions{
		ID:                                       WorkflowID(in.CallID),
		TaskQueue:                                e.taskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}
	run, err := e.starter.ExecuteWorkflow(ctx, opts, ProcessTranscriptWorkflow, in)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			e.metrics.RecordDuplicate()
			e.logger.Info(ctx, "duplicate call ignored", zap.String("workflow_id", opts.ID))
			return nil, dedup.ErrDuplicate
		}
		e.logger.Error(ctx, "failed to start workflow", zap.Error(err))
		return nil, fmt.Errorf("starting workflow %s: %w", opts.ID, err)
	}

	q := &Queued{WorkflowID: run.GetID(), RunID: run.GetRunID()}
	e.logger.Info(ctx, "transcript queued",
		zap.String("workflow_id", q.WorkflowID),
		zap.String("run_id", q.RunID))
	if err := e.events.Publish(ctx, events.New(events.TypeQueued, in.CallID, "queued", map[string]any{
		"workflow_id": q.WorkflowID,
	})); err != nil {
		e.logger.Warn(ctx, "failed to publish pipeline event", zap.String("type", events.TypeQueued), zap.Error(err))
	}
	return q, nil
}

// ScheduleReminder starts SendReminderWorkflow directly.
func (e *Enqueuer) ScheduleReminder(ctx context.Context, in ReminderInput) (*Queued, error) {
	opts := client.StartWorkflowOptions{TaskQueue: e.taskQueue}
	if in.CallID != "" {
		opts.ID = ReminderWorkflowID(in.CallID)
	}
	run, err := e.starter.ExecuteWorkflow(ctx, opts, SendReminderWorkflow, in)
	if err != nil {
		return nil, fmt.Errorf("starting reminder %s: %w", opts.ID, err)
	}
	return &Queued{WorkflowID: run.GetID(), RunID: run.GetRunID()}, nil
}
