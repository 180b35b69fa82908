package workflows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/fyrsmithlabs/voicesop/internal/dedup"
	"github.com/fyrsmithlabs/voicesop/internal/events"
	"github.com/fyrsmithlabs/voicesop/internal/logging"
)

type fakeRun struct {
	client.WorkflowRun
	id, runID string
}

func (r fakeRun) GetID() string    { return r.id }
func (r fakeRun) GetRunID() string { return r.runID }

type fakeStarter struct {
	opts []client.StartWorkflowOptions
	args [][]interface{}
	err  error
}

func (f *fakeStarter) ExecuteWorkflow(_ context.Context, opts client.StartWorkflowOptions, _ interface{}, args ...interface{}) (client.WorkflowRun, error) {
	f.opts = append(f.opts, opts)
	f.args = append(f.args, args)
	if f.err != nil {
		return nil, f.err
	}
	return fakeRun{id: opts.ID, runID: "run-1"}, nil
}

func TestEnqueuer_Enqueue(t *testing.T) {
	starter := &fakeStarter{}
	pub := &recordingPublisher{}
	e := NewEnqueuer(starter, "", logging.NewNop(), WithEvents(pub), WithReminderAfter(48*time.Hour))

	q, err := e.Enqueue(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, &Queued{WorkflowID: "voice-sop-call-1", RunID: "run-1"}, q)

	require.Len(t, starter.opts, 1)
	opts := starter.opts[0]
	assert.Equal(t, "voice-sop-call-1", opts.ID)
	assert.Equal(t, DefaultTaskQueue, opts.TaskQueue)
	assert.Equal(t, enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY, opts.WorkflowIDReusePolicy)
	assert.True(t, opts.WorkflowExecutionErrorWhenAlreadyStarted)

	require.Len(t, starter.args[0], 1)
	in := starter.args[0][0].(TranscriptInput)
	assert.Equal(t, 48*time.Hour, in.ReminderAfter)

	assert.Equal(t, []string{events.TypeQueued}, pub.Types())
	assert.Equal(t, "voice-sop-call-1", pub.events[0].Data["workflow_id"])
}

func TestEnqueuer_Duplicate(t *testing.T) {
	starter := &fakeStarter{err: serviceerror.NewWorkflowExecutionAlreadyStarted("already started", "", "run-0")}
	pub := &recordingPublisher{}
	e := NewEnqueuer(starter, "custom", logging.NewNop(), WithEvents(pub))

	_, err := e.Enqueue(context.Background(), sampleInput())
	assert.ErrorIs(t, err, dedup.ErrDuplicate)
	assert.Equal(t, "custom", starter.opts[0].TaskQueue)
	assert.Empty(t, pub.Types())
}

// historyStarter applies the server's workflow id reuse rules to the last
// run recorded for each id.
type historyStarter struct {
	last map[string]enumspb.WorkflowExecutionStatus
}

func (h *historyStarter) ExecuteWorkflow(_ context.Context, opts client.StartWorkflowOptions, _ interface{}, _ ...interface{}) (client.WorkflowRun, error) {
	status, seen := h.last[opts.ID]
	if seen {
		switch {
		case status == enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING,
			opts.WorkflowIDReusePolicy == enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
			opts.WorkflowIDReusePolicy == enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY &&
				status == enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
			return nil, serviceerror.NewWorkflowExecutionAlreadyStarted("already started", "", "run-0")
		}
	}
	h.last[opts.ID] = enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING
	return fakeRun{id: opts.ID, runID: "run-2"}, nil
}

func TestEnqueuer_RestartsFailedRun(t *testing.T) {
	tests := []struct {
		name    string
		prior   enumspb.WorkflowExecutionStatus
		wantErr error
	}{
		{"failed", enumspb.WORKFLOW_EXECUTION_STATUS_FAILED, nil},
		{"timed out", enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT, nil},
		{"completed", enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED, dedup.ErrDuplicate},
		{"running", enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING, dedup.ErrDuplicate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			starter := &historyStarter{last: map[string]enumspb.WorkflowExecutionStatus{
				WorkflowID("call-1"): tt.prior,
			}}
			e := NewEnqueuer(starter, "", nil)

			q, err := e.Enqueue(context.Background(), sampleInput())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "run-2", q.RunID)
		})
	}
}

func TestEnqueuer_Errors(t *testing.T) {
	starter := &fakeStarter{err: errors.New("frontend unavailable")}
	e := NewEnqueuer(starter, "", nil)

	_, err := e.Enqueue(context.Background(), sampleInput())
	require.Error(t, err)
	assert.NotErrorIs(t, err, dedup.ErrDuplicate)
	assert.Contains(t, err.Error(), "voice-sop-call-1")

	_, err = e.Enqueue(context.Background(), TranscriptInput{Transcript: "x"})
	assert.ErrorContains(t, err, "call_id is required")
}

func TestEnqueuer_ScheduleReminder(t *testing.T) {
	starter := &fakeStarter{}
	e := NewEnqueuer(starter, "", nil)

	q, err := e.ScheduleReminder(context.Background(), ReminderInput{CallID: "call-1", ContactID: "c"})
	require.NoError(t, err)
	assert.Equal(t, "voice-sop-reminder-call-1", q.WorkflowID)
}
