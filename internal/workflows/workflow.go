package workflows

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/fyrsmithlabs/voicesop/internal/gdocs"
	"github.com/fyrsmithlabs/voicesop/internal/ghl"
	"github.com/fyrsmithlabs/voicesop/internal/pipeline"
	"github.com/fyrsmithlabs/voicesop/internal/store"
)

// Activity timeouts and attempts.
const (
	activityTimeout    = 2 * time.Minute
	defaultAttempts    = 3
	generationAttempts = 2
)

func activityOptions(attempts int32) workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: activityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    attempts,
		},
	}
}

// ProcessTranscriptWorkflow turns a transcript into a delivered Google Doc.
//
// Steps run in order: save the conversation, generate the SOP, create the
// document, record it, deliver it through the CRM and mark the
// conversation completed. A failure after the conversation is saved marks
// it failed before the error is returned.
func ProcessTranscriptWorkflow(ctx workflow.Context, in TranscriptInput) (*TranscriptResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Processing transcript", "call_id", in.CallID)

	if in.CallID == "" {
		return nil, temporal.NewNonRetryableApplicationError("call_id is required", "ValidationError", nil)
	}
	if strings.TrimSpace(in.Transcript) == "" {
		return nil, temporal.NewNonRetryableApplicationError(pipeline.ErrMissingTranscript.Error(), "ValidationError", nil)
	}

	started := workflow.Now(ctx)
	ctx = workflow.WithActivityOptions(ctx, activityOptions(defaultAttempts))

	var a *Activities
	if err := workflow.ExecuteActivity(ctx, a.SaveConversation, in).Get(ctx, nil); err != nil {
		logger.Error("Failed to save conversation", "call_id", in.CallID, "error", err)
		return nil, &pipeline.StepError{Step: pipeline.StepSaveConversation, Policy: pipeline.Abort, Err: err}
	}

	result, err := deliver(ctx, in)
	if err != nil {
		logger.Error("Error processing transcript async", "call_id", in.CallID, "error", err)
		// The workflow may have been cancelled; the status update must still run.
		dctx, _ := workflow.NewDisconnectedContext(ctx)
		mark(dctx, MarkInput{
			CallID:    in.CallID,
			Status:    store.ConversationFailed,
			StartedAt: started,
			Error:     failureMessage(err),
		})
		return nil, err
	}

	mark(ctx, MarkInput{CallID: in.CallID, Status: store.ConversationCompleted, StartedAt: started})

	if in.ReminderAfter > 0 && result.Delivery != nil && result.Delivery.SMSSent {
		scheduleReminder(ctx, ReminderInput{
			CallID:      in.CallID,
			ContactID:   in.Customer.ContactID,
			DocumentURL: result.DocumentURL,
			Title:       result.title,
			Delay:       in.ReminderAfter,
		})
	}

	logger.Info("Successfully processed transcript", "call_id", in.CallID, "document_url", result.DocumentURL)
	return &result.TranscriptResult, nil
}

type delivered struct {
	TranscriptResult
	title string
}

func deliver(ctx workflow.Context, in TranscriptInput) (*delivered, error) {
	var a *Activities

	var content string
	genCtx := workflow.WithActivityOptions(ctx, activityOptions(generationAttempts))
	err := workflow.ExecuteActivity(genCtx, a.GenerateSOP, GenerateInput{
		CallID:     in.CallID,
		Transcript: in.Transcript,
		Customer:   in.Customer,
	}).Get(ctx, &content)
	if err != nil {
		return nil, stepFailed(ctx, pipeline.StepGenerate, err)
	}

	var doc gdocs.Document
	err = workflow.ExecuteActivity(ctx, a.CreateDocument, CreateDocumentInput{
		CallID:  in.CallID,
		Title:   pipeline.DocumentTitle(in.CallID, in.Customer),
		Content: content,
	}).Get(ctx, &doc)
	if err != nil {
		return nil, stepFailed(ctx, pipeline.StepCreateDocument, err)
	}

	err = workflow.ExecuteActivity(ctx, a.SaveDocument, SaveDocumentInput{
		CallID:    in.CallID,
		ContactID: in.Customer.ContactID,
		Document:  doc,
		Content:   content,
	}).Get(ctx, nil)
	if err != nil {
		return nil, stepFailed(ctx, pipeline.StepSaveDocument, err)
	}

	res := &delivered{
		TranscriptResult: TranscriptResult{
			Success:     true,
			CallID:      in.CallID,
			DocumentID:  doc.ID,
			DocumentURL: doc.URL,
			SOPLength:   utf8.RuneCountInString(content),
		},
		title: doc.Title,
	}

	if in.Customer.ContactID == "" {
		workflow.GetLogger(ctx).Warn("No contact id, skipping document delivery", "call_id", in.CallID)
		return res, nil
	}

	var sent ghl.SendResult
	err = workflow.ExecuteActivity(ctx, a.SendDocument, SendDocumentInput{
		CallID:    in.CallID,
		ContactID: in.Customer.ContactID,
		Document:  doc,
	}).Get(ctx, &sent)
	if err != nil {
		return nil, stepFailed(ctx, pipeline.StepSendDocument, err)
	}
	res.Delivery = &sent
	return res, nil
}

func stepFailed(ctx workflow.Context, step pipeline.Step, err error) error {
	policy := pipeline.PolicyFor(step)
	workflow.GetLogger(ctx).Error("Pipeline step failed", "step", string(step), "policy", policy.String(), "error", err)
	return &pipeline.StepError{Step: step, Policy: policy, Err: err}
}

func mark(ctx workflow.Context, in MarkInput) {
	var a *Activities
	err := workflow.ExecuteActivity(workflow.WithActivityOptions(ctx, activityOptions(defaultAttempts)),
		a.MarkConversation, in).Get(ctx, nil)
	if err != nil {
		workflow.GetLogger(ctx).Warn("Failed to mark conversation",
			"call_id", in.CallID,
			"status", in.Status,
			"policy", pipeline.PolicyFor(pipeline.StepMarkConversation).String(),
			"error", err)
	}
}

func scheduleReminder(ctx workflow.Context, in ReminderInput) {
	cwo := workflow.ChildWorkflowOptions{
		WorkflowID:        ReminderWorkflowID(in.CallID),
		ParentClosePolicy: enumspb.PARENT_CLOSE_POLICY_ABANDON,
	}
	child := workflow.ExecuteChildWorkflow(workflow.WithChildOptions(ctx, cwo), SendReminderWorkflow, in)
	var exec workflow.Execution
	if err := child.GetChildWorkflowExecution().Get(ctx, &exec); err != nil {
		workflow.GetLogger(ctx).Warn("Failed to schedule reminder", "call_id", in.CallID, "error", err)
		return
	}
	workflow.GetLogger(ctx).Info("Reminder scheduled", "call_id", in.CallID, "workflow_id", exec.ID, "delay", in.Delay)
}

// SendReminderWorkflow waits in.Delay and then texts the customer a link to
// their document.
func SendReminderWorkflow(ctx workflow.Context, in ReminderInput) error {
	if in.ContactID == "" {
		return temporal.NewNonRetryableApplicationError("contact_id is required", "ValidationError", nil)
	}
	if in.Delay > 0 {
		if err := workflow.Sleep(ctx, in.Delay); err != nil {
			return err
		}
	}
	var a *Activities
	ctx = workflow.WithActivityOptions(ctx, activityOptions(defaultAttempts))
	if err := workflow.ExecuteActivity(ctx, a.SendReminder, in).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Error("Error sending reminder", "contact_id", in.ContactID, "error", err)
		return err
	}
	return nil
}

// failureMessage extracts the activity's own message from err.
func failureMessage(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Error()
	}
	var stepErr *pipeline.StepError
	if errors.As(err, &stepErr) {
		return fmt.Sprintf("%s: %v", stepErr.Step, stepErr.Err)
	}
	return err.Error()
}
