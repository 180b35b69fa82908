package workflows

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voicesop/internal/events"
	"github.com/fyrsmithlabs/voicesop/internal/gdocs"
	"github.com/fyrsmithlabs/voicesop/internal/ghl"
	"github.com/fyrsmithlabs/voicesop/internal/logging"
	"github.com/fyrsmithlabs/voicesop/internal/metrics"
	"github.com/fyrsmithlabs/voicesop/internal/pipeline"
	"github.com/fyrsmithlabs/voicesop/internal/store"
	"github.com/fyrsmithlabs/voicesop/internal/upstream"
)

// Recorder persists conversations and documents.
type Recorder interface {
	SaveConversation(ctx context.Context, in store.ConversationInput) (*store.Conversation, error)
	SetConversationStatus(ctx context.Context, callID, status string) error
	SaveSOPDocument(ctx context.Context, in store.DocumentInput) (*store.SOPDocument, error)
	SetDocumentStatus(ctx context.Context, docID, status string) error
}

// DocumentCreator stores generated SOPs.
type DocumentCreator interface {
	CreateDocument(ctx context.Context, title, content string) (*gdocs.Document, error)
}

// Deliverer sends documents to the customer.
type Deliverer interface {
	SendDocument(ctx context.Context, contactID, docURL, title string) (*ghl.SendResult, error)
	SendReminder(ctx context.Context, contactID, docURL, title string) error
}

// Activities holds the collaborators the async pipeline runs against.
// Register a pointer with the worker; workflows reference the methods
// through a nil *Activities.
type Activities struct {
	Recorder  Recorder
	Generator pipeline.Generator
	Docs      DocumentCreator
	CRM       Deliverer
	Events    events.Publisher
	Metrics   *metrics.Metrics
	Logger    *logging.Logger
}

// ErrNotConfigured is returned by an activity whose collaborator is nil.
var ErrNotConfigured = errors.New("collaborator not configured")

// SaveConversation persists the transcript with status processing.
func (a *Activities) SaveConversation(ctx context.Context, in TranscriptInput) error {
	if a.Recorder == nil {
		return nonRetryable(ErrNotConfigured)
	}
	ctx = logging.WithCallID(ctx, in.CallID)
	_, err := a.Recorder.SaveConversation(ctx, store.ConversationInput{
		CallID:      in.CallID,
		AssistantID: in.AssistantID,
		Transcript:  in.Transcript,
		Customer:    in.Customer,
	})
	return err
}

// GenerateSOP writes the SOP for a transcript.
func (a *Activities) GenerateSOP(ctx context.Context, in GenerateInput) (string, error) {
	if a.Generator == nil {
		return "", nonRetryable(ErrNotConfigured)
	}
	ctx = logging.WithCallID(ctx, in.CallID)
	content, err := a.Generator.Generate(ctx, in.Transcript, in.Customer)
	if err != nil {
		a.logger().Error(ctx, "failed to generate SOP", zap.Error(err))
		return "", classify(err)
	}
	a.logger().Info(ctx, "SOP generated", zap.Int("sop_length", utf8.RuneCountInString(content)))
	return content, nil
}

// CreateDocument stores the SOP as a Google Doc.
func (a *Activities) CreateDocument(ctx context.Context, in CreateDocumentInput) (*gdocs.Document, error) {
	if a.Docs == nil {
		return nil, nonRetryable(ErrNotConfigured)
	}
	ctx = logging.WithCallID(ctx, in.CallID)
	doc, err := a.Docs.CreateDocument(ctx, in.Title, in.Content)
	if err != nil {
		return nil, classify(err)
	}
	a.publish(ctx, events.New(events.TypeDocumentCreated, in.CallID, "", map[string]any{
		"document_id":  doc.ID,
		"document_url": doc.URL,
		"title":        doc.Title,
	}))
	return doc, nil
}

// SaveDocument records the created document.
func (a *Activities) SaveDocument(ctx context.Context, in SaveDocumentInput) error {
	if a.Recorder == nil {
		return nonRetryable(ErrNotConfigured)
	}
	ctx = logging.WithCallID(ctx, in.CallID)
	_, err := a.Recorder.SaveSOPDocument(ctx, store.DocumentInput{
		DocID:          in.Document.ID,
		URL:            in.Document.URL,
		Title:          in.Document.Title,
		Content:        in.Content,
		ConversationID: in.CallID,
		ContactID:      in.ContactID,
	})
	return err
}

// SendDocument delivers the document link over every CRM channel and marks
// the document sent. Individual channel failures are reported in the
// result.
func (a *Activities) SendDocument(ctx context.Context, in SendDocumentInput) (*ghl.SendResult, error) {
	if a.CRM == nil {
		return nil, nonRetryable(ErrNotConfigured)
	}
	ctx = logging.WithContactID(logging.WithCallID(ctx, in.CallID), in.ContactID)
	res, err := a.CRM.SendDocument(ctx, in.ContactID, in.Document.URL, in.Document.Title)
	if err != nil {
		return nil, classify(err)
	}
	if a.Recorder != nil && in.Document.ID != "" {
		if err := a.Recorder.SetDocumentStatus(ctx, in.Document.ID, store.DocumentSent); err != nil {
			a.logger().Warn(ctx, "failed to mark document sent", zap.Error(err))
		}
	}
	a.publish(ctx, events.New(events.TypeDelivered, in.CallID, "", map[string]any{
		"sms_sent":     res.SMSSent,
		"email_sent":   res.EmailSent,
		"note_added":   res.NoteAdded,
		"task_created": res.TaskCreated,
	}))
	return res, nil
}

// MarkConversation sets the final conversation status and records the run.
func (a *Activities) MarkConversation(ctx context.Context, in MarkInput) error {
	ctx = logging.WithCallID(ctx, in.CallID)
	outcome, eventType := metrics.OutcomeSuccess, events.TypeCompleted
	if in.Status == store.ConversationFailed {
		outcome, eventType = metrics.OutcomeFailure, events.TypeFailed
	}
	if !in.StartedAt.IsZero() {
		a.Metrics.RecordRun(pipeline.VariantAsync, outcome, time.Since(in.StartedAt))
	}
	var data map[string]any
	if in.Error != "" {
		data = map[string]any{"error": in.Error}
	}
	a.publish(ctx, events.New(eventType, in.CallID, in.Status, data))

	if a.Recorder == nil {
		return nil
	}
	return a.Recorder.SetConversationStatus(ctx, in.CallID, in.Status)
}

// SendReminder texts the customer a reminder about their document.
func (a *Activities) SendReminder(ctx context.Context, in ReminderInput) error {
	if a.CRM == nil {
		return nonRetryable(ErrNotConfigured)
	}
	ctx = logging.WithContactID(ctx, in.ContactID)
	if err := a.CRM.SendReminder(ctx, in.ContactID, in.DocumentURL, in.Title); err != nil {
		return classify(err)
	}
	a.logger().Info(ctx, "sent reminder to contact")
	return nil
}

func (a *Activities) publish(ctx context.Context, e events.Event) {
	if a.Events == nil {
		return
	}
	if err := a.Events.Publish(ctx, e); err != nil {
		a.logger().Warn(ctx, "failed to publish pipeline event",
			zap.String("type", e.Type), zap.Error(err))
	}
}

func (a *Activities) logger() *logging.Logger {
	if a.Logger == nil {
		return logging.NewNop()
	}
	return a.Logger
}

// classify stops Temporal from retrying upstream responses that will not
// succeed on a second attempt, such as a 4xx.
func classify(err error) error {
	if ue, ok := upstream.As(err); ok && ue.StatusCode != 0 && !ue.Retryable() {
		return nonRetryable(err)
	}
	return err
}

func nonRetryable(err error) error {
	return temporal.NewNonRetryableApplicationError(err.Error(), "NonRetryable", err)
}
