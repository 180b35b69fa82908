// Package workflows runs the voice-to-SOP pipeline as Temporal workflows:
// the conversation is persisted, the SOP is generated and stored as a
// Google Doc, and the document is delivered through the CRM.
package workflows

import (
	"time"

	"github.com/fyrsmithlabs/voicesop/internal/customer"
	"github.com/fyrsmithlabs/voicesop/internal/gdocs"
	"github.com/fyrsmithlabs/voicesop/internal/ghl"
)

// DefaultTaskQueue is the queue the worker polls and the enqueuer targets.
const DefaultTaskQueue = "voice-sop"

// TranscriptInput starts ProcessTranscriptWorkflow.
type TranscriptInput struct {
	CallID      string        `json:"call_id"`
	AssistantID string        `json:"assistant_id,omitempty"`
	Transcript  string        `json:"transcript"`
	Customer    customer.Info `json:"customer"`

	// ReminderAfter schedules SendReminderWorkflow after a successful
	// delivery. Zero disables it.
	ReminderAfter time.Duration `json:"reminder_after,omitempty"`
}

// TranscriptResult is returned by ProcessTranscriptWorkflow.
type TranscriptResult struct {
	Success     bool            `json:"success"`
	CallID      string          `json:"call_id"`
	DocumentID  string          `json:"document_id"`
	DocumentURL string          `json:"document_url"`
	SOPLength   int             `json:"sop_length"`
	Delivery    *ghl.SendResult `json:"delivery,omitempty"`
}

// GenerateInput is the input of the GenerateSOP activity.
type GenerateInput struct {
	CallID     string        `json:"call_id"`
	Transcript string        `json:"transcript"`
	Customer   customer.Info `json:"customer"`
}

// CreateDocumentInput is the input of the CreateDocument activity.
type CreateDocumentInput struct {
	CallID  string `json:"call_id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// SaveDocumentInput is the input of the SaveDocument activity.
type SaveDocumentInput struct {
	CallID    string         `json:"call_id"`
	ContactID string         `json:"contact_id,omitempty"`
	Document  gdocs.Document `json:"document"`
	Content   string         `json:"content"`
}

// SendDocumentInput is the input of the SendDocument activity.
type SendDocumentInput struct {
	CallID    string         `json:"call_id"`
	ContactID string         `json:"contact_id"`
	Document  gdocs.Document `json:"document"`
}

// MarkInput is the input of the MarkConversation activity.
type MarkInput struct {
	CallID    string    `json:"call_id"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Error     string    `json:"error,omitempty"`
}

// ReminderInput starts SendReminderWorkflow.
type ReminderInput struct {
	CallID      string        `json:"call_id,omitempty"`
	ContactID   string        `json:"contact_id"`
	DocumentURL string        `json:"document_url"`
	Title       string        `json:"title"`
	Delay       time.Duration `json:"delay"`
}
