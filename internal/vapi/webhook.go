// Package vapi holds the voice platform's webhook payloads and a client for
// its assistant and call APIs.
package vapi

import (
	"encoding/json"
	"fmt"

	"github.com/fyrsmithlabs/voicesop/internal/customer"
)

// EndOfCallReport is the only webhook message type that triggers SOP
// generation. Every other type (status-update, speech-update, ...) is
// acknowledged and ignored.
const EndOfCallReport = "end-of-call-report"

// Envelope is the outer webhook body.
type Envelope struct {
	Message Message `json:"message"`
}

// Message is the typed webhook payload.
type Message struct {
	Type         string `json:"type"`
	Call         Call   `json:"call"`
	Transcript   string `json:"transcript"`
	Summary      string `json:"summary,omitempty"`
	EndedReason  string `json:"endedReason,omitempty"`
	RecordingURL string `json:"recordingUrl,omitempty"`
}

// Call identifies the call a webhook belongs to.
type Call struct {
	ID          string   `json:"id"`
	AssistantID string   `json:"assistantId,omitempty"`
	Status      string   `json:"status,omitempty"`
	Type        string   `json:"type,omitempty"`
	Customer    Customer `json:"customer"`
}

// Customer is the caller as known to the voice platform.
type Customer struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Number string `json:"number,omitempty"`
}

// Info maps the platform customer onto the pipeline record: number becomes
// phone and id becomes the CRM contact id.
func (c Customer) Info() customer.Info {
	return customer.Normalize(map[string]any{
		"name":       c.Name,
		"email":      c.Email,
		"phone":      c.Number,
		"contact_id": c.ID,
	})
}

// ParseEnvelope decodes a webhook body. Only the message type is read
// until the message is known to be an end-of-call-report, so other events
// of any shape are accepted. Missing objects decode to zero values.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var raw struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("invalid webhook body: %w", err)
	}

	env := &Envelope{}
	env.Message.Type = messageType(raw.Message)
	if !env.Message.IsEndOfCallReport() {
		return env, nil
	}
	if err := json.Unmarshal(raw.Message, &env.Message); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EndOfCallReport, err)
	}
	return env, nil
}

// messageType returns message.type when it is a string, else "".
func messageType(msg json.RawMessage) string {
	var head struct {
		Type any `json:"type"`
	}
	if len(msg) == 0 || json.Unmarshal(msg, &head) != nil {
		return ""
	}
	t, _ := head.Type.(string)
	return t
}

// IsEndOfCallReport reports whether the message should be processed.
func (m Message) IsEndOfCallReport() bool {
	return m.Type == EndOfCallReport
}
