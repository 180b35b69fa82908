package store

import (
	"encoding/json"
	"time"

	"github.com/fyrsmithlabs/voicesop/internal/customer"
	"gorm.io/datatypes"
)

// Conversation statuses.
const (
	ConversationProcessing = "processing"
	ConversationCompleted  = "completed"
	ConversationFailed     = "failed"
)

// Document statuses.
const (
	DocumentCreated = "created"
	DocumentSent    = "sent"
	DocumentViewed  = "viewed"
)

// Conversation is a processed call. ID equals CallID.
type Conversation struct {
	ID           string         `json:"id" gorm:"primaryKey;size:100"`
	CallID       string         `json:"call_id" gorm:"size:100;uniqueIndex;not null"`
	ContactID    string         `json:"contact_id,omitempty" gorm:"size:100;index"`
	AssistantID  string         `json:"assistant_id,omitempty" gorm:"size:100"`
	Transcript   string         `json:"transcript" gorm:"type:text"`
	CustomerInfo datatypes.JSON `json:"customer_info"`
	Status       string         `json:"status" gorm:"size:50;default:processing;index"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (Conversation) TableName() string { return "conversations" }

// Customer decodes CustomerInfo.
func (c *Conversation) Customer() customer.Info {
	var info customer.Info
	if len(c.CustomerInfo) > 0 {
		_ = json.Unmarshal(c.CustomerInfo, &info)
	}
	return info
}

// SOPDocument is a generated document. ID equals the document store id.
type SOPDocument struct {
	ID             string    `json:"id" gorm:"primaryKey;size:100"`
	ConversationID string    `json:"conversation_id,omitempty" gorm:"size:100;index"`
	GoogleDocID    string    `json:"google_doc_id" gorm:"size:100"`
	GoogleDocURL   string    `json:"google_doc_url" gorm:"size:500"`
	Title          string    `json:"title" gorm:"size:500"`
	Content        string    `json:"content" gorm:"type:text"`
	ContactID      string    `json:"contact_id,omitempty" gorm:"size:100;index"`
	Status         string    `json:"status" gorm:"size:50;default:created"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (SOPDocument) TableName() string { return "sop_documents" }

// VAPIAssistant is an assistant created through this service.
type VAPIAssistant struct {
	ID            string         `json:"id" gorm:"primaryKey;size:100"`
	VAPIID        string         `json:"vapi_id" gorm:"column:vapi_id;size:100;uniqueIndex"`
	Name          string         `json:"name" gorm:"size:200"`
	Configuration datatypes.JSON `json:"configuration"`
	IsActive      bool           `json:"is_active" gorm:"default:true"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (VAPIAssistant) TableName() string { return "vapi_assistants" }

// WebhookLog is an audit row for one inbound webhook call.
type WebhookLog struct {
	ID             uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	Source         string         `json:"source" gorm:"size:50;index"`
	Endpoint       string         `json:"endpoint" gorm:"size:200"`
	Payload        datatypes.JSON `json:"payload"`
	ResponseStatus int            `json:"response_status"`
	ErrorMessage   string         `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt      time.Time      `json:"created_at" gorm:"index"`
}

func (WebhookLog) TableName() string { return "webhook_logs" }

// Models lists every persisted model in migration order.
func Models() []any {
	return []any{&Conversation{}, &SOPDocument{}, &VAPIAssistant{}, &WebhookLog{}}
}

// JSON marshals v for a datatypes.JSON column. Values that are already
// valid JSON bytes are stored as is; anything unmarshalable becomes null.
func JSON(v any) datatypes.JSON {
	switch b := v.(type) {
	case nil:
		return nil
	case []byte:
		if json.Valid(b) {
			return datatypes.JSON(b)
		}
		v = string(b)
	case json.RawMessage:
		if json.Valid(b) {
			return datatypes.JSON(b)
		}
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(data)
}
