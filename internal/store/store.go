// Package store persists conversations, generated documents, assistants
// and the webhook audit log with GORM.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/voicesop/internal/customer"
	"github.com/fyrsmithlabs/voicesop/internal/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Session runs queries on one database handle. Sessions handed out by
// WithSession are pinned to a single connection.
type Session struct {
	db     *gorm.DB
	logger *logging.Logger
}

// Store is the database. Its embedded Session runs on the pool.
type Store struct {
	Session
	dialect Dialect
	closeFn func() error
}

// New wraps an open GORM handle.
func New(db *gorm.DB, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{Session: Session{db: db, logger: logger.Named("store")}}
}

// DB returns the underlying GORM handle.
func (s *Store) DB() *gorm.DB { return s.db }

// Dialect returns the SQL backend in use.
func (s *Store) Dialect() Dialect { return s.dialect }

// Close releases the pool.
func (s *Store) Close() error {
	if s.closeFn != nil {
		return s.closeFn()
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Migrate creates or updates every table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("migrating tables: %w", err)
	}
	s.logger.Info(ctx, "database tables created")
	return nil
}

// Drop removes every table.
func (s *Store) Drop(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Migrator().DropTable(Models()...); err != nil {
		return fmt.Errorf("dropping tables: %w", err)
	}
	s.logger.Warn(ctx, "all database tables dropped")
	return nil
}

// WithSession runs fn on a session holding one connection for its whole
// duration. The connection is returned to the pool when fn returns.
func (s *Store) WithSession(ctx context.Context, fn func(*Session) error) error {
	return s.db.WithContext(ctx).Connection(func(tx *gorm.DB) error {
		return fn(&Session{db: tx, logger: s.logger})
	})
}

// ConversationInput is a new conversation.
type ConversationInput struct {
	CallID      string
	AssistantID string
	Transcript  string
	Customer    customer.Info
}

// SaveConversation records a call in processing state. A redelivery of
// the same call resets the existing row instead of failing.
func (s *Session) SaveConversation(ctx context.Context, in ConversationInput) (*Conversation, error) {
	if in.CallID == "" {
		return nil, errors.New("call id is required")
	}
	conv := &Conversation{
		ID:           in.CallID,
		CallID:       in.CallID,
		ContactID:    in.Customer.ContactID,
		AssistantID:  in.AssistantID,
		Transcript:   in.Transcript,
		CustomerInfo: JSON(in.Customer),
		Status:       ConversationProcessing,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"transcript", "customer_info", "contact_id", "status", "updated_at"}),
		}).Create(conv).Error
	})
	if err != nil {
		s.logger.Error(ctx, "failed to save conversation", zap.String("call_id", in.CallID), zap.Error(err))
		return nil, fmt.Errorf("saving conversation %s: %w", in.CallID, err)
	}
	s.logger.Info(ctx, "conversation saved", zap.String("call_id", in.CallID))
	return conv, nil
}

// SetConversationStatus moves a conversation to status.
func (s *Session) SetConversationStatus(ctx context.Context, callID, status string) error {
	switch status {
	case ConversationProcessing, ConversationCompleted, ConversationFailed:
	default:
		return fmt.Errorf("invalid conversation status %q", status)
	}
	res := s.db.WithContext(ctx).Model(&Conversation{}).
		Where("id = ?", callID).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("updating conversation %s: %w", callID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("conversation %s: %w", callID, ErrNotFound)
	}
	return nil
}

// GetConversation loads a conversation by call id.
func (s *Session) GetConversation(ctx context.Context, callID string) (*Conversation, error) {
	var conv Conversation
	err := s.db.WithContext(ctx).Where("id = ?", callID).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("conversation %s: %w", callID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading conversation %s: %w", callID, err)
	}
	return &conv, nil
}

// DocumentInput is a newly created document.
type DocumentInput struct {
	DocID          string
	URL            string
	Title          string
	Content        string
	ConversationID string
	ContactID      string
}

// SaveSOPDocument records a created document.
func (s *Session) SaveSOPDocument(ctx context.Context, in DocumentInput) (*SOPDocument, error) {
	if in.DocID == "" {
		return nil, errors.New("document id is required")
	}
	doc := &SOPDocument{
		ID:             in.DocID,
		ConversationID: in.ConversationID,
		GoogleDocID:    in.DocID,
		GoogleDocURL:   in.URL,
		Title:          in.Title,
		Content:        in.Content,
		ContactID:      in.ContactID,
		Status:         DocumentCreated,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"google_doc_url", "title", "content", "updated_at"}),
	}).Create(doc).Error
	if err != nil {
		s.logger.Error(ctx, "failed to save SOP document", zap.String("doc_id", in.DocID), zap.Error(err))
		return nil, fmt.Errorf("saving document %s: %w", in.DocID, err)
	}
	s.logger.Info(ctx, "SOP document saved", zap.String("doc_id", in.DocID))
	return doc, nil
}

// SetDocumentStatus moves a document to status.
func (s *Session) SetDocumentStatus(ctx context.Context, docID, status string) error {
	switch status {
	case DocumentCreated, DocumentSent, DocumentViewed:
	default:
		return fmt.Errorf("invalid document status %q", status)
	}
	res := s.db.WithContext(ctx).Model(&SOPDocument{}).
		Where("id = ?", docID).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("updating document %s: %w", docID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("document %s: %w", docID, ErrNotFound)
	}
	return nil
}

// LogWebhook appends an audit row. Failures are logged, never returned.
func (s *Session) LogWebhook(ctx context.Context, entry WebhookLog) {
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logger.Error(ctx, "failed to log webhook",
			zap.String("source", entry.Source),
			zap.String("endpoint", entry.Endpoint),
			zap.Error(err))
	}
}

// DeleteWebhookLogsBefore removes audit rows created before cutoff.
func (s *Session) DeleteWebhookLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&WebhookLog{})
	if res.Error != nil {
		return 0, fmt.Errorf("deleting webhook logs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// SaveAssistant records an assistant created on the voice platform.
func (s *Session) SaveAssistant(ctx context.Context, vapiID, name string, configuration any) (*VAPIAssistant, error) {
	if vapiID == "" {
		return nil, errors.New("assistant id is required")
	}
	a := &VAPIAssistant{
		ID:            uuid.NewString(),
		VAPIID:        vapiID,
		Name:          name,
		Configuration: JSON(configuration),
		IsActive:      true,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "vapi_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "configuration", "is_active", "updated_at"}),
	}).Create(a).Error
	if err != nil {
		return nil, fmt.Errorf("saving assistant %s: %w", vapiID, err)
	}
	return a, nil
}
