package workflows

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/fyrsmithlabs/voicesop/internal/config"
	"github.com/fyrsmithlabs/voicesop/internal/logging"
	"github.com/fyrsmithlabs/voicesop/internal/store"
)

// Dial connects to the Temporal frontend. SDK logs go through logger.
func Dial(cfg config.TemporalConfig, logger *logging.Logger) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    logger.Named("temporal").KV(),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create Temporal client: %w", err)
	}
	return c, nil
}

// NewWorker returns a worker on taskQueue with both workflows and every
// activity of acts registered.
func NewWorker(c client.Client, taskQueue string, acts *Activities) worker.Worker {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflow(ProcessTranscriptWorkflow)
	w.RegisterWorkflow(SendReminderWorkflow)
	w.RegisterActivity(acts)
	return w
}

// SessionRecorder adapts a store so each call runs on its own session.
type SessionRecorder struct {
	Store *store.Store
}

func (r SessionRecorder) SaveConversation(ctx context.Context, in store.ConversationInput) (*store.Conversation, error) {
	var conv *store.Conversation
	err := r.Store.WithSession(ctx, func(s *store.Session) error {
		var err error
		conv, err = s.SaveConversation(ctx, in)
		return err
	})
	return conv, err
}

func (r SessionRecorder) SetConversationStatus(ctx context.Context, callID, status string) error {
	return r.Store.WithSession(ctx, func(s *store.Session) error {
		return s.SetConversationStatus(ctx, callID, status)
	})
}

func (r SessionRecorder) SaveSOPDocument(ctx context.Context, in store.DocumentInput) (*store.SOPDocument, error) {
	var doc *store.SOPDocument
	err := r.Store.WithSession(ctx, func(s *store.Session) error {
		var err error
		doc, err = s.SaveSOPDocument(ctx, in)
		return err
	})
	return doc, err
}

func (r SessionRecorder) SetDocumentStatus(ctx context.Context, docID, status string) error {
	return r.Store.WithSession(ctx, func(s *store.Session) error {
		return s.SetDocumentStatus(ctx, docID, status)
	})
}
