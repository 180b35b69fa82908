package store

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Store-level shorthands for callers that need a single statement. Each
// call checks out its own session.

// LogWebhook appends an audit row. Failures are logged, never returned.
func (s *Store) LogWebhook(ctx context.Context, entry WebhookLog) {
	err := s.WithSession(ctx, func(sess *Session) error {
		sess.LogWebhook(ctx, entry)
		return nil
	})
	if err != nil {
		s.logger.Error(ctx, "failed to acquire connection for webhook log",
			zap.String("source", entry.Source),
			zap.Error(err))
	}
}

// SaveAssistant records an assistant created on the voice platform.
func (s *Store) SaveAssistant(ctx context.Context, vapiID, name string, configuration any) (*VAPIAssistant, error) {
	var out *VAPIAssistant
	err := s.WithSession(ctx, func(sess *Session) error {
		a, err := sess.SaveAssistant(ctx, vapiID, name, configuration)
		out = a
		return err
	})
	return out, err
}

// DeleteWebhookLogsBefore removes audit rows created before cutoff.
func (s *Store) DeleteWebhookLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := s.WithSession(ctx, func(sess *Session) error {
		deleted, err := sess.DeleteWebhookLogsBefore(ctx, cutoff)
		n = deleted
		return err
	})
	return n, err
}
