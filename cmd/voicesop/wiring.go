package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voicesop/internal/config"
	"github.com/fyrsmithlabs/voicesop/internal/gdocs"
	"github.com/fyrsmithlabs/voicesop/internal/generator"
	"github.com/fyrsmithlabs/voicesop/internal/ghl"
	"github.com/fyrsmithlabs/voicesop/internal/lindy"
	"github.com/fyrsmithlabs/voicesop/internal/logging"
	"github.com/fyrsmithlabs/voicesop/internal/pipeline"
	"github.com/fyrsmithlabs/voicesop/internal/upstream"
	"github.com/fyrsmithlabs/voicesop/internal/vapi"
)

// clients holds the upstream clients shared by serve and worker.
type clients struct {
	vapi      *vapi.Client
	generator *generator.Generator
	ghl       *ghl.Client
	relay     pipeline.Relay
}

func newClients(cfg *config.Config, logger *logging.Logger) (*clients, error) {
	timeout := cfg.Pipeline.ClientTimeout.Duration()

	gen, err := generator.NewOpenAI(cfg.OpenAI, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("creating generator: %w", err)
	}

	c := &clients{
		vapi:      vapi.NewClient(cfg.VAPI.APIKey, cfg.VAPI.BaseURL, upstream.WithTimeout(timeout)),
		generator: gen,
		ghl:       ghl.NewClient(cfg.GHL.APIKey, cfg.GHL.BaseURL, logger, upstream.WithTimeout(timeout)),
	}
	// A nil relay skips every relay notification.
	if cfg.Lindy.Enabled() {
		c.relay = lindy.NewClient(cfg.Lindy.WebhookURL, cfg.Lindy.WebhookSecret, logger, upstream.WithTimeout(timeout))
		logger.Info(context.Background(), "lindy relay enabled", zap.String("url", cfg.Lindy.WebhookURL))
	}
	return c, nil
}

// newDocs creates the Google Docs service from the service account file.
func newDocs(ctx context.Context, cfg config.GoogleConfig, logger *logging.Logger) (*gdocs.Service, error) {
	opts, err := gdocs.ClientOptions(ctx, cfg.CredentialsPath)
	if err != nil {
		return nil, err
	}
	docsAPI, driveAPI, err := gdocs.NewAPIs(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return gdocs.NewService(docsAPI, driveAPI, cfg.FolderID, logger), nil
}
