package vapi

import (
	"context"
	"net/url"

	"github.com/fyrsmithlabs/voicesop/internal/config"
	"github.com/fyrsmithlabs/voicesop/internal/upstream"
)

// CallDetails is a call as returned by GET /call/{id}.
type CallDetails struct {
	ID          string   `json:"id"`
	AssistantID string   `json:"assistantId,omitempty"`
	Type        string   `json:"type,omitempty"`
	Status      string   `json:"status,omitempty"`
	EndedReason string   `json:"endedReason,omitempty"`
	Transcript  string   `json:"transcript,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	Cost        float64  `json:"cost,omitempty"`
	Customer    Customer `json:"customer"`
	StartedAt   string   `json:"startedAt,omitempty"`
	EndedAt     string   `json:"endedAt,omitempty"`
}

// Client talks to the voice platform REST API.
type Client struct {
	http *upstream.Client
}

// NewClient creates a client. Failures are reported as "VAPI API Error".
func NewClient(apiKey config.Secret, baseURL string, opts ...upstream.Option) *Client {
	if baseURL == "" {
		baseURL = "https://api.vapi.ai"
	}
	opts = append([]upstream.Option{upstream.WithBearer(apiKey)}, opts...)
	return &Client{http: upstream.New(upstream.ServiceVAPI, baseURL, opts...)}
}

// CreateAssistant creates an assistant.
func (c *Client) CreateAssistant(ctx context.Context, cfg AssistantConfig) (*Assistant, error) {
	var out Assistant
	if _, err := c.http.Post(ctx, "create assistant", "/assistant", cfg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAssistant fetches one assistant.
func (c *Client) GetAssistant(ctx context.Context, id string) (*Assistant, error) {
	var out Assistant
	if _, err := c.http.Get(ctx, "get assistant", "/assistant/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateAssistant patches the fields set in cfg.
func (c *Client) UpdateAssistant(ctx context.Context, id string, cfg AssistantConfig) (*Assistant, error) {
	var out Assistant
	if _, err := c.http.Patch(ctx, "update assistant", "/assistant/"+url.PathEscape(id), cfg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteAssistant removes an assistant.
func (c *Client) DeleteAssistant(ctx context.Context, id string) error {
	_, err := c.http.Delete(ctx, "delete assistant", "/assistant/"+url.PathEscape(id))
	return err
}

// ListAssistants returns every assistant visible to the API key.
func (c *Client) ListAssistants(ctx context.Context) ([]Assistant, error) {
	var out []Assistant
	if _, err := c.http.Get(ctx, "list assistants", "/assistant", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetCall fetches call details.
func (c *Client) GetCall(ctx context.Context, id string) (*CallDetails, error) {
	var out CallDetails
	if _, err := c.http.Get(ctx, "get call", "/call/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
