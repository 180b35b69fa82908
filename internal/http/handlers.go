package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voicesop/internal/customer"
	"github.com/fyrsmithlabs/voicesop/internal/dedup"
	"github.com/fyrsmithlabs/voicesop/internal/lindy"
	"github.com/fyrsmithlabs/voicesop/internal/logging"
	"github.com/fyrsmithlabs/voicesop/internal/pipeline"
	"github.com/fyrsmithlabs/voicesop/internal/vapi"
	"github.com/fyrsmithlabs/voicesop/internal/workflows"
)

// defaultRunTimeout bounds an in-request pipeline run when no write
// timeout is configured.
const defaultRunTimeout = 2 * time.Minute

// leaseReleaseTimeout bounds the lease release after a failed run. The run
// context may already be past its deadline.
const leaseReleaseTimeout = 5 * time.Second

// Lindy relay actions.
const (
	ActionCreateAssistant = "create_assistant"
	ActionGenerateSOP     = "generate_sop"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

type ignoredResponse struct {
	Status string  `json:"status"`
	Type   *string `json:"type"`
}

type callStatusResponse struct {
	Status     string `json:"status"`
	CallID     string `json:"call_id"`
	WorkflowID string `json:"workflow_id,omitempty"`
}

type testWebhookResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Result  *pipeline.Result `json:"result,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// lindyRequest is the relay's action envelope. Fields outside the chosen
// action are ignored.
type lindyRequest struct {
	Action string `json:"action"`

	Name         string      `json:"name"`
	ModelConfig  *vapi.Model `json:"model_config"`
	VoiceConfig  *vapi.Voice `json:"voice_config"`
	FirstMessage string      `json:"first_message"`
	WebhookURL   string      `json:"webhook_url" validate:"omitempty,url"`

	Transcript   string         `json:"transcript"`
	CustomerInfo map[string]any `json:"customer_info"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Service: ServiceName})
}

func (s *Server) handleVAPIWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}
	env, err := vapi.ParseEnvelope(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON payload").SetInternal(err)
	}
	msg := env.Message
	s.metrics.RecordWebhook("vapi", msg.Type)

	ctx := c.Request().Context()
	if !msg.IsEndOfCallReport() {
		s.logger.Info(ctx, "ignoring vapi webhook", zap.String("type", msg.Type))
		resp := ignoredResponse{Status: "ignored"}
		if msg.Type != "" {
			resp.Type = &msg.Type
		}
		return c.JSON(http.StatusOK, resp)
	}

	callID := msg.Call.ID
	ctx = logging.WithCallID(ctx, callID)
	s.logger.Info(ctx, "received vapi end-of-call-report",
		zap.String("assistant_id", msg.Call.AssistantID),
		zap.Int("transcript_length", len(msg.Transcript)))

	if strings.TrimSpace(msg.Transcript) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, pipeline.ErrMissingTranscript.Error())
	}
	info := msg.Call.Customer.Info()

	if s.enqueuer != nil {
		return s.enqueue(ctx, c, workflows.TranscriptInput{
			CallID:      callID,
			AssistantID: msg.Call.AssistantID,
			Transcript:  msg.Transcript,
			Customer:    info,
		})
	}
	return s.processInline(ctx, c, pipeline.Request{
		CallID:     callID,
		Transcript: msg.Transcript,
		Customer:   info,
	})
}

func (s *Server) enqueue(ctx context.Context, c echo.Context, in workflows.TranscriptInput) error {
	if in.CallID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "No call id in end-of-call-report")
	}
	q, err := s.enqueuer.Enqueue(ctx, in)
	if errors.Is(err, dedup.ErrDuplicate) {
		s.logger.Info(ctx, "duplicate end-of-call-report ignored")
		return c.JSON(http.StatusOK, callStatusResponse{Status: "duplicate", CallID: in.CallID})
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
	return c.JSON(http.StatusAccepted, callStatusResponse{
		Status:     "queued",
		CallID:     in.CallID,
		WorkflowID: q.WorkflowID,
	})
}

// processInline runs the pipeline inside the request. A lease on the call
// id rejects redeliveries; it is released when the run fails so the
// sender's retry goes through.
func (s *Server) processInline(ctx context.Context, c echo.Context, req pipeline.Request) error {
	var lease dedup.Lease
	if req.CallID != "" {
		l, err := s.guard.Acquire(ctx, req.CallID)
		switch {
		case errors.Is(err, dedup.ErrDuplicate):
			s.metrics.RecordDuplicate()
			s.logger.Info(ctx, "duplicate end-of-call-report ignored")
			return c.JSON(http.StatusOK, callStatusResponse{Status: "duplicate", CallID: req.CallID})
		case err != nil:
			s.logger.Warn(ctx, "dedup guard unavailable, processing anyway", zap.Error(err))
		default:
			lease = l
		}
	}

	// The sender may hang up before generation finishes; the run continues.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.runTimeout())
	defer cancel()

	result, err := s.pipeline.ProcessVoiceToSOP(runCtx, req)
	if err != nil {
		if lease != nil {
			s.releaseLease(ctx, lease)
		}
		return pipelineError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) releaseLease(ctx context.Context, lease dedup.Lease) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), leaseReleaseTimeout)
	defer cancel()
	if err := lease.Release(rctx); err != nil {
		s.logger.Warn(ctx, "failed to release call lease", zap.Error(err))
	}
}

func (s *Server) runTimeout() time.Duration {
	if d := s.config.WriteTimeout.Duration(); d > 0 {
		return d
	}
	return defaultRunTimeout
}

func (s *Server) handleLindyWebhook(c echo.Context) error {
	req := c.Request()
	if !lindy.VerifySecret(req.Header.Get(lindy.SecretHeader), s.secret) {
		return echo.NewHTTPError(http.StatusUnauthorized, pipeline.ErrInvalidSecret.Message)
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}
	if sig := req.Header.Get(lindy.SignatureHeader); sig != "" && s.secret.IsSet() {
		if !lindy.VerifySignature(body, sig, s.secret) {
			return echo.NewHTTPError(http.StatusUnauthorized, pipeline.ErrInvalidSignature.Message)
		}
	}

	var lr lindyRequest
	if err := json.Unmarshal(body, &lr); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON payload").SetInternal(err)
	}
	s.metrics.RecordWebhook("lindy", lr.Action)
	ctx := req.Context()
	s.logger.Info(ctx, "received lindy webhook", zap.String("action", lr.Action))

	switch lr.Action {
	case ActionCreateAssistant:
		if err := c.Validate(&lr); err != nil {
			return err
		}
		assistant, err := s.createAssistant(ctx, vapi.AssistantConfig{
			Name:         lr.Name,
			Model:        lr.ModelConfig,
			Voice:        lr.VoiceConfig,
			FirstMessage: lr.FirstMessage,
			ServerURL:    lr.WebhookURL,
		})
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
		}
		return c.JSON(http.StatusOK, assistant)

	case ActionGenerateSOP:
		result, err := s.pipeline.GenerateManual(ctx, lr.Transcript, customer.Normalize(lr.CustomerInfo))
		if err != nil {
			return pipelineError(err)
		}
		return c.JSON(http.StatusOK, result)

	default:
		return echo.NewHTTPError(http.StatusBadRequest, "Unknown action: "+lr.Action)
	}
}

func (s *Server) handleCreateAssistant(c echo.Context) error {
	var req vapi.CreateAssistantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON payload").SetInternal(err)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	baseURL := s.config.PublicURL
	if baseURL == "" {
		baseURL = c.Scheme() + "://" + c.Request().Host
	}
	assistant, err := s.createAssistant(c.Request().Context(), req.Config(baseURL))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
	return c.JSON(http.StatusCreated, assistant)
}

// createAssistant creates the assistant upstream and records it locally.
// The local record is best-effort.
func (s *Server) createAssistant(ctx context.Context, cfg vapi.AssistantConfig) (*vapi.Assistant, error) {
	assistant, err := s.assistants.CreateAssistant(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "created vapi assistant", zap.String("assistant_id", assistant.ID))
	if s.recorder != nil {
		if _, err := s.recorder.SaveAssistant(ctx, assistant.ID, assistant.Name, cfg); err != nil {
			s.logger.Warn(ctx, "failed to record assistant",
				zap.String("assistant_id", assistant.ID),
				zap.Error(err))
		}
	}
	return assistant, nil
}

func (s *Server) handleTestWebhook(c echo.Context) error {
	ctx := c.Request().Context()
	result, err := s.pipeline.ProcessVoiceToSOP(ctx, SampleRequest())
	if err != nil {
		s.logger.Error(ctx, "error in test webhook", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, testWebhookResponse{
			Success: false,
			Error:   err.Error(),
			Message: "Check server logs for details",
		})
	}
	return c.JSON(http.StatusOK, testWebhookResponse{
		Success: true,
		Message: "Test webhook processed successfully!",
		Result:  result,
	})
}

// pipelineError maps a pipeline failure to a status: bad input is 400,
// rejected credentials 401, anything else 500.
func pipelineError(err error) error {
	switch {
	case pipeline.IsValidationError(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	case pipeline.IsAuthError(err):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error()).SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
}
