// Package http serves the webhook and admin endpoints of the voice-to-SOP
// service.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voicesop/internal/config"
	"github.com/fyrsmithlabs/voicesop/internal/customer"
	"github.com/fyrsmithlabs/voicesop/internal/dedup"
	"github.com/fyrsmithlabs/voicesop/internal/logging"
	"github.com/fyrsmithlabs/voicesop/internal/metrics"
	"github.com/fyrsmithlabs/voicesop/internal/pipeline"
	"github.com/fyrsmithlabs/voicesop/internal/store"
	"github.com/fyrsmithlabs/voicesop/internal/vapi"
	"github.com/fyrsmithlabs/voicesop/internal/workflows"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "voice-sop"

const bodyLimit = "1M"

// Pipeline runs the voice-to-SOP flow.
type Pipeline interface {
	ProcessVoiceToSOP(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	GenerateManual(ctx context.Context, transcript string, info customer.Info) (*pipeline.ManualResult, error)
}

// AssistantCreator creates assistants on the voice platform.
type AssistantCreator interface {
	CreateAssistant(ctx context.Context, cfg vapi.AssistantConfig) (*vapi.Assistant, error)
}

// Enqueuer hands a transcript to the workflow worker.
type Enqueuer interface {
	Enqueue(ctx context.Context, in workflows.TranscriptInput) (*workflows.Queued, error)
}

// Recorder persists audit rows and assistant records.
type Recorder interface {
	LogWebhook(ctx context.Context, entry store.WebhookLog)
	SaveAssistant(ctx context.Context, vapiID, name string, configuration any) (*store.VAPIAssistant, error)
}

// Deps are the server's collaborators. Pipeline, Assistants and Logger are
// required.
type Deps struct {
	Pipeline   Pipeline
	Assistants AssistantCreator
	// Enqueuer switches the VAPI webhook to the async path when set.
	Enqueuer    Enqueuer
	Guard       dedup.Guard
	Recorder    Recorder
	Redactor    Redactor
	Metrics     *metrics.Metrics
	HTTPMetrics *HTTPMetrics
	Logger      *logging.Logger
	LindySecret config.Secret
	Config      config.ServerConfig
}

// Server provides the HTTP endpoints.
type Server struct {
	echo       *echo.Echo
	pipeline   Pipeline
	assistants AssistantCreator
	enqueuer   Enqueuer
	guard      dedup.Guard
	recorder   Recorder
	redactor   Redactor
	metrics    *metrics.Metrics
	logger     *logging.Logger
	secret     config.Secret
	config     config.ServerConfig
}

// NewServer creates the server and registers its routes.
func NewServer(d Deps) (*Server, error) {
	if d.Pipeline == nil {
		return nil, errors.New("pipeline cannot be nil")
	}
	if d.Assistants == nil {
		return nil, errors.New("assistant client cannot be nil")
	}
	if d.Logger == nil {
		return nil, errors.New("logger is required for request tracking and debugging")
	}
	if d.Guard == nil {
		d.Guard = dedup.Nop{}
	}
	logger := d.Logger.Named("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = d.Config.Debug
	e.Validator = newValidator()
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))
	if d.HTTPMetrics != nil {
		e.Use(d.HTTPMetrics.MetricsMiddleware())
	}
	e.Use(middleware.BodyLimit(bodyLimit))

	s := &Server{
		echo:       e,
		pipeline:   d.Pipeline,
		assistants: d.Assistants,
		enqueuer:   d.Enqueuer,
		guard:      d.Guard,
		recorder:   d.Recorder,
		redactor:   d.Redactor,
		metrics:    d.Metrics,
		logger:     logger,
		secret:     d.LindySecret,
		config:     d.Config,
	}
	s.registerRoutes(newIPLimiter(d.Config.WebhookRateLimit, d.Config.WebhookBurst))
	return s, nil
}

func (s *Server) registerRoutes(limiter *ipLimiter) {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	webhooks := s.echo.Group("/webhook",
		rateLimitMiddleware(limiter, s.logger),
		auditMiddleware(s.recorder, s.redactor),
	)
	webhooks.POST("/vapi", s.handleVAPIWebhook)
	webhooks.POST("/lindy", s.handleLindyWebhook)

	s.echo.POST("/api/assistant/create", s.handleCreateAssistant)
	s.echo.Match([]string{http.MethodGet, http.MethodPost}, "/test/vapi-webhook", s.handleTestWebhook)
}

// ServeHTTP lets the server be mounted or driven by httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	addr := s.config.Addr()
	srv := &http.Server{
		Addr:         addr,
		ReadTimeout:  s.config.ReadTimeout.Duration(),
		WriteTimeout: s.config.WriteTimeout.Duration(),
	}
	s.logger.Info(context.Background(), "starting http server",
		zap.String("addr", addr),
		zap.Bool("async", s.enqueuer != nil))
	if err := s.echo.StartServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

func requestLogger(logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			reqID := c.Response().Header().Get(echo.HeaderXRequestID)
			req := c.Request()
			ctx := logging.WithRequestID(req.Context(), reqID)
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info(ctx, "http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	}
}

// errorHandler renders every error as {"error": message}.
func errorHandler(logger *logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			msg = fmt.Sprint(he.Message)
		}
		if code >= http.StatusInternalServerError {
			logger.Error(c.Request().Context(), "request failed", zap.Error(err))
		}
		if werr := c.JSON(code, errorResponse{Error: msg}); werr != nil {
			logger.Warn(c.Request().Context(), "failed to write error response", zap.Error(werr))
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
}
