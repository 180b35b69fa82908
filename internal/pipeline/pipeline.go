// Package pipeline runs the voice-to-SOP sequence: relay start
// notification, SOP generation, relay completion notification and CRM note.
//
// Each step's failure is handled by the policy in policyTable. Only
// generation failures reach the caller; they also trigger a single error
// notification to the relay.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fyrsmithlabs/voicesop/internal/customer"
	"github.com/fyrsmithlabs/voicesop/internal/events"
	"github.com/fyrsmithlabs/voicesop/internal/ghl"
	"github.com/fyrsmithlabs/voicesop/internal/lindy"
	"github.com/fyrsmithlabs/voicesop/internal/logging"
	"github.com/fyrsmithlabs/voicesop/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/voicesop/internal/pipeline"

// Pipeline variants, used as metric labels.
const (
	VariantSync  = "sync"
	VariantAsync = "async"
)

// ResultMessage is returned with every successful synchronous run.
const ResultMessage = "SOP sent to Lindy for Google Doc creation"

// errorNotifyTimeout bounds the relay error notification, which runs even
// when the run's context is already done.
const errorNotifyTimeout = 30 * time.Second

// Generator produces SOP content from a transcript.
type Generator interface {
	Generate(ctx context.Context, transcript string, info customer.Info) (string, error)
}

// Relay receives lifecycle notifications.
type Relay interface {
	NotifyStarted(ctx context.Context, callID string, info customer.Info) (lindy.Receipt, error)
	NotifyCompleted(ctx context.Context, in lindy.CompletedInput) (lindy.Receipt, error)
	NotifyError(ctx context.Context, callID, message string, info customer.Info) (lindy.Receipt, error)
}

// CRM records notes on contacts.
type CRM interface {
	AddNote(ctx context.Context, contactID, body string) error
}

// Deps are the collaborators of an Orchestrator. Relay, CRM, Events and
// Metrics may be nil.
type Deps struct {
	Generator Generator
	Relay     Relay
	CRM       CRM
	Events    events.Publisher
	Metrics   *metrics.Metrics
	Logger    *logging.Logger
	// Tracing defaults to the global tracer provider.
	Tracing   trace.TracerProvider
}

// Request is one end-of-call report to process.
type Request struct {
	CallID     string
	Transcript string
	Customer   customer.Info
}

// Result is the outcome of a synchronous run.
type Result struct {
	Success       bool   `json:"success"`
	CallID        string `json:"call_id"`
	SOPGenerated  bool   `json:"sop_generated"`
	SOPLength     int    `json:"sop_length"`
	DocumentTitle string `json:"document_title"`
	LindyNotified bool   `json:"lindy_notified"`
	Message       string `json:"message"`

	// Content is the generated SOP. It is not part of the response body.
	Content string `json:"-"`
}

// Orchestrator runs the synchronous pipeline.
type Orchestrator struct {
	generator Generator
	relay     Relay
	crm       CRM
	events    events.Publisher
	metrics   *metrics.Metrics
	logger    *logging.Logger
	tracer    trace.Tracer
}

// New creates an Orchestrator. A generator is required.
func New(d Deps) (*Orchestrator, error) {
	if d.Generator == nil {
		return nil, errors.New("generator is required")
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Logger == nil {
		d.Logger = logging.NewNop()
	}
	if d.Tracing == nil {
		d.Tracing = otel.GetTracerProvider()
	}
	return &Orchestrator{
		generator: d.Generator,
		relay:     d.Relay,
		crm:       d.CRM,
		events:    d.Events,
		metrics:   d.Metrics,
		logger:    d.Logger.Named("pipeline"),
		tracer:    d.Tracing.Tracer(instrumentationName),
	}, nil
}

// DocumentTitle is the deterministic title of a call's SOP.
func DocumentTitle(callID string, info customer.Info) string {
	return fmt.Sprintf("SOP - %s - %s", info.NameOr(customer.DefaultName), callID)
}

// ProcessVoiceToSOP runs the pipeline for one call. The returned error is
// either a ValidationError or the generation failure.
func (o *Orchestrator) ProcessVoiceToSOP(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	ctx = logging.WithCallID(ctx, req.CallID)
	if req.Customer.ContactID != "" {
		ctx = logging.WithContactID(ctx, req.Customer.ContactID)
	}
	ctx, span := o.tracer.Start(ctx, "pipeline.process_voice_to_sop")
	defer span.End()
	span.SetAttributes(
		attribute.String("call_id", req.CallID),
		attribute.Int("transcript_length", len(req.Transcript)),
		attribute.Bool("relay_enabled", o.relay != nil),
	)

	if strings.TrimSpace(req.Transcript) == "" {
		span.SetStatus(codes.Error, ErrMissingTranscript.Error())
		return nil, ErrMissingTranscript
	}

	o.logger.Info(ctx, "processing voice to SOP")
	o.publish(ctx, events.New(events.TypeStarted, req.CallID, lindy.StatusProcessing, nil))

	if o.relay != nil {
		if _, err := o.relay.NotifyStarted(ctx, req.CallID, req.Customer); err != nil {
			o.stepFailed(ctx, StepRelayStarted, err)
		}
	}

	content, err := o.generate(ctx, req)
	if err != nil {
		o.stepFailed(ctx, StepGenerate, err)
		o.notifyError(ctx, req, err)
		o.publish(ctx, events.New(events.TypeFailed, req.CallID, lindy.StatusFailed, map[string]any{"error": err.Error()}))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.metrics.RecordRun(VariantSync, metrics.OutcomeFailure, time.Since(start))
		return nil, err
	}

	title := DocumentTitle(req.CallID, req.Customer)

	notified := false
	if o.relay != nil {
		o.logger.Info(ctx, "sending SOP to relay for document creation")
		rcpt, err := o.relay.NotifyCompleted(ctx, lindy.CompletedInput{
			CallID:   req.CallID,
			Title:    title,
			Customer: req.Customer,
			Content:  content,
		})
		if err != nil {
			o.stepFailed(ctx, StepRelayCompleted, err)
		} else {
			notified = rcpt.Success
		}
	}

	if contactID := req.Customer.ContactID; contactID != "" && o.crm != nil {
		if err := o.crm.AddNote(ctx, contactID, ghl.AutomationNote(title)); err != nil {
			o.stepFailed(ctx, StepCRMNote, err)
		}
	}

	res := &Result{
		Success:       true,
		CallID:        req.CallID,
		SOPGenerated:  true,
		SOPLength:     utf8.RuneCountInString(content),
		DocumentTitle: title,
		LindyNotified: notified,
		Message:       ResultMessage,
		Content:       content,
	}

	o.publish(ctx, events.New(events.TypeCompleted, req.CallID, lindy.StatusCompleted, map[string]any{
		"document_title": title,
		"sop_length":     res.SOPLength,
		"lindy_notified": notified,
	}))
	span.SetAttributes(attribute.Int("sop_length", res.SOPLength), attribute.Bool("lindy_notified", notified))
	o.metrics.RecordRun(VariantSync, metrics.OutcomeSuccess, time.Since(start))
	o.logger.Info(ctx, "voice to SOP complete",
		zap.String("document_title", title),
		zap.Int("sop_length", res.SOPLength),
		zap.Bool("lindy_notified", notified),
		zap.Duration("duration", time.Since(start)))
	return res, nil
}

func (o *Orchestrator) generate(ctx context.Context, req Request) (string, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.generate")
	defer span.End()

	o.logger.Info(ctx, "generating SOP from transcript")
	content, err := o.generator.Generate(ctx, req.Transcript, req.Customer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return content, nil
}

// notifyError sends the relay error notification exactly once. It runs on
// a context detached from ctx's cancellation so a timed-out generation is
// still reported.
func (o *Orchestrator) notifyError(ctx context.Context, req Request, cause error) {
	if o.relay == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), errorNotifyTimeout)
	defer cancel()
	if _, err := o.relay.NotifyError(nctx, req.CallID, cause.Error(), req.Customer); err != nil {
		o.stepFailed(ctx, StepRelayError, err)
	}
}

// stepFailed logs a failed step according to its policy.
func (o *Orchestrator) stepFailed(ctx context.Context, step Step, err error) {
	policy := PolicyFor(step)
	o.metrics.RecordStepFailure(string(step), policy.String())
	fields := []zap.Field{zap.String("step", string(step)), zap.Stringer("policy", policy), zap.Error(err)}
	switch policy {
	case Abort:
		o.logger.Error(ctx, "error in voice to SOP processing", fields...)
	default:
		o.logger.Warn(ctx, "pipeline step failed", fields...)
	}
	trace.SpanFromContext(ctx).AddEvent("step_failed", trace.WithAttributes(
		attribute.String("step", string(step)),
		attribute.String("policy", policy.String()),
	))
}

func (o *Orchestrator) publish(ctx context.Context, e events.Event) {
	if err := o.events.Publish(ctx, e); err != nil {
		o.logger.Warn(ctx, "failed to publish pipeline event", zap.String("type", e.Type), zap.Error(err))
	}
}

// ManualResult is the response of a manual generation request.
type ManualResult struct {
	Success    bool   `json:"success"`
	SOPContent string `json:"sop_content"`
}

// GenerateManual generates an SOP outside the call flow. No notifications
// are sent.
func (o *Orchestrator) GenerateManual(ctx context.Context, transcript string, info customer.Info) (*ManualResult, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, NewValidationError("transcript", "No transcript provided")
	}
	ctx, span := o.tracer.Start(ctx, "pipeline.generate_manual")
	defer span.End()

	content, err := o.generator.Generate(ctx, transcript, info)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return &ManualResult{Success: true, SOPContent: content}, nil
}
