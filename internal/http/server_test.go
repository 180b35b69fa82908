package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/voicesop/internal/config"
	"github.com/fyrsmithlabs/voicesop/internal/customer"
	"github.com/fyrsmithlabs/voicesop/internal/dedup"
	"github.com/fyrsmithlabs/voicesop/internal/lindy"
	"github.com/fyrsmithlabs/voicesop/internal/logging"
	"github.com/fyrsmithlabs/voicesop/internal/metrics"
	"github.com/fyrsmithlabs/voicesop/internal/pipeline"
	"github.com/fyrsmithlabs/voicesop/internal/scrub"
	"github.com/fyrsmithlabs/voicesop/internal/store"
	"github.com/fyrsmithlabs/voicesop/internal/upstream"
	"github.com/fyrsmithlabs/voicesop/internal/vapi"
	"github.com/fyrsmithlabs/voicesop/internal/workflows"
)

type fakePipeline struct {
	mu        sync.Mutex
	result    *pipeline.Result
	err       error
	manualErr error
	requests  []pipeline.Request
	manual    []customer.Info
	ctxErr    error
	// waitForDeadline makes a run last until its context expires.
	waitForDeadline bool
}

func (f *fakePipeline) ProcessVoiceToSOP(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	if f.waitForDeadline {
		<-ctx.Done()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	f.ctxErr = ctx.Err()
	if f.waitForDeadline {
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &pipeline.Result{Success: true, CallID: req.CallID, SOPGenerated: true, SOPLength: 5}, nil
}

func (f *fakePipeline) GenerateManual(_ context.Context, transcript string, info customer.Info) (*pipeline.ManualResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manual = append(f.manual, info)
	if transcript == "" {
		return nil, pipeline.NewValidationError("transcript", "No transcript provided")
	}
	if f.manualErr != nil {
		return nil, f.manualErr
	}
	return &pipeline.ManualResult{Success: true, SOPContent: "# SOP"}, nil
}

type fakeAssistants struct {
	err     error
	configs []vapi.AssistantConfig
}

func (f *fakeAssistants) CreateAssistant(_ context.Context, cfg vapi.AssistantConfig) (*vapi.Assistant, error) {
	f.configs = append(f.configs, cfg)
	if f.err != nil {
		return nil, f.err
	}
	return &vapi.Assistant{ID: "asst_1", Name: cfg.Name, ServerURL: cfg.ServerURL}, nil
}

type fakeEnqueuer struct {
	err    error
	inputs []workflows.TranscriptInput
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, in workflows.TranscriptInput) (*workflows.Queued, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &workflows.Queued{WorkflowID: workflows.WorkflowID(in.CallID), RunID: "run-1"}, nil
}

type fakeLease struct {
	released   bool
	releaseErr error
}

func (l *fakeLease) Release(ctx context.Context) error {
	l.released = true
	l.releaseErr = ctx.Err()
	return ctx.Err()
}

type fakeGuard struct {
	err    error
	leases []*fakeLease
}

func (g *fakeGuard) Acquire(context.Context, string) (dedup.Lease, error) {
	if g.err != nil {
		return nil, g.err
	}
	l := &fakeLease{}
	g.leases = append(g.leases, l)
	return l, nil
}

type fakeRecorder struct {
	mu         sync.Mutex
	logs       []store.WebhookLog
	assistants []string
	saveErr    error
}

func (r *fakeRecorder) LogWebhook(_ context.Context, entry store.WebhookLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, entry)
}

func (r *fakeRecorder) SaveAssistant(_ context.Context, vapiID, _ string, _ any) (*store.VAPIAssistant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assistants = append(r.assistants, vapiID)
	if r.saveErr != nil {
		return nil, r.saveErr
	}
	return &store.VAPIAssistant{VAPIID: vapiID}, nil
}

type fixture struct {
	server     *Server
	pipeline   *fakePipeline
	assistants *fakeAssistants
	guard      *fakeGuard
	recorder   *fakeRecorder
	logs       *logging.TestLogger
}

func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()
	f := &fixture{
		pipeline:   &fakePipeline{},
		assistants: &fakeAssistants{},
		guard:      &fakeGuard{},
		recorder:   &fakeRecorder{},
		logs:       logging.NewTestLogger(),
	}
	d := Deps{
		Pipeline:    f.pipeline,
		Assistants:  f.assistants,
		Guard:       f.guard,
		Recorder:    f.recorder,
		Metrics:     metrics.New(),
		Logger:      f.logs.Logger,
		LindySecret: config.Secret("s3cret"),
		Config: config.ServerConfig{
			PublicURL:    "https://sop.example.com",
			WriteTimeout: config.Duration(time.Minute),
		},
	}
	if mutate != nil {
		mutate(&d)
	}
	s, err := NewServer(d)
	require.NoError(t, err)
	f.server = s
	return f
}

func (f *fixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const endOfCallReport = `{
  "message": {
    "type": "end-of-call-report",
    "transcript": "User: we ship orders by noon",
    "call": {
      "id": "call_1",
      "assistantId": "asst_9",
      "customer": {"id": "c_1", "name": "Ana", "email": "ana@example.com", "number": "+15551234567"}
    }
  }
}`

func TestNewServer(t *testing.T) {
	logger := logging.NewNop()

	t.Run("requires pipeline", func(t *testing.T) {
		_, err := NewServer(Deps{Assistants: &fakeAssistants{}, Logger: logger})
		assert.ErrorContains(t, err, "pipeline cannot be nil")
	})

	t.Run("requires assistant client", func(t *testing.T) {
		_, err := NewServer(Deps{Pipeline: &fakePipeline{}, Logger: logger})
		assert.ErrorContains(t, err, "assistant client cannot be nil")
	})

	t.Run("requires logger", func(t *testing.T) {
		_, err := NewServer(Deps{Pipeline: &fakePipeline{}, Assistants: &fakeAssistants{}})
		assert.ErrorContains(t, err, "logger is required")
	})

	t.Run("defaults guard", func(t *testing.T) {
		s, err := NewServer(Deps{Pipeline: &fakePipeline{}, Assistants: &fakeAssistants{}, Logger: logger})
		require.NoError(t, err)
		assert.Equal(t, dedup.Nop{}, s.guard)
	})
}

func TestHandleHealth(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"voice-sop"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.do(http.MethodPost, "/webhook/vapi", `{"message":{"type":"status-update"}}`, nil)

	rec := f.do(http.MethodGet, "/metrics", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "voicesop_webhook_events_total")
}

func TestVAPIWebhook_Ignored(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"status update", `{"message":{"type":"status-update"}}`, `{"status":"ignored","type":"status-update"}`},
		{"missing type", `{"message":{}}`, `{"status":"ignored","type":null}`},
		{"numeric call id", `{"message":{"type":"status-update","call":{"id":123}}}`, `{"status":"ignored","type":"status-update"}`},
		{"array transcript", `{"message":{"type":"conversation-update","transcript":[{"role":"user"}]}}`, `{"status":"ignored","type":"conversation-update"}`},
		{"non-string type", `{"message":{"type":42}}`, `{"status":"ignored","type":null}`},
		{"no message", `{}`, `{"status":"ignored","type":null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)

			rec := f.do(http.MethodPost, "/webhook/vapi", tt.body, nil)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, tt.want, rec.Body.String())
			assert.Empty(t, f.pipeline.requests)
		})
	}
}

func TestVAPIWebhook_MissingTranscript(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/webhook/vapi", `{"message":{"type":"end-of-call-report","call":{"id":"c"}}}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"No transcript in end-of-call-report"}`, rec.Body.String())
	assert.Empty(t, f.pipeline.requests)
	assert.Empty(t, f.guard.leases)
}

func TestVAPIWebhook_BlankTranscript(t *testing.T) {
	body := `{"message":{"type":"end-of-call-report","transcript":"  \n\t ","call":{"id":"c"}}}`

	t.Run("sync", func(t *testing.T) {
		f := newFixture(t, nil)

		rec := f.do(http.MethodPost, "/webhook/vapi", body, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "No transcript in end-of-call-report", decode(t, rec)["error"])
		assert.Empty(t, f.pipeline.requests)
		assert.Empty(t, f.guard.leases)
	})

	t.Run("async", func(t *testing.T) {
		enq := &fakeEnqueuer{}
		f := newFixture(t, func(d *Deps) { d.Enqueuer = enq })

		rec := f.do(http.MethodPost, "/webhook/vapi", body, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, enq.inputs)
	})
}

func TestVAPIWebhook_InvalidJSON(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/webhook/vapi", `{"message":`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid JSON payload", decode(t, rec)["error"])
}

func TestVAPIWebhook_Sync(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/webhook/vapi", endOfCallReport, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "call_1", body["call_id"])

	require.Len(t, f.pipeline.requests, 1)
	req := f.pipeline.requests[0]
	assert.Equal(t, "call_1", req.CallID)
	assert.Equal(t, "User: we ship orders by noon", req.Transcript)
	assert.Equal(t, "Ana", req.Customer.Name)
	assert.Equal(t, "c_1", req.Customer.ContactID)
	assert.Equal(t, "+15551234567", req.Customer.Phone)
	assert.NoError(t, f.pipeline.ctxErr)

	require.Len(t, f.guard.leases, 1)
	assert.False(t, f.guard.leases[0].released, "lease is held after success")
}

func TestVAPIWebhook_PipelineFailureReleasesLease(t *testing.T) {
	f := newFixture(t, nil)
	f.pipeline.err = upstream.Wrap(upstream.ServiceGeneration, "generate", errors.New("quota exceeded"))

	rec := f.do(http.MethodPost, "/webhook/vapi", endOfCallReport, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "quota exceeded")
	require.Len(t, f.guard.leases, 1)
	assert.True(t, f.guard.leases[0].released)
}

func TestVAPIWebhook_TimedOutRunReleasesLease(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Config.WriteTimeout = config.Duration(50 * time.Millisecond)
	})
	f.pipeline.waitForDeadline = true

	rec := f.do(http.MethodPost, "/webhook/vapi", endOfCallReport, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.ErrorIs(t, f.pipeline.ctxErr, context.DeadlineExceeded)
	require.Len(t, f.guard.leases, 1)
	lease := f.guard.leases[0]
	assert.True(t, lease.released)
	assert.NoError(t, lease.releaseErr, "release must not inherit the expired run deadline")
	f.logs.AssertNotLogged(t, zapcore.WarnLevel, "failed to release call lease")
}

func TestVAPIWebhook_Duplicate(t *testing.T) {
	f := newFixture(t, nil)
	f.guard.err = dedup.ErrDuplicate
	before := testutil.ToFloat64(metrics.New().DuplicatesTotal)

	rec := f.do(http.MethodPost, "/webhook/vapi", endOfCallReport, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"duplicate","call_id":"call_1"}`, rec.Body.String())
	assert.Empty(t, f.pipeline.requests)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.New().DuplicatesTotal))
}

func TestVAPIWebhook_GuardUnavailableFailsOpen(t *testing.T) {
	f := newFixture(t, nil)
	f.guard.err = errors.New("redis: connection refused")

	rec := f.do(http.MethodPost, "/webhook/vapi", endOfCallReport, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.pipeline.requests, 1)
	f.logs.AssertLogged(t, zapcore.WarnLevel, "dedup guard unavailable, processing anyway")
}

func TestVAPIWebhook_Async(t *testing.T) {
	enq := &fakeEnqueuer{}
	f := newFixture(t, func(d *Deps) { d.Enqueuer = enq })

	rec := f.do(http.MethodPost, "/webhook/vapi", endOfCallReport, nil)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"status":"queued","call_id":"call_1","workflow_id":"voice-sop-call_1"}`, rec.Body.String())
	assert.Empty(t, f.pipeline.requests)
	require.Len(t, enq.inputs, 1)
	assert.Equal(t, "asst_9", enq.inputs[0].AssistantID)
	assert.Equal(t, "ana@example.com", enq.inputs[0].Customer.Email)
}

func TestVAPIWebhook_AsyncDuplicate(t *testing.T) {
	enq := &fakeEnqueuer{err: dedup.ErrDuplicate}
	f := newFixture(t, func(d *Deps) { d.Enqueuer = enq })

	rec := f.do(http.MethodPost, "/webhook/vapi", endOfCallReport, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"duplicate","call_id":"call_1"}`, rec.Body.String())
}

func TestVAPIWebhook_AsyncErrors(t *testing.T) {
	t.Run("enqueue failure", func(t *testing.T) {
		enq := &fakeEnqueuer{err: errors.New("temporal unavailable")}
		f := newFixture(t, func(d *Deps) { d.Enqueuer = enq })

		rec := f.do(http.MethodPost, "/webhook/vapi", endOfCallReport, nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "temporal unavailable", decode(t, rec)["error"])
	})

	t.Run("missing call id", func(t *testing.T) {
		enq := &fakeEnqueuer{}
		f := newFixture(t, func(d *Deps) { d.Enqueuer = enq })

		rec := f.do(http.MethodPost, "/webhook/vapi",
			`{"message":{"type":"end-of-call-report","transcript":"hi","call":{}}}`, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, enq.inputs)
	})
}

func TestWebhookAudit(t *testing.T) {
	f := newFixture(t, nil)

	f.do(http.MethodPost, "/webhook/vapi", `{"message":{"type":"status-update"}}`, nil)
	f.do(http.MethodPost, "/webhook/vapi", `{"message":{"type":"end-of-call-report"}}`, nil)
	f.do(http.MethodPost, "/webhook/lindy", `not json`, nil)
	f.do(http.MethodGet, "/health", "", nil)

	require.Len(t, f.recorder.logs, 3, "only webhook routes are audited")

	ok := f.recorder.logs[0]
	assert.Equal(t, "vapi", ok.Source)
	assert.Equal(t, "/webhook/vapi", ok.Endpoint)
	assert.Equal(t, http.StatusOK, ok.ResponseStatus)
	assert.Empty(t, ok.ErrorMessage)
	assert.JSONEq(t, `{"message":{"type":"status-update"}}`, string(ok.Payload))

	bad := f.recorder.logs[1]
	assert.Equal(t, http.StatusBadRequest, bad.ResponseStatus)
	assert.Equal(t, "No transcript in end-of-call-report", bad.ErrorMessage)

	lindyLog := f.recorder.logs[2]
	assert.Equal(t, "lindy", lindyLog.Source)
	assert.Equal(t, http.StatusBadRequest, lindyLog.ResponseStatus)
	assert.JSONEq(t, `"not json"`, string(lindyLog.Payload))
}

func TestWebhookAuditRedactsPayload(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Redactor = scrub.MustNew(nil) })

	rec := f.do(http.MethodPost, "/webhook/vapi",
		`{"message":{"type":"transcript","transcript":"card 4111 1111 1111 1111"}}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.recorder.logs, 1)
	assert.JSONEq(t, `{"message":{"type":"transcript","transcript":"card [REDACTED]"}}`,
		string(f.recorder.logs[0].Payload))
}

func TestWebhookRateLimit(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Config.WebhookRateLimit = 0.001
		d.Config.WebhookBurst = 2
	})
	body := `{"message":{"type":"status-update"}}`

	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/webhook/vapi", body, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/webhook/vapi", body, nil).Code)

	rec := f.do(http.MethodPost, "/webhook/vapi", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Rate limit exceeded", decode(t, rec)["error"])

	other := f.do(http.MethodPost, "/webhook/vapi", body, map[string]string{"X-Real-IP": "10.1.2.3"})
	assert.Equal(t, http.StatusOK, other.Code, "limits are per client ip")

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", "", nil).Code, "health is not limited")
}

func TestBodyLimit(t *testing.T) {
	f := newFixture(t, nil)
	big := `{"message":{"type":"status-update","transcript":"` + strings.Repeat("a", 2<<20) + `"}}`

	rec := f.do(http.MethodPost, "/webhook/vapi", big, nil)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestLindyWebhook_Auth(t *testing.T) {
	body := `{"action":"generate_sop","transcript":"hello"}`

	t.Run("wrong secret", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.do(http.MethodPost, "/webhook/lindy", body, map[string]string{lindy.SecretHeader: "nope"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"Invalid webhook secret"}`, rec.Body.String())
		assert.Empty(t, f.pipeline.manual)
	})

	t.Run("matching secret", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.do(http.MethodPost, "/webhook/lindy", body, map[string]string{lindy.SecretHeader: "s3cret"})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("no header passes", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.do(http.MethodPost, "/webhook/lindy", body, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("no configured secret passes", func(t *testing.T) {
		f := newFixture(t, func(d *Deps) { d.LindySecret = "" })
		rec := f.do(http.MethodPost, "/webhook/lindy", body, map[string]string{lindy.SecretHeader: "anything"})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("bad signature", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.do(http.MethodPost, "/webhook/lindy", body, map[string]string{lindy.SignatureHeader: "deadbeef"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Invalid webhook signature", decode(t, rec)["error"])
	})

	t.Run("good signature", func(t *testing.T) {
		f := newFixture(t, nil)
		sig := lindy.Signature([]byte(body), config.Secret("s3cret"))
		rec := f.do(http.MethodPost, "/webhook/lindy", body, map[string]string{lindy.SignatureHeader: sig})
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestLindyWebhook_Actions(t *testing.T) {
	t.Run("generate_sop", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.do(http.MethodPost, "/webhook/lindy",
			`{"action":"generate_sop","transcript":"hello","customer_info":{"name":"Bo","company":"Acme"}}`, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"success":true,"sop_content":"# SOP"}`, rec.Body.String())
		require.Len(t, f.pipeline.manual, 1)
		assert.Equal(t, "Bo", f.pipeline.manual[0].Name)
		assert.Equal(t, "Acme", f.pipeline.manual[0].Company)
	})

	t.Run("generate_sop without transcript", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.do(http.MethodPost, "/webhook/lindy", `{"action":"generate_sop"}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "No transcript provided", decode(t, rec)["error"])
	})

	t.Run("generate_sop failure", func(t *testing.T) {
		f := newFixture(t, nil)
		f.pipeline.manualErr = errors.New("SOP Generation Error: boom")
		rec := f.do(http.MethodPost, "/webhook/lindy", `{"action":"generate_sop","transcript":"x"}`, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "SOP Generation Error: boom", decode(t, rec)["error"])
	})

	t.Run("create_assistant", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.do(http.MethodPost, "/webhook/lindy", `{
			"action": "create_assistant",
			"name": "Intake",
			"model_config": {"provider": "openai", "model": "gpt-4"},
			"voice_config": {"provider": "11labs", "voiceId": "v1"},
			"first_message": "Hi",
			"webhook_url": "https://hooks.example.com/vapi"
		}`, nil)

		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "asst_1", decode(t, rec)["id"])
		require.Len(t, f.assistants.configs, 1)
		cfg := f.assistants.configs[0]
		assert.Equal(t, "Intake", cfg.Name)
		assert.Equal(t, "gpt-4", cfg.Model.Model)
		assert.Equal(t, "v1", cfg.Voice.VoiceID)
		assert.Equal(t, "https://hooks.example.com/vapi", cfg.ServerURL)
		assert.Equal(t, []string{"asst_1"}, f.recorder.assistants)
	})

	t.Run("create_assistant invalid webhook url", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.do(http.MethodPost, "/webhook/lindy", `{"action":"create_assistant","webhook_url":"not a url"}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, f.assistants.configs)
	})

	t.Run("unknown action", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.do(http.MethodPost, "/webhook/lindy", `{"action":"delete_everything"}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"Unknown action: delete_everything"}`, rec.Body.String())
	})
}

func TestCreateAssistant(t *testing.T) {
	t.Run("fills defaults", func(t *testing.T) {
		f := newFixture(t, nil)

		rec := f.do(http.MethodPost, "/api/assistant/create", `{"voice_id":"v1"}`, nil)

		assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		require.Len(t, f.assistants.configs, 1)
		cfg := f.assistants.configs[0]
		assert.Equal(t, vapi.DefaultAssistantName, cfg.Name)
		assert.Equal(t, vapi.DefaultModel, cfg.Model.Model)
		assert.Equal(t, vapi.DefaultSystemPrompt, cfg.Model.SystemPrompt())
		assert.Equal(t, "https://sop.example.com/webhook/vapi", cfg.ServerURL)
		assert.Equal(t, []string{"asst_1"}, f.recorder.assistants)
	})

	t.Run("derives webhook url from request host", func(t *testing.T) {
		f := newFixture(t, func(d *Deps) { d.Config.PublicURL = "" })

		rec := f.do(http.MethodPost, "/api/assistant/create", `{}`, nil)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "http://example.com/webhook/vapi", f.assistants.configs[0].ServerURL)
	})

	t.Run("record failure is not fatal", func(t *testing.T) {
		f := newFixture(t, nil)
		f.recorder.saveErr = errors.New("db down")

		rec := f.do(http.MethodPost, "/api/assistant/create", `{}`, nil)

		assert.Equal(t, http.StatusCreated, rec.Code)
		f.logs.AssertLogged(t, zapcore.WarnLevel, "failed to record assistant")
	})

	t.Run("upstream error", func(t *testing.T) {
		f := newFixture(t, nil)
		f.assistants.err = errors.New("VAPI API Error: 401 Unauthorized")

		rec := f.do(http.MethodPost, "/api/assistant/create", `{}`, nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "VAPI API Error: 401 Unauthorized", decode(t, rec)["error"])
	})

	t.Run("invalid webhook url", func(t *testing.T) {
		f := newFixture(t, nil)

		rec := f.do(http.MethodPost, "/api/assistant/create", `{"webhook_url":"::"}`, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, f.assistants.configs)
	})
}

func TestTestWebhook(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		t.Run(method, func(t *testing.T) {
			f := newFixture(t, nil)

			rec := f.do(method, "/test/vapi-webhook", "", nil)

			assert.Equal(t, http.StatusOK, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, true, body["success"])
			assert.Equal(t, "Test webhook processed successfully!", body["message"])
			require.Len(t, f.pipeline.requests, 1)
			assert.Equal(t, SampleCallID, f.pipeline.requests[0].CallID)
			assert.Equal(t, "Test Company", f.pipeline.requests[0].Customer.Company)
			assert.Contains(t, f.pipeline.requests[0].Transcript, "onboarding new employees")
		})
	}

	t.Run("failure", func(t *testing.T) {
		f := newFixture(t, nil)
		f.pipeline.err = errors.New("SOP Generation Error: boom")

		rec := f.do(http.MethodGet, "/test/vapi-webhook", "", nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"success":false,"error":"SOP Generation Error: boom","message":"Check server logs for details"}`, rec.Body.String())
	})
}

func TestIPLimiter_Reset(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newIPLimiter(0.001, 1)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("1.1.1.1"))
	assert.False(t, l.allow("1.1.1.1"))

	now = now.Add(limiterResetInterval + time.Minute)
	assert.True(t, l.allow("1.1.1.1"), "limiters are dropped after the reset interval")
}
