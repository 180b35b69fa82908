package vapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fyrsmithlabs/voicesop/internal/customer"
	"github.com/fyrsmithlabs/voicesop/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelope_EndOfCallReport(t *testing.T) {
	body := []byte(`{
		"message": {
			"type": "end-of-call-report",
			"transcript": "Assistant: hi\nUser: hello",
			"call": {
				"id": "call_123",
				"assistantId": "asst_1",
				"customer": {"id": "contact_9", "name": "Ana", "number": "+15551234567"}
			}
		}
	}`)

	env, err := ParseEnvelope(body)
	require.NoError(t, err)
	assert.True(t, env.Message.IsEndOfCallReport())
	assert.Equal(t, "call_123", env.Message.Call.ID)
	assert.Equal(t, customer.Info{
		Name:      "Ana",
		Phone:     "+15551234567",
		ContactID: "contact_9",
	}, env.Message.Call.Customer.Info())
}

func TestParseEnvelope_OtherTypesAndMissingObjects(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"message":{"type":"status-update"}}`))
	require.NoError(t, err)
	assert.False(t, env.Message.IsEndOfCallReport())
	assert.Empty(t, env.Message.Call.ID)

	env, err = ParseEnvelope([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, env.Message.Type)

	_, err = ParseEnvelope([]byte(`{not json`))
	assert.Error(t, err)
}

func TestCustomer_InfoNormalizesPhone(t *testing.T) {
	info := Customer{ID: "c1", Number: "(650) 253-0000"}.Info()
	assert.Equal(t, "+16502530000", info.Phone)
	assert.Equal(t, "c1", info.ContactID)
}

func TestParseEnvelope_UnknownShapes(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantType string
	}{
		{"numeric call id", `{"message":{"type":"status-update","call":{"id":123}}}`, "status-update"},
		{"array transcript", `{"message":{"type":"conversation-update","transcript":[{"role":"user"}]}}`, "conversation-update"},
		{"numeric type", `{"message":{"type":7}}`, ""},
		{"message is a string", `{"message":"hello"}`, ""},
		{"null message", `{"message":null}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := ParseEnvelope([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, env.Message.Type)
			assert.False(t, env.Message.IsEndOfCallReport())
		})
	}
}

func TestParseEnvelope_MalformedEndOfCallReport(t *testing.T) {
	_, err := ParseEnvelope([]byte(`{"message":{"type":"end-of-call-report","transcript":["a"]}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid end-of-call-report")
}

func TestCreateAssistantRequest_Defaults(t *testing.T) {
	cfg := CreateAssistantRequest{}.Config("https://sop.example.com/")

	assert.Equal(t, DefaultAssistantName, cfg.Name)
	assert.Equal(t, "gpt-4", cfg.Model.Model)
	assert.Equal(t, "openai", cfg.Model.Provider)
	assert.Equal(t, DefaultSystemPrompt, cfg.Model.SystemPrompt())
	assert.Equal(t, "11labs", cfg.Voice.Provider)
	assert.Equal(t, DefaultFirstMessage, cfg.FirstMessage)
	assert.Equal(t, "https://sop.example.com/webhook/vapi", cfg.ServerURL)
}

func TestCreateAssistantRequest_Overrides(t *testing.T) {
	cfg := CreateAssistantRequest{
		Name:          "Ops",
		Model:         "gpt-4o",
		SystemPrompt:  "be brief",
		VoiceProvider: "playht",
		VoiceID:       "v1",
		FirstMessage:  "Hi",
		WebhookURL:    "https://hooks.example.com/vapi",
	}.Config("https://ignored.example.com")

	assert.Equal(t, "Ops", cfg.Name)
	assert.Equal(t, "gpt-4o", cfg.Model.Model)
	assert.Equal(t, "be brief", cfg.Model.SystemPrompt())
	assert.Equal(t, &Voice{Provider: "playht", VoiceID: "v1"}, cfg.Voice)
	assert.Equal(t, "https://hooks.example.com/vapi", cfg.ServerURL)
}

func TestModel_WithSystemPrompt(t *testing.T) {
	var nilModel *Model
	m := nilModel.WithSystemPrompt(InterviewPrompt)
	assert.Equal(t, DefaultModel, m.Model)
	assert.Equal(t, InterviewPrompt, m.SystemPrompt())

	orig := &Model{Provider: "openai", Model: "gpt-4o", Messages: []ChatMessage{{Role: "system", Content: "old"}}}
	updated := orig.WithSystemPrompt("new")
	assert.Equal(t, "gpt-4o", updated.Model)
	assert.Equal(t, "new", updated.SystemPrompt())
	assert.Equal(t, "old", orig.SystemPrompt())
}

func TestClient_AssistantLifecycle(t *testing.T) {
	var gotMethods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethods = append(gotMethods, r.Method+" "+r.URL.Path)
		assert.Equal(t, "Bearer vapi-key", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/assistant":
			var cfg AssistantConfig
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&cfg))
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(Assistant{ID: "asst_1", Name: cfg.Name, ServerURL: cfg.ServerURL})
		case r.Method == http.MethodGet && r.URL.Path == "/assistant/asst_1":
			_ = json.NewEncoder(w).Encode(Assistant{ID: "asst_1", Name: "SOP Voice Assistant"})
		case r.Method == http.MethodPatch && r.URL.Path == "/assistant/asst_1":
			var cfg AssistantConfig
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&cfg))
			_ = json.NewEncoder(w).Encode(Assistant{ID: "asst_1", ServerURL: cfg.ServerURL})
		case r.Method == http.MethodGet && r.URL.Path == "/assistant":
			_ = json.NewEncoder(w).Encode([]Assistant{{ID: "asst_1"}, {ID: "asst_2"}})
		case r.Method == http.MethodDelete && r.URL.Path == "/assistant/asst_1":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && r.URL.Path == "/call/call_1":
			_ = json.NewEncoder(w).Encode(CallDetails{ID: "call_1", Status: "ended"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient("vapi-key", srv.URL, upstream.WithRateLimit(1000, 100))
	ctx := context.Background()

	created, err := c.CreateAssistant(ctx, CreateAssistantRequest{}.Config("https://sop.example.com"))
	require.NoError(t, err)
	assert.Equal(t, "asst_1", created.ID)
	assert.Equal(t, "https://sop.example.com/webhook/vapi", created.ServerURL)

	got, err := c.GetAssistant(ctx, "asst_1")
	require.NoError(t, err)
	assert.Equal(t, "SOP Voice Assistant", got.Name)

	updated, err := c.UpdateAssistant(ctx, "asst_1", AssistantConfig{ServerURL: "https://new.example.com/webhook/vapi"})
	require.NoError(t, err)
	assert.Equal(t, "https://new.example.com/webhook/vapi", updated.ServerURL)

	list, err := c.ListAssistants(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, c.DeleteAssistant(ctx, "asst_1"))

	call, err := c.GetCall(ctx, "call_1")
	require.NoError(t, err)
	assert.Equal(t, "ended", call.Status)

	assert.Len(t, gotMethods, 6)
}

func TestClient_ErrorPrefix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"name too long"}`))
	}))
	defer srv.Close()

	c := NewClient("vapi-key", srv.URL, upstream.WithRateLimit(1000, 100))
	_, err := c.CreateAssistant(context.Background(), AssistantConfig{Name: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VAPI API Error:")
	assert.Equal(t, http.StatusBadRequest, upstream.StatusCode(err))
}
