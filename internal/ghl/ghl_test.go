package ghl

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fyrsmithlabs/voicesop/internal/config"
	"github.com/fyrsmithlabs/voicesop/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type request struct {
	Method string
	Path   string
	Body   map[string]any
}

type fakeCRM struct {
	mu       sync.Mutex
	requests []request
	contact  string
	failPath map[string]int
}

func newFakeCRM(t *testing.T, contact string) (*fakeCRM, *Client) {
	t.Helper()
	f := &fakeCRM{contact: contact, failPath: map[string]int{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)

	c := NewClient(config.Secret("ghl-key"), srv.URL, nil, upstream.WithRetries(0, 0))
	c.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return f, c
}

func (f *fakeCRM) serve(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)

	f.mu.Lock()
	f.requests = append(f.requests, request{Method: r.Method, Path: r.URL.Path, Body: body})
	status := f.failPath[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer ghl-key" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"msg":"boom"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodGet || r.Method == http.MethodPut {
		_, _ = w.Write([]byte(f.contact))
		return
	}
	_, _ = w.Write([]byte(`{"id":"ok"}`))
}

func (f *fakeCRM) find(method, path string) []request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []request
	for _, r := range f.requests {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func TestSendDocument_AllChannels(t *testing.T) {
	f, c := newFakeCRM(t, `{"contact":{"id":"c1","email":"ana@example.com"}}`)

	res, err := c.SendDocument(context.Background(), "c1", "https://docs.google.com/document/d/d1/edit", "Onboarding")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.SMSSent)
	assert.True(t, res.EmailSent)
	assert.True(t, res.NoteAdded)
	assert.True(t, res.TaskCreated)

	msgs := f.find(http.MethodPost, "/conversations/messages")
	require.Len(t, msgs, 2)
	assert.Equal(t, "SMS", msgs[0].Body["type"])
	assert.Equal(t, "c1", msgs[0].Body["contactId"])
	assert.Equal(t, "Your SOP document 'Onboarding' is ready! View it here: https://docs.google.com/document/d/d1/edit", msgs[0].Body["message"])
	assert.Equal(t, "Email", msgs[1].Body["type"])
	assert.Equal(t, "Your SOP: Onboarding", msgs[1].Body["subject"])
	assert.Equal(t, "ana@example.com", msgs[1].Body["emailTo"])
	assert.Contains(t, msgs[1].Body["html"], "<strong>Onboarding</strong>")

	notes := f.find(http.MethodPost, "/contacts/c1/notes")
	require.Len(t, notes, 1)
	assert.Equal(t, "SOP Document Created: Onboarding\nURL: https://docs.google.com/document/d/d1/edit", notes[0].Body["body"])

	tasks := f.find(http.MethodPost, "/contacts/c1/tasks")
	require.Len(t, tasks, 1)
	assert.Equal(t, "Follow up on SOP: Onboarding", tasks[0].Body["title"])
	assert.Equal(t, "2024-03-08T12:00:00Z", tasks[0].Body["dueDate"])
	assert.Equal(t, false, tasks[0].Body["completed"])
}

func TestSendDocument_NoEmailSkipsEmailWithoutError(t *testing.T) {
	f, c := newFakeCRM(t, `{"id":"c1","phone":"+15551234567"}`)

	res, err := c.SendDocument(context.Background(), "c1", "u", "T")
	require.NoError(t, err)
	assert.True(t, res.SMSSent)
	assert.False(t, res.EmailSent)
	assert.Equal(t, "no email address", res.Channels[ChannelEmail].Error)
	assert.True(t, res.NoteAdded)
	assert.True(t, res.TaskCreated)
	assert.Len(t, f.find(http.MethodPost, "/conversations/messages"), 1)
}

func TestSendDocument_InvalidEmailSkipsEmail(t *testing.T) {
	f, c := newFakeCRM(t, `{"contact":{"id":"c1","email":"ana at example"}}`)

	res, err := c.SendDocument(context.Background(), "c1", "u", "T")
	require.NoError(t, err)
	assert.True(t, res.SMSSent)
	assert.False(t, res.EmailSent)
	assert.Equal(t, "invalid email address", res.Channels[ChannelEmail].Error)
	assert.Len(t, f.find(http.MethodPost, "/conversations/messages"), 1, "only the SMS is sent")
}

func TestSendDocument_ChannelFailuresAreIsolated(t *testing.T) {
	f, c := newFakeCRM(t, `{"contact":{"id":"c1","email":"a@b.co"}}`)
	f.failPath["POST /contacts/c1/notes"] = http.StatusInternalServerError
	f.failPath["GET /contacts/c1"] = http.StatusNotFound

	res, err := c.SendDocument(context.Background(), "c1", "u", "T")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.SMSSent)
	assert.False(t, res.EmailSent)
	assert.False(t, res.NoteAdded)
	assert.True(t, res.TaskCreated)
	assert.Contains(t, res.Channels[ChannelNote].Error, "GHL API Error")
}

func TestSendDocument_CancelledContextIsAnError(t *testing.T) {
	_, c := newFakeCRM(t, `{}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := c.SendDocument(ctx, "c1", "u", "T")
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "GHL API Error:"))
}

func TestSendDocument_RequiresContact(t *testing.T) {
	_, c := newFakeCRM(t, `{}`)
	_, err := c.SendDocument(context.Background(), "", "u", "T")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingContact)
}

func TestGetContact_Shapes(t *testing.T) {
	_, c := newFakeCRM(t, `{"contact":{"id":"c1","firstName":"Ana","lastName":"Diaz","companyName":"Acme"}}`)
	got, err := c.GetContact(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Ana Diaz", got.Info().Name)
	assert.Equal(t, "Acme", got.Info().Company)
	assert.Equal(t, "c1", got.Info().ContactID)

	_, c = newFakeCRM(t, `{"id":"c2","email":"x@y.z"}`)
	got, err = c.GetContact(context.Background(), "c2")
	require.NoError(t, err)
	assert.Equal(t, "x@y.z", got.Email)
}

func TestContactMutations(t *testing.T) {
	f, c := newFakeCRM(t, `{"contact":{"id":"c1","tags":["sop"]}}`)
	ctx := context.Background()

	require.NoError(t, c.AddTag(ctx, "c1", "sop"))
	require.NoError(t, c.TriggerWorkflow(ctx, "c1", "wf 1"))
	updated, err := c.UpdateContact(ctx, "c1", ContactUpdate{CompanyName: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, []string{"sop"}, updated.Tags)
	require.NoError(t, c.SendReminder(ctx, "c1", "u", "T"))

	tags := f.find(http.MethodPost, "/contacts/c1/tags")
	require.Len(t, tags, 1)
	assert.Equal(t, []any{"sop"}, tags[0].Body["tags"])
	assert.Len(t, f.find(http.MethodPost, "/contacts/c1/workflow/wf 1"), 1)

	puts := f.find(http.MethodPut, "/contacts/c1")
	require.Len(t, puts, 1)
	assert.Equal(t, map[string]any{"companyName": "Acme"}, puts[0].Body)

	msgs := f.find(http.MethodPost, "/conversations/messages")
	require.Len(t, msgs, 1)
	assert.Equal(t, "Reminder: Your SOP document 'T' is available at: u", msgs[0].Body["message"])
}

func TestEmailBody_EscapesInput(t *testing.T) {
	body, err := EmailBody(`<script>x</script>`, "https://docs.example.com/d?a=1&b=2")
	require.NoError(t, err)
	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "View Your SOP Document")
}

func TestTexts(t *testing.T) {
	assert.Equal(t, "SOP 'T' has been generated and is being processed by automation.", AutomationNote("T"))
	assert.Equal(t, "Follow up on SOP: T", TaskTitle("T"))
}
