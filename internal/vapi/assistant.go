package vapi

import (
	"strings"
	"time"
)

// Assistant defaults used when a create request leaves a field empty.
const (
	DefaultAssistantName = "SOP Voice Assistant"
	DefaultModel         = "gpt-4"
	DefaultModelProvider = "openai"
	DefaultVoiceProvider = "11labs"
	DefaultFirstMessage  = "Hello! I'm here to help you create your Standard Operating Procedure. Let's get started!"
	webhookPath          = "/webhook/vapi"
)

// DefaultSystemPrompt drives the SOP interview on the voice call.
const DefaultSystemPrompt = `You are a professional SOP (Standard Operating Procedure) creation assistant.
Your role is to have a natural conversation with the user to gather all necessary information
to create a comprehensive, detailed SOP document.

Ask questions about:
1. The process name and purpose
2. Step-by-step procedures
3. Required tools, materials, or software
4. Safety considerations or prerequisites
5. Expected outcomes and quality standards
6. Common issues and troubleshooting steps
7. Responsible parties and escalation procedures

Be thorough but conversational. Confirm understanding and ask clarifying questions.
At the end, summarize what you've learned to ensure accuracy.`

// InterviewPrompt is the stricter prompt installed by `assistant update
// --prompt`. It keeps the assistant from trying to create documents itself.
const InterviewPrompt = `You are a professional SOP (Standard Operating Procedure) creation assistant.

Your role is to have a natural, conversational interview with the user to gather all necessary information to create a comprehensive SOP document.

IMPORTANT: Your ONLY job is to gather information through conversation. DO NOT write to Google Sheets or create any documents yourself. Just have a thorough conversation.

Ask questions about:
1. Process name and purpose - What is this SOP for?
2. Step-by-step procedures - Walk me through each step
3. Required tools, materials, or software - What do you need?
4. Safety considerations or prerequisites - Any warnings or requirements?
5. Expected outcomes and quality standards - What does success look like?
6. Common issues and troubleshooting - What typically goes wrong?
7. Responsible parties and escalation - Who does what?

Be thorough but conversational. Ask follow-up questions. Confirm understanding.

At the end of the conversation, summarize what you've learned to ensure accuracy, then thank them.

The system will automatically send the transcript to create the SOP document - you don't need to do anything else.`

// ChatMessage is one prompt message in a model config.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Model is the assistant's language model configuration.
type Model struct {
	Provider    string        `json:"provider,omitempty"`
	Model       string        `json:"model,omitempty"`
	Messages    []ChatMessage `json:"messages,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"maxTokens,omitempty"`
}

// SystemPrompt returns the first system message, if any.
func (m *Model) SystemPrompt() string {
	if m == nil {
		return ""
	}
	for _, msg := range m.Messages {
		if msg.Role == "system" {
			return msg.Content
		}
	}
	return ""
}

// WithSystemPrompt returns a copy of m whose messages are replaced by a
// single system prompt.
func (m *Model) WithSystemPrompt(prompt string) *Model {
	out := Model{Provider: DefaultModelProvider, Model: DefaultModel}
	if m != nil {
		out = *m
	}
	out.Messages = []ChatMessage{{Role: "system", Content: prompt}}
	return &out
}

// Voice is the assistant's text-to-speech configuration.
type Voice struct {
	Provider string `json:"provider,omitempty"`
	VoiceID  string `json:"voiceId,omitempty"`
}

// AssistantConfig is the create/update body for an assistant.
type AssistantConfig struct {
	Name         string `json:"name,omitempty"`
	Model        *Model `json:"model,omitempty"`
	Voice        *Voice `json:"voice,omitempty"`
	FirstMessage string `json:"firstMessage,omitempty"`
	ServerURL    string `json:"serverUrl,omitempty"`
}

// Assistant is an assistant as returned by the platform.
type Assistant struct {
	ID           string    `json:"id"`
	OrgID        string    `json:"orgId,omitempty"`
	Name         string    `json:"name,omitempty"`
	Model        *Model    `json:"model,omitempty"`
	Voice        *Voice    `json:"voice,omitempty"`
	FirstMessage string    `json:"firstMessage,omitempty"`
	ServerURL    string    `json:"serverUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CreateAssistantRequest is the body accepted by POST /api/assistant/create.
type CreateAssistantRequest struct {
	Name          string `json:"name"`
	Model         string `json:"model"`
	SystemPrompt  string `json:"system_prompt"`
	VoiceProvider string `json:"voice_provider"`
	VoiceID       string `json:"voice_id"`
	FirstMessage  string `json:"first_message"`
	WebhookURL    string `json:"webhook_url" validate:"omitempty,url"`
}

// Config fills defaults. baseURL is the public root of this service and is
// used to derive the webhook URL when none is given.
func (r CreateAssistantRequest) Config(baseURL string) AssistantConfig {
	serverURL := r.WebhookURL
	if serverURL == "" {
		serverURL = WebhookURL(baseURL)
	}
	return AssistantConfig{
		Name: or(r.Name, DefaultAssistantName),
		Model: &Model{
			Provider: DefaultModelProvider,
			Model:    or(r.Model, DefaultModel),
			Messages: []ChatMessage{{Role: "system", Content: or(r.SystemPrompt, DefaultSystemPrompt)}},
		},
		Voice: &Voice{
			Provider: or(r.VoiceProvider, DefaultVoiceProvider),
			VoiceID:  r.VoiceID,
		},
		FirstMessage: or(r.FirstMessage, DefaultFirstMessage),
		ServerURL:    serverURL,
	}
}

// WebhookURL returns the end-of-call webhook URL under baseURL.
func WebhookURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + webhookPath
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
