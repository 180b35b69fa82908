// Package ghl is the GoHighLevel CRM client used to deliver SOP documents
// to contacts.
package ghl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/fyrsmithlabs/voicesop/internal/config"
	"github.com/fyrsmithlabs/voicesop/internal/customer"
	"github.com/fyrsmithlabs/voicesop/internal/logging"
	"github.com/fyrsmithlabs/voicesop/internal/upstream"
	"go.uber.org/zap"
)

// DefaultBaseURL is the v1 REST root.
const DefaultBaseURL = "https://rest.gohighlevel.com/v1"

// FollowUpDelay is how far out the follow-up task is due.
const FollowUpDelay = 7 * 24 * time.Hour

// ErrNoEmail is recorded on the email channel when the contact has no
// address on file.
var ErrNoEmail = errors.New("no email address")

// ErrInvalidEmail is recorded on the email channel when the address on file
// is malformed.
var ErrInvalidEmail = errors.New("invalid email address")

// ErrMissingContact is returned when a contact id is required but empty.
var ErrMissingContact = errors.New("contact id is required")

// Contact is a CRM contact.
type Contact struct {
	ID          string   `json:"id"`
	FirstName   string   `json:"firstName,omitempty"`
	LastName    string   `json:"lastName,omitempty"`
	Name        string   `json:"name,omitempty"`
	Email       string   `json:"email,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	CompanyName string   `json:"companyName,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Info maps the contact onto the pipeline customer record.
func (c Contact) Info() customer.Info {
	name := c.Name
	if name == "" {
		name = joinName(c.FirstName, c.LastName)
	}
	return customer.Info{
		Name:      name,
		Email:     c.Email,
		Phone:     c.Phone,
		ContactID: c.ID,
		Company:   c.CompanyName,
	}
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + " " + last
}

// ContactUpdate is the body of a contact update. Only set fields are sent.
type ContactUpdate struct {
	FirstName   string            `json:"firstName,omitempty"`
	LastName    string            `json:"lastName,omitempty"`
	Email       string            `json:"email,omitempty"`
	Phone       string            `json:"phone,omitempty"`
	CompanyName string            `json:"companyName,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	CustomField map[string]string `json:"customField,omitempty"`
}

// Client talks to the CRM REST API.
type Client struct {
	http   *upstream.Client
	logger *logging.Logger
	now    func() time.Time
}

// NewClient creates a client. Failures are reported as "GHL API Error".
func NewClient(apiKey config.Secret, baseURL string, logger *logging.Logger, opts ...upstream.Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	opts = append([]upstream.Option{upstream.WithBearer(apiKey)}, opts...)
	return &Client{
		http:   upstream.New(upstream.ServiceGHL, baseURL, opts...),
		logger: logger.Named("ghl"),
		now:    time.Now,
	}
}

type message struct {
	ContactID string `json:"contactId"`
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	Subject   string `json:"subject,omitempty"`
	HTML      string `json:"html,omitempty"`
	EmailTo   string `json:"emailTo,omitempty"`
}

// SendSMS sends a text message to the contact.
func (c *Client) SendSMS(ctx context.Context, contactID, text string) error {
	if contactID == "" {
		return ErrMissingContact
	}
	_, err := c.http.Post(ctx, "send sms", "/conversations/messages",
		message{ContactID: contactID, Type: "SMS", Message: text}, nil)
	return err
}

// SendEmail looks up the contact's address and emails them. ErrNoEmail is
// returned when the contact has none, ErrInvalidEmail when it is malformed.
func (c *Client) SendEmail(ctx context.Context, contactID, subject, html string) error {
	contact, err := c.GetContact(ctx, contactID)
	if err != nil {
		return err
	}
	if contact.Email == "" {
		return ErrNoEmail
	}
	if !customer.ValidEmail(contact.Email) {
		return ErrInvalidEmail
	}
	_, err = c.http.Post(ctx, "send email", "/conversations/messages",
		message{ContactID: contactID, Type: "Email", Subject: subject, HTML: html, EmailTo: contact.Email}, nil)
	return err
}

// AddNote attaches a note to the contact.
func (c *Client) AddNote(ctx context.Context, contactID, body string) error {
	if contactID == "" {
		return ErrMissingContact
	}
	_, err := c.http.Post(ctx, "add note", contactPath(contactID, "notes"), map[string]string{"body": body}, nil)
	return err
}

type task struct {
	Title     string `json:"title"`
	DueDate   string `json:"dueDate"`
	Completed bool   `json:"completed"`
}

// CreateTask creates an open task due after dueIn.
func (c *Client) CreateTask(ctx context.Context, contactID, title string, dueIn time.Duration) error {
	if contactID == "" {
		return ErrMissingContact
	}
	due := c.now().Add(dueIn).UTC().Format(time.RFC3339)
	_, err := c.http.Post(ctx, "create task", contactPath(contactID, "tasks"), task{Title: title, DueDate: due}, nil)
	return err
}

// GetContact fetches a contact. Both the wrapped {"contact": {...}} and the
// bare response shapes are accepted.
func (c *Client) GetContact(ctx context.Context, contactID string) (*Contact, error) {
	if contactID == "" {
		return nil, ErrMissingContact
	}
	var raw json.RawMessage
	if _, err := c.http.Get(ctx, "get contact", contactPath(contactID, ""), &raw); err != nil {
		return nil, err
	}
	return decodeContact(raw)
}

func decodeContact(raw json.RawMessage) (*Contact, error) {
	var wrapped struct {
		Contact *Contact `json:"contact"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Contact != nil {
		return wrapped.Contact, nil
	}
	var flat Contact
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, upstream.Wrap(upstream.ServiceGHL, "get contact", fmt.Errorf("failed to parse contact: %w", err))
	}
	return &flat, nil
}

// UpdateContact updates contact fields.
func (c *Client) UpdateContact(ctx context.Context, contactID string, update ContactUpdate) (*Contact, error) {
	if contactID == "" {
		return nil, ErrMissingContact
	}
	var raw json.RawMessage
	if _, err := c.http.Put(ctx, "update contact", contactPath(contactID, ""), update, &raw); err != nil {
		return nil, err
	}
	return decodeContact(raw)
}

// AddTag tags the contact.
func (c *Client) AddTag(ctx context.Context, contactID, tag string) error {
	if contactID == "" {
		return ErrMissingContact
	}
	_, err := c.http.Post(ctx, "add tag", contactPath(contactID, "tags"), map[string][]string{"tags": {tag}}, nil)
	return err
}

// TriggerWorkflow enrolls the contact in a CRM workflow.
func (c *Client) TriggerWorkflow(ctx context.Context, contactID, workflowID string) error {
	if contactID == "" {
		return ErrMissingContact
	}
	path := contactPath(contactID, "workflow") + "/" + url.PathEscape(workflowID)
	_, err := c.http.Post(ctx, "trigger workflow", path, nil, nil)
	return err
}

func contactPath(contactID, sub string) string {
	p := "/contacts/" + url.PathEscape(contactID)
	if sub != "" {
		p += "/" + sub
	}
	return p
}

func (c *Client) warn(ctx context.Context, channel string, err error) {
	c.logger.Warn(ctx, "crm channel failed", zap.String("channel", channel), zap.Error(err))
}
