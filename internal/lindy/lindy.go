// Package lindy notifies the external automation relay about SOP lifecycle
// events and verifies callbacks coming back from it.
package lindy

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/fyrsmithlabs/voicesop/internal/config"
	"github.com/fyrsmithlabs/voicesop/internal/customer"
	"github.com/fyrsmithlabs/voicesop/internal/logging"
	"github.com/fyrsmithlabs/voicesop/internal/upstream"
	"go.uber.org/zap"
)

// Relay event names.
const (
	EventStarted   = "sop_started"
	EventCompleted = "sop_completed"
	EventError     = "sop_error"
)

// Relay statuses.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Header names used on relay traffic.
const (
	SecretHeader    = "X-Webhook-Secret"
	SignatureHeader = "X-Webhook-Signature"
)

// Customer is the customer block sent to the relay. Absent fields are
// omitted, never sent as null.
type Customer struct {
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	ContactID  string `json:"contact_id,omitempty"`
	Company    string `json:"company,omitempty"`
	Department string `json:"department,omitempty"`
}

func fromInfo(info customer.Info) Customer {
	return Customer{
		Name:      info.Name,
		Email:     info.Email,
		Phone:     info.Phone,
		ContactID: info.ContactID,
		Company:   info.Company,
	}
}

// Document is the document block of a completion event. URL is empty when
// the relay is expected to create the document itself.
type Document struct {
	URL     string `json:"url,omitempty"`
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
}

// Payload is a lifecycle event.
type Payload struct {
	Event     string    `json:"event"`
	CallID    string    `json:"call_id"`
	Document  *Document `json:"document,omitempty"`
	Customer  Customer  `json:"customer"`
	Error     string    `json:"error,omitempty"`
	Status    string    `json:"status"`
	Timestamp string    `json:"timestamp"`
}

type customEvent struct {
	Event     string `json:"event"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

// CompletedInput describes a generated SOP.
type CompletedInput struct {
	CallID      string
	DocumentURL string
	Title       string
	Customer    customer.Info
	Content     string
}

// Receipt acknowledges a delivered event.
type Receipt struct {
	Success    bool `json:"success"`
	StatusCode int  `json:"status_code"`
}

// Client posts events to the relay webhook.
type Client struct {
	http   *upstream.Client
	url    string
	logger *logging.Logger
	now    func() time.Time
}

// NewClient creates a relay client for webhookURL. The secret, when set,
// is sent in the X-Webhook-Secret header.
func NewClient(webhookURL string, secret config.Secret, logger *logging.Logger, opts ...upstream.Option) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	if secret.IsSet() {
		opts = append([]upstream.Option{upstream.WithHeader(SecretHeader, secret.Value())}, opts...)
	}
	return &Client{
		http:   upstream.New(upstream.ServiceLindy, "", opts...),
		url:    webhookURL,
		logger: logger.Named("lindy"),
		now:    time.Now,
	}
}

// Timestamp formats t the way the relay expects: RFC 3339 in UTC with a Z
// suffix.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000Z")
}

// NotifyStarted reports that generation has begun.
func (c *Client) NotifyStarted(ctx context.Context, callID string, info customer.Info) (Receipt, error) {
	cust := fromInfo(info)
	cust.Company = ""
	return c.send(ctx, "notify started", callID, Payload{
		Event:    EventStarted,
		CallID:   callID,
		Customer: cust,
		Status:   StatusProcessing,
	})
}

// NotifyCompleted hands the generated SOP to the relay.
func (c *Client) NotifyCompleted(ctx context.Context, in CompletedInput) (Receipt, error) {
	return c.send(ctx, "notify completed", in.CallID, Payload{
		Event:  EventCompleted,
		CallID: in.CallID,
		Document: &Document{
			URL:     in.DocumentURL,
			Title:   in.Title,
			Content: in.Content,
		},
		Customer: fromInfo(in.Customer),
		Status:   StatusCompleted,
	})
}

// NotifyError reports a failed pipeline run.
func (c *Client) NotifyError(ctx context.Context, callID, message string, info customer.Info) (Receipt, error) {
	cust := fromInfo(info)
	cust.Department = info.Department
	return c.send(ctx, "notify error", callID, Payload{
		Event:    EventError,
		CallID:   callID,
		Error:    message,
		Customer: cust,
		Status:   StatusFailed,
	})
}

// SendCustomEvent posts an arbitrary event with data.
func (c *Client) SendCustomEvent(ctx context.Context, event string, data any) (Receipt, error) {
	status, err := c.http.Post(ctx, "send custom event", c.url, customEvent{
		Event:     event,
		Data:      data,
		Timestamp: Timestamp(c.now()),
	}, nil)
	if err != nil {
		c.logger.Error(ctx, "failed to send custom event", zap.String("event", event), zap.Error(err))
		return Receipt{StatusCode: upstream.StatusCode(err)}, err
	}
	return Receipt{Success: true, StatusCode: status}, nil
}

func (c *Client) send(ctx context.Context, op, callID string, p Payload) (Receipt, error) {
	p.Timestamp = Timestamp(c.now())
	c.logger.Info(ctx, "notifying relay", zap.String("event", p.Event), zap.String("call_id", callID))

	status, err := c.http.Post(ctx, op, c.url, p, nil)
	if err != nil {
		c.logger.Error(ctx, "failed to notify relay", zap.String("event", p.Event), zap.Error(err))
		return Receipt{StatusCode: upstream.StatusCode(err)}, err
	}
	return Receipt{Success: true, StatusCode: status}, nil
}

// Signature returns the hex SHA-256 of body followed by secret.
func Signature(body []byte, secret config.Secret) string {
	h := sha256.New()
	h.Write(body)
	h.Write([]byte(secret.Value()))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature reports whether signature matches body under secret.
func VerifySignature(body []byte, signature string, secret config.Secret) bool {
	if signature == "" || !secret.IsSet() {
		return false
	}
	expected := Signature(body, secret)
	return subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) == 1
}

// VerifySecret checks an inbound X-Webhook-Secret value. A request without
// the header, or a server without a configured secret, passes.
func VerifySecret(header string, secret config.Secret) bool {
	if header == "" || !secret.IsSet() {
		return true
	}
	return secret.Equal(header)
}
