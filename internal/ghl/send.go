package ghl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"

	"github.com/fyrsmithlabs/voicesop/internal/upstream"
	"go.uber.org/zap"
)

// Channel names used in SendResult.Channels.
const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
	ChannelNote  = "note"
	ChannelTask  = "task"
)

// ChannelResult is the outcome of one delivery channel.
type ChannelResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SendResult summarizes a multi-channel document delivery.
type SendResult struct {
	Success     bool                     `json:"success"`
	SMSSent     bool                     `json:"sms_sent"`
	EmailSent   bool                     `json:"email_sent"`
	NoteAdded   bool                     `json:"note_added"`
	TaskCreated bool                     `json:"task_created"`
	Channels    map[string]ChannelResult `json:"channels,omitempty"`
}

// SMSText is the text message announcing a ready document.
func SMSText(title, docURL string) string {
	return fmt.Sprintf("Your SOP document '%s' is ready! View it here: %s", title, docURL)
}

// EmailSubject is the subject line of the delivery email.
func EmailSubject(title string) string {
	return "Your SOP: " + title
}

// NoteText is the contact note recorded on delivery.
func NoteText(title, docURL string) string {
	return fmt.Sprintf("SOP Document Created: %s\nURL: %s", title, docURL)
}

// TaskTitle is the follow-up task title.
func TaskTitle(title string) string {
	return "Follow up on SOP: " + title
}

// ReminderText is the reminder text message.
func ReminderText(title, docURL string) string {
	return fmt.Sprintf("Reminder: Your SOP document '%s' is available at: %s", title, docURL)
}

// AutomationNote is the note added when the relay has taken over a document.
func AutomationNote(title string) string {
	return fmt.Sprintf("SOP '%s' has been generated and is being processed by automation.", title)
}

var emailTemplate = template.Must(template.New("email").Parse(`
<html>
<body style="font-family: Arial, sans-serif; padding: 20px;">
    <h2 style="color: #333;">Your SOP Document is Ready!</h2>

    <p>Hello,</p>

    <p>We've created your Standard Operating Procedure document: <strong>{{.Title}}</strong></p>

    <div style="margin: 30px 0;">
        <a href="{{.URL}}"
           style="background-color: #4CAF50;
                  color: white;
                  padding: 15px 32px;
                  text-align: center;
                  text-decoration: none;
                  display: inline-block;
                  font-size: 16px;
                  border-radius: 4px;">
            View Your SOP Document
        </a>
    </div>

    <p>Or copy this link: <a href="{{.URL}}">{{.URL}}</a></p>

    <p style="margin-top: 30px; color: #666; font-size: 14px;">
        If you have any questions or need revisions, please don't hesitate to reach out.
    </p>

    <p style="color: #666; font-size: 14px;">
        Best regards,<br>
        Your SOP Team
    </p>
</body>
</html>
`))

// EmailBody renders the HTML delivery email. Title and URL are escaped.
func EmailBody(title, docURL string) (string, error) {
	var buf bytes.Buffer
	err := emailTemplate.Execute(&buf, struct{ Title, URL string }{title, docURL})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// SendDocument delivers a document link over SMS, email, a contact note and
// a follow-up task. Channels are independent: a failed channel is reported
// as false in the result. An error is returned only for failures outside
// the CRM calls themselves, such as a cancelled context.
func (c *Client) SendDocument(ctx context.Context, contactID, docURL, title string) (*SendResult, error) {
	const op = "send document"
	if contactID == "" {
		return nil, upstream.Wrap(upstream.ServiceGHL, op, ErrMissingContact)
	}
	body, err := EmailBody(title, docURL)
	if err != nil {
		return nil, upstream.Wrap(upstream.ServiceGHL, op, err)
	}

	c.logger.Info(ctx, "sending document to contact", zap.String("contact_id", contactID))
	res := &SendResult{Success: true, Channels: make(map[string]ChannelResult, 4)}

	res.SMSSent = c.channel(ctx, res, ChannelSMS, func() error {
		return c.SendSMS(ctx, contactID, SMSText(title, docURL))
	})
	res.EmailSent = c.channel(ctx, res, ChannelEmail, func() error {
		return c.SendEmail(ctx, contactID, EmailSubject(title), body)
	})
	res.NoteAdded = c.channel(ctx, res, ChannelNote, func() error {
		return c.AddNote(ctx, contactID, NoteText(title, docURL))
	})
	res.TaskCreated = c.channel(ctx, res, ChannelTask, func() error {
		return c.CreateTask(ctx, contactID, TaskTitle(title), FollowUpDelay)
	})

	if err := ctx.Err(); err != nil {
		return nil, upstream.Wrap(upstream.ServiceGHL, op, err)
	}
	c.logger.Info(ctx, "document sent to contact",
		zap.Bool("sms_sent", res.SMSSent),
		zap.Bool("email_sent", res.EmailSent),
		zap.Bool("note_added", res.NoteAdded),
		zap.Bool("task_created", res.TaskCreated))
	return res, nil
}

// SendReminder texts the contact a reminder about an existing document.
func (c *Client) SendReminder(ctx context.Context, contactID, docURL, title string) error {
	return c.SendSMS(ctx, contactID, ReminderText(title, docURL))
}

func (c *Client) channel(ctx context.Context, res *SendResult, name string, fn func() error) bool {
	if err := fn(); err != nil {
		if !errors.Is(err, ErrNoEmail) && !errors.Is(err, ErrInvalidEmail) {
			c.warn(ctx, name, err)
		}
		res.Channels[name] = ChannelResult{Error: err.Error()}
		return false
	}
	res.Channels[name] = ChannelResult{Success: true}
	return true
}
