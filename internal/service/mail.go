package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/assetline/cloudhooks/internal/domain"
	"github.com/assetline/cloudhooks/internal/hooks"
	mailq "github.com/assetline/cloudhooks/internal/mail"
	"github.com/assetline/cloudhooks/internal/metrics"
	"github.com/assetline/cloudhooks/internal/models"
)

// Mail function messages.
const (
	MsgEmailSent          = "Email sent!"
	MsgEmailFailed        = "Uh oh, something went wrong"
	MsgReminderQueued     = "Reminder queued"
	MsgAssetNotFound      = "asset not found"
	MsgRecipientRequired  = "recipient email required"
	MsgReminderQueueFull  = "reminder queue full"
	mailKindFeedback      = "feedback"
	mailKindReminder      = "exception_reminder"
	defaultFeedbackType   = "general"
	maxFeedbackMessageLen = 10000
)

type feedbackParams struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// SendFeedback mails the acting user's feedback to the feedback inbox and
// waits for the provider's answer.
func (f *Functions) SendFeedback(ctx context.Context, req *hooks.Request) (any, error) {
	if req.User == nil {
		return nil, hooks.Fail(MsgLoginRequired)
	}

	var p feedbackParams
	if err := req.DecodeParams(&p); err != nil {
		return nil, hooks.FailWith("invalid params", err)
	}

	p.Message = strings.TrimSpace(p.Message)
	if p.Message == "" {
		return nil, hooks.Fail("message is required")
	}
	if len(p.Message) > maxFeedbackMessageLen {
		return nil, hooks.Fail(fmt.Sprintf("message exceeds maximum length of %d", maxFeedbackMessageLen))
	}

	kind := strings.TrimSpace(p.Type)
	if kind == "" {
		kind = defaultFeedbackType
	}

	to := f.mail.FeedbackTo
	if to == "" {
		to = f.mail.From
	}

	user := req.User
	msg := domain.Message{
		From:    f.mail.From,
		To:      to,
		ReplyTo: user.Email,
		Subject: "[Feedback] " + cases.Title(language.English).String(kind),
		Text: fmt.Sprintf("From: %s <%s>\nUser ID: %s\nType: %s\n\n%s\n",
			user.DisplayName(), user.Email, user.ObjectID, kind, p.Message),
	}

	if err := f.mailer.Send(ctx, msg); err != nil {
		metrics.MailSent.WithLabelValues(mailKindFeedback, "failed").Inc()
		return nil, hooks.FailWith(MsgEmailFailed, err)
	}

	metrics.MailSent.WithLabelValues(mailKindFeedback, "sent").Inc()

	return MsgEmailSent, nil
}

type reminderParams struct {
	AssetID string `json:"assetId"`
	Email   string `json:"email"`
}

// SendExceptionReminder queues a reminder about an asset's current state.
// Delivery happens after the response; its failures are only logged.
func (f *Functions) SendExceptionReminder(ctx context.Context, req *hooks.Request) (any, error) {
	if !req.HasIdentity() {
		return nil, hooks.Fail(MsgLoginRequired)
	}

	var p reminderParams
	if err := req.DecodeParams(&p); err != nil {
		return nil, hooks.FailWith("invalid params", err)
	}

	if p.AssetID == "" {
		return nil, hooks.Fail("assetId is required")
	}

	asset, err := f.store.Get(ctx, models.MasterKey(), models.ClassAsset, p.AssetID)
	if err != nil {
		return nil, hooks.FailWith(MsgAssetNotFound, err)
	}

	to := p.Email
	if to == "" && req.User != nil {
		to = req.User.Email
	}
	if to == "" {
		return nil, hooks.Fail(MsgRecipientRequired)
	}
	if _, err := mail.ParseAddress(to); err != nil {
		return nil, hooks.FailWith(MsgRecipientRequired, err)
	}

	job := &mailq.Job{
		Kind:    mailKindReminder,
		Message: reminderMessage(f.mail.From, to, asset),
	}

	if !f.queue.Enqueue(job) {
		return nil, hooks.Fail(MsgReminderQueueFull)
	}

	return MsgReminderQueued, nil
}

func reminderMessage(from, to string, asset models.Document) domain.Message {
	name := asset.String(models.FieldName)
	if name == "" {
		name = asset.ObjectID()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Asset: %s (%s)\n", name, asset.ObjectID())
	fmt.Fprintf(&b, "Status: %s\n", asset.String(models.FieldStatus))

	if history, err := asset.History(); err == nil {
		if last, ok := history.Last(); ok {
			fmt.Fprintf(&b, "Last change: %s (%s) on %s by %s\n",
				last.Action, last.Status, last.ActionDate.Format("2006-01-02 15:04 MST"), orUnknown(last.User.Name))
		}
	}

	b.WriteString("\nThis asset is flagged as an exception and needs attention.\n")

	return domain.Message{
		From:    from,
		To:      to,
		Subject: "Exception reminder: " + name,
		Text:    b.String(),
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
