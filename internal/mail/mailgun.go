// Package mail delivers outbound email through Mailgun's HTTP API, SMTP, or
// the log when no provider is configured.
package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/assetline/cloudhooks/internal/domain"
)

// Mailgun sends messages through the Mailgun messages endpoint.
type Mailgun struct {
	apiBase    string
	domain     string
	apiKey     string
	httpClient *http.Client
	log        *logrus.Logger
}

// NewMailgun creates a Mailgun mailer. apiBase is e.g. "https://api.mailgun.net/v3".
func NewMailgun(apiBase, domain, apiKey string, log *logrus.Logger) *Mailgun {
	return &Mailgun{
		apiBase:    strings.TrimRight(apiBase, "/"),
		domain:     domain,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log,
	}
}

type mailgunResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Send posts msg as a form-encoded request.
func (m *Mailgun) Send(ctx context.Context, msg domain.Message) error {
	form := url.Values{}
	form.Set("from", msg.From)
	form.Set("to", msg.To)
	form.Set("subject", msg.Subject)
	form.Set("text", msg.Text)
	if msg.ReplyTo != "" {
		form.Set("h:Reply-To", msg.ReplyTo)
	}

	endpoint := m.apiBase + "/" + url.PathEscape(m.domain) + "/messages"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("api", m.apiKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mailgun request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read mailgun response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("mailgun: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out mailgunResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("decode mailgun response: %w", err)
	}

	m.log.WithFields(logrus.Fields{
		"to":         msg.To,
		"message_id": out.ID,
	}).Debug("mail sent")

	return nil
}
