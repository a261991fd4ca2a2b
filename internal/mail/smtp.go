package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/assetline/cloudhooks/internal/domain"
)

// SMTP sends messages through an SMTP relay with PLAIN auth.
type SMTP struct {
	host     string
	port     string
	username string
	password string
	send     func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTP creates an SMTP mailer.
func NewSMTP(host, port, username, password string) *SMTP {
	return &SMTP{host: host, port: port, username: username, password: password, send: smtp.SendMail}
}

// Send delivers msg. net/smtp has no context support, so ctx is only checked
// before dialing.
func (s *SMTP) Send(ctx context.Context, msg domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	if err := s.send(net.JoinHostPort(s.host, s.port), auth, msg.From, []string{msg.To}, compose(msg)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

func compose(msg domain.Message) []byte {
	var b strings.Builder
	b.WriteString("To: " + sanitizeHeader(msg.To) + "\r\n")
	b.WriteString("From: " + sanitizeHeader(msg.From) + "\r\n")
	if msg.ReplyTo != "" {
		b.WriteString("Reply-To: " + sanitizeHeader(msg.ReplyTo) + "\r\n")
	}
	b.WriteString("Subject: " + sanitizeHeader(msg.Subject) + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Text)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// sanitizeHeader strips CR and LF so user input cannot inject headers.
func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
