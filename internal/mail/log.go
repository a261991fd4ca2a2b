package mail

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/assetline/cloudhooks/internal/domain"
)

// Log writes messages to the logger instead of sending them.
type Log struct {
	log *logrus.Logger
}

// NewLog creates a logging mailer.
func NewLog(log *logrus.Logger) *Log {
	return &Log{log: log}
}

// Send logs msg at info level.
func (l *Log) Send(_ context.Context, msg domain.Message) error {
	l.log.WithFields(logrus.Fields{
		"from":    msg.From,
		"to":      msg.To,
		"subject": msg.Subject,
		"bytes":   len(msg.Text),
	}).Info("mail not configured, logging message")

	return nil
}
