// Package notify formats alert-worthy transfers and delivers them to chat and
// streaming transports.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"transferwatch/apps/watcher/internal/model"
)

// Message is one outbound notification. Text is the rendered Markdown body.
// Candidates holds the alerts the body was rendered from and is empty for
// the run header.
type Message struct {
	Text       string
	Candidates []model.AlertCandidate
}

// Sender is a notification transport.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// MultiSender delivers every message to all of its senders. A failing sender
// does not prevent delivery to the others.
type MultiSender struct {
	senders []Sender
}

func NewMultiSender(senders ...Sender) *MultiSender {
	return &MultiSender{senders: senders}
}

func (m *MultiSender) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range m.senders {
		if err := s.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSender) Name() string {
	names := make([]string, 0, len(m.senders))
	for _, s := range m.senders {
		names = append(names, s.Name())
	}
	return strings.Join(names, "+")
}

// LogSender writes messages to the log. It is the fallback when no transport
// is configured.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (l *LogSender) Send(_ context.Context, msg Message) error {
	l.logger.Info("Alert message", zap.Int("alerts", len(msg.Candidates)), zap.String("text", msg.Text))
	return nil
}

func (l *LogSender) Name() string {
	return "log"
}
