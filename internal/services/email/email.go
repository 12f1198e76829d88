// Package email delivers notifications. The current sender only logs; real
// delivery goes behind the same interface.
package email

import (
	"context"
	"log/slog"
)

// Sender delivers user-facing notifications.
type Sender interface {
	SendMagicLink(ctx context.Context, email, link string) error
	SendStatusUpdate(ctx context.Context, email, caseID, status string) error
	SendInspectionReminder(ctx context.Context, email, caseID, inspectionType, scheduledFor string) error
}

// LogSender writes every message to the structured log instead of sending it.
type LogSender struct {
	logger *slog.Logger
	from   string
}

func NewLogSender(logger *slog.Logger, from string) *LogSender {
	return &LogSender{logger: logger, from: from}
}

func (s *LogSender) SendMagicLink(_ context.Context, email, link string) error {
	s.logger.Info("email: magic link", "from", s.from, "to", email, "link", link)
	return nil
}

func (s *LogSender) SendStatusUpdate(_ context.Context, email, caseID, status string) error {
	s.logger.Info("email: status update", "from", s.from, "to", email, "case_id", caseID, "status", status)
	return nil
}

func (s *LogSender) SendInspectionReminder(_ context.Context, email, caseID, inspectionType, scheduledFor string) error {
	s.logger.Info("email: inspection reminder", "from", s.from, "to", email,
		"case_id", caseID, "type", inspectionType, "scheduled_for", scheduledFor)
	return nil
}
