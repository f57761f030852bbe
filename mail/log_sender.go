package mail

import (
	"context"
	"log/slog"

	"github.com/MrEthical07/otpgate"
)

// LogSender logs that a mail would have been sent. Only the recipient and
// subject are logged; bodies carry one-time codes and are dropped.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{
		logger: logger,
	}
}

func (s *LogSender) Send(ctx context.Context, m otpgate.Mail) error {
	s.logger.InfoContext(ctx, "send email",
		"recipient", m.To,
		"subject", m.Subject,
		"html", m.HTML != "",
	)
	return nil
}
