package notify

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/goquant/arbsentinel/internal/domain"
)

// LogSender writes alerts to the structured log instead of an external
// provider. It is the default sink when no messaging provider is configured.
type LogSender struct {
	logger *slog.Logger
	seq    atomic.Int64
}

var _ domain.NotificationPort = (*LogSender)(nil)

// NewLogSender creates a LogSender writing through logger.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With(slog.String("component", "log_notifier"))}
}

// Send logs the alert and returns a synthetic message reference.
func (l *LogSender) Send(ctx context.Context, channel, text string) (domain.MessageRef, error) {
	id := l.seq.Add(1)
	l.logger.InfoContext(ctx, "alert",
		slog.String("channel", channel),
		slog.String("text", text),
	)
	return domain.MessageRef{Channel: channel, MessageID: strconv.FormatInt(id, 10)}, nil
}

// Edit logs the updated alert against the original message reference.
func (l *LogSender) Edit(ctx context.Context, ref domain.MessageRef, text string) error {
	l.logger.InfoContext(ctx, "alert updated",
		slog.String("channel", ref.Channel),
		slog.String("message_id", ref.MessageID),
		slog.String("text", text),
	)
	return nil
}

// Name returns the sender identifier.
func (l *LogSender) Name() string {
	return "log"
}
