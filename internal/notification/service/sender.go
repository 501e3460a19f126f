package service

import (
	"context"

	"github.com/smallbiznis/bistro/internal/notification/domain"
	"go.uber.org/zap"
)

// LogSender writes notifications to the log. It stands in for real channel
// gateways, which are wired per deployment.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) domain.Sender {
	return &LogSender{log: log.Named("notification.sender")}
}

func (s *LogSender) Send(ctx context.Context, n domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.Info("notification delivered",
		zap.String("notification_id", n.ID.String()),
		zap.String("user_id", n.UserID.String()),
		zap.String("event", string(n.Event)),
		zap.String("channel", n.ChannelCode),
		zap.Any("payload", map[string]any(n.Payload)),
	)
	return nil
}
