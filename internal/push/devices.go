package push

import (
	"context"

	"github.com/Mouaddiguoug/feetflight/internal/logging"
	"github.com/Mouaddiguoug/feetflight/internal/models"
)

// DeviceSender delivers a notification to a device token through the
// mobile push provider.
type DeviceSender interface {
	SendToDevice(ctx context.Context, token models.DeviceToken, n models.Notification) error
}

// LogDeviceSender records device deliveries in the log.
type LogDeviceSender struct {
	logger *logging.Logger
}

func NewLogDeviceSender(logger *logging.Logger) *LogDeviceSender {
	return &LogDeviceSender{logger: logger}
}

func (s *LogDeviceSender) SendToDevice(ctx context.Context, token models.DeviceToken, n models.Notification) error {
	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"platform":        token.Platform,
		"notification_id": n.ID,
		"title":           n.Title,
	}).Info("push notification delivered")
	return nil
}
