package notify

import "go.uber.org/zap"

// LogNotifier writes notifications to a zap logger
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier that logs every event
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send logs the notification at a level matching its type
func (l *LogNotifier) Send(n Notification) error {
	fields := []zap.Field{zap.String("event", n.Event), zap.String("message", n.Message)}
	if n.GroupID != "" {
		fields = append(fields, zap.String("group_id", n.GroupID))
	}
	switch n.Type {
	case NotifyError:
		l.logger.Error(n.Title, fields...)
	case NotifyWarning:
		l.logger.Warn(n.Title, fields...)
	default:
		l.logger.Info(n.Title, fields...)
	}
	return nil
}
