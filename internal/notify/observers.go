package notify

import (
	"github.com/aatumaykin/stockpilot/internal/logger"
	"github.com/aatumaykin/stockpilot/internal/metrics"
)

// MetricsObserver counts notifications by type and priority.
func MetricsObserver(m *metrics.Metrics) Observer {
	return ObserverFunc(func(n Notification) error {
		m.RecordNotification(string(n.Type), string(n.Priority))
		return nil
	})
}

// LogObserver writes every notification to the log at a level matching its type.
func LogObserver(log *logger.Logger) Observer {
	return ObserverFunc(func(n Notification) error {
		fields := []logger.Field{
			{Key: "notification_id", Value: n.ID},
			{Key: "type", Value: string(n.Type)},
			{Key: "priority", Value: string(n.Priority)},
			{Key: "title", Value: n.Title},
		}
		if n.TaskName != "" {
			fields = append(fields, logger.Field{Key: "task", Value: n.TaskName})
		}
		switch n.Type {
		case TypeError:
			log.Warn("notification: "+n.Message, fields...)
		default:
			log.Info("notification: "+n.Message, fields...)
		}
		return nil
	})
}
