package events

import (
	"context"

	"go.uber.org/zap"
)

// LoggingSubscriber forwards every published event to a zap logger. Wiring it
// onto the bus gives the audit trail for authentication and import runs; the
// CLI detaches it when --no-log is passed.
type LoggingSubscriber struct {
	logger *zap.Logger
	sub    *Subscription
}

// NewLoggingSubscriber attaches a logging handler to the bus
func NewLoggingSubscriber(bus Bus, logger *zap.Logger) *LoggingSubscriber {
	s := &LoggingSubscriber{
		logger: logger.With(zap.String("component", "event_log")),
	}
	s.sub = bus.SubscribeAll(s.handle)
	return s
}

func (s *LoggingSubscriber) handle(ctx context.Context, event Event) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("source", event.Source),
		zap.Time("at", event.Timestamp),
	}
	if event.UserID != "" {
		fields = append(fields, zap.String("user_id", event.UserID))
	}
	for k, v := range event.Payload {
		fields = append(fields, zap.Any(k, v))
	}

	switch event.Type {
	case EventAuthenticationFailed, EventAuthenticatedModelTrashed:
		s.logger.Warn(event.Type, fields...)
	default:
		s.logger.Info(event.Type, fields...)
	}
	return nil
}

// Detach removes the subscriber from the bus
func (s *LoggingSubscriber) Detach(bus Bus) {
	if s.sub != nil {
		bus.Unsubscribe(s.sub)
		s.sub = nil
	}
}
