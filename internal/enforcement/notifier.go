package enforcement

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// LogNotifier writes every event to a zap logger.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier logging through logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("enforcement_log")}
}

// Publish implements Notifier.
func (n *LogNotifier) Publish(_ context.Context, event *Event) error {
	fields := []zap.Field{
		zap.Uint64("userID", uint64(event.UserID)),
		zap.Uint64("guildID", uint64(event.GuildID)),
		zap.String("action", event.Action.String()),
		zap.Bool("managed", event.Policy != nil),
	}

	if event.Record != nil {
		fields = append(fields,
			zap.String("name", event.Record.Name),
			zap.String("reason", event.Record.ReasonText()))
	}

	if event.Err != nil {
		n.logger.Warn("Enforcement ended with a failed ban", append(fields, zap.Error(event.Err))...)
		return nil
	}

	n.logger.Info("Enforcement event", fields...)

	return nil
}

// Notifiers publishes every event to each of its members.
type Notifiers []Notifier

// Publish implements Notifier. Every member is called even if an earlier one fails.
func (ns Notifiers) Publish(ctx context.Context, event *Event) error {
	var errs []error
	for _, n := range ns {
		if err := n.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
