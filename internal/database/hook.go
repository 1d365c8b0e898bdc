package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// SlowQueryThreshold is the duration above which a query is logged as slow.
const SlowQueryThreshold = 500 * time.Millisecond

// Hook logs failed and slow queries and traces the rest at debug level.
type Hook struct {
	logger    *zap.Logger
	threshold time.Duration
}

// NewHook creates a query hook logging to logger.
func NewHook(logger *zap.Logger) *Hook {
	return &Hook{logger: logger, threshold: SlowQueryThreshold}
}

func (h *Hook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *Hook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	duration := time.Since(event.StartTime)
	fields := []zap.Field{
		zap.String("operation", event.Operation()),
		zap.String("query", event.Query),
		zap.Duration("duration", duration),
	}

	switch {
	case event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows):
		h.logger.Error("Query failed", append(fields, zap.Error(event.Err))...)
	case duration >= h.threshold:
		h.logger.Warn("Slow query", fields...)
	default:
		h.logger.Debug("Query executed", fields...)
	}
}
