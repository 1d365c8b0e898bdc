package database

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestHookLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		age      time.Duration
		expected zapcore.Level
	}{
		{name: "fast", expected: zapcore.DebugLevel},
		{name: "slow", age: time.Second, expected: zapcore.WarnLevel},
		{name: "failed", err: errors.New("connection reset"), expected: zapcore.ErrorLevel},
		{name: "no rows", err: sql.ErrNoRows, expected: zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zapcore.DebugLevel)
			hook := NewHook(zap.New(core))

			hook.AfterQuery(t.Context(), &bun.QueryEvent{
				Query:     "SELECT 1",
				StartTime: time.Now().Add(-tt.age),
				Err:       tt.err,
			})

			entries := logs.All()
			if assert.Len(t, entries, 1) {
				assert.Equal(t, tt.expected, entries[0].Level)
				assert.Equal(t, "SELECT 1", entries[0].ContextMap()["query"])
			}
		})
	}
}
