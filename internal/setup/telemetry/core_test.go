package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestGetErrorCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		function string
		expected string
	}{
		{"github.com/robalyx/guardian/internal/database/models.(*BlacklistModel).All", "database"},
		{"github.com/robalyx/guardian/internal/discord/client.(*Directory).Ban", "discord"},
		{"github.com/robalyx/guardian/internal/enforcement.(*Engine).Enforce", "enforcement"},
		{"github.com/robalyx/guardian/internal/worker/sync.(*Worker).Cycle", "sync"},
		{"github.com/robalyx/guardian/internal/membership.(*Index).ReplaceAll", "sync"},
		{"github.com/robalyx/guardian/internal/directory.Do[...]", "discord"},
		{"main.main", "application"},
	}

	for _, tt := range tests {
		t.Run(tt.function, func(t *testing.T) {
			t.Parallel()

			ent := zapcore.Entry{Caller: zapcore.EntryCaller{Defined: true, Function: tt.function}}
			assert.Equal(t, tt.expected, getErrorCategory(ent))
		})
	}
}

func TestCoreIgnoresBelowError(t *testing.T) {
	t.Parallel()

	core := NewCore(zapcore.DebugLevel)
	ent := zapcore.Entry{Level: zapcore.InfoLevel, Message: "hello"}

	assert.NotNil(t, core.Check(ent, nil))
	assert.NoError(t, core.Write(ent, nil))
}

func TestCoreWithKeepsParentFields(t *testing.T) {
	t.Parallel()

	parent := NewCore(zapcore.ErrorLevel).With([]zapcore.Field{zap.String("a", "1")})
	child := parent.With([]zapcore.Field{zap.String("b", "2")})
	sibling := parent.With([]zapcore.Field{zap.String("c", "3")})

	assert.Len(t, child.(*Core).fields, 2)
	assert.Len(t, sibling.(*Core).fields, 2)
	assert.Equal(t, "b", child.(*Core).fields[1].Key)
	assert.Equal(t, "c", sibling.(*Core).fields[1].Key)
	assert.NoError(t, child.Write(zapcore.Entry{Level: zapcore.ErrorLevel, Message: "boom"}, nil))
}
