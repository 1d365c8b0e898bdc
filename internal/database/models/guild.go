package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/guardian/internal/database/dbretry"
	"github.com/robalyx/guardian/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// GuildModel handles database operations for guild enforcement policies.
type GuildModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewGuild creates a new guild policy model instance.
func NewGuild(db *bun.DB, logger *zap.Logger) *GuildModel {
	return &GuildModel{
		db:     db,
		logger: logger.Named("db_guild"),
	}
}

// Lookup returns the policy of a guild, or nil if the guild never opted in.
func (m *GuildModel) Lookup(ctx context.Context, guildID snowflake.ID) (*types.GuildPolicy, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.GuildPolicy, error) {
		var policy types.GuildPolicy

		err := m.db.NewSelect().
			Model(&policy).
			Where("id = ?", uint64(guildID)).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}

			return nil, fmt.Errorf("failed to get guild policy: %w", err)
		}

		return &policy, nil
	})
}
