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

// BlacklistModel handles database operations for blacklist records.
type BlacklistModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewBlacklist creates a new blacklist model instance.
func NewBlacklist(db *bun.DB, logger *zap.Logger) *BlacklistModel {
	return &BlacklistModel{
		db:     db,
		logger: logger.Named("db_blacklist"),
	}
}

// Lookup returns the blacklist record of a user, or nil if the user is not blacklisted.
func (m *BlacklistModel) Lookup(ctx context.Context, userID snowflake.ID) (*types.BlacklistRecord, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.BlacklistRecord, error) {
		var record types.BlacklistRecord

		err := m.db.NewSelect().
			Model(&record).
			Where("id = ?", uint64(userID)).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}

			return nil, fmt.Errorf("failed to get blacklist record: %w", err)
		}

		return &record, nil
	})
}

// All returns every blacklist record ordered by user ID.
func (m *BlacklistModel) All(ctx context.Context) ([]*types.BlacklistRecord, error) {
	records, err := dbretry.Operation(ctx, func(ctx context.Context) ([]*types.BlacklistRecord, error) {
		var records []*types.BlacklistRecord

		err := m.db.NewSelect().
			Model(&records).
			Order("id ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list blacklist records: %w", err)
		}

		return records, nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Debug("Loaded blacklist", zap.Int("count", len(records)))

	return records, nil
}
