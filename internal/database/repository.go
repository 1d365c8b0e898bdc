package database

import (
	"github.com/robalyx/guardian/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	blacklist *models.BlacklistModel
	guild     *models.GuildModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		blacklist: models.NewBlacklist(db, logger),
		guild:     models.NewGuild(db, logger),
	}
}

// Blacklist returns the blacklist model repository.
func (r *Repository) Blacklist() *models.BlacklistModel {
	return r.blacklist
}

// Guild returns the guild policy model repository.
func (r *Repository) Guild() *models.GuildModel {
	return r.guild
}
