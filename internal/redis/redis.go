// Package redis connects to the Redis instance holding worker heartbeats.
package redis

import (
	"fmt"

	"github.com/redis/rueidis"
	"github.com/robalyx/guardian/internal/setup/config"
	"go.uber.org/zap"
)

// WorkerStatusDBIndex is the database holding worker heartbeats and status.
const WorkerStatusDBIndex = 4

// NewStatusClient connects to the worker status database.
func NewStatusClient(cfg *config.Redis, logger *zap.Logger) (rueidis.Client, error) {
	client, err := rueidis.NewClient(clientOption(cfg, WorkerStatusDBIndex))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	logger.Named("redis").Info("Connected to worker status database",
		zap.Int("dbIndex", WorkerStatusDBIndex))

	return client, nil
}

// clientOption builds the rueidis options for one database. Client side
// caching is off since status keys are rewritten on every heartbeat.
func clientOption(cfg *config.Redis, dbIndex int) rueidis.ClientOption {
	return rueidis.ClientOption{
		InitAddress:  []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     dbIndex,
		ClientName:   "guardian",
		DisableCache: true,
	}
}
