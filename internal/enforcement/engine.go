// Package enforcement decides, per guild, what happens to a blacklisted member.
package enforcement

import (
	"context"
	"errors"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/guardian/internal/database/types"
	"github.com/robalyx/guardian/internal/directory"
	"go.uber.org/zap"
)

// BlacklistStore provides read access to the global blacklist.
type BlacklistStore interface {
	// Lookup returns the record of a user, or nil if the user is not blacklisted.
	Lookup(ctx context.Context, userID snowflake.ID) (*types.BlacklistRecord, error)
	// All returns every blacklist record.
	All(ctx context.Context) ([]*types.BlacklistRecord, error)
}

// PolicyStore provides read access to guild policies.
type PolicyStore interface {
	// Lookup returns the policy of a guild, or nil if the guild is unmanaged.
	Lookup(ctx context.Context, guildID snowflake.ID) (*types.GuildPolicy, error)
}

// Banner issues bans on the remote platform.
type Banner interface {
	Ban(ctx context.Context, guildID, userID snowflake.ID, reason string) error
}

// Notifier receives every event that needs to be logged.
type Notifier interface {
	Publish(ctx context.Context, event *Event) error
}

// Engine evaluates blacklisted users against guild policies.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	blacklist BlacklistStore
	policies  PolicyStore
	banner    Banner
	notifier  Notifier
	retry     directory.RetryOptions
	logger    *zap.Logger
	now       func() time.Time
}

// NewEngine creates an enforcement engine. Ban calls are retried with opts.
func NewEngine(
	blacklist BlacklistStore,
	policies PolicyStore,
	banner Banner,
	notifier Notifier,
	opts directory.RetryOptions,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		blacklist: blacklist,
		policies:  policies,
		banner:    banner,
		notifier:  notifier,
		retry:     opts,
		logger:    logger.Named("enforcement"),
		now:       time.Now,
	}
}

// Enforce evaluates userID against each of guildIDs and returns one event per guild.
// A lookup failure skips the affected targets and is only logged.
func (e *Engine) Enforce(ctx context.Context, userID snowflake.ID, guildIDs ...snowflake.ID) []*Event {
	if len(guildIDs) == 0 {
		return nil
	}

	record, err := e.blacklist.Lookup(ctx, userID)
	if err != nil {
		e.logger.Error("Failed to look up blacklist record",
			zap.Uint64("userID", uint64(userID)),
			zap.Error(err))

		return nil
	}

	if record == nil {
		events := make([]*Event, 0, len(guildIDs))
		for _, guildID := range dedupe(guildIDs) {
			events = append(events, &Event{
				UserID:  userID,
				GuildID: guildID,
				Action:  ActionObserved,
				At:      e.now(),
			})
		}

		return events
	}

	return e.EnforceRecord(ctx, record, guildIDs...)
}

// EnforceRecord evaluates an already resolved blacklist record against each of guildIDs.
func (e *Engine) EnforceRecord(ctx context.Context, record *types.BlacklistRecord, guildIDs ...snowflake.ID) []*Event {
	userID := snowflake.ID(record.ID)
	events := make([]*Event, 0, len(guildIDs))

	for _, guildID := range dedupe(guildIDs) {
		policy, err := e.policies.Lookup(ctx, guildID)
		if err != nil {
			e.logger.Error("Failed to look up guild policy",
				zap.Uint64("guildID", uint64(guildID)),
				zap.Uint64("userID", uint64(userID)),
				zap.Error(err))

			continue
		}

		event := &Event{
			UserID:  userID,
			GuildID: guildID,
			Action:  ActionLoggedOnly,
			Policy:  policy,
			Record:  record,
		}

		if policy != nil && policy.Autoban {
			event.Action = ActionBanned
			event.Err = e.ban(ctx, guildID, userID, string(record.Reason))
		}

		event.At = e.now()
		events = append(events, event)

		e.publish(ctx, event)
	}

	return events
}

// ban issues the ban. A user that no longer exists counts as banned.
func (e *Engine) ban(ctx context.Context, guildID, userID snowflake.ID, reason string) error {
	err := directory.Run(ctx, e.retry, func(ctx context.Context) error {
		return e.banner.Ban(ctx, guildID, userID, reason)
	})

	switch {
	case err == nil:
		e.logger.Info("Banned blacklisted user",
			zap.Uint64("guildID", uint64(guildID)),
			zap.Uint64("userID", uint64(userID)))

		return nil
	case errors.Is(err, directory.ErrNotFound):
		e.logger.Debug("Ban target no longer exists",
			zap.Uint64("guildID", uint64(guildID)),
			zap.Uint64("userID", uint64(userID)))

		return nil
	default:
		e.logger.Warn("Failed to ban blacklisted user",
			zap.Uint64("guildID", uint64(guildID)),
			zap.Uint64("userID", uint64(userID)),
			zap.Error(err))

		return err
	}
}

func (e *Engine) publish(ctx context.Context, event *Event) {
	if err := e.notifier.Publish(ctx, event); err != nil {
		e.logger.Warn("Failed to publish enforcement event",
			zap.Uint64("guildID", uint64(event.GuildID)),
			zap.Uint64("userID", uint64(event.UserID)),
			zap.String("action", event.Action.String()),
			zap.Error(err))
	}
}

func dedupe(ids []snowflake.ID) []snowflake.ID {
	if len(ids) < 2 {
		return ids
	}

	seen := make(map[snowflake.ID]struct{}, len(ids))
	out := make([]snowflake.ID, 0, len(ids))

	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}
		out = append(out, id)
	}

	return out
}
