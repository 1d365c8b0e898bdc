package sync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	stdsync "sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/guardian/internal/directory"
	"github.com/robalyx/guardian/internal/membership"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// PassResult describes a completed reconciliation pass.
type PassResult struct {
	StartedAt    time.Time
	FinishedAt   time.Time
	GuildsOK     int
	FailedGuilds []snowflake.ID // Guilds whose previous membership was carried forward
	Members      int            // Member records seen across successful guilds
	Users        int            // Users in the installed index
}

// RunPass rebuilds the index from the directory. Guilds are enumerated
// concurrently and each guild's members only count once its enumeration
// finished without error. Failed guilds keep the pairs the index held for
// them. Nothing is installed if listing guilds fails or ctx is cancelled.
func (w *Worker) RunPass(ctx context.Context) (*PassResult, error) {
	w.passMu.Lock()
	defer w.passMu.Unlock()

	result := &PassResult{StartedAt: time.Now()}

	guildIDs, err := directory.Do(ctx, w.opts.Retry, w.dir.ListGuilds)
	if err != nil {
		return nil, fmt.Errorf("failed to list guilds: %w", err)
	}

	w.logger.Debug("Starting reconciliation pass", zap.Int("guilds", len(guildIDs)))

	var (
		mu   stdsync.Mutex
		next = make(membership.Snapshot)
	)

	p := pool.New().WithMaxGoroutines(w.opts.GuildConcurrency)

	for _, guildID := range guildIDs {
		p.Go(func() {
			collected, seen, err := w.collectGuild(ctx, guildID)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				result.FailedGuilds = append(result.FailedGuilds, guildID)

				if ctx.Err() == nil {
					w.logger.Warn("Failed to enumerate guild, keeping previous members",
						zap.Uint64("guildID", uint64(guildID)),
						zap.Error(err))
				}

				return
			}

			next.Merge(collected)
			result.GuildsOK++
			result.Members += seen
		})
	}

	p.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("pass aborted: %w", err)
	}

	if len(result.FailedGuilds) > 0 {
		slices.Sort(result.FailedGuilds)
		next.Merge(w.index.Contributions(result.FailedGuilds...))
	}

	w.index.ReplaceAll(next)

	result.Users = len(next)
	result.FinishedAt = time.Now()

	w.logger.Info("Reconciliation pass completed",
		zap.Int("guildsOK", result.GuildsOK),
		zap.Int("guildsFailed", len(result.FailedGuilds)),
		zap.Int("members", result.Members),
		zap.Int("users", result.Users),
		zap.Duration("duration", result.FinishedAt.Sub(result.StartedAt)))

	return result, nil
}

// collectGuild gathers a guild's members into a fresh snapshot.
// Malformed records are skipped; any other error fails the guild.
func (w *Worker) collectGuild(ctx context.Context, guildID snowflake.ID) (membership.Snapshot, int, error) {
	snapshot := make(membership.Snapshot)
	seen := 0

	for userID, err := range w.dir.ListMembers(ctx, guildID) {
		if err != nil {
			if errors.Is(err, directory.ErrMalformed) {
				w.logger.Warn("Skipping malformed member record",
					zap.Uint64("guildID", uint64(guildID)),
					zap.Error(err))

				continue
			}

			return nil, 0, err
		}

		snapshot.Add(userID, guildID)
		seen++
	}

	return snapshot, seen, nil
}
