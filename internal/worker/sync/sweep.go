package sync

import (
	"context"
	"sync/atomic"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/guardian/internal/enforcement"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// Sweep enforces every blacklisted user found in the index against all of
// the user's guilds. It returns the number of events produced.
func (w *Worker) Sweep(ctx context.Context) int {
	records, err := w.blacklist.All(ctx)
	if err != nil {
		w.logger.Error("Failed to load blacklist for sweep", zap.Error(err))
		return 0
	}

	var (
		enforced atomic.Int64
		banned   atomic.Int64
		users    int
	)

	p := pool.New().WithMaxGoroutines(w.opts.SweepConcurrency)

	for _, record := range records {
		guildIDs := w.index.GuildsOf(snowflake.ID(record.ID))
		if len(guildIDs) == 0 {
			continue
		}

		users++

		p.Go(func() {
			events := w.engine.EnforceRecord(ctx, record, guildIDs...)
			enforced.Add(int64(len(events)))

			for _, event := range events {
				if event.Action == enforcement.ActionBanned && event.Err == nil {
					banned.Add(1)
				}
			}
		})
	}

	p.Wait()

	w.logger.Info("Blacklist sweep completed",
		zap.Int("blacklisted", len(records)),
		zap.Int("present", users),
		zap.Int64("events", enforced.Load()),
		zap.Int64("banned", banned.Load()))

	return int(enforced.Load())
}
