// Package sync keeps the membership index in line with the remote directory
// and sweeps the blacklist against it after every pass.
package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/robalyx/guardian/internal/directory"
	"github.com/robalyx/guardian/internal/enforcement"
	"github.com/robalyx/guardian/internal/membership"
	"github.com/robalyx/guardian/internal/worker/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Reporter receives the worker's progress.
type Reporter interface {
	SetPhase(phase string)
	RecordPass(summary core.PassSummary)
}

// Presence reflects the worker's readiness on the gateway.
type Presence interface {
	Initializing(ctx context.Context) error
	Ready(ctx context.Context) error
}

// Options configures the reconciliation loop.
type Options struct {
	Interval         time.Duration // Delay between the end of a cycle and the next pass
	GuildConcurrency int
	SweepConcurrency int
	Retry            directory.RetryOptions
}

// Deps are the collaborators of the worker. Reporter and Presence are optional.
type Deps struct {
	Directory directory.Directory
	Index     *membership.Index
	Blacklist enforcement.BlacklistStore
	Engine    *enforcement.Engine
	Reporter  Reporter
	Presence  Presence
}

// Worker runs reconciliation passes followed by blacklist sweeps.
type Worker struct {
	dir       directory.Directory
	index     *membership.Index
	blacklist enforcement.BlacklistStore
	engine    *enforcement.Engine
	reporter  Reporter
	presence  Presence
	opts      Options
	logger    *zap.Logger
	tracer    trace.Tracer
	passMu    stdsync.Mutex
}

// New creates a new sync worker.
func New(deps Deps, opts Options, logger *zap.Logger) *Worker {
	opts.GuildConcurrency = max(opts.GuildConcurrency, 1)
	opts.SweepConcurrency = max(opts.SweepConcurrency, 1)
	opts.Retry = opts.Retry.WithDefaults()

	return &Worker{
		dir:       deps.Directory,
		index:     deps.Index,
		blacklist: deps.Blacklist,
		engine:    deps.Engine,
		reporter:  deps.Reporter,
		presence:  deps.Presence,
		opts:      opts,
		logger:    logger.Named("sync_worker"),
		tracer:    otel.Tracer("guardian/sync"),
	}
}

// errPassIncomplete signals a startup cycle whose pass did not complete.
var errPassIncomplete = errors.New("reconciliation pass did not complete")

// Start runs cycles until the first pass completes, then one cycle per interval
// until ctx is done. The worker stays initializing until that first pass
// completes. Cycles never overlap: the interval is measured from the end of the
// previous one.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Sync worker started", zap.Duration("interval", w.opts.Interval))

	w.setPhase(core.PhaseInitializing)

	if w.presence != nil {
		if err := w.presence.Initializing(ctx); err != nil {
			w.logger.Warn("Failed to set initializing presence", zap.Error(err))
		}
	}

	if err := w.initialize(ctx); err != nil {
		return err
	}

	if w.presence != nil {
		if err := w.presence.Ready(ctx); err != nil {
			w.logger.Warn("Failed to set ready presence", zap.Error(err))
		}
	}

	timer := time.NewTimer(w.opts.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Sync worker stopped")
			return ctx.Err()
		case <-timer.C:
		}

		w.Cycle(ctx)
		timer.Reset(w.opts.Interval)
	}
}

// initialize repeats the startup cycle on an exponential backoff until its pass completes.
func (w *Worker) initialize(ctx context.Context) error {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(w.opts.Retry.InitialInterval),
		backoff.WithMaxInterval(w.opts.Retry.MaxInterval),
		backoff.WithMaxElapsedTime(0),
	)

	return backoff.RetryNotify(func() error {
		if !w.Cycle(ctx) {
			return errPassIncomplete
		}

		return nil
	}, backoff.WithContext(b, ctx), func(_ error, delay time.Duration) {
		w.setPhase(core.PhaseInitializing)
		w.logger.Warn("Initial reconciliation pass failed, retrying", zap.Duration("delay", delay))
	})
}

// Cycle runs one reconciliation pass and, if it completed, the blacklist sweep.
// It reports whether the pass completed.
func (w *Worker) Cycle(ctx context.Context) bool {
	ctx, span := w.tracer.Start(ctx, "sync.cycle")
	defer span.End()

	w.setPhase(core.PhaseSyncing)

	result, err := w.RunPass(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.logger.Error("Reconciliation pass failed", zap.Error(err))
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, "pass failed")
		w.setPhase(core.PhaseIdle)

		return false
	}

	w.setPhase(core.PhaseSweeping)
	enforced := w.Sweep(ctx)

	span.SetAttributes(
		attribute.Int("guilds.ok", result.GuildsOK),
		attribute.Int("guilds.failed", len(result.FailedGuilds)),
		attribute.Int("users", result.Users),
		attribute.Int("enforced", enforced),
	)

	if w.reporter != nil {
		w.reporter.RecordPass(core.PassSummary{
			StartedAt:    result.StartedAt,
			FinishedAt:   result.FinishedAt,
			GuildsOK:     result.GuildsOK,
			GuildsFailed: len(result.FailedGuilds),
			Members:      result.Members,
			Users:        result.Users,
			Enforced:     enforced,
		})
	}

	w.setPhase(core.PhaseIdle)

	return true
}

func (w *Worker) setPhase(phase string) {
	if w.reporter != nil {
		w.reporter.SetPhase(phase)
	}
}
