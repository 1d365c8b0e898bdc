package setup

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/guardian/internal/directory"
	"github.com/robalyx/guardian/internal/discord/client"
	"github.com/robalyx/guardian/internal/discord/notify"
	"github.com/robalyx/guardian/internal/discord/rate"
	"github.com/robalyx/guardian/internal/enforcement"
	"github.com/robalyx/guardian/internal/membership"
	"github.com/robalyx/guardian/internal/setup/config"
	"github.com/robalyx/guardian/internal/worker/core"
	"github.com/robalyx/guardian/internal/worker/sync"
	"github.com/robalyx/guardian/internal/worker/sync/events"
)

// Services holds the enforcement components built on top of an App.
type Services struct {
	Index     *membership.Index
	Directory *client.Directory
	Engine    *enforcement.Engine
	Reporter  *core.StatusReporter
	Worker    *sync.Worker
	Joins     *events.Handler
}

// RetryOptions converts the sync and retry sections into remote call retry options.
// Values left at zero fall back to the directory defaults.
func RetryOptions(cfg *config.Config) directory.RetryOptions {
	return directory.RetryOptions{
		Timeout:         cfg.Sync.FetchTimeout,
		InitialInterval: time.Duration(cfg.Retry.Delay) * time.Millisecond,
		MaxInterval:     time.Duration(cfg.Retry.MaxDelay) * time.Millisecond,
		MaxRetries:      cfg.Sync.FetchRetryLimit,
	}.WithDefaults()
}

// NewServices wires the index, directory, engine, reconciler and join handler.
func (s *App) NewServices() *Services {
	cfg := s.Config
	retry := RetryOptions(cfg)
	rest := s.Discord.Rest()

	dir := client.NewDirectory(
		rest,
		rate.New(cfg.Sync.PageInterval, cfg.Sync.PageJitter),
		retry,
		s.LogManager.GetWorkerLogger("directory"),
	)

	notifier := enforcement.Notifiers{
		enforcement.NewLogNotifier(s.Logger),
		notify.New(rest, snowflake.ID(cfg.Discord.GlobalLogChannel), s.Logger),
	}

	blacklist := s.DB.Model().Blacklist()
	engine := enforcement.NewEngine(blacklist, s.DB.Model().Guild(), dir, notifier, retry, s.Logger)

	index := membership.NewIndex()
	reporter := core.NewStatusReporter(s.StatusClient, "sync", s.Logger)

	worker := sync.New(sync.Deps{
		Directory: dir,
		Index:     index,
		Blacklist: blacklist,
		Engine:    engine,
		Reporter:  reporter,
		Presence:  client.NewPresence(s.Discord),
	}, sync.Options{
		Interval:         cfg.Sync.ResyncInterval(),
		GuildConcurrency: cfg.Sync.GuildConcurrency,
		SweepConcurrency: cfg.Sync.SweepConcurrency,
		Retry:            retry,
	}, s.LogManager.GetWorkerLogger("sync"))

	return &Services{
		Index:     index,
		Directory: dir,
		Engine:    engine,
		Reporter:  reporter,
		Worker:    worker,
		Joins:     events.New(index, engine, s.Logger),
	}
}
