package setup

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/gateway"
	"github.com/redis/rueidis"
	"github.com/robalyx/guardian/internal/database"
	"github.com/robalyx/guardian/internal/database/migrations"
	"github.com/robalyx/guardian/internal/redis"
	"github.com/robalyx/guardian/internal/setup/config"
	"github.com/robalyx/guardian/internal/setup/telemetry"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

// ErrPendingMigrations is returned when the schema is behind and auto migration is off.
var ErrPendingMigrations = errors.New("database migrations are pending, run `guardian migrate up` or pass --migrate")

// App bundles all core dependencies and services needed by the application.
// Each field represents a major subsystem that needs initialization and cleanup.
type App struct {
	Config       *config.Config     // Application configuration
	Logger       *zap.Logger        // Main application logger
	DBLogger     *zap.Logger        // Database-specific logger
	DB           database.Client    // Database connection pool
	StatusClient rueidis.Client     // Redis client for worker status reporting
	Discord      bot.Client         // Discord gateway and REST client
	LogManager   *telemetry.Manager // Log management system

	shutdownTracing func(context.Context) error
}

// InitializeApp bootstraps all application dependencies in the correct order,
// ensuring each component has its required dependencies available.
func InitializeApp(ctx context.Context, logDir string, autoMigrate bool) (*App, error) {
	// Load app configuration
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Logging system is initialized next to capture setup issues
	logManager := telemetry.NewManager(logDir, &cfg.Debug)

	logger, dbLogger, err := logManager.GetLoggers()
	if err != nil {
		return nil, err
	}

	// Trace export covers everything created after this point
	shutdownTracing := telemetry.SetupTracing(&cfg.Telemetry, config.RepositoryVersion, logger)

	// Initialize database with migration check
	db, err := checkAndRunMigrations(ctx, &cfg.PostgreSQL, dbLogger, autoMigrate)
	if err != nil {
		logManager.Stop()
		return nil, err
	}

	// Get Redis client for worker status reporting
	statusClient, err := redis.NewStatusClient(&cfg.Redis, logger)
	if err != nil {
		_ = db.Close()
		logManager.Stop()

		return nil, err
	}

	// Discord client is created here but the gateway is opened by the caller
	discordClient, err := disgo.New(cfg.Discord.Token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildMembers,
			),
		),
	)
	if err != nil {
		_ = db.Close()
		statusClient.Close()
		logManager.Stop()

		return nil, fmt.Errorf("failed to create discord client: %w", err)
	}

	return &App{
		Config:       cfg,
		Logger:       logger,
		DBLogger:     dbLogger.Named("database"),
		DB:           db,
		StatusClient: statusClient,
		Discord:      discordClient,
		LogManager:   logManager,

		shutdownTracing: shutdownTracing,
	}, nil
}

// Cleanup ensures graceful shutdown of all components in reverse initialization order.
// Logs but does not fail on cleanup errors to ensure all components get cleanup attempts.
func (s *App) Cleanup(ctx context.Context) {
	// Close the gateway before the stores it feeds
	s.Discord.Close(ctx)

	// Close database connections
	if err := s.DB.Close(); err != nil {
		log.Printf("Failed to close database connection: %v", err)
	}

	// Close Redis connections last as other components might need it during cleanup
	s.StatusClient.Close()

	// Flush spans recorded during shutdown
	if err := s.shutdownTracing(ctx); err != nil {
		log.Printf("Failed to flush traces: %v", err)
	}

	// Sync buffered logs before shutdown
	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	if err := s.DBLogger.Sync(); err != nil {
		log.Printf("Failed to sync DB logger: %v", err)
	}

	s.LogManager.Stop()
}

// checkAndRunMigrations connects to the database and applies pending migrations
// when allowed to.
func checkAndRunMigrations(
	ctx context.Context, cfg *config.PostgreSQL, dbLogger *zap.Logger, autoMigrate bool,
) (database.Client, error) {
	db, err := database.NewConnection(ctx, cfg, dbLogger, false)
	if err != nil {
		return nil, err
	}

	migrator := migrate.NewMigrator(db.DB(), migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}

	ms, err := migrator.MigrationsWithStatus(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to check migration status: %w", err)
	}

	if len(ms.Unapplied()) == 0 {
		return db, nil
	}

	if !autoMigrate {
		_ = db.Close()
		return nil, ErrPendingMigrations
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	dbLogger.Info("Applied pending migrations", zap.String("group", group.String()))

	return db, nil
}
