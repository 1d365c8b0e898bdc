package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/guardian/internal/setup"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

const (
	// LogDir specifies where log files are stored.
	LogDir = "logs"

	// shutdownTimeout bounds the cleanup after a signal.
	shutdownTimeout = 30 * time.Second
)

var (
	ErrNameRequired = errors.New("NAME argument required")
	ErrIDsRequired  = errors.New("at least one user ID is required")
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "guardian",
		Usage: "Cross-guild blacklist enforcement bot",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Connect to the gateway and start the reconciliation loop",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "migrate",
						Usage: "Apply pending database migrations on startup",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return runBot(ctx, c.Bool("migrate"))
				},
			},
			{
				Name:      "lookup",
				Usage:     "Run one reconciliation pass and print the guilds of the given users",
				ArgsUsage: "USER_ID...",
				Action: func(ctx context.Context, c *cli.Command) error {
					return runLookup(ctx, c.Args().Slice())
				},
			},
			migrateCommand(),
		},
	}

	return app.Run(context.Background(), os.Args)
}

// runBot starts the gateway, the join handler and the sync worker until a signal arrives.
func runBot(ctx context.Context, autoMigrate bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := setup.InitializeApp(ctx, LogDir, autoMigrate)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		app.Cleanup(cleanupCtx)
	}()

	services := app.NewServices()
	services.Joins.Setup(ctx, app.Discord)

	if err := app.Discord.OpenGateway(ctx); err != nil {
		return fmt.Errorf("failed to open gateway: %w", err)
	}

	services.Reporter.Start(ctx)
	defer services.Reporter.Stop()

	app.Logger.Info("Guardian started",
		zap.String("instanceID", app.LogManager.GetInstanceID()),
		zap.String("workerID", services.Reporter.GetWorkerID()))

	// Panics in the loop are logged before the process exits
	defer func() {
		if r := recover(); r != nil {
			app.Logger.Error("Sync worker panicked", zap.Any("panic", r), zap.Stack("stack"))
			panic(r)
		}
	}()

	err = services.Worker.Start(ctx)

	// No join may start once cleanup begins closing the stores
	services.Joins.Close()

	if errors.Is(err, context.Canceled) {
		app.Logger.Info("Shutting down")
		return nil
	}

	return err
}

// runLookup performs a single pass against the directory and reports where the users were found.
func runLookup(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ErrIDsRequired
	}

	userIDs := make([]snowflake.ID, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user ID %q: %w", arg, err)
		}

		userIDs = append(userIDs, snowflake.ID(id))
	}

	app, err := setup.InitializeApp(ctx, LogDir, false)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(ctx)

	services := app.NewServices()

	result, err := services.Worker.RunPass(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Scanned %d guilds (%d failed)\n", result.GuildsOK+len(result.FailedGuilds), len(result.FailedGuilds))

	found := services.Index.Search(userIDs...)
	if len(found) == 0 {
		fmt.Println("No data found")
		return nil
	}

	for _, presence := range found {
		record, err := app.DB.Model().Blacklist().Lookup(ctx, presence.UserID)
		if err != nil {
			return err
		}

		status := "not blacklisted"
		if record != nil {
			status = "blacklisted: " + record.ReasonText()
		}

		fmt.Printf("%s (%s)\n", presence.UserID, status)

		for _, guildID := range presence.Guilds {
			fmt.Printf("  %s\n", guildID)
		}
	}

	return nil
}
