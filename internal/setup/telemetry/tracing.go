package telemetry

import (
	"context"

	"github.com/robalyx/guardian/internal/setup/config"
	"github.com/uptrace/uptrace-go/uptrace"
	"go.uber.org/zap"
)

// ServiceName identifies this program in exported spans.
const ServiceName = "guardian"

// SetupTracing installs the Uptrace OpenTelemetry pipeline when a DSN is
// configured. The returned function flushes and stops the exporters.
func SetupTracing(cfg *config.Telemetry, version string, logger *zap.Logger) func(context.Context) error {
	if cfg.UptraceDSN == "" {
		logger.Debug("Trace export disabled")
		return func(context.Context) error { return nil }
	}

	uptrace.ConfigureOpentelemetry(
		uptrace.WithDSN(cfg.UptraceDSN),
		uptrace.WithServiceName(ServiceName),
		uptrace.WithServiceVersion(version),
		uptrace.WithDeploymentEnvironment(cfg.Environment),
	)

	logger.Info("Trace export enabled", zap.String("environment", cfg.Environment))

	return uptrace.Shutdown
}
