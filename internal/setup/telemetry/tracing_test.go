package telemetry_test

import (
	"testing"

	"github.com/robalyx/guardian/internal/setup/config"
	"github.com/robalyx/guardian/internal/setup/telemetry"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSetupTracingWithoutDSN(t *testing.T) {
	t.Parallel()

	shutdown := telemetry.SetupTracing(&config.Telemetry{}, "test", zap.NewNop())
	require.NotNil(t, shutdown)
	require.NoError(t, shutdown(t.Context()))
}
