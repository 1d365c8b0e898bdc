package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/robalyx/guardian/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		content     string
		expectedErr error
		check       func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "applies defaults",
			content: `version = 1
[discord]
token = "abc"
global_log_channel = 42
`,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, "abc", cfg.Discord.Token)
				assert.Equal(t, uint64(42), cfg.Discord.GlobalLogChannel)
				assert.Equal(t, 900*time.Second, cfg.Sync.ResyncInterval())
				assert.Equal(t, uint64(5), cfg.Sync.FetchRetryLimit)
				assert.Equal(t, 30*time.Second, cfg.Sync.FetchTimeout)
			},
		},
		{
			name: "parses durations",
			content: `version = 1
[sync]
resync_interval_seconds = 60
fetch_retry_limit = 2
fetch_timeout = "5s"
page_interval = "250ms"
`,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, time.Minute, cfg.Sync.ResyncInterval())
				assert.Equal(t, uint64(2), cfg.Sync.FetchRetryLimit)
				assert.Equal(t, 5*time.Second, cfg.Sync.FetchTimeout)
				assert.Equal(t, 250*time.Millisecond, cfg.Sync.PageInterval)
			},
		},
		{
			name:        "missing version",
			content:     "[debug]\nlog_level = \"debug\"\n",
			expectedErr: config.ErrConfigVersionMissing,
		},
		{
			name:        "version mismatch",
			content:     "version = 99\n",
			expectedErr: config.ErrConfigVersionMismatch,
		},
		{
			name:        "non positive interval",
			content:     "version = 1\n[sync]\nresync_interval_seconds = 0\n",
			expectedErr: config.ErrInvalidSyncConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := config.LoadFile(writeConfig(t, tt.content))
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
				return
			}

			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}
