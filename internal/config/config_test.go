package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.Addr)
	assert.Equal(t, 2, cfg.PageSize)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.False(t, cfg.Production())
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("AGGUI_PAGE_SIZE=5\nAGGUI_ENV=production\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("AGGUI_PAGE_SIZE")
		os.Unsetenv("AGGUI_ENV")
	})

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.PageSize)
	assert.True(t, cfg.Production())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing api root", Config{PageSize: 1, FetchParallel: 1}},
		{"zero page size", Config{APIRoot: "http://x/api", FetchParallel: 1}},
		{"zero parallelism", Config{APIRoot: "http://x/api", PageSize: 1}},
		{"negative retries", Config{APIRoot: "http://x/api", PageSize: 1, FetchParallel: 1, RetryCount: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}
