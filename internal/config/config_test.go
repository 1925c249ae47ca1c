package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TIMELINE_CONFIG", "")
	t.Setenv("PORT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, 20, cfg.Queue.MaxBatchSize)
	assert.Equal(t, "KEEP_NAME", cfg.Queue.DeletionStrategy)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timeline.yaml")
	content := `
port: ":9090"
queue:
  retry_delay: 30s
  max_batch_size: 50
  favorite_deletion_strategy: REVERT_TO_GEOCODING
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("TIMELINE_CONFIG", path)
	t.Setenv("PORT", ":7070")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Port, "environment overrides the file")
	assert.Equal(t, 30*time.Second, cfg.Queue.RetryDelay)
	assert.Equal(t, 50, cfg.Queue.MaxBatchSize)
	assert.Equal(t, "REVERT_TO_GEOCODING", cfg.Queue.DeletionStrategy)
	assert.Equal(t, 3, cfg.Queue.MaxRetries, "unset fields keep their defaults")
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	t.Setenv("TIMELINE_CONFIG", "")
	t.Setenv("FAVORITE_DELETION_STRATEGY", "FORGET")

	_, err := Load()
	assert.Error(t, err)
}
