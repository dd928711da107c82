package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ponytojas/go-cr310-ingest/config"
)

func TestBootstrapUsesEnvironment(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("INGEST_CONSISTENCY_POLICY", "blocking")
	t.Setenv("LOG_LEVEL", "error")

	cfg, zlog, err := bootstrap(t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, zlog)

	assert.Equal(t, config.DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, "blocking", cfg.Ingest.ConsistencyPolicy)
}

func TestBootstrapRejectsInvalidEnvironment(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("INGEST_CONSISTENCY_POLICY", "blockng")

	cfg, zlog, err := bootstrap(t.TempDir())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "blockng")
	assert.Nil(t, cfg)
	assert.Nil(t, zlog)
}

func TestBootstrapRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("storage: [driver\n"), 0o600))

	cfg, _, err := bootstrap(dir)

	require.Error(t, err)
	assert.Nil(t, cfg)
}
