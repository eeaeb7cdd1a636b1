package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bulkload/internal/config"
	"bulkload/internal/models"
)

func TestNewApp(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "bulkload.yaml")
	require.NoError(t, os.WriteFile(cfgPath, nil, 0o644))
	cfg, err := config.LoadConfig(cfgPath)
	require.NoError(t, err)
	cfg.Database.DSN = filepath.Join(t.TempDir(), "runs.db")
	cfg.CLI.Env = map[string]string{"SF_LOG_LEVEL": "fatal"}

	a, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.CommandService)
	assert.NotNil(t, a.ConnectionService)
	assert.NotNil(t, a.IngestService)
	assert.NotNil(t, a.RunService)
	assert.NoError(t, a.RunStore.Ping(context.Background()))
	assert.NotNil(t, a.ProviderFactory(models.Connection{InstanceURL: "https://x.test", AccessToken: "t", APIVersion: "58.0"}))
	assert.FileExists(t, cfg.Database.DSN)
}

func TestNewApp_BadDSN(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "bulkload.yaml")
	require.NoError(t, os.WriteFile(cfgPath, nil, 0o644))
	cfg, err := config.LoadConfig(cfgPath)
	require.NoError(t, err)
	cfg.Database.DSN = filepath.Join(t.TempDir(), "missing-dir", "runs.db")

	_, err = NewApp(context.Background(), cfg)
	assert.ErrorContains(t, err, "init run store")
}
