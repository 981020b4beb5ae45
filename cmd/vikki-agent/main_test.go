package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpp11nullptr/vikki/internal/config"
	"github.com/cpp11nullptr/vikki/internal/sensor"
)

func TestStarterConfigRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vikki-agent.yaml")
	require.NoError(t, config.WriteConfig(starterConfig(), path))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Storage.IsEnabled())
	assert.Equal(t, "memory", cfg.Storage.Name)
	assert.Len(t, cfg.ActiveSensors(), len(sensor.Builtins()))
}

func TestInitLoggerRejectsUnknownLevel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Logging.Level = "chatty"
	_, err := initLogger(cfg)
	assert.Error(t, err)

	cfg.Logging.Level = "debug"
	cfg.Logging.File = filepath.Join(t.TempDir(), "agent.log")
	logger, err := initLogger(cfg)
	require.NoError(t, err)
	logger.Info("hello")
	assert.FileExists(t, cfg.Logging.File)
}
