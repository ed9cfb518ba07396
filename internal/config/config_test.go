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
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "deadonfilm.db", cfg.Store.SQLitePath)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "https://r.jina.ai", cfg.Jina.BaseURL)
	assert.Equal(t, "https://s.jina.ai", cfg.Jina.SearchBaseURL)
	assert.Equal(t, "sonar-pro", cfg.Perplexity.Model)

	assert.Equal(t, []string{"free", "paid", "ai"}, cfg.Enrich.Categories)
	assert.InDelta(t, 0.7, cfg.Enrich.ConfidenceThreshold, 1e-9)
	assert.True(t, cfg.Enrich.StopOnMatch)
	assert.False(t, cfg.Enrich.GatherAllSources)
	assert.True(t, cfg.Enrich.ClaudeCleanup)
	assert.InDelta(t, 0.25, cfg.Enrich.MaxCostPerSubject, 1e-9)
	assert.InDelta(t, 10.0, cfg.Enrich.MaxTotalCost, 1e-9)
	assert.Equal(t, 2, cfg.Enrich.Concurrency)

	assert.Equal(t, "/tmp/deadonfilm", cfg.Sync.TempDir)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DEADONFILM_STORE_DRIVER", "sqlite")
	t.Setenv("DEADONFILM_ENRICH_CONCURRENCY", "8")
	t.Setenv("DEADONFILM_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 8, cfg.Enrich.Concurrency)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadSourceSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	data := `wikipedia:
  reliability: 0.95
  min_delay: 500ms
claude:
  cost_per_query_usd: 0.02
  timeout: 45s
findagrave:
  disabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	settings, err := LoadSourceSettings(path)
	require.NoError(t, err)
	require.Len(t, settings, 3)

	assert.InDelta(t, 0.95, settings["wikipedia"].ReliabilityScore, 1e-9)
	assert.Equal(t, 500*time.Millisecond, settings["wikipedia"].MinDelay)
	assert.InDelta(t, 0.02, settings["claude"].CostPerQuery, 1e-9)
	assert.Equal(t, 45*time.Second, settings["claude"].Timeout)
	assert.True(t, settings["findagrave"].Disabled)
}

func TestLoadSourceSettings_MissingFile(t *testing.T) {
	settings, err := LoadSourceSettings("")
	require.NoError(t, err)
	assert.Empty(t, settings)

	settings, err = LoadSourceSettings(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, settings)
}

func TestLoadSourceSettings_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte("wikipedia: [not a map"), 0o644))

	_, err := LoadSourceSettings(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse sources file")
}

func TestInitLogger_BadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "superverbose", Format: "json"})
	require.Error(t, err)
}
