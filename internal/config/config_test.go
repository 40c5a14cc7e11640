package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "ace_memory", cfg.Store.BasePath)
	assert.Equal(t, MetricL2, cfg.Store.Metric)
	assert.Equal(t, ModeShared, cfg.Store.Mode)
	assert.Equal(t, "en", cfg.Language)
	require.NoError(t, cfg.Validate())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("ACE_DB_PATH", "custom/path.db")
	t.Setenv("ACE_DISTANCE_METRIC", "COSINE")
	t.Setenv("ACE_DISTANCE_THRESHOLD", "0.55")
	t.Setenv("LTM_MODE", "isolated")
	t.Setenv("ACE_EMBEDDING_MODEL", "ruri-v3")
	t.Setenv("LLM_MODEL", "some-model")
	t.Setenv("ACE_LANG", "JA")

	cfg := FromEnv()
	assert.Equal(t, "custom/path", cfg.Store.BasePath, ".db suffix is stripped")
	assert.Equal(t, MetricCosine, cfg.Store.Metric)
	assert.Equal(t, 0.55, cfg.Store.DistanceThreshold)
	assert.Equal(t, ModeIsolated, cfg.Store.Mode)
	assert.Equal(t, "ruri-v3", cfg.Embedding.Model)
	assert.Equal(t, "some-model", cfg.Oracle.Model)
	assert.Equal(t, "ja", cfg.Language)
	require.NoError(t, cfg.Validate())
}

func TestFromEnvSakuraKeyFallback(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("SAKURA_API_KEY", "sk-fallback")

	cfg := FromEnv()
	assert.Equal(t, "sk-fallback", cfg.Oracle.APIKey)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  base_path: filestore
  metric: cosine
language: ja
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "filestore", cfg.Store.BasePath)
	assert.Equal(t, MetricCosine, cfg.Store.Metric)
	assert.Equal(t, "ja", cfg.Language)
	assert.Equal(t, ModeShared, cfg.Store.Mode, "unset fields keep defaults")
}

func TestLoadFileEnvOverridesPerField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  base_path: filestore
  metric: cosine
  distance_threshold: 0.9
`), 0o644))

	// One env var must not wipe the file's other store settings.
	t.Setenv("ACE_DB_PATH", "/tmp/elsewhere")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/elsewhere", cfg.Store.BasePath)
	assert.Equal(t, MetricCosine, cfg.Store.Metric)
	assert.Equal(t, 0.9, cfg.Store.DistanceThreshold)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Store.Metric = "euclidean"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Store.Mode = "solo"
	assert.Error(t, cfg.Validate())
}

func TestThreshold(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultThresholdL2, cfg.Threshold())

	cfg.Store.Metric = MetricCosine
	assert.Equal(t, DefaultThresholdCosine, cfg.Threshold())

	cfg.Store.DistanceThreshold = 1.25
	assert.Equal(t, 1.25, cfg.Threshold())
}
