package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
database:
  host: db.internal
  name: facecore
vision:
  models_dir: /models
matching:
  match_threshold: 0.6
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, minimalYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6, cfg.Vision.WorkerCount)
	assert.Equal(t, 0.6, cfg.Matching.MatchThreshold)
	assert.Equal(t, 5, cfg.Matching.MaxAnglesPerPerson)
	assert.Equal(t, 300, cfg.Matching.CacheTTLSeconds)
	assert.Equal(t, []string{".jpg", ".jpeg", ".png", ".gif", ".bmp"}, cfg.Upload.AllowedExtensions)
	assert.Equal(t, int64(16*1024*1024), cfg.Upload.MaxUploadBytes)
	assert.InDelta(t, 0.709, cfg.Vision.MTCNNPyramidFactor, 1e-9)
	assert.InDelta(t, 0.30, cfg.Vision.DNNConfidence, 1e-9)
	assert.Equal(t, 20, cfg.Vision.MTCNNMinFaceSize)
	assert.Equal(t, [3]float64{0.60, 0.70, 0.70}, cfg.Vision.MTCNNThresholds)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, minimalYAML)

	t.Setenv("FC_SERVER_PORT", "9090")
	t.Setenv("FC_DB_HOST", "override.internal")
	t.Setenv("FC_MATCH_THRESHOLD", "0.75")
	t.Setenv("FC_ALLOWED_EXTENSIONS", ".jpg,.bmp")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "override.internal", cfg.Database.Host)
	assert.Equal(t, 0.75, cfg.Matching.MatchThreshold)
	assert.Equal(t, []string{".jpg", ".bmp"}, cfg.Upload.AllowedExtensions)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "localhost", Port: 5432, Name: "facecore", User: "app", Password: "pw"}
	assert.Equal(t, "postgres://app:pw@localhost:5432/facecore?sslmode=disable", d.DSN())
}
