package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 0
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5432, cfg.Watchlist.Port)
	assert.Equal(t, 0.45, cfg.Watchlist.Threshold)
	assert.Equal(t, 1, cfg.Watchlist.TopK)
	assert.Equal(t, 0.5, cfg.Vision.DetectionThreshold)
	assert.Equal(t, 2, cfg.Vision.TargetFPS)
	assert.Equal(t, 1024, cfg.Vision.FrameWidth)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadParsesValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  api_key: "secret"
watchlist:
  host: "db.internal"
  name: "records"
  user: "svc"
  password: "pw"
tracking:
  tracking_threshold: 0.55
  face_timeout_s: 60
logging:
  level: "debug"
  format: "text"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Server.APIKey)
	assert.Equal(t, 0.55, cfg.Tracking.TrackingThreshold)
	assert.Equal(t, 60.0, cfg.Tracking.FaceTimeoutS)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t,
		"postgres://svc:pw@db.internal:5432/records?sslmode=require",
		cfg.Watchlist.DSN())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PG_HOST", "pg.example.com")
	t.Setenv("PG_PORT", "5433")
	t.Setenv("PG_DB", "criminals")
	t.Setenv("PG_USERNAME", "reader")
	t.Setenv("PG_PASSWORD", "hunter2")
	t.Setenv("FW_SERVER_PORT", "8888")

	path := writeConfig(t, `
watchlist:
  host: "overridden"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.Port)
	assert.Equal(t, "pg.example.com", cfg.Watchlist.Host)
	assert.Equal(t, 5433, cfg.Watchlist.Port)
	assert.Equal(t, "criminals", cfg.Watchlist.Name)
	assert.Equal(t, "reader", cfg.Watchlist.User)
	assert.Equal(t, "hunter2", cfg.Watchlist.Password)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
