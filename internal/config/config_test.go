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

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  host: localhost
  name: idgate
  user: idgate
  password: secret
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.InDelta(t, 0.6, cfg.Recognition.Threshold, 1e-9)
	assert.InDelta(t, 40.0, cfg.Recognition.ThresholdConfidence, 1e-9)
	assert.Equal(t, 128, cfg.Recognition.EmbeddingDim)
	assert.Equal(t, 30, cfg.Compliance.DefaultWarningDays)
	assert.Equal(t, 60, cfg.Compliance.SweepIntervalMinutes)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
database:
  host: db.internal
  name: idgate
  user: idgate
  password: secret
`)

	t.Setenv("IDG_SERVER_PORT", "9443")
	t.Setenv("IDG_DB_HOST", "10.0.0.5")
	t.Setenv("IDG_MATCH_THRESHOLD", "0.45")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9443, cfg.Server.Port)
	assert.Equal(t, "10.0.0.5", cfg.Database.Host)
	assert.InDelta(t, 0.45, cfg.Recognition.Threshold, 1e-9)
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, Name: "idgate", User: "u", Password: "p"}
	assert.Equal(t, "postgres://u:p@db:5432/idgate?sslmode=disable", d.DSN())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
