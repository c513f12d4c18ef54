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

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 0\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 30, cfg.Gmail.TimeoutSeconds)
	assert.False(t, cfg.Gmail.RetryTransient)
	assert.Equal(t, "local", cfg.Certificates.Source)
	assert.Equal(t, "certificates", cfg.Certificates.DefaultDir)
	assert.Equal(t, 30, cfg.Redis.SessionTTLMinutes)
	assert.Equal(t, 2, cfg.Pacing.Direct.Lanes)
	assert.Equal(t, 3, cfg.Pacing.Bulk.Lanes)
	assert.Equal(t, 10, cfg.Pacing.BulkThreshold)
}

func TestLoad_ExplicitValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  port: 9090
gmail:
  retry_transient: true
  max_retries: 5
pacing:
  direct:
    lanes: 1
    min_delay_seconds: 0.5
    max_delay_seconds: 2
  bulk_threshold: 25
`))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Gmail.RetryTransient)
	assert.Equal(t, 5, cfg.Gmail.MaxRetries)
	assert.Equal(t, 1, cfg.Pacing.Direct.Lanes)
	assert.Equal(t, 0.5, cfg.Pacing.Direct.MinDelaySeconds)
	assert.Equal(t, 25, cfg.Pacing.BulkThreshold)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestPacing_ProfileFor(t *testing.T) {
	p := PacingConfig{
		Direct:        PacingProfile{Lanes: 2, MinDelaySeconds: 1, MaxDelaySeconds: 3},
		Bulk:          PacingProfile{Lanes: 3, MinDelaySeconds: 4, MaxDelaySeconds: 9},
		BulkThreshold: 10,
	}

	assert.Equal(t, p.Direct, p.ProfileFor(3))
	assert.Equal(t, p.Direct, p.ProfileFor(9))
	assert.Equal(t, p.Bulk, p.ProfileFor(10))
	assert.Equal(t, p.Bulk, p.ProfileFor(500))
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/certmailer")
	t.Setenv("REDIS_ADDR", "redis-prod:6379")
	t.Setenv("CERT_S3_BUCKET", "certs-bucket")

	cfg, err := LoadFromEnv(writeConfig(t, "server:\n  port: 8081\n"))
	require.NoError(t, err)

	assert.True(t, cfg.SendLog.Enabled)
	assert.Equal(t, "postgres://u:p@localhost/certmailer", cfg.SendLog.DatabaseURL)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis-prod:6379", cfg.Redis.Addr)
	assert.Equal(t, "s3", cfg.Certificates.Source)
	assert.Equal(t, "certs-bucket", cfg.Certificates.S3Bucket)
}
