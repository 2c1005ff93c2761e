package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Full(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
  read_timeout_ms: 2000
observability:
  log_level: "debug"
  prometheus_path: "/prom"
admin:
  header: "X-Ops-Key"
  keys:
    - id: "alice"
      secret: "s1"
limits:
  standard:
    requests_per_minute: 5
    requests_per_hour: 40
  premium:
    requests_per_minute: 20
    requests_per_hour: 200
  global:
    requests_per_minute: 100
    requests_per_hour: 2000
  ban_duration_minutes: 15
  sweep_interval_minutes: 5
premium_callers:
  - "vip-1"
  - "vip-2"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 2*time.Second, cfg.Server.ReadTimeout())
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.Equal(t, "/prom", cfg.Observability.PrometheusPath)
	assert.Equal(t, "X-Ops-Key", cfg.Admin.Header)
	require.Len(t, cfg.Admin.Keys, 1)
	assert.Equal(t, 5, cfg.Limits.Standard.RequestsPerMinute)
	assert.Equal(t, 200, cfg.Limits.Premium.RequestsPerHour)
	assert.Equal(t, 15*time.Minute, cfg.Limits.BanDuration())
	assert.Equal(t, 5*time.Minute, cfg.Limits.SweepInterval())
	assert.Equal(t, []string{"vip-1", "vip-2"}, cfg.PremiumCallers)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{}`))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
	assert.Equal(t, "/metrics", cfg.Observability.PrometheusPath)
	assert.Equal(t, "X-Admin-Key", cfg.Admin.Header)
	assert.Equal(t, 10, cfg.Limits.Standard.RequestsPerMinute)
	assert.Equal(t, 100, cfg.Limits.Standard.RequestsPerHour)
	assert.Equal(t, 30, cfg.Limits.Premium.RequestsPerMinute)
	assert.Equal(t, 300, cfg.Limits.Premium.RequestsPerHour)
	assert.Equal(t, 60, cfg.Limits.Global.RequestsPerMinute)
	assert.Equal(t, 1000, cfg.Limits.Global.RequestsPerHour)
	assert.Equal(t, 10*time.Minute, cfg.Limits.BanDuration())
	assert.Equal(t, 10*time.Minute, cfg.Limits.SweepInterval())
	assert.Equal(t, int64(64<<10), cfg.Server.MaxBody())
}

func TestLoad_AdminSecretFromEnv(t *testing.T) {
	t.Setenv("BOTGATE_ADMIN_SECRET", "from-env")

	cfg, err := Load(writeConfig(t, `
admin:
  keys:
    - id: "alice"
      secret: "s1"
`))
	require.NoError(t, err)
	require.Len(t, cfg.Admin.Keys, 2)
	assert.Equal(t, AdminKey{ID: "env", Secret: "from-env"}, cfg.Admin.Keys[1])
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "limits: ["))
	assert.Error(t, err)
}
