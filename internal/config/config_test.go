package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	xerrors "settingshub/internal/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "settingshub.yaml", `
server:
  address: ":9000"
  shutdown_timeout: 3s
storage:
  driver: redis
  redis:
    url: redis://localhost:6379/2
    prefix: spatie
events:
  driver: redis
log:
  level: debug
  audit:
    enabled: true
    path: audit/settings.log
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, ":9000", cfg.Server.Address)
	require.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	require.Equal(t, DriverRedis, cfg.Storage.Driver)
	require.Equal(t, "spatie", cfg.Storage.Redis.Prefix)
	require.Equal(t, "settingshub.events", cfg.Events.Redis.Channel)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "json", cfg.Log.Format)
	require.Equal(t, filepath.Join(filepath.Dir(path), "audit", "settings.log"), cfg.Log.Audit.Path)
}

func TestLoadJSONDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "settingshub.json", `{"server":{"metrics_address":":9100"}}`))
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Server.Address)
	require.Equal(t, ":9100", cfg.Server.MetricsAddress)
	require.Equal(t, DriverMemory, cfg.Storage.Driver)
	require.Equal(t, DriverNone, cfg.Events.Driver)
	require.Zero(t, cfg.Storage.Redis.ConnectRetries)
}

func TestConnectRetriesZeroIsKept(t *testing.T) {
	path := writeFile(t, "settingshub.yaml", `
storage:
  driver: redis
  redis:
    address: 127.0.0.1:6379
    connect_retries: 0
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Zero(t, cfg.Storage.Redis.ConnectRetries)

	t.Setenv("SETTINGSHUB_STORAGE_REDIS_CONNECT_RETRIES", "3")
	cfg, err = Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(3), cfg.Storage.Redis.ConnectRetries)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("SETTINGSHUB_STORAGE_DRIVER", "MySQL")
	t.Setenv("SETTINGSHUB_STORAGE_MYSQL_DSN", "user:pass@tcp(db:3306)/settings")
	t.Setenv("SETTINGSHUB_STORAGE_MYSQL_PREFIX", "tenant")
	t.Setenv("SETTINGSHUB_SERVER_ADDRESS", ":7000")
	t.Setenv("SETTINGSHUB_LOG_OUTPUT_PATHS", "stdout,/tmp/settingshub.log")

	cfg, err := Load(writeFile(t, "settingshub.yaml", "server:\n  address: \":9000\"\n"))
	require.NoError(t, err)

	require.Equal(t, ":7000", cfg.Server.Address)
	require.Equal(t, DriverMySQL, cfg.Storage.Driver)
	require.Equal(t, "tenant", cfg.Storage.MySQL.Prefix)
	require.Equal(t, []string{"stdout", "/tmp/settingshub.log"}, cfg.Log.OutputPaths)
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("SETTINGSHUB_EVENTS_DRIVER", "memory")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, DriverMemory, cfg.Events.Driver)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"unknown storage":                 `{"storage":{"driver":"etcd"}}`,
		"mysql without dsn":               `{"storage":{"driver":"mysql"}}`,
		"rabbit without url":              `{"events":{"driver":"rabbitmq"}}`,
		"redis events without connection": `{"events":{"driver":"redis"}}`,
		"unknown events":                  `{"events":{"driver":"kafka"}}`,
		"malformed":                       `{"server":`,
	}
	for name, content := range cases {
		_, err := Load(writeFile(t, "cfg.json", content))
		require.Error(t, err, name)
		require.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err), name)
	}

	_, err := Load(writeFile(t, "cfg.toml", `x = 1`))
	require.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Equal(t, xerrors.CodeInitializationFailure, xerrors.CodeOf(err))
}

func TestLoadSampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "settingshub.yaml"))
	require.NoError(t, err)

	require.Equal(t, DriverRedis, cfg.Storage.Driver)
	require.Equal(t, "spatie", cfg.Storage.Redis.Prefix)
	require.Equal(t, uint64(5), cfg.Storage.Redis.ConnectRetries)
	require.Equal(t, 30*time.Minute, cfg.Storage.MySQL.ConnMaxLifetime)
	require.Equal(t, "settingshub.events", cfg.Events.Redis.Channel)
	require.Equal(t, filepath.Join("..", "..", "configs", "logs", "audit.log"), cfg.Log.Audit.Path)
}
