package redis

import (
	"context"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	xerrors "settingshub/internal/errors"
	"settingshub/internal/settings"
	"settingshub/internal/settings/settingstest"
)

func newTestRepository(t *testing.T, prefix string) (*Repository, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo, err := NewRepository(client, Config{Prefix: prefix})
	require.NoError(t, err)
	return repo, srv
}

func TestRepositoryContract(t *testing.T) {
	settingstest.RunRepositoryContract(t, func(t *testing.T) settings.Repository {
		repo, _ := newTestRepository(t, "")
		return repo
	})
}

func TestRepositoryContractWithPrefix(t *testing.T) {
	settingstest.RunRepositoryContract(t, func(t *testing.T) settings.Repository {
		repo, _ := newTestRepository(t, "spatie")
		return repo
	})
}

func TestRepositoryStorageLayout(t *testing.T) {
	ctx := context.Background()
	repo, srv := newTestRepository(t, "")

	require.NoError(t, repo.CreateProperty(ctx, "test", "c", settings.Strings("night", "day")))
	require.NoError(t, repo.CreateProperty(ctx, "test", "e", settings.Int(42)))
	require.NoError(t, repo.LockProperties(ctx, "test", []string{"c"}))

	require.Equal(t, `["night","day"]`, srv.HGet("test", "c"))
	require.Equal(t, `42`, srv.HGet("test", "e"))

	members, err := srv.Members("locks.test")
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, members)
}

func TestRepositoryPrefixedKeys(t *testing.T) {
	ctx := context.Background()
	repo, srv := newTestRepository(t, "spatie")

	require.NoError(t, repo.CreateProperty(ctx, "test", "a", settings.String("Alpha")))
	require.NoError(t, repo.LockProperties(ctx, "test", []string{"a"}))

	require.Equal(t, `"Alpha"`, srv.HGet("spatie.test", "a"))
	require.False(t, srv.Exists("test"))
	ok, err := srv.SIsMember("spatie.locks.test", "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, srv.Exists("locks.test"))

	require.Equal(t, "spatie.test", repo.Keys().Group("test"))
}

func TestRepositoryReadsExternallyWrittenPayloads(t *testing.T) {
	ctx := context.Background()
	repo, srv := newTestRepository(t, "")

	srv.HSet("test", "a", `"Alpha"`)
	srv.HSet("test", "b", `{"theme":"dark","size":12.5}`)

	props, err := repo.PropertiesInGroup(ctx, "test")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, props.Names())

	b, _ := props.Get("b")
	mapping, ok := b.AsMapping()
	require.True(t, ok)
	size, _ := mapping["size"].AsNumber()
	require.Equal(t, "12.5", size.String())
}

func TestRepositoryMalformedPayload(t *testing.T) {
	ctx := context.Background()
	repo, srv := newTestRepository(t, "")
	srv.HSet("test", "broken", `{not json`)

	_, err := repo.PropertyPayload(ctx, "test", "broken")
	require.Error(t, err)
	require.Equal(t, xerrors.CodeDecodeFailure, xerrors.CodeOf(err))
	e, ok := xerrors.From(err)
	require.True(t, ok)
	require.Equal(t, "broken", e.Metadata()["field"])

	_, err = repo.PropertiesInGroup(ctx, "test")
	require.Equal(t, xerrors.CodeDecodeFailure, xerrors.CodeOf(err))
}

func TestRepositoryEmptyBatchDoesNotTouchRedis(t *testing.T) {
	ctx := context.Background()
	repo, srv := newTestRepository(t, "")
	srv.Close()

	require.NoError(t, repo.UpdatePropertiesPayload(ctx, "test", nil))
	require.NoError(t, repo.LockProperties(ctx, "test", nil))
	require.NoError(t, repo.UnlockProperties(ctx, "test", []string{}))
}

func TestRepositoryTransportErrorsPassThrough(t *testing.T) {
	ctx := context.Background()
	repo, srv := newTestRepository(t, "")
	srv.Close()

	_, err := repo.PropertiesInGroup(ctx, "test")
	require.Error(t, err)
	_, isCoded := xerrors.From(err)
	require.False(t, isCoded)

	_, err = repo.PropertyExists(ctx, "test", "a")
	require.Error(t, err)
	require.Error(t, repo.CreateProperty(ctx, "test", "a", settings.Null()))
}

func TestRepositoryWrongTypeIsReported(t *testing.T) {
	ctx := context.Background()
	repo, srv := newTestRepository(t, "")
	require.NoError(t, srv.Set("test", "plain string"))

	_, err := repo.PropertiesInGroup(ctx, "test")
	require.Error(t, err)
}

func TestNewRepositoryRequiresClient(t *testing.T) {
	_, err := NewRepository(nil, Config{})
	require.Equal(t, xerrors.CodeInitializationFailure, xerrors.CodeOf(err))
}

func TestConfigFromMap(t *testing.T) {
	cfg, err := ConfigFromMap(map[string]any{"prefix": "spatie"})
	require.NoError(t, err)
	require.Equal(t, "spatie", cfg.Prefix)

	cfg, err = ConfigFromMap(map[string]any{"prefix": nil})
	require.NoError(t, err)
	require.Empty(t, cfg.Prefix)

	cfg, err = ConfigFromMap(nil)
	require.NoError(t, err)
	require.Empty(t, cfg.Prefix)

	_, err = ConfigFromMap(map[string]any{"prefix": 12})
	require.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
}

// TestRepositoryLive 在 SETTINGSHUB_REDIS_TEST=1 时连接真实 Redis。
func TestRepositoryLive(t *testing.T) {
	if os.Getenv("SETTINGSHUB_REDIS_TEST") != "1" {
		t.Skip("set SETTINGSHUB_REDIS_TEST=1 to run against a live Redis")
	}
	addr := os.Getenv("SETTINGSHUB_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	ctx := context.Background()
	client, err := Open(ctx, ConnectionConfig{Address: addr, ConnectRetries: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	settingstest.RunRepositoryContract(t, func(t *testing.T) settings.Repository {
		prefix := "settingshub-test-" + t.Name()
		repo, err := NewRepository(client, Config{Prefix: prefix})
		require.NoError(t, err)
		t.Cleanup(func() {
			keys, _ := client.Keys(ctx, prefix+".*").Result()
			if len(keys) > 0 {
				_ = client.Del(ctx, keys...).Err()
			}
		})
		return repo
	})
}
