// Package settingstest 提供 settings.Repository 实现共用的行为测试。
package settingstest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"settingshub/internal/settings"
)

// Factory 为每个子测试返回一个干净的仓库。
type Factory func(t *testing.T) settings.Repository

// RunRepositoryContract 校验仓库实现满足分组、属性与锁的全部约定。
func RunRepositoryContract(t *testing.T, newRepo Factory) {
	t.Helper()

	t.Run("properties in group", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		seedScenario(t, repo)
		require.NoError(t, repo.CreateProperty(ctx, "not-test", "a", settings.String("Alpha")))

		props, err := repo.PropertiesInGroup(ctx, "test")
		require.NoError(t, err)
		require.Equal(t, 5, props.Len())
		require.True(t, scenario().Equal(props), "got %s", mustJSON(t, props))
	})

	t.Run("empty group", func(t *testing.T) {
		repo := newRepo(t)
		props, err := repo.PropertiesInGroup(context.Background(), "missing")
		require.NoError(t, err)
		require.Empty(t, props)
	})

	t.Run("property exists", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		exists, err := repo.PropertyExists(ctx, "test", "a")
		require.NoError(t, err)
		require.False(t, exists)

		require.NoError(t, repo.CreateProperty(ctx, "test", "a", settings.String("a")))

		exists, err = repo.PropertyExists(ctx, "test", "a")
		require.NoError(t, err)
		require.True(t, exists)

		exists, err = repo.PropertyExists(ctx, "test", "b")
		require.NoError(t, err)
		require.False(t, exists)
	})

	t.Run("payload round trip", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		seedScenario(t, repo)

		for _, want := range scenario() {
			got, err := repo.PropertyPayload(ctx, "test", want.Name)
			require.NoError(t, err)
			require.True(t, want.Value.Equal(got), "%s: want %s got %s", want.Name, want.Value, got)
			require.Equal(t, want.Value.Kind(), got.Kind())
		}
	})

	t.Run("absent payload reads as null", func(t *testing.T) {
		repo := newRepo(t)
		got, err := repo.PropertyPayload(context.Background(), "test", "nope")
		require.NoError(t, err)
		require.True(t, got.IsNull())
	})

	t.Run("create overwrites", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.CreateProperty(ctx, "test", "a", settings.String("Alpha")))
		require.NoError(t, repo.CreateProperty(ctx, "test", "b", settings.Int(1)))
		require.NoError(t, repo.CreateProperty(ctx, "test", "a", settings.Bool(false)))

		props, err := repo.PropertiesInGroup(ctx, "test")
		require.NoError(t, err)
		require.Equal(t, []string{"a", "b"}, props.Names())
		got, _ := props.Get("a")
		require.True(t, settings.Bool(false).Equal(got))
	})

	t.Run("update payload", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		seedScenario(t, repo)

		update := settings.Properties{
			{Name: "a", Value: settings.Null()},
			{Name: "b", Value: settings.Bool(false)},
			{Name: "c", Value: settings.Strings("light", "dark")},
			{Name: "d", Value: settings.String("Alpha")},
			{Name: "e", Value: settings.Int(69)},
		}
		require.NoError(t, repo.UpdatePropertiesPayload(ctx, "test", update))

		for _, want := range update {
			got, err := repo.PropertyPayload(ctx, "test", want.Name)
			require.NoError(t, err)
			require.True(t, want.Value.Equal(got), "%s: want %s got %s", want.Name, want.Value, got)
		}
	})

	t.Run("partial update leaves other fields", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		seedScenario(t, repo)

		require.NoError(t, repo.UpdatePropertiesPayload(ctx, "test", settings.Properties{
			{Name: "e", Value: settings.Int(0)},
		}))
		require.NoError(t, repo.UpdatePropertiesPayload(ctx, "test", nil))

		props, err := repo.PropertiesInGroup(ctx, "test")
		require.NoError(t, err)
		want := scenario()
		want.Set("e", settings.Int(0))
		require.True(t, want.Equal(props), "got %s", mustJSON(t, props))
	})

	t.Run("delete property", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.CreateProperty(ctx, "test", "a", settings.String("Alpha")))
		require.NoError(t, repo.LockProperties(ctx, "test", []string{"a"}))

		require.NoError(t, repo.DeleteProperty(ctx, "test", "a"))
		require.NoError(t, repo.DeleteProperty(ctx, "test", "a"))

		exists, err := repo.PropertyExists(ctx, "test", "a")
		require.NoError(t, err)
		require.False(t, exists)

		locked, err := repo.LockedProperties(ctx, "test")
		require.NoError(t, err)
		require.Equal(t, []string{"a"}, locked)
	})

	t.Run("lock and unlock", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		for _, name := range []string{"a", "b", "c"} {
			require.NoError(t, repo.CreateProperty(ctx, "test", name, settings.String(name)))
		}

		require.NoError(t, repo.LockProperties(ctx, "test", []string{"a", "c"}))
		require.NoError(t, repo.LockProperties(ctx, "test", []string{"a"}))
		locked, err := repo.LockedProperties(ctx, "test")
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"a", "c"}, locked)

		require.NoError(t, repo.LockProperties(ctx, "test", []string{"b"}))
		require.NoError(t, repo.UnlockProperties(ctx, "test", []string{"a", "c", "zzz"}))
		locked, err = repo.LockedProperties(ctx, "test")
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"b"}, locked)

		require.NoError(t, repo.UnlockProperties(ctx, "test", []string{"b"}))
		require.NoError(t, repo.LockProperties(ctx, "test", nil))
		locked, err = repo.LockedProperties(ctx, "test")
		require.NoError(t, err)
		require.Empty(t, locked)
	})

	t.Run("lock without property", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.LockProperties(ctx, "test", []string{"ghost"}))
		locked, err := repo.LockedProperties(ctx, "test")
		require.NoError(t, err)
		require.Equal(t, []string{"ghost"}, locked)

		other, err := repo.LockedProperties(ctx, "not-test")
		require.NoError(t, err)
		require.Empty(t, other)
	})
}

// scenario 返回 a..e 五个属性组成的示例分组。
func scenario() settings.Properties {
	return settings.Properties{
		{Name: "a", Value: settings.String("Alpha")},
		{Name: "b", Value: settings.Bool(true)},
		{Name: "c", Value: settings.Strings("night", "day")},
		{Name: "d", Value: settings.Null()},
		{Name: "e", Value: settings.Int(42)},
	}
}

// Scenario 暴露示例分组给其他包的测试。
func Scenario() settings.Properties { return scenario() }

func seedScenario(t *testing.T, repo settings.Repository) {
	t.Helper()
	for _, prop := range scenario() {
		require.NoError(t, repo.CreateProperty(context.Background(), "test", prop.Name, prop.Value))
	}
}

func mustJSON(t *testing.T, props settings.Properties) string {
	t.Helper()
	data, err := props.MarshalJSON()
	require.NoError(t, err)
	return string(data)
}
