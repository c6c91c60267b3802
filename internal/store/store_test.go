package store

import (
	"path/filepath"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "config.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBoltRoundTrip(t *testing.T) {
	kv := openTestDB(t).Bucket(LocalBucket)

	require.NoError(t, kv.Set("k", "v"))
	v, ok, err := kv.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, kv.Set("obj", map[string]any{"a": 1}))
	v, _, _ = kv.Get("obj")
	assert.Equal(t, map[string]any{"a": float64(1)}, v)

	require.NoError(t, kv.Delete("k"))
	v, ok, err = kv.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestBucketsAreIsolated(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Bucket(LocalBucket).Set("k", 1))

	_, ok, err := db.Bucket(EnvironmentsBucket).Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBoltPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Bucket(LocalBucket).Set("theme", "dark"))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	v, ok, err := db.Bucket(LocalBucket).Get("theme")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "dark", v)
}

func TestEmptyKeyRejected(t *testing.T) {
	stores := map[string]KV{
		"bolt":    openTestDB(t).Bucket(LocalBucket),
		"session": NewSession(),
	}
	for name, kv := range stores {
		t.Run(name, func(t *testing.T) {
			_, _, err := kv.Get("")
			assert.ErrorIs(t, err, ErrEmptyKey)
			assert.ErrorIs(t, kv.Set("", 1), ErrEmptyKey)
			assert.ErrorIs(t, kv.Delete(""), ErrEmptyKey)
		})
	}
}

func TestSession(t *testing.T) {
	s := NewSession()
	require.NoError(t, s.Set("k", []int{1}))

	v, ok, _ := s.Get("k")
	assert.True(t, ok)
	assert.Equal(t, []int{1}, v)

	require.NoError(t, s.Delete("k"))
	_, ok, _ = s.Get("k")
	assert.False(t, ok)
}

func TestEnvironmentSetOperations(t *testing.T) {
	set := &EnvironmentSet{}
	a := Environment{Key: "env-a", Source: SourceLocal}
	b := Environment{Key: "env-b", Source: SourceNetwork}

	require.NoError(t, set.Add(a, false))
	require.NoError(t, set.Add(b, true))
	assert.Equal(t, "env-b", set.Current)
	assert.ErrorIs(t, set.Add(a, false), ErrEnvironmentExists)

	assert.ErrorIs(t, set.Update(Environment{Key: "env-c"}), ErrEnvironmentMissing)
	b.Authenticated = true
	require.NoError(t, set.Update(b))
	got, _ := set.Find("env-b")
	assert.True(t, got.Authenticated)

	env, err := set.SetDefault("env-a")
	require.NoError(t, err)
	assert.Equal(t, a, env)
	_, err = set.SetDefault("nope")
	assert.EqualError(t, err, "The environment is not defined: nope")

	assert.True(t, set.Remove("env-a"))
	assert.Empty(t, set.Current)
	assert.Len(t, set.Environments, 1)
	assert.False(t, set.Remove("env-a"))
}

func TestEnvironmentSetResolve(t *testing.T) {
	set := &EnvironmentSet{Environments: []Environment{{Key: "env-a"}, {Key: "env-b"}}}

	_, err := set.Resolve("")
	assert.ErrorIs(t, err, ErrNoDefault)

	env, err := set.Resolve("env-b")
	require.NoError(t, err)
	assert.Equal(t, "env-b", env.Key)

	set.Current = "env-a"
	env, err = set.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "env-a", env.Key)

	set.Current = "ghost"
	_, err = set.Resolve("")
	assert.ErrorIs(t, err, ErrEnvironmentNotFound)
}

func TestEnvironmentsMutate(t *testing.T) {
	envs := NewEnvironments(openTestDB(t).Bucket(EnvironmentsBucket))

	set, err := envs.List()
	require.NoError(t, err)
	assert.Empty(t, set.Environments)
	assert.NotNil(t, set.Environments)

	_, err = envs.Mutate(func(s *EnvironmentSet) error {
		return s.Add(Environment{Key: "env-a"}, true)
	})
	require.NoError(t, err)

	// a failed mutation leaves the stored set alone
	_, err = envs.Mutate(func(s *EnvironmentSet) error {
		s.Current = "changed"
		return s.Update(Environment{Key: "missing"})
	})
	require.ErrorIs(t, err, ErrEnvironmentMissing)

	set, err = envs.List()
	require.NoError(t, err)
	assert.Equal(t, "env-a", set.Current)
	assert.Len(t, set.Environments, 1)
}

func TestEnvironmentKeepsUnknownFields(t *testing.T) {
	envs := NewEnvironments(openTestDB(t).Bucket(EnvironmentsBucket))

	var env Environment
	raw := `{"key":"remote","source":"network-store","color":"teal","headers":{"x-team":"api"}}`
	require.NoError(t, sonic.Unmarshal([]byte(raw), &env))
	assert.Equal(t, "remote", env.Key)
	assert.Equal(t, SourceNetwork, env.Source)
	assert.Equal(t, map[string]any{"color": "teal", "headers": map[string]any{"x-team": "api"}}, env.Extra)

	_, err := envs.Mutate(func(s *EnvironmentSet) error { return s.Add(env, true) })
	require.NoError(t, err)
	set, err := envs.List()
	require.NoError(t, err)
	require.Len(t, set.Environments, 1)
	assert.Equal(t, env, set.Environments[0])

	out, err := sonic.Marshal(set.Environments[0])
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))

	// declared fields win over a colliding extra
	out, err = sonic.Marshal(Environment{Key: "k", Extra: map[string]any{"key": "other", "tier": "gold"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"k","tier":"gold"}`, string(out))

	plain := Environment{Key: "plain"}
	require.NoError(t, sonic.Unmarshal([]byte(`{"key":"plain"}`), &env))
	assert.Equal(t, plain, env)
}
