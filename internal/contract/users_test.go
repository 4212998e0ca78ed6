package contract

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ktestci/ktestci/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleUser = `
[test_group.quick]
nice = 2
tests = ["fs/bcachefs/single_device.ktest"]

[test_group.slow]
max_commits = 5
nice = 10
test_duration_nice = 0
test_always_passes_nice = 3
tests = ["xfstests.ktest"]

[branch.For-Next]
fetch = "https://example.org/linux.git for-next"
tests = ["quick", "slow"]
`

func TestParseUserConfig(t *testing.T) {
	cfg, err := ParseUserConfig([]byte(sampleUser))
	require.NoError(t, err)

	quick := cfg.TestGroups["quick"]
	assert.Equal(t, uint64(schema.DefaultMaxCommits), quick.MaxCommits)
	assert.Equal(t, uint64(2), quick.Nice)
	assert.Equal(t, uint64(schema.DefaultTestDurationNice), quick.TestDurationNice)
	assert.Equal(t, uint64(schema.DefaultTestAlwaysPassesNice), quick.TestAlwaysPassesNice)
	assert.Equal(t, []string{"fs/bcachefs/single_device.ktest"}, quick.Tests)

	slow := cfg.TestGroups["slow"]
	assert.Equal(t, uint64(5), slow.MaxCommits)
	assert.Equal(t, uint64(0), slow.TestDurationNice)
	assert.Equal(t, uint64(3), slow.TestAlwaysPassesNice)

	// branch names keep their case
	require.Contains(t, cfg.Branches, "For-Next")
	assert.Equal(t, []string{"quick", "slow"}, cfg.Branches["For-Next"].Tests)
}

func TestParseUserConfigErrors(t *testing.T) {
	_, err := ParseUserConfig([]byte("[branch.x]\ntests = []\n"))
	assert.Error(t, err, "fetch is required")

	_, err = ParseUserConfig([]byte("not = [toml"))
	assert.Error(t, err)
}

func TestLoadUsers(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alice.toml"), []byte(sampleUser), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bob.toml"), []byte("[[[broken"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte(sampleUser), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))

	users, err := LoadUsers(dir)
	require.NoError(t, err)
	require.Len(t, users, 2)

	assert.NoError(t, users["alice"].Err)
	assert.NotNil(t, users["alice"].Config)
	assert.Error(t, users["bob"].Err)
	assert.Nil(t, users["bob"].Config)

	cfg := &Config{Users: users}
	assert.Equal(t, []string{"alice"}, cfg.ValidUsers())
}

func TestLoadUsersMissingDir(t *testing.T) {
	_, err := LoadUsers(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)

	users, err := LoadUsers("")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestLoadUserNice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ktest-ci.toml")
	require.NoError(t, os.WriteFile(path, []byte("output_dir = \"/tmp/out\"\n[user_nice]\nKent = 3\nbob = -1\n"), 0o644))

	nice, err := LoadUserNice(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"Kent": 3, "bob": -1}, nice)

	require.NoError(t, os.WriteFile(path, []byte("output_dir = \"/tmp/out\"\n"), 0o644))
	nice, err = LoadUserNice(path)
	require.NoError(t, err)
	assert.Empty(t, nice)

	_, err = LoadUserNice(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestSameUsers(t *testing.T) {
	load := func() *Config {
		t.Helper()
		cfg, err := ParseUserConfig([]byte(sampleUser))
		require.NoError(t, err)
		return &Config{Users: map[string]UserEntry{
			"alice": {Config: cfg},
			"bob":   {Err: errors.New("toml: line 3: bad")},
		}}
	}

	a, b := load(), load()
	assert.True(t, a.SameUsers(b), "separately loaded identical files")

	b.Users["alice"].Config.TestGroups["quick"] = TestGroup{MaxCommits: 99}
	assert.False(t, a.SameUsers(b))

	b = load()
	b.Users["bob"] = UserEntry{Err: errors.New("toml: line 4: bad")}
	assert.False(t, a.SameUsers(b))

	b = load()
	delete(b.Users, "bob")
	b.Users["carol"] = a.Users["alice"]
	assert.False(t, a.SameUsers(b))
}
