package contract

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/ktestci/ktestci/schema"
	"github.com/pelletier/go-toml/v2"
)

// TestGroup is a set of tests sharing scheduling parameters.
type TestGroup struct {
	MaxCommits           uint64   // how far back from the branch tip to look
	Nice                 uint64   // base scheduling penalty
	TestDurationNice     uint64   // divisor applied to the average duration; 0 disables
	TestAlwaysPassesNice uint64   // penalty for tests with a one-sided history; 0 disables
	Tests                []string // test paths relative to ktest_dir/tests
}

// BranchConfig describes one tracked branch of a user.
type BranchConfig struct {
	Fetch string   `toml:"fetch"` // arguments to git fetch, whitespace separated
	Tests []string `toml:"tests"` // names of test groups
}

// UserConfig is the parsed content of one file in users_dir.
type UserConfig struct {
	TestGroups map[string]TestGroup
	Branches   map[string]BranchConfig
}

// UserEntry is either a valid user configuration or the error that kept it from loading.
type UserEntry struct {
	Config *UserConfig
	Err    error
}

// testGroupRaw uses pointers so unset fields can take their defaults.
type testGroupRaw struct {
	MaxCommits           *uint64  `toml:"max_commits"`
	Nice                 *uint64  `toml:"nice"`
	TestDurationNice     *uint64  `toml:"test_duration_nice"`
	TestAlwaysPassesNice *uint64  `toml:"test_always_passes_nice"`
	Tests                []string `toml:"tests"`
}

type userConfigRaw struct {
	TestGroup map[string]testGroupRaw `toml:"test_group"`
	Branch    map[string]BranchConfig `toml:"branch"`
}

func valueOr(v *uint64, def uint64) uint64 {
	if v == nil {
		return def
	}
	return *v
}

// ParseUserConfig decodes one user file.
func ParseUserConfig(data []byte) (*UserConfig, error) {
	var raw userConfigRaw
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	cfg := &UserConfig{
		TestGroups: make(map[string]TestGroup, len(raw.TestGroup)),
		Branches:   make(map[string]BranchConfig, len(raw.Branch)),
	}
	for name, g := range raw.TestGroup {
		cfg.TestGroups[name] = TestGroup{
			MaxCommits:           valueOr(g.MaxCommits, schema.DefaultMaxCommits),
			Nice:                 valueOr(g.Nice, schema.DefaultGroupNice),
			TestDurationNice:     valueOr(g.TestDurationNice, schema.DefaultTestDurationNice),
			TestAlwaysPassesNice: valueOr(g.TestAlwaysPassesNice, schema.DefaultTestAlwaysPassesNice),
			Tests:                g.Tests,
		}
	}
	for name, b := range raw.Branch {
		if strings.TrimSpace(b.Fetch) == "" {
			return nil, fmt.Errorf("branch %s: fetch is required", name)
		}
		cfg.Branches[name] = b
	}
	return cfg, nil
}

// LoadUsers parses every file in usersDir, keyed by file name without extension.
// A file that fails to parse is kept as an entry carrying its error.
func LoadUsers(usersDir string) (map[string]UserEntry, error) {
	users := make(map[string]UserEntry)
	if usersDir == "" {
		return users, nil
	}

	entries, err := os.ReadDir(usersDir)
	if err != nil {
		return nil, fmt.Errorf("reading users_dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))

		data, err := os.ReadFile(filepath.Join(usersDir, e.Name()))
		if err != nil {
			users[name] = UserEntry{Err: err}
			continue
		}
		cfg, err := ParseUserConfig(data)
		users[name] = UserEntry{Config: cfg, Err: err}
	}
	return users, nil
}

// SameUsers reports whether c and other carry the same user configuration.
// Users that failed to load compare by error text.
func (c *Config) SameUsers(other *Config) bool {
	if len(c.Users) != len(other.Users) {
		return false
	}
	for name, a := range c.Users {
		b, ok := other.Users[name]
		if !ok || (a.Err == nil) != (b.Err == nil) {
			return false
		}
		if a.Err != nil {
			if a.Err.Error() != b.Err.Error() {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(a.Config, b.Config) {
			return false
		}
	}
	return true
}

// SortedKeys returns the keys of a string-keyed map in order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValidUsers returns the names of users whose configuration loaded, sorted.
func (c *Config) ValidUsers() []string {
	var names []string
	for _, name := range SortedKeys(c.Users) {
		if c.Users[name].Err == nil {
			names = append(names, name)
		}
	}
	return names
}

// UserNiceFor returns the fair-share nice override of a user.
func (c *Config) UserNiceFor(user string) int64 {
	return c.UserNice[user]
}

// LoadUserNice reads the user_nice table of the main config file with its
// keys as written. A file without the table yields an empty map.
func LoadUserNice(configFile string) (map[string]int64, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, err
	}
	var raw struct {
		UserNice map[string]int64 `toml:"user_nice"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing user_nice in %s: %w", configFile, err)
	}
	if raw.UserNice == nil {
		raw.UserNice = make(map[string]int64)
	}
	return raw.UserNice, nil
}
