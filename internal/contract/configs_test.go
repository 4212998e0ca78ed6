package contract

import (
	"testing"

	"github.com/ktestci/ktestci/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestProcessAndValidate(t *testing.T) {
	tests := []struct {
		name        string
		input       *ConfigRawInput
		expectError bool
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name:  "valid minimal config",
			input: &ConfigRawInput{OutputDir: "/srv/ci/"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/srv/ci", cfg.OutputDir)
				assert.Equal(t, uint64(schema.DefaultSubtestDuration), cfg.SubtestDurationDef)
				assert.Equal(t, uint64(schema.DefaultSubtestBudget), cfg.SubtestDurationMax)
				assert.Equal(t, schema.TextOut, cfg.Output)
				assert.Equal(t, schema.NoneBackend, cfg.CacheBackend)
				assert.Equal(t, schema.NoneBackend, cfg.HistoryBackend)
				assert.True(t, cfg.UseColors)
			},
		},
		{
			name:        "missing output dir",
			input:       &ConfigRawInput{},
			expectError: true,
		},
		{
			name: "explicit durations and nice",
			input: &ConfigRawInput{
				OutputDir:          "/srv/ci",
				SubtestDurationMax: ptr(uint64(600)),
				SubtestDurationDef: ptr(uint64(30)),
				UserNice:           map[string]int64{"alice": 2},
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, uint64(600), cfg.SubtestDurationMax)
				assert.Equal(t, uint64(30), cfg.SubtestDurationDef)
				assert.Equal(t, int64(2), cfg.UserNiceFor("alice"))
				assert.Equal(t, int64(0), cfg.UserNiceFor("bob"))
			},
		},
		{
			name:        "zero budget",
			input:       &ConfigRawInput{OutputDir: "/srv/ci", SubtestDurationMax: ptr(uint64(0))},
			expectError: true,
		},
		{
			name:        "invalid output",
			input:       &ConfigRawInput{OutputDir: "/srv/ci", Output: "csv"},
			expectError: true,
		},
		{
			name:        "invalid color",
			input:       &ConfigRawInput{OutputDir: "/srv/ci", Color: "maybe"},
			expectError: true,
		},
		{
			name:        "invalid backend",
			input:       &ConfigRawInput{OutputDir: "/srv/ci", HistoryBackend: "redis"},
			expectError: true,
		},
		{
			name:        "mysql without connection string",
			input:       &ConfigRawInput{OutputDir: "/srv/ci", HistoryBackend: "mysql"},
			expectError: true,
		},
		{
			name: "sqlite stores on the same file",
			input: &ConfigRawInput{
				OutputDir:        "/srv/ci",
				CacheBackend:     "sqlite",
				CacheDBConnect:   "/tmp/same.db",
				HistoryBackend:   "sqlite",
				HistoryDBConnect: "/tmp/same.db",
			},
			expectError: true,
		},
		{
			name: "sqlite stores with default files",
			input: &ConfigRawInput{
				OutputDir:      "/srv/ci",
				CacheBackend:   "SQLite",
				HistoryBackend: "sqlite",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, schema.SQLiteBackend, cfg.CacheBackend)
				assert.Equal(t, schema.SQLiteBackend, cfg.HistoryBackend)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			err := ProcessAndValidate(cfg, tt.input)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestValidateDatabaseConnectionString(t *testing.T) {
	assert.NoError(t, ValidateDatabaseConnectionString(schema.SQLiteBackend, ""))
	assert.NoError(t, ValidateDatabaseConnectionString(schema.MySQLBackend, "root:pw@tcp(localhost:3306)/ci"))
	assert.Error(t, ValidateDatabaseConnectionString(schema.MySQLBackend, "root:pw@localhost"))
	assert.NoError(t, ValidateDatabaseConnectionString(schema.PostgreSQLBackend, "host=localhost dbname=ci"))
	assert.Error(t, ValidateDatabaseConnectionString(schema.PostgreSQLBackend, "dbname=ci"))
}

func TestConfigClone(t *testing.T) {
	cfg := &Config{UserNice: map[string]int64{"a": 1}, Users: map[string]UserEntry{"a": {}}}
	clone := cfg.Clone()
	clone.UserNice["a"] = 5
	delete(clone.Users, "a")
	assert.Equal(t, int64(1), cfg.UserNice["a"])
	assert.Contains(t, cfg.Users, "a")
}
