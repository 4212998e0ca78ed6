package contract

import (
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"strings"

	"github.com/ktestci/ktestci/schema"
)

// ErrNoOutputDir is returned when the configuration does not name an output_dir.
var ErrNoOutputDir = errors.New("output_dir is required")

// Config holds the final, validated configuration.
type Config struct {
	LinuxRepo string // git repository the branches are fetched into
	OutputDir string // root of queues, results, and state files
	KtestDir  string // ktest checkout; test binaries live under tests/
	CIURL     string
	CIRemote  string // remote whose tracking refs are preferred when resolving branches
	CIHost    string
	UsersDir  string

	SubtestDurationMax uint64 // per-dispatch budget in seconds
	SubtestDurationDef uint64 // expected duration of a subtest without history

	Verbose  bool
	UserNice map[string]int64

	Output     schema.OutputMode
	OutputFile string
	Width      int // Terminal width override (0 = auto-detect)
	UseColors  bool

	CacheBackend   schema.DatabaseBackend
	CacheDBConnect string // Please use env var as this is plaintext

	HistoryBackend   schema.DatabaseBackend
	HistoryDBConnect string // Please use env var as this is plaintext

	// Users maps a user name to its parsed configuration or parse error.
	Users map[string]UserEntry
}

// ConfigRawInput holds the raw inputs from all sources (flags, env, config file).
// Viper unmarshals into this struct.
type ConfigRawInput struct {
	// --- Fields from the main config file ---
	LinuxRepo          string           `mapstructure:"linux_repo"`
	OutputDir          string           `mapstructure:"output_dir"`
	KtestDir           string           `mapstructure:"ktest_dir"`
	CIURL              string           `mapstructure:"ci_url"`
	CIRemote           string           `mapstructure:"ci_remote"`
	CIHost             string           `mapstructure:"ci_host"`
	UsersDir           string           `mapstructure:"users_dir"`
	SubtestDurationMax *uint64          `mapstructure:"subtest_duration_max"`
	SubtestDurationDef *uint64          `mapstructure:"subtest_duration_def"`
	Verbose            bool             `mapstructure:"verbose"`
	UserNice           map[string]int64 `mapstructure:"user_nice"`

	// --- Fields from rootCmd.PersistentFlags() ---
	Output           string `mapstructure:"output"`
	OutputFile       string `mapstructure:"output-file"`
	Width            int    `mapstructure:"width"`
	Color            string `mapstructure:"color"`
	CacheBackend     string `mapstructure:"cache-backend"`
	CacheDBConnect   string `mapstructure:"cache-db-connect"`
	HistoryBackend   string `mapstructure:"history-backend"`
	HistoryDBConnect string `mapstructure:"history-db-connect"`
}

// Clone returns a copy of the Config whose maps can be modified independently.
func (c *Config) Clone() *Config {
	clone := *c
	if c.UserNice != nil {
		clone.UserNice = make(map[string]int64, len(c.UserNice))
		maps.Copy(clone.UserNice, c.UserNice)
	}
	if c.Users != nil {
		clone.Users = make(map[string]UserEntry, len(c.Users))
		maps.Copy(clone.Users, c.Users)
	}
	return &clone
}

// ProcessAndValidate performs all parsing and validation on the raw inputs
// and populates the final Config struct.
func ProcessAndValidate(cfg *Config, input *ConfigRawInput) error {
	if err := processPaths(cfg, input); err != nil {
		return err
	}
	if err := validateSimpleInputs(cfg, input); err != nil {
		return err
	}
	return validateBackendConfigs(cfg, input)
}

// processPaths transfers the main config file paths.
func processPaths(cfg *Config, input *ConfigRawInput) error {
	if strings.TrimSpace(input.OutputDir) == "" {
		return ErrNoOutputDir
	}
	cfg.OutputDir = filepath.Clean(input.OutputDir)
	cfg.LinuxRepo = input.LinuxRepo
	cfg.KtestDir = input.KtestDir
	cfg.CIURL = input.CIURL
	cfg.CIRemote = input.CIRemote
	cfg.CIHost = input.CIHost
	cfg.UsersDir = input.UsersDir
	return nil
}

// validateSimpleInputs processes and validates all non-path related fields.
func validateSimpleInputs(cfg *Config, input *ConfigRawInput) error {
	cfg.Verbose = input.Verbose
	cfg.OutputFile = input.OutputFile
	cfg.Width = input.Width

	cfg.UserNice = make(map[string]int64, len(input.UserNice))
	maps.Copy(cfg.UserNice, input.UserNice)

	cfg.SubtestDurationDef = schema.DefaultSubtestDuration
	if input.SubtestDurationDef != nil {
		cfg.SubtestDurationDef = *input.SubtestDurationDef
	}
	cfg.SubtestDurationMax = schema.DefaultSubtestBudget
	if input.SubtestDurationMax != nil {
		cfg.SubtestDurationMax = *input.SubtestDurationMax
	}
	if cfg.SubtestDurationMax == 0 {
		return fmt.Errorf("subtest_duration_max must be greater than 0")
	}

	output := input.Output
	if output == "" {
		output = string(schema.TextOut)
	}
	cfg.Output = schema.OutputMode(strings.ToLower(output))
	if _, ok := schema.ValidOutputModes[cfg.Output]; !ok {
		return fmt.Errorf("invalid output format '%s'. must be text, json", input.Output)
	}

	colorStr := input.Color
	if colorStr == "" {
		colorStr = "yes"
	}
	colors, err := ParseBoolString(colorStr)
	if err != nil {
		return fmt.Errorf("invalid --color value: %w", err)
	}
	cfg.UseColors = colors

	if input.Width < 0 {
		return fmt.Errorf("width must not be negative (received %d)", input.Width)
	}
	return nil
}

// ValidateDatabaseConnectionString validates the format of database connection strings
// for MySQL and PostgreSQL backends.
func ValidateDatabaseConnectionString(backend schema.DatabaseBackend, connStr string) error {
	switch backend {
	case schema.SQLiteBackend, schema.NoneBackend:
		return nil
	case schema.MySQLBackend:
		if connStr == "" {
			return fmt.Errorf("a connection string is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "@tcp(") {
			return fmt.Errorf("MySQL connection string must contain '@tcp(' for host:port specification")
		}
		if !strings.Contains(connStr, "/") {
			return fmt.Errorf("MySQL connection string must contain '/' followed by database name")
		}
	case schema.PostgreSQLBackend:
		if connStr == "" {
			return fmt.Errorf("a connection string is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "host=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'host=' parameter")
		}
		if !strings.Contains(connStr, "dbname=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'dbname=' parameter")
		}
	}
	return nil
}

// parseBackend lowercases and validates a backend name; empty means none.
func parseBackend(kind, raw string) (schema.DatabaseBackend, error) {
	if raw == "" {
		return schema.NoneBackend, nil
	}
	backend := schema.DatabaseBackend(strings.ToLower(raw))
	if _, ok := schema.ValidDatabaseBackends[backend]; !ok {
		return "", fmt.Errorf("invalid %s backend '%s'. must be sqlite, mysql, postgresql, none", kind, raw)
	}
	return backend, nil
}

// validateBackendConfigs validates cache and history backend configurations.
func validateBackendConfigs(cfg *Config, input *ConfigRawInput) error {
	var err error

	// --- Cache Backend Validation ---
	if cfg.CacheBackend, err = parseBackend("cache", input.CacheBackend); err != nil {
		return err
	}
	cfg.CacheDBConnect = input.CacheDBConnect
	if err := ValidateDatabaseConnectionString(cfg.CacheBackend, cfg.CacheDBConnect); err != nil {
		return err
	}

	// --- History Backend Validation ---
	if cfg.HistoryBackend, err = parseBackend("history", input.HistoryBackend); err != nil {
		return err
	}
	cfg.HistoryDBConnect = input.HistoryDBConnect
	if err := ValidateDatabaseConnectionString(cfg.HistoryBackend, cfg.HistoryDBConnect); err != nil {
		return err
	}

	// Both stores keep their own tables, but SQLite files must differ.
	if cfg.CacheBackend == schema.SQLiteBackend && cfg.HistoryBackend == schema.SQLiteBackend {
		cachePath := cfg.CacheDBConnect
		if cachePath == "" {
			cachePath = GetCacheDBFilePath(cfg.OutputDir)
		}
		historyPath := cfg.HistoryDBConnect
		if historyPath == "" {
			historyPath = GetHistoryDBFilePath(cfg.OutputDir)
		}
		if cachePath == historyPath {
			return fmt.Errorf("cache and history storage must use different SQLite database files. Both resolve to %q", cachePath)
		}
	}
	return nil
}
