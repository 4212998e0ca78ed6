package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/ktestci/ktestci/internal/contract"
	"github.com/ktestci/ktestci/internal/iocache"
	"github.com/ktestci/ktestci/schema"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// All linker flags will be set by goreleaser infra at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCtx is the root context for all operations.
var rootCtx = context.Background()

// cfg will hold the validated, final configuration.
var cfg = &contract.Config{}

// logger is built from the validated config in configSetup.
var logger = zerolog.Nop()

// rootCmd is the command-line entrypoint for all other commands.
var rootCmd = &cobra.Command{
	Use:   "ktestci",
	Short: "Distribute kernel CI test jobs to workers.",
	Long: `ktestci turns the branches users ask to have tested into per-user job
queues, and hands batches of subtests from those queues to workers in
fair-share order.`,
	Version:            version,
	SilenceErrors:      true,
	SilenceUsage:       true,
	DisableSuggestions: true,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// Check if a specific config file is provided
	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigFile(schema.DefaultConfigFile)
	}

	// Set environment variable prefix
	viper.SetEnvPrefix("KTESTCI")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // Read in environment variables that match

	// Set defaults in Viper
	viper.SetDefault("subtest_duration_max", schema.DefaultSubtestBudget)
	viper.SetDefault("subtest_duration_def", schema.DefaultSubtestDuration)
	viper.SetDefault("output", schema.TextOut)
	viper.SetDefault("cache-backend", schema.NoneBackend)
	viper.SetDefault("cache-db-connect", "")
	viper.SetDefault("history-backend", schema.NoneBackend)
	viper.SetDefault("history-db-connect", "")
	viper.SetDefault("color", "yes")
}

// loadConfig reads the main config file, environment and flags plus every
// user file into a fresh Config. It does not touch the SQL stores.
func loadConfig() (*contract.Config, error) {
	// 1. Read config file. This merges defaults, file, env, and flags.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			// Config file was found but another error was produced
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, which is fine; we'll use defaults/env/flags.
	}

	// 2. Unmarshal all resolved values from Viper into a new raw input struct.
	raw := &contract.ConfigRawInput{}
	if err := viper.Unmarshal(raw); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config: %w", err)
	}

	// 3. Viper folds map keys to lower case; user names are case-sensitive.
	if used := viper.ConfigFileUsed(); used != "" && fileExists(used) {
		nice, err := contract.LoadUserNice(used)
		if err != nil {
			return nil, err
		}
		raw.UserNice = nice
	}

	// 4. Run all validation and complex parsing.
	loaded := &contract.Config{}
	if err := contract.ProcessAndValidate(loaded, raw); err != nil {
		return nil, err
	}

	users, err := contract.LoadUsers(loaded.UsersDir)
	if err != nil {
		return nil, err
	}
	loaded.Users = users
	return loaded, nil
}

// configSetup loads and validates the configuration and the user files
// without touching the SQL stores.
func configSetup() error {
	loaded, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = loaded

	logger = contract.NewLogger(cfg.Verbose)
	color.NoColor = !cfg.UseColors
	warnBrokenUsers(cfg)
	return nil
}

// reloadConfig replaces cfg with a freshly loaded configuration for the next
// iteration of a long-running command and reports whether the user
// configuration changed. When loading fails the previous configuration stays.
func reloadConfig() bool {
	loaded, err := loadConfig()
	if err != nil {
		logger.Warn().Err(err).Msg("reloading configuration, keeping the previous one")
		return false
	}
	changed := !cfg.SameUsers(loaded)
	cfg = loaded
	if changed {
		logger.Info().Msg("user configuration changed")
		warnBrokenUsers(cfg)
	}
	return changed
}

func warnBrokenUsers(c *contract.Config) {
	for _, name := range contract.SortedKeys(c.Users) {
		if err := c.Users[name].Err; err != nil {
			logger.Warn().Err(err).Str("user", name).Msg("error parsing user config")
		}
	}
}

// sharedSetup loads the configuration and opens the SQL stores.
func sharedSetup(_ context.Context, _ *cobra.Command, _ []string) error {
	if err := configSetup(); err != nil {
		return err
	}
	if err := iocache.InitStores(cfg); err != nil {
		return fmt.Errorf("failed to initialize persistence: %w", err)
	}
	return nil
}

// sharedSetupWrapper wraps sharedSetup to provide context for Cobra's PreRunE.
func sharedSetupWrapper(cmd *cobra.Command, args []string) error {
	return sharedSetup(rootCtx, cmd, args)
}

// configSetupWrapper provides PreRunE for commands that manage a store
// directly instead of through the global manager.
func configSetupWrapper(_ *cobra.Command, _ []string) error {
	return configSetup()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Execute runs the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	rootCtx = ctx

	defer iocache.CloseStores()
	return rootCmd.Execute()
}
