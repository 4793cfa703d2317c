// Package cmd implements the tandem command-line interface.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tandemlabs/tandem/internal/config"
	"github.com/tandemlabs/tandem/internal/logging"
	"github.com/tandemlabs/tandem/internal/persist"
	"github.com/tandemlabs/tandem/internal/ratelimit"
	"github.com/tandemlabs/tandem/internal/registry"
	"github.com/tandemlabs/tandem/internal/supervisor"
)

var rootCmd = &cobra.Command{
	Use:   "tandem",
	Short: "Session lifecycle manager for the Tandem coding assistant",
	Long: `Tandem manages interactive coding-assistant sessions: each session binds
a conversation and task list to one project directory. Sessions can be
created, snapshotted to signed on-disk records, and later resumed back
into a live, fully supervised process group.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/tandem/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("TANDEM")
	// Replace dots with underscores for nested keys in env vars
	// e.g., TANDEM_SESSION_MAX_SESSIONS for session.max_sessions
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// app bundles the wired components behind every subcommand.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	sup    *supervisor.Supervisor
	store  *persist.Store
}

// newApp loads the configuration and wires the registry, supervisor, rate
// limiter, and persistence store together.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := logging.NopLogger()
	if cfg.Logging.Enabled {
		logger, err = logging.NewLogger(cfg.Logging.File, cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
	}

	sup := supervisor.New(cfg.Session, registry.New(cfg.Session.MaxSessions), logger)
	limiter := ratelimit.FromConfig(cfg.RateLimit, logger)

	store, err := persist.NewStore(cfg.Persistence, sup, limiter, logger)
	if err != nil {
		logger.Close()
		return nil, err
	}
	sup.SetSaver(store)

	return &app{cfg: cfg, logger: logger, sup: sup, store: store}, nil
}

// close stops any live sessions and releases the logger.
func (a *app) close() {
	_ = a.sup.StopAll()
	_ = a.logger.Close()
}
