package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"volley/internal/banner"
	"volley/internal/config"
	"volley/internal/logging"
	"volley/internal/storage"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "volley",
	Short: "Volley - HTTP load testing engine",
	Long: `
Volley fires a fixed number of HTTP requests at a target from a pool of
concurrent virtual users and reports throughput, latency percentiles and
status codes as the test runs.

It has two main modes:
1. Server Mode: REST + WebSocket API for dashboards (volley serve)
2. CLI Mode (Headless): one test from flags, for CI/CD (volley run)`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func Execute() {
	// Custom Help with Banner
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		cmd.Usage()
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd, runCmd, dummyCmd, historyCmd)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.volley.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Log as JSON")
	rootCmd.PersistentFlags().String("history-driver", "json", "History store (json or bolt)")
	rootCmd.PersistentFlags().String("history-path", "", "History file (default is $HOME/.volley/history.{json,db})")

	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.json", rootCmd.PersistentFlags().Lookup("log-json"))
	viper.BindPFlag("history.driver", rootCmd.PersistentFlags().Lookup("history-driver"))
	viper.BindPFlag("history.path", rootCmd.PersistentFlags().Lookup("history-path"))
}

func initConfig() error {
	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}

	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".volley")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// environment is what every command needs from settings.
type environment struct {
	settings *config.Settings
	logger   *zap.Logger
}

func loadEnvironment() (*environment, error) {
	s, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(s.Log.Level, s.Log.JSON)
	if err != nil {
		return nil, err
	}
	return &environment{settings: s, logger: logger}, nil
}

func (e *environment) openHistory() (storage.HistoryStore, error) {
	h := e.settings.History
	store, err := storage.Open(h.Driver, h.Path, h.Limit)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", h.Path, err)
	}
	e.logger.Debug("history opened", zap.String("driver", h.Driver), zap.String("path", h.Path))
	return store, nil
}

func (e *environment) close() {
	_ = e.logger.Sync()
}
