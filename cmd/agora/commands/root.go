// Package commands provides the CLI commands for agora.
package commands

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/hupe1980/agora"
	"github.com/hupe1980/agora/config"
	"github.com/hupe1980/agora/logging"
)

// Version is set at build time.
var Version = "0.1.0"

// Global flags
var (
	configPath string
	envFile    string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "agora",
	Short: "agora - moderated multi-agent deliberation",
	Long: `agora runs structured debates between AI participants. A moderator
allocates turns by competitive bidding, steps in when the debate stalls or
one voice dominates, and synthesizes an outcome once the panel converges.

Run 'agora run <topic>' to watch a single debate, or 'agora serve' to host
the HTTP control API.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file with provider API keys")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug|info|warn|error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(participantsCmd)
	rootCmd.AddCommand(mcpServeCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the dotenv file, then the configuration.
func loadConfig() (*config.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg config.LoggingConfig) logging.Logger {
	level := logging.ParseLevel(cfg.Level)
	if cfg.Format == "text" {
		return logging.NewSlogLogger(level, "text", os.Stderr).WithComponent("agora")
	}
	return logging.NewZerologLogger(level, os.Stderr, cfg.Format == "console")
}

// setup loads configuration and wires an Agora from it.
func setup() (*agora.Agora, *config.Config, logging.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger := newLogger(cfg.Logging)
	a, err := agora.FromConfig(cfg, afero.NewOsFs(), logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return a, cfg, logger, nil
}
