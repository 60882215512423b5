package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-api/cmd/pebble-api/output"
	"github.com/marshallshelly/pebble-api/pkg/config"
	"github.com/marshallshelly/pebble-api/pkg/logging"
	"github.com/marshallshelly/pebble-api/pkg/schema"
)

var (
	// Global flags
	configPath string
	envFiles   []string
	verbose    bool
	jsonOutput bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pebble-api",
	Short: "Pebble API - configuration-driven REST APIs",
	Long: `Pebble API serves a CRUD REST API for every entity declared in a
JSON or YAML configuration file.

Features:
  - Create, read, update, delete and list endpoints per entity
  - PostgreSQL, MySQL/MariaDB, SQLite, MongoDB and in-memory backends
  - Named datasources per entity
  - Field validation rules and custom route hooks
  - Health, metrics and route listing under /_meta
  - Interactive TUI monitor and non-interactive CLI modes`,
	Version:      "0.3.0",
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		output.Error("%v", err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "pebble-api.json", "Configuration file (.json, .yaml or .yml)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Environment files to load before reading the configuration (default .env when present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}

// loadConfig reads the configuration, applies environment overrides and
// validates it.
func loadConfig() (*config.Config, error) {
	if err := config.LoadEnvFiles(envFiles...); err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dups := schema.NameCollisions(cfg.Entities); len(dups) > 0 && !jsonOutput {
		output.Warning("Entity names collide after lowercasing: %v", dups)
	}
	return cfg, nil
}

// newLogger builds the process logger from the server configuration.
func newLogger(cfg *config.Config, buf *logging.Buffer, quiet bool) (*logging.Logger, error) {
	level := cfg.ServerConfig.LoggingLevel
	if verbose {
		level = "debug"
	}
	opts := logging.Options{
		Level:      level,
		JSON:       jsonOutput,
		File:       cfg.ServerConfig.LogFile,
		AlsoStderr: !quiet,
		Buffer:     buf,
	}
	if quiet {
		opts.Output = io.Discard
	}
	log, err := logging.New(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}
	return log, nil
}
