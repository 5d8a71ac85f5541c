// Package main is the schemarag CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/schemarag/internal/config"
	"github.com/hyperjump/schemarag/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/schemarag/config.yaml"

// app carries what every command needs once flags are parsed.
type app struct {
	configPath string
	debug      bool
	cfg        *config.Config
	logger     *zap.Logger
}

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory wins if it exists, so running from a project directory uses that project's
// settings. With no file at all, defaults plus environment overrides are used.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				cfg, err := config.Load(fallback)
				if err != nil {
					return nil, "", err
				}
				return cfg, fallback, nil
			}
		}
		cfg, err := config.LoadOrDefault(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "schemarag",
		Short: "Answer questions over a relational database with schema-aware retrieval",
		Long: `schemarag summarizes every table of a database schema, indexes the summaries for
similarity search, and answers natural-language questions by sending only the most
relevant tables to an SQL generation model.

Typical flow:
  schemarag extract                          # read the live schema into the schema file
  schemarag build                            # summarize and index the tables
  schemarag retrieve "show me all patients"  # inspect which tables a question selects
  schemarag ask --execute "how many patients are there"`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			cfg, resolved, err := loadConfig(a.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			debug := cfg.Debug || a.debug
			logger, err := utils.NewLogger(debug)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			a.cfg = cfg
			a.logger = logger
			logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debug))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", defaultConfigPath, "config file path")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newExtractCmd(a),
		newBuildCmd(a),
		newRetrieveCmd(a),
		newAskCmd(a),
		newServerCmd(a),
		newStatusCmd(a),
		newHistoryCmd(a),
		newInitCmd(a),
		newVersionCmd(),
	)
	return root
}

// questionFromArgs joins the remaining arguments so quoting is optional.
func questionFromArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
