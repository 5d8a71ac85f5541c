package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/schemarag/internal/cli"
	"github.com/hyperjump/schemarag/internal/config"
	"github.com/hyperjump/schemarag/internal/execute"
	"github.com/hyperjump/schemarag/internal/extract"
	"github.com/hyperjump/schemarag/internal/index"
	"github.com/hyperjump/schemarag/internal/models"
	"github.com/hyperjump/schemarag/internal/pipeline"
	"github.com/hyperjump/schemarag/internal/schema"
	"github.com/hyperjump/schemarag/internal/server"
	"github.com/hyperjump/schemarag/internal/storage"
)

func newExtractCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Read tables, columns and keys from the configured database into the schema file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = a.cfg.Schema.Path
			}
			dbCfg := execute.FromConfig(a.cfg.Database)
			m, err := extract.FromConfig(cmd.Context(), dbCfg)
			if err != nil {
				return err
			}
			if err := schema.Save(out, m); err != nil {
				return err
			}
			a.logger.Info("Schema extracted", zap.Int("tables", m.Len()), zap.String("path", out))
			fmt.Fprintf(cmd.OutOrStdout(), "Extracted %d tables to %s\n", m.Len(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "schema file to write (default: schema.path from config)")
	return cmd
}

func newBuildCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Summarize every table of the schema file and build the semantic index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := pipeline.Rebuild(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d tables with %s (%s, %d dims) into %s in %s\n",
				report.Tables, report.Model, report.Metric, report.Dimensions, report.Path,
				report.Duration.Round(time.Millisecond))
			if report.Pruned > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d stale cached embeddings\n", report.Pruned)
			}
			return nil
		},
	}
}

func newRetrieveCmd(a *app) *cobra.Command {
	var (
		topK   int
		output string
	)
	cmd := &cobra.Command{
		Use:   "retrieve <question>",
		Short: "Show the tables a question would select, without generating SQL",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			session, err := pipeline.FromConfig(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer session.Close()
			question := questionFromArgs(args)
			results, err := session.Retrieve(cmd.Context(), question, topK)
			if err != nil {
				return err
			}
			return cli.WriteRetrieval(cmd.OutOrStdout(), question, results, format)
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of tables to retrieve (default: retrieval.top_k)")
	cmd.Flags().StringVar(&output, "output", "text", "output format: text, json")
	return cmd
}

func newAskCmd(a *app) *cobra.Command {
	var (
		topK   int
		exec   bool
		xlsx   string
		output string
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Generate SQL for a question and optionally run it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			if xlsx != "" {
				exec = true
			}
			session, err := pipeline.FromConfig(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer session.Close()

			answer, err := session.Ask(cmd.Context(), models.AskRequest{
				Question: questionFromArgs(args),
				TopK:     topK,
				Execute:  exec,
			})
			if err != nil {
				if answer != nil && answer.SQL != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "Generated SQL:\n%s\n", answer.SQL)
				}
				return err
			}
			if err := cli.WriteAnswer(cmd.OutOrStdout(), answer, format); err != nil {
				return err
			}
			if xlsx != "" {
				if err := cli.ExportXLSX(xlsx, answer.Result); err != nil {
					return fmt.Errorf("export %s: %w", xlsx, err)
				}
				if format == cli.OutputText {
					fmt.Fprintf(cmd.OutOrStdout(), "Exported %d rows to %s\n", answer.Result.RowCount(), xlsx)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of tables to retrieve (default: retrieval.top_k)")
	cmd.Flags().BoolVarP(&exec, "execute", "e", false, "run the generated SQL against the configured database")
	cmd.Flags().StringVar(&xlsx, "xlsx", "", "export result rows to this .xlsx file (implies --execute)")
	cmd.Flags().StringVar(&output, "output", "text", "output format: text, json")
	return cmd
}

func newServerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			session, err := pipeline.FromConfig(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer session.Close()

			srv := server.NewServer(session, a.cfg, a.logger)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			a.logger.Info("Shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(shutdownCtx)
		},
	}
}

// statusReport works without a built index so it can tell the user what is missing.
type statusReport struct {
	ConfigSchemaPath string `json:"schema_path"`
	SchemaTables     int    `json:"schema_tables"`
	SchemaError      string `json:"schema_error,omitempty"`
	IndexPath        string `json:"index_path"`
	IndexBuilt       bool   `json:"index_built"`
	DatabasePath     string `json:"database_path"`
	Embeddings       int64  `json:"cached_embeddings"`
	Questions        int64  `json:"questions"`
	DiskUsageBytes   int64  `json:"disk_usage_bytes"`
}

func newStatusCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show schema, index and history state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			rep := statusReport{
				ConfigSchemaPath: a.cfg.Schema.Path,
				IndexPath:        a.cfg.Storage.IndexPath,
				IndexBuilt:       index.Exists(a.cfg.Storage.IndexPath),
				DatabasePath:     a.cfg.Storage.DatabasePath,
			}
			if m, err := schema.Load(a.cfg.Schema.Path); err != nil {
				rep.SchemaError = err.Error()
			} else {
				rep.SchemaTables = m.Len()
			}
			store, err := storage.Open(a.cfg.Storage.DatabasePath)
			if err != nil {
				return err
			}
			defer store.Close()
			if rep.Embeddings, err = store.CountEmbeddings(ctx); err != nil {
				return err
			}
			if rep.Questions, err = store.CountQuestions(ctx); err != nil {
				return err
			}
			if rep.DiskUsageBytes, err = storage.DiskUsageBytes(append(storage.DatabaseFiles(a.cfg.Storage.DatabasePath), a.cfg.Storage.IndexPath)...); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if format == cli.OutputJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			fmt.Fprintf(w, "Schema:     %s", rep.ConfigSchemaPath)
			if rep.SchemaError != "" {
				fmt.Fprintf(w, " (%s)\n", rep.SchemaError)
			} else {
				fmt.Fprintf(w, " (%d tables)\n", rep.SchemaTables)
			}
			built := "not built; run 'schemarag build'"
			if rep.IndexBuilt {
				built = "built"
			}
			fmt.Fprintf(w, "Index:      %s (%s)\n", rep.IndexPath, built)
			fmt.Fprintf(w, "Store:      %s (%d cached embeddings, %d questions)\n", rep.DatabasePath, rep.Embeddings, rep.Questions)
			fmt.Fprintf(w, "Disk usage: %d bytes\n", rep.DiskUsageBytes)
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "text", "output format: text, json")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit  int
		offset int
		output string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previously asked questions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			if limit <= 0 || offset < 0 {
				return errors.New("limit must be positive and offset must not be negative")
			}
			store, err := storage.Open(a.cfg.Storage.DatabasePath)
			if err != nil {
				return err
			}
			defer store.Close()
			records, err := store.ListQuestions(cmd.Context(), offset, limit)
			if err != nil {
				return err
			}
			return cli.WriteHistory(cmd.OutOrStdout(), records, format)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of questions to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of newest questions to skip")
	cmd.Flags().StringVar(&output, "output", "text", "output format: text, json")
	return cmd
}

func newInitCmd(a *app) *cobra.Command {
	var (
		out   string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to a YAML file",
		Long: `init writes the current configuration (defaults, config file and SCHEMARAG_*
environment overrides) to a YAML file. API keys and the database password are omitted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				if _, err := os.Stat(out); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", out)
				}
			}
			if err := config.Save(out, a.cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote config to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "config.yaml", "file to write")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "schemarag version %s\n", version)
		},
	}
}
