package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"portfolio-rag-api/internal/application/evaluation"
	"portfolio-rag-api/internal/wire"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the relational schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			client, cleanup, err := wire.ProvideDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", client.Driver())
			return nil
		},
	}
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index every .pdf/.md/.txt file under a directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withCore(cmd.Context(), func(core *wire.Core) error {
				root := dir
				if root == "" {
					root = core.Config.Paths.DocsDir
				}
				summary, err := core.Ingestion.IngestDirectory(cmd.Context(), root)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "documents directory (default paths.docs_dir)")
	return cmd
}

func newEvalCmd(opts *rootOptions) *cobra.Command {
	var benchmark string
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run the benchmark and write the eval report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withCore(cmd.Context(), func(core *wire.Core) error {
				path := benchmark
				if path == "" {
					path = core.Config.Paths.BenchmarkPath
				}
				m, err := core.Harness.RunFile(cmd.Context(), path)
				if err != nil {
					return err
				}
				if _, err := evaluation.WriteReport(core.Config.Paths.ReportsDir, m); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), m)
			})
		},
	}
	cmd.Flags().StringVar(&benchmark, "benchmark", "", "benchmark JSONL file (default paths.benchmark_path)")
	return cmd
}

func newResetCmd(opts *rootOptions) *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the vector index and the ingested source registry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirm {
				return fmt.Errorf("reset requires --confirm")
			}
			return opts.withCore(cmd.Context(), func(core *wire.Core) error {
				res, err := core.Ingestion.Reset(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reset complete: vector_count=%d sources_cleared=%d reset_count=%d\n",
					res.VectorCount, res.SourcesCleared, res.State.ResetCount)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "confirm the reset")
	return cmd
}

func newMetricsReportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics-report",
		Short: "Write the 24h metrics summary to the reports directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withCore(cmd.Context(), func(core *wire.Core) error {
				s, err := core.Telemetry.Summary(cmd.Context())
				if err != nil {
					return err
				}
				if _, err := writeJSONFile(core.Config.Paths.ReportsDir, "metrics-summary.json", s); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), s)
			})
		},
	}
}
