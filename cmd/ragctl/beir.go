package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"portfolio-rag-api/internal/application/evaluation"
	"portfolio-rag-api/internal/infrastructure/dataset"
)

type beirOptions struct {
	dataset    string
	split      string
	maxDocs    int
	maxQueries int
	datasetDir string
	baseURL    string
}

func newImportBEIRCmd(opts *rootOptions) *cobra.Command {
	b := &beirOptions{}
	cmd := &cobra.Command{
		Use:   "import-beir",
		Short: "Import a BEIR dataset into the docs dir and the benchmark file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			dir := b.datasetDir
			if dir == "" {
				dataRoot := filepath.Dir(filepath.Clean(cfg.Paths.DocsDir))
				zipPath, err := dataset.NewDownloader(b.baseURL).
					Download(cmd.Context(), b.dataset, filepath.Join(dataRoot, "beir_raw"))
				if err != nil {
					return err
				}
				if dir, err = dataset.Extract(zipPath, filepath.Join(dataRoot, "beir_extracted")); err != nil {
					return err
				}
			}

			summary, err := evaluation.BEIRImport{
				Dataset:       b.dataset,
				Split:         b.split,
				DatasetDir:    dir,
				DocsDir:       cfg.Paths.DocsDir,
				BenchmarkPath: cfg.Paths.BenchmarkPath,
				MaxDocs:       b.maxDocs,
				MaxQueries:    b.maxQueries,
			}.Run()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summary)
		},
	}

	f := cmd.Flags()
	f.StringVar(&b.dataset, "dataset", "scifact", "BEIR dataset name (scifact, fiqa, nfcorpus)")
	f.StringVar(&b.split, "split", "test", "qrels split: test/dev/train")
	f.IntVar(&b.maxDocs, "max-docs", 2000, "max corpus docs to write (0 = all)")
	f.IntVar(&b.maxQueries, "max-queries", 200, "max eval queries to generate (0 = all)")
	f.StringVar(&b.datasetDir, "dataset-dir", "", "already extracted dataset dir; skips the download")
	f.StringVar(&b.baseURL, "base-url", dataset.BEIRBaseURL, "BEIR download base URL")
	return cmd
}
