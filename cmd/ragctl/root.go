package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"portfolio-rag-api/internal/config"
	"portfolio-rag-api/internal/wire"
	"portfolio-rag-api/pkg/logger"
)

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "ragctl",
		Short:         "Operate the portfolio RAG service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			_ = godotenv.Load()
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default $CONFIG_FILE or configs/config.yaml)")

	cmd.AddCommand(
		newMigrateCmd(opts),
		newIngestCmd(opts),
		newEvalCmd(opts),
		newEvalGateCmd(opts),
		newResetCmd(opts),
		newMetricsReportCmd(opts),
		newImportBEIRCmd(opts),
		newSmokeCmd(),
	)
	return cmd
}

func (o *rootOptions) load() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configFile != "" {
		cfg, err = config.LoadFile(o.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	return cfg, nil
}

// withCore 加载配置并初始化数据层后执行 fn
func (o *rootOptions) withCore(ctx context.Context, fn func(*wire.Core) error) error {
	cfg, err := o.load()
	if err != nil {
		return err
	}
	core, cleanup, err := wire.InitializeCore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(core)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSONFile(dir, name string, v any) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	return path, os.WriteFile(path, raw, 0o644)
}
