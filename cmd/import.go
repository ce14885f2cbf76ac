package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civic-stack/triage311/internal/importer"
)

var (
	importCSVPath string
	importLimit   int
	importSample  float64
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a historical 311 CSV export into the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("import"); err != nil {
			return err
		}
		if importSample < 0 || importSample > 1 {
			return eris.New("--sample must be between 0 and 1")
		}

		st, err := openMigratedStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		f, err := os.Open(importCSVPath)
		if err != nil {
			return eris.Wrapf(err, "open csv %s", importCSVPath)
		}
		defer f.Close()

		stats, err := importer.New(st, cfg.Import.BatchSize).Run(ctx, f, importer.Options{
			Limit:  importLimit,
			Sample: importSample,
		})
		if err != nil {
			return eris.Wrap(err, "import csv")
		}

		zap.L().Info("import complete",
			zap.String("csv", importCSVPath),
			zap.Int("processed", stats.Processed),
			zap.Int64("imported", stats.Imported),
			zap.Int("skipped", stats.Skipped),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importCSVPath, "csv", "", "path to 311 export CSV (required)")
	importCmd.Flags().IntVar(&importLimit, "limit", 0, "stop after N imported rows (0 = all)")
	importCmd.Flags().Float64Var(&importSample, "sample", 0, "import a random fraction of rows (0-1)")
	_ = importCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(importCmd)
}
