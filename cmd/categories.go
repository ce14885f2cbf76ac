package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civic-stack/triage311/internal/importer"
)

var (
	categoriesCSVPath string
	categoriesApply   bool
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Extract departments and categories from a 311 CSV export",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		f, err := os.Open(categoriesCSVPath)
		if err != nil {
			return eris.Wrapf(err, "open csv %s", categoriesCSVPath)
		}
		defer f.Close()

		cats, err := importer.ExtractCategories(ctx, f)
		if err != nil {
			return eris.Wrap(err, "extract categories")
		}

		if !categoriesApply {
			for _, c := range cats {
				fmt.Printf("%-40s %s\n", c.Department, c.Name)
			}
			fmt.Printf("\n%d categories\n", len(cats))
			return nil
		}

		if err := cfg.Validate("import"); err != nil {
			return err
		}
		st, err := openMigratedStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := importer.ApplyCategories(ctx, st, cats); err != nil {
			return eris.Wrap(err, "apply categories")
		}

		zap.L().Info("categories applied",
			zap.String("csv", categoriesCSVPath),
			zap.Int("categories", len(cats)),
		)
		return nil
	},
}

func init() {
	categoriesCmd.Flags().StringVar(&categoriesCSVPath, "csv", "", "path to 311 export CSV (required)")
	categoriesCmd.Flags().BoolVar(&categoriesApply, "apply", false, "upsert the reference tables instead of printing")
	_ = categoriesCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(categoriesCmd)
}
