package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civic-stack/triage311/internal/evaluate"
)

var (
	evalCSVPath string
	evalOutput  string
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Score the pipeline against a labeled CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initTriage(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		f, err := os.Open(evalCSVPath)
		if err != nil {
			return eris.Wrapf(err, "open csv %s", evalCSVPath)
		}
		defer f.Close()

		cases, err := evaluate.ReadCases(ctx, f)
		if err != nil {
			return eris.Wrap(err, "read cases")
		}
		if len(cases) == 0 {
			zap.L().Info("no labeled cases found", zap.String("csv", evalCSVPath))
			return nil
		}

		runner := evaluate.NewRunner(env.Pipeline, env.Assembler, cfg.Batch.MaxConcurrentRequests)
		report := runner.Run(ctx, cases)

		if evalOutput != "" {
			out, err := os.Create(evalOutput)
			if err != nil {
				return eris.Wrapf(err, "create output %s", evalOutput)
			}
			defer out.Close()
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return eris.Wrap(err, "encode report")
			}
		}

		fmt.Printf("Evaluated %d cases\n\n", report.Total)
		printMetric := func(name string, m evaluate.Metric) {
			if m.Compared == 0 {
				fmt.Printf("  %-16s not labeled\n", name)
				return
			}
			fmt.Printf("  %-16s %d/%d (%.2f%%)\n", name, m.Matched, m.Compared, m.Accuracy)
		}
		printMetric("recommendation", report.Recommendation)
		printMetric("category", report.Category)
		printMetric("department", report.Department)
		printMetric("priority", report.Priority)

		return nil
	},
}

func init() {
	evalCmd.Flags().StringVar(&evalCSVPath, "csv", "", "path to labeled evaluation CSV (required)")
	evalCmd.Flags().StringVar(&evalOutput, "output", "", "write the full JSON report to file")
	_ = evalCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(evalCmd)
}
