package main

import (
	"bufio"
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	batchInput  string
	batchOutput string
	batchSave   bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Triage a file of resident messages, one per line",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if batchSave {
			if err := cfg.Validate("persist"); err != nil {
				return err
			}
		}

		env, err := initTriage(ctx, batchSave)
		if err != nil {
			return err
		}
		defer env.Close()

		messages, err := readMessages(batchInput)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			zap.L().Info("no messages to process", zap.String("input", batchInput))
			return nil
		}

		zap.L().Info("processing batch",
			zap.Int("messages", len(messages)),
			zap.Int("concurrency", cfg.Batch.MaxConcurrentRequests),
		)

		results := env.Pipeline.RunBatch(ctx, messages)

		outputs := make([]*triageOutput, len(results))
		failedSaves := 0
		for i, result := range results {
			outputs[i] = assembleAndSave(ctx, env, result)
			if outputs[i].Saved != nil && !*outputs[i].Saved {
				failedSaves++
			}
		}

		if err := writeOutputs(batchOutput, outputs); err != nil {
			return err
		}

		zap.L().Info("batch complete",
			zap.Int("processed", len(outputs)),
			zap.Int("failed_saves", failedSaves),
		)
		if failedSaves > 0 {
			return eris.Errorf("%d of %d records were not saved", failedSaves, len(outputs))
		}
		return nil
	},
}

// readMessages loads one message per line, skipping blanks.
func readMessages(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open input %s", path)
	}
	defer f.Close()

	var messages []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			messages = append(messages, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "read input %s", path)
	}
	return messages, nil
}

// writeOutputs encodes the outputs as a JSON array to the given file,
// or stdout when path is empty.
func writeOutputs(path string, outputs []*triageOutput) error {
	w := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrapf(err, "create output %s", path)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(outputs); err != nil {
		return eris.Wrap(err, "encode outputs")
	}
	return nil
}

func init() {
	batchCmd.Flags().StringVar(&batchInput, "input", "", "input file, one message per line (required)")
	batchCmd.Flags().StringVar(&batchOutput, "output", "", "write JSON results to file instead of stdout")
	batchCmd.Flags().BoolVar(&batchSave, "save", false, "persist the assembled records")
	_ = batchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(batchCmd)
}
