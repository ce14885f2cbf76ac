package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civic-stack/triage311/internal/model"
)

var (
	processMessage string
	processSave    bool
)

// triageOutput is the JSON payload printed for each processed message:
// the pipeline result, the assembled record, and the save status when
// persistence was requested.
type triageOutput struct {
	Result    *model.Result          `json:"result"`
	Record    *model.CanonicalRecord `json:"record"`
	Saved     *bool                  `json:"saved,omitempty"`
	SaveError string                 `json:"save_error,omitempty"`
}

// assembleAndSave assembles the canonical record and, when the env
// carries a store, saves it. A save failure is reported in the output
// rather than discarding the in-memory result.
func assembleAndSave(ctx context.Context, env *triageEnv, result *model.Result) *triageOutput {
	out := &triageOutput{
		Result: result,
		Record: env.Assembler.Assemble(ctx, result),
	}

	if env.Store != nil {
		saved := true
		if err := env.Store.SaveRecord(ctx, out.Record); err != nil {
			saved = false
			out.SaveError = err.Error()
			zap.L().Error("save record failed",
				zap.String("record_id", out.Record.ID),
				zap.Error(err),
			)
		}
		out.Saved = &saved
	}

	return out
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Triage a single resident message",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if processSave {
			if err := cfg.Validate("persist"); err != nil {
				return err
			}
		}

		env, err := initTriage(ctx, processSave)
		if err != nil {
			return err
		}
		defer env.Close()

		result := env.Pipeline.Run(ctx, processMessage)
		out := assembleAndSave(ctx, env, result)

		zap.L().Info("triage complete",
			zap.String("outcome", string(result.Outcome)),
			zap.String("recommendation", string(result.Classification.Recommendation)),
			zap.Int("input_tokens", result.Usage.InputTokens),
			zap.Int("output_tokens", result.Usage.OutputTokens),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return eris.Wrap(err, "encode result")
		}
		if out.Saved != nil && !*out.Saved {
			return eris.New("record was not saved")
		}
		return nil
	},
}

func init() {
	processCmd.Flags().StringVar(&processMessage, "message", "", "resident message to triage (required)")
	processCmd.Flags().BoolVar(&processSave, "save", false, "persist the assembled record")
	_ = processCmd.MarkFlagRequired("message")
	rootCmd.AddCommand(processCmd)
}
