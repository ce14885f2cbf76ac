package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civic-stack/triage311/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "triage311",
	Short: "LLM-assisted triage for 311 service requests",
	Long:  "Classifies resident messages for emergencies and serviceability, extracts structured request details via tiered Claude models, and writes canonical records to the service request store.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
