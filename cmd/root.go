package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/truthlens/provider-directory/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "truthlens",
	Short: "Healthcare provider directory with model-driven validation",
	Long:  "Ingests provider rosters from PDFs, tracks every observed field value with provenance, and keeps the directory current through model-adjudicated conflict resolution and risk scoring.",
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
