package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-score provider risk across the directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Service.RefreshAll(cmd.Context())
		if err != nil {
			return err
		}

		zap.L().Info("refresh complete",
			zap.String("run_id", run.ID),
			zap.Int("providers_checked", run.NumProvidersChecked),
			zap.Int("updates_applied", run.NumUpdatesApplied),
		)
		fmt.Printf("run %s: %d providers checked, %d risk updates applied\n",
			run.ID, run.NumProvidersChecked, run.NumUpdatesApplied)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
