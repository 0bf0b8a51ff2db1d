package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <roster.pdf>",
	Short: "Extract providers from a PDF roster and record them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pdf, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read pdf: %w", err)
		}

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Service.IngestDocument(cmd.Context(), filepath.Base(args[0]), pdf)
		if err != nil {
			return err
		}

		zap.L().Info("ingest complete",
			zap.String("file", args[0]),
			zap.Int("providers_found", result.ProvidersFound),
			zap.Int("providers_created", result.ProvidersCreated),
			zap.Int64("sources_recorded", result.SourcesRecorded),
		)
		fmt.Printf("%d providers found, %d created, %d source observations recorded\n",
			result.ProvidersFound, result.ProvidersCreated, result.SourcesRecorded)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
