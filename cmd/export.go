package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/truthlens/provider-directory/internal/export"
	"github.com/truthlens/provider-directory/internal/model"
	"github.com/truthlens/provider-directory/internal/store"
)

var (
	exportOut        string
	exportSpeciality string
	exportRiskLevel  string
	exportStatus     string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the provider roster to an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		providers, err := st.ListProviders(cmd.Context(), store.ProviderFilter{
			Speciality: exportSpeciality,
			RiskLevel:  model.RiskLevel(exportRiskLevel),
			Status:     model.Status(exportStatus),
		})
		if err != nil {
			return err
		}

		if err := export.WriteRoster(exportOut, providers); err != nil {
			return err
		}

		zap.L().Info("roster exported", zap.String("path", exportOut), zap.Int("providers", len(providers)))
		fmt.Printf("wrote %d providers to %s\n", len(providers), exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "providers.xlsx", "output file path")
	exportCmd.Flags().StringVar(&exportSpeciality, "speciality", "", "filter by speciality substring")
	exportCmd.Flags().StringVar(&exportRiskLevel, "risk-level", "", "filter by risk level (low|medium|high)")
	exportCmd.Flags().StringVar(&exportStatus, "status", "", "filter by status")
	rootCmd.AddCommand(exportCmd)
}
