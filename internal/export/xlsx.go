// Package export writes provider rosters to XLSX workbooks for
// downstream teams that live in spreadsheets.
package export

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/truthlens/provider-directory/internal/model"
)

var rosterHeader = []string{
	"ID", "Full Name", "Speciality", "Phone", "Address", "License",
	"Status", "Confidence", "Risk Score", "Risk Level", "Updated At",
}

// WriteRoster writes the given providers to an XLSX workbook at path,
// one row per provider, in the order given.
func WriteRoster(path string, providers []model.Provider) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Providers")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range rosterHeader {
		header.AddCell().SetString(h)
	}

	for _, p := range providers {
		row := sheet.AddRow()
		row.AddCell().SetString(p.ID)
		row.AddCell().SetString(p.FullName)
		row.AddCell().SetString(p.Speciality)
		row.AddCell().SetString(p.Phone)
		row.AddCell().SetString(p.Address)
		row.AddCell().SetString(p.LicenseID)
		row.AddCell().SetString(string(p.Status))
		row.AddCell().SetFloat(p.ConfidenceScore)
		row.AddCell().SetFloat(p.RiskScore)
		row.AddCell().SetString(string(p.RiskLevel))
		row.AddCell().SetString(p.UpdatedAt.UTC().Format(time.RFC3339))
	}

	return eris.Wrapf(f.Save(path), "export: save %s", path)
}
