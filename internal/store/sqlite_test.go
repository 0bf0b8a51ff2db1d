package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthlens/provider-directory/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func extractedJane() model.ExtractedProvider {
	return model.ExtractedProvider{
		FullName:             "Dr. Jane Doe",
		Speciality:           "Cardiology",
		Phone:                "555-0101",
		Address:              "1 Main St, Springfield",
		LicenseID:            "MD-1234",
		ExtractionConfidence: 0.88,
	}
}

func TestSQLite_UpsertFromExtraction_CreatesThenMatches(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	p1, created, err := s.UpsertFromExtraction(ctx, extractedJane())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.StatusActive, p1.Status)
	assert.Equal(t, model.RiskMedium, p1.RiskLevel)
	assert.InDelta(t, 0.88, p1.ConfidenceScore, 0.001)

	// Same provider again: matched, not duplicated.
	p2, created, err := s.UpsertFromExtraction(ctx, extractedJane())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, p1.ID, p2.ID)

	// Name formatting differs but normalizes to the same identity.
	ex := extractedJane()
	ex.LicenseID = ""
	ex.FullName = "  dr. jane   doe "
	p3, created, err := s.UpsertFromExtraction(ctx, ex)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, p1.ID, p3.ID)

	all, err := s.ListProviders(ctx, ProviderFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLite_UpsertFromExtraction_DifferentLicenseStaysSeparate(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	p1, created, err := s.UpsertFromExtraction(ctx, extractedJane())
	require.NoError(t, err)
	assert.True(t, created)

	// Same name under a different license is a different provider.
	ex := extractedJane()
	ex.LicenseID = "MD-9999"
	p2, created, err := s.UpsertFromExtraction(ctx, ex)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, p1.ID, p2.ID)

	// Each record keeps matching its own row on re-ingest.
	p3, created, err := s.UpsertFromExtraction(ctx, ex)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, p2.ID, p3.ID)

	all, err := s.ListProviders(ctx, ProviderFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLite_AddSources_Idempotent(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	p, _, err := s.UpsertFromExtraction(ctx, extractedJane())
	require.NoError(t, err)

	src := model.ProviderSource{
		ProviderID:       p.ID,
		Field:            model.FieldPhone,
		Value:            "555-0101",
		SourceType:       model.SourcePDF,
		SourceDetail:     "roster-2026.pdf",
		ReliabilityScore: 0.8,
	}

	n, err := s.AddSources(ctx, []model.ProviderSource{src})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Re-ingesting the same observation inserts nothing.
	n, err = s.AddSources(ctx, []model.ProviderSource{src})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	// A different value for the same field is a new observation.
	src.Value = "555-0102"
	n, err = s.AddSources(ctx, []model.ProviderSource{src})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	sources, err := s.GetFieldSources(ctx, p.ID, model.FieldPhone)
	require.NoError(t, err)
	assert.Len(t, sources, 2)
}

func TestSQLite_ApplyFieldChange_FullCycle(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	p, _, err := s.UpsertFromExtraction(ctx, extractedJane())
	require.NoError(t, err)

	applied, err := s.ApplyFieldChange(ctx, p.ID, FieldChange{
		Field: model.FieldPhone, NewValue: "555-0200", Confidence: 0.93,
		ChangeType: model.ChangeAuto, Reason: "resolved against state board",
	})
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := s.GetProvider(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "555-0200", got.Phone)
	assert.InDelta(t, 0.93, got.ConfidenceScore, 0.001)

	// Same value again: no write, no extra audit row.
	applied, err = s.ApplyFieldChange(ctx, p.ID, FieldChange{
		Field: model.FieldPhone, NewValue: "555-0200", Confidence: 0.95,
		ChangeType: model.ChangeAuto,
	})
	require.NoError(t, err)
	assert.False(t, applied)

	detail, err := s.GetProviderDetail(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, detail.Changes, 1)
	assert.Equal(t, "555-0101", detail.Changes[0].OldValue)
	assert.Equal(t, "555-0200", detail.Changes[0].NewValue)
	assert.Equal(t, model.ChangeAuto, detail.Changes[0].ChangeType)
	assert.Equal(t, "resolved against state board", detail.Changes[0].Reason)

	stats, err := s.GetChangeStats(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)
	require.NotNil(t, stats.LastChangeAt)
}

func TestSQLite_ApplyFieldChange_NotFound(t *testing.T) {
	s := newTestSQLite(t)

	_, err := s.ApplyFieldChange(context.Background(), "missing", FieldChange{
		Field: model.FieldPhone, NewValue: "555-0200",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_ChangeLogOrderedNewestFirst(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	p, _, err := s.UpsertFromExtraction(ctx, extractedJane())
	require.NoError(t, err)

	for i, v := range []string{"555-0201", "555-0202", "555-0203"} {
		applied, err := s.ApplyFieldChange(ctx, p.ID, FieldChange{
			Field: model.FieldPhone, NewValue: v, Confidence: 0.9,
			ChangeType: model.ChangeAuto,
		})
		require.NoError(t, err)
		assert.True(t, applied, "change %d", i)
		time.Sleep(5 * time.Millisecond)
	}

	detail, err := s.GetProviderDetail(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, detail.Changes, 3)
	assert.Equal(t, "555-0203", detail.Changes[0].NewValue)
	assert.Equal(t, "555-0201", detail.Changes[2].NewValue)
}

func TestSQLite_ListProviders_Filters(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_, _, err := s.UpsertFromExtraction(ctx, extractedJane())
	require.NoError(t, err)

	ex := model.ExtractedProvider{
		FullName: "Dr. John Roe", Speciality: "Dermatology",
		Phone: "555-0102", Address: "2 Oak Ave", ExtractionConfidence: 0.6,
	}
	john, _, err := s.UpsertFromExtraction(ctx, ex)
	require.NoError(t, err)
	require.NoError(t, s.UpdateProviderRisk(ctx, john.ID, model.RiskHigh, 0.8))

	byName, err := s.ListProviders(ctx, ProviderFilter{Search: "jane"})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "Dr. Jane Doe", byName[0].FullName)

	byPrefix, err := s.ListProviders(ctx, ProviderFilter{Search: "Dr."})
	require.NoError(t, err)
	assert.Len(t, byPrefix, 2)

	bySpec, err := s.ListProviders(ctx, ProviderFilter{Speciality: "Cardiology"})
	require.NoError(t, err)
	require.Len(t, bySpec, 1)
	assert.Equal(t, "Dr. Jane Doe", bySpec[0].FullName)

	// Speciality matches exactly, not as a substring.
	partial, err := s.ListProviders(ctx, ProviderFilter{Speciality: "cardio"})
	require.NoError(t, err)
	assert.Empty(t, partial)

	byRisk, err := s.ListProviders(ctx, ProviderFilter{RiskLevel: model.RiskHigh})
	require.NoError(t, err)
	require.Len(t, byRisk, 1)
	assert.Equal(t, john.ID, byRisk[0].ID)

	limited, err := s.ListProviders(ctx, ProviderFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLite_UpdateProviderRisk(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	p, _, err := s.UpsertFromExtraction(ctx, extractedJane())
	require.NoError(t, err)

	require.NoError(t, s.UpdateProviderRisk(ctx, p.ID, model.RiskHigh, 0.82))

	got, err := s.GetProvider(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RiskHigh, got.RiskLevel)
	assert.InDelta(t, 0.82, got.RiskScore, 0.001)

	err = s.UpdateProviderRisk(ctx, "missing", model.RiskLow, 0.1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_DashboardMetrics(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	// Empty database: zeros across the board, not NULL scan failures.
	m, err := s.DashboardMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, m.TotalProviders)
	assert.Zero(t, m.AvgAccuracy)
	assert.Empty(t, m.RecentValidationRuns)

	jane, _, err := s.UpsertFromExtraction(ctx, extractedJane())
	require.NoError(t, err)
	require.NoError(t, s.UpdateProviderRisk(ctx, jane.ID, model.RiskHigh, 0.8))

	lowConf := model.ExtractedProvider{FullName: "Dr. John Roe", ExtractionConfidence: 0.4}
	_, _, err = s.UpsertFromExtraction(ctx, lowConf)
	require.NoError(t, err)

	// The two oldest runs carry a much worse accuracy; the mean must
	// cover only the five-run window shown on the dashboard.
	for i := 0; i < 7; i++ {
		after := 0.92
		if i < 2 {
			after = 0.4
		}
		run := model.ValidationRun{
			StartedAt:           time.Now().UTC().Add(time.Duration(i) * time.Minute),
			NumProvidersChecked: 10,
			AccuracyBefore:      0.85,
			AccuracyAfter:       after,
			Notes:               "Automated risk refresh",
		}
		require.NoError(t, s.CreateValidationRun(ctx, &run))
	}

	m, err = s.DashboardMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, m.TotalProviders)
	assert.Equal(t, 1, m.NumHighRisk)
	assert.Equal(t, 1, m.NumLowConfidence)
	assert.Len(t, m.RecentValidationRuns, 5, "capped at five most recent")
	assert.InDelta(t, 0.92, m.AvgAccuracy, 0.001)
}
