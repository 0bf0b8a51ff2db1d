// Package store persists providers, their observed source values, the
// field change audit trail, and validation run summaries.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/truthlens/provider-directory/internal/model"
)

// ErrNotFound is returned when a lookup targets a row that does not
// exist. Handlers map it to 404.
var ErrNotFound = eris.New("store: not found")

// ProviderFilter specifies criteria for listing providers. Search is a
// case-insensitive substring match on the display name; the remaining
// fields match exactly.
type ProviderFilter struct {
	Search     string          `json:"search,omitempty"`
	Speciality string          `json:"speciality,omitempty"`
	RiskLevel  model.RiskLevel `json:"risk_level,omitempty"`
	Status     model.Status    `json:"status,omitempty"`
	Limit      int             `json:"limit,omitempty"`
	Offset     int             `json:"offset,omitempty"`
}

// FieldChange is one resolved mutation to apply to a provider, written
// together with its audit log entry.
type FieldChange struct {
	Field      string
	NewValue   string
	Confidence float64
	ChangeType model.ChangeType
	Reason     string
}

// ChangeStats summarizes a provider's audit history for risk scoring.
type ChangeStats struct {
	Count        int
	LastChangeAt *time.Time
}

// Store defines the persistence interface for the directory.
type Store interface {
	// Providers
	UpsertFromExtraction(ctx context.Context, ex model.ExtractedProvider) (*model.Provider, bool, error)
	ListProviders(ctx context.Context, filter ProviderFilter) ([]model.Provider, error)
	GetProvider(ctx context.Context, id string) (*model.Provider, error)
	GetProviderDetail(ctx context.Context, id string) (*model.ProviderDetail, error)

	// Source observations (append-only)
	AddSources(ctx context.Context, sources []model.ProviderSource) (int64, error)
	GetFieldSources(ctx context.Context, providerID, field string) ([]model.ProviderSource, error)

	// Mutations and audit
	ApplyFieldChange(ctx context.Context, providerID string, change FieldChange) (bool, error)
	UpdateProviderRisk(ctx context.Context, providerID string, level model.RiskLevel, score float64) error
	GetChangeStats(ctx context.Context, providerID string) (*ChangeStats, error)

	// Validation runs and dashboard
	CreateValidationRun(ctx context.Context, run *model.ValidationRun) error
	DashboardMetrics(ctx context.Context) (*model.DashboardMetrics, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
