package model

import "time"

// Status represents the operational state of a provider record.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusUnknown  Status = "unknown"
)

// RiskLevel is the qualitative churn-risk band for a provider.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// SourceType identifies where an observed field value came from.
type SourceType string

const (
	SourcePDF        SourceType = "pdf"
	SourceWebsite    SourceType = "website"
	SourceAPI        SourceType = "api"
	SourceUserReport SourceType = "user_report"
	// SourceCurrentDB tags the currently stored value when it is fed back
	// into conflict resolution as a candidate.
	SourceCurrentDB SourceType = "current_db"
)

// ChangeType distinguishes automated resolution writes from manual edits.
type ChangeType string

const (
	ChangeAuto   ChangeType = "auto"
	ChangeManual ChangeType = "manual"
)

// Fields that conflict resolution may write. UpdateProviderField rejects
// anything not in this set.
const (
	FieldPhone      = "phone"
	FieldAddress    = "address"
	FieldSpeciality = "speciality"
	FieldLicenseID  = "license_id"
)

// Provider is the aggregate root: identity plus current best-known
// attributes and derived trust/risk figures.
type Provider struct {
	ID              string    `json:"id"`
	FullName        string    `json:"full_name"`
	Speciality      string    `json:"speciality"`
	Phone           string    `json:"phone"`
	Address         string    `json:"address"`
	LicenseID       string    `json:"license_id,omitempty"`
	Status          Status    `json:"status"`
	ConfidenceScore float64   `json:"confidence_score"`
	RiskScore       float64   `json:"risk_score"`
	RiskLevel       RiskLevel `json:"risk_level"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Field returns the current value of a resolvable field by name, or ""
// for unknown fields.
func (p *Provider) Field(name string) string {
	switch name {
	case FieldPhone:
		return p.Phone
	case FieldAddress:
		return p.Address
	case FieldSpeciality:
		return p.Speciality
	case FieldLicenseID:
		return p.LicenseID
	default:
		return ""
	}
}

// ProviderSource is one observed value for one field of one provider,
// with provenance. Append-only; never mutated after insert.
type ProviderSource struct {
	ID               string     `json:"id"`
	ProviderID       string     `json:"provider_id"`
	Field            string     `json:"field"`
	Value            string     `json:"value"`
	SourceType       SourceType `json:"source_type"`
	SourceDetail     string     `json:"source_detail,omitempty"`
	ReliabilityScore float64    `json:"reliability_score"`
	SeenAt           time.Time  `json:"seen_at"`
}

// ChangeLogEntry is an audit record of one field mutation. Append-only.
type ChangeLogEntry struct {
	ID         string     `json:"id"`
	ProviderID string     `json:"provider_id"`
	Field      string     `json:"field"`
	OldValue   string     `json:"old_value"`
	NewValue   string     `json:"new_value"`
	ChangeType ChangeType `json:"change_type"`
	Reason     string     `json:"reason,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ValidationRun summarizes one batch risk-refresh pass. Append-only.
type ValidationRun struct {
	ID                  string     `json:"id"`
	StartedAt           time.Time  `json:"started_at"`
	FinishedAt          *time.Time `json:"finished_at,omitempty"`
	NumProvidersChecked int        `json:"num_providers_checked"`
	NumUpdatesApplied   int        `json:"num_updates_applied"`
	AccuracyBefore      float64    `json:"accuracy_before"`
	AccuracyAfter       float64    `json:"accuracy_after"`
	Notes               string     `json:"notes,omitempty"`
}

// ProviderDetail bundles a provider with its full observation and audit
// history, change log ordered newest-first.
type ProviderDetail struct {
	Provider Provider         `json:"provider"`
	Sources  []ProviderSource `json:"sources"`
	Changes  []ChangeLogEntry `json:"changes"`
}

// DashboardMetrics holds the aggregate figures shown on the dashboard.
type DashboardMetrics struct {
	TotalProviders       int             `json:"total_providers"`
	NumHighRisk          int             `json:"num_high_risk"`
	NumLowConfidence     int             `json:"num_low_confidence"`
	RecentValidationRuns []ValidationRun `json:"recent_validation_runs"`
	AvgAccuracy          float64         `json:"avg_accuracy"`
}
