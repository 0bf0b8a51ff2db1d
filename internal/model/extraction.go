package model

import "time"

// ExtractedProvider is one candidate record pulled out of directory text
// by the extraction model.
type ExtractedProvider struct {
	FullName             string  `json:"full_name"`
	Speciality           string  `json:"speciality"`
	Phone                string  `json:"phone"`
	Address              string  `json:"address"`
	LicenseID            string  `json:"license_id,omitempty"`
	SourcePage           *int    `json:"source_page,omitempty"`
	ExtractionConfidence float64 `json:"extraction_confidence"`
}

// Candidate is one value competing for a field during conflict resolution.
type Candidate struct {
	Value            string     `json:"value"`
	SourceType       SourceType `json:"source_type"`
	ReliabilityScore float64    `json:"reliability_score"`
	SeenAt           time.Time  `json:"seen_at"`
}

// Resolution is the model's verdict for one field: the chosen value, how
// confident it is, and a short justification.
type Resolution struct {
	FinalValue string  `json:"final_value"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// FieldUpdate records one applied resolution for the validate response.
type FieldUpdate struct {
	Field      string  `json:"field"`
	FinalValue string  `json:"final_value"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// RiskFeatures are the behavioral inputs to risk scoring.
type RiskFeatures struct {
	NumberOfPastChanges int    `json:"number_of_past_changes"`
	DaysSinceLastChange int    `json:"days_since_last_change"`
	Speciality          string `json:"speciality"`
	Region              string `json:"region"`
	Status              string `json:"status"`
}

// RiskAssessment is the model's churn-risk estimate for one provider.
type RiskAssessment struct {
	RiskLevel RiskLevel `json:"risk_level"`
	RiskScore float64   `json:"risk_score"`
}
