package domain

import (
	"time"
)

// RiskLevel is the discrete classification of a risk score.
type RiskLevel string

const (
	RiskSafe       RiskLevel = "SAFE"
	RiskSuspicious RiskLevel = "SUSPICIOUS"
	RiskDangerous  RiskLevel = "DANGEROUS"
)

// Verdict is the final, explainable result of analysing one input.
// It carries no timestamps or identifiers so identical inputs produce identical verdicts.
type Verdict struct {
	RiskScore      float64   `json:"risk_score"`
	RiskLevel      RiskLevel `json:"risk_level"`
	Confidence     float64   `json:"confidence"`
	Indicators     []string  `json:"indicators"`
	Recommendation string    `json:"recommendation"`
	Channel        Channel   `json:"channel"`
}

// Analysis is a persisted verdict together with the evidence behind it.
type Analysis struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Channel   Channel           `json:"channel"`
	Subject   string            `json:"subject"` // URL, sender or short preview of the content
	Verdict   Verdict           `json:"verdict"`
	Signals   []EvaluatedSignal `json:"signals,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// AnalysisFilter narrows a listing of analyses.
type AnalysisFilter struct {
	Channel   Channel
	RiskLevel RiskLevel
	Limit     int
}
