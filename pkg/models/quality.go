package models

import "time"

// Quality dimensions
const (
	DimensionCompleteness = "completeness"
	DimensionValidity     = "validity"
	DimensionConsistency  = "consistency"
)

// QualityBreakdown holds per-dimension scores, each 0-100
type QualityBreakdown struct {
	Completeness int `json:"completeness"`
	Validity     int `json:"validity"`
	Consistency  int `json:"consistency"`
}

// QualityIssue describes one failed quality check
type QualityIssue struct {
	Field     string `json:"field"`
	Dimension string `json:"dimension"`
	Message   string `json:"message"`
}

// QualityScore is a derived, recomputable quality assessment of a record
type QualityScore struct {
	RecordID   string           `json:"record_id"`
	Score      int              `json:"score"`
	Breakdown  QualityBreakdown `json:"breakdown"`
	Issues     []QualityIssue   `json:"issues,omitempty"`
	ComputedAt time.Time        `json:"computed_at"`
}

