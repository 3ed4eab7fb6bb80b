package models

// DuplicateCandidate is one match returned by duplicate search
type DuplicateCandidate struct {
	CandidateID string             `json:"candidate_id"`
	Score       float64            `json:"score"`
	FieldScores map[string]float64 `json:"field_scores,omitempty"`
}
