package matching

import (
	"math"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// Comparator selects how a field's normalized values are compared
type Comparator string

const (
	ComparatorExact       Comparator = "exact"
	ComparatorJaroWinkler Comparator = "jaro_winkler"
	ComparatorLevenshtein Comparator = "levenshtein"
)

// FieldWeight configures one comparable field
type FieldWeight struct {
	Field      string
	Comparator Comparator
	Weight     float64
	// Normalizer is a registered normalizer name applied before comparison
	Normalizer string
}

// DefaultFieldWeights is the fixed comparison table for party records
var DefaultFieldWeights = []FieldWeight{
	{Field: models.FieldName, Comparator: ComparatorJaroWinkler, Weight: 20, Normalizer: "ncompany"},
	{Field: models.FieldLegalName, Comparator: ComparatorJaroWinkler, Weight: 15, Normalizer: "ncompany"},
	{Field: models.FieldRegistrationNumber, Comparator: ComparatorExact, Weight: 20, Normalizer: "nidentifier"},
	{Field: models.FieldTaxID, Comparator: ComparatorExact, Weight: 25, Normalizer: "nidentifier"},
	{Field: models.FieldEmail, Comparator: ComparatorExact, Weight: 10, Normalizer: "nemail"},
	{Field: models.FieldPhone, Comparator: ComparatorExact, Weight: 5, Normalizer: "nphone"},
	{Field: models.FieldAddress, Comparator: ComparatorJaroWinkler, Weight: 5, Normalizer: "naddress"},
}

// SimilarityResult is a score with its per-field similarities (0..1)
type SimilarityResult struct {
	Score       float64
	FieldScores map[string]float64
}

// SimilarityScorer computes a 0-100 match score between two records
type SimilarityScorer struct {
	scorer  *Scorer
	weights []FieldWeight
}

type SimilarityOption func(*SimilarityScorer)

// WithFieldWeights replaces the default comparison table
func WithFieldWeights(weights []FieldWeight) SimilarityOption {
	return func(s *SimilarityScorer) {
		s.weights = append([]FieldWeight(nil), weights...)
	}
}

func NewSimilarityScorer(opts ...SimilarityOption) *SimilarityScorer {
	s := &SimilarityScorer{
		scorer:  NewScorer(),
		weights: DefaultFieldWeights,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score returns the similarity of a and b in [0,100], rounded to two decimals.
func (s *SimilarityScorer) Score(a, b *models.MasterRecord) float64 {
	return s.Compare(a, b).Score
}

// Compare scores two records field by field. Only fields populated in at least
// one record count toward the denominator, so a record compared with a copy of
// itself always scores 100. Records with no comparable fields score 0.
func (s *SimilarityScorer) Compare(a, b *models.MasterRecord) SimilarityResult {
	result := SimilarityResult{FieldScores: map[string]float64{}}

	var totalWeight, weightedSum float64
	for _, fw := range s.weights {
		if fw.Weight <= 0 {
			continue
		}
		va := s.normalizedValue(a, fw)
		vb := s.normalizedValue(b, fw)
		if va == "" && vb == "" {
			continue
		}

		totalWeight += fw.Weight
		if va == "" || vb == "" {
			result.FieldScores[fw.Field] = 0
			continue
		}

		sim := s.compareValues(fw.Comparator, va, vb)
		result.FieldScores[fw.Field] = sim
		weightedSum += sim * fw.Weight
	}

	if totalWeight == 0 {
		result.Score = 0
		return result
	}

	score := weightedSum / totalWeight * 100
	result.Score = math.Round(math.Min(math.Max(score, 0), 100)*100) / 100
	return result
}

func (s *SimilarityScorer) normalizedValue(r *models.MasterRecord, fw FieldWeight) string {
	if r == nil || r.Fields == nil {
		return ""
	}
	raw, ok := r.Fields[fw.Field]
	if !ok {
		return ""
	}
	return normalizers.Apply(normalizers.Trim(normalizers.Stringify(raw)), fw.Normalizer)
}

func (s *SimilarityScorer) compareValues(comparator Comparator, a, b string) float64 {
	// canonical operand order keeps the score symmetric
	if b < a {
		a, b = b, a
	}

	switch comparator {
	case ComparatorJaroWinkler:
		return s.scorer.JaroWinkler(a, b)
	case ComparatorLevenshtein:
		return s.scorer.Levenshtein(a, b)
	default:
		return s.scorer.ExactMatch(a, b, true)
	}
}
