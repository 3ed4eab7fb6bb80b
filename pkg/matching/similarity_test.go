package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/fern/pkg/models"
)

func record(id string, fields models.Fields) *models.MasterRecord {
	return &models.MasterRecord{ID: id, TenantID: "t1", Status: models.RecordStatusActive, Fields: fields}
}

func TestSimilarityScorer_Score(t *testing.T) {
	scorer := NewSimilarityScorer()

	tests := []struct {
		name string
		a, b *models.MasterRecord
		min  float64
		max  float64
	}{
		{
			name: "same tax id and near identical name",
			a:    record("a", models.Fields{"name": "Acme Inc", "tax_id": "123"}),
			b:    record("b", models.Fields{"name": "Acme Incorporated", "tax_id": "123"}),
			min:  90, max: 100,
		},
		{
			name: "formatting differences on identifiers",
			a:    record("a", models.Fields{"tax_id": "DE 123.456.789", "email": "Info@Acme.de", "phone": "+49 30 1234567"}),
			b:    record("b", models.Fields{"tax_id": "de123456789", "email": "info@acme.de ", "phone": "+49 (30) 123-4567"}),
			min:  90, max: 100,
		},
		{
			name: "conflicting tax id",
			a:    record("a", models.Fields{"name": "Acme Inc", "tax_id": "123"}),
			b:    record("b", models.Fields{"name": "Acme Inc", "tax_id": "999"}),
			min:  40, max: 50,
		},
		{
			name: "field present on one side only counts as a miss",
			a:    record("a", models.Fields{"name": "Acme Inc", "email": "a@acme.com"}),
			b:    record("b", models.Fields{"name": "Acme Inc"}),
			min:  66.66, max: 66.67,
		},
		{
			name: "no comparable fields",
			a:    record("a", models.Fields{"notes": "x"}),
			b:    record("b", models.Fields{"notes": "x"}),
			min:  0, max: 0,
		},
		{
			name: "nil record",
			a:    record("a", models.Fields{"name": "Acme"}),
			b:    nil,
			min:  0, max: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := scorer.Score(tt.a, tt.b)
			assert.GreaterOrEqual(t, score, tt.min)
			assert.LessOrEqual(t, score, tt.max)
		})
	}
}

func TestSimilarityScorer_Symmetric(t *testing.T) {
	scorer := NewSimilarityScorer()
	pairs := [][2]*models.MasterRecord{
		{record("a", models.Fields{"name": "Acme Holdings", "address": "1 Main Street"}), record("b", models.Fields{"name": "Acme Holding GmbH", "address": "1 Main St."})},
		{record("a", models.Fields{"name": "Jon"}), record("b", models.Fields{"name": "Jonathan", "phone": "123"})},
		{record("a", models.Fields{"legal_name": "abcdefghij"}), record("b", models.Fields{"legal_name": "jihgfedcba"})},
	}

	for _, p := range pairs {
		assert.Equal(t, scorer.Score(p[0], p[1]), scorer.Score(p[1], p[0]))
	}
}

func TestSimilarityScorer_IdenticalCopyScores100(t *testing.T) {
	scorer := NewSimilarityScorer()
	a := record("a", models.Fields{
		"name":                "Acme GmbH",
		"legal_name":          "Acme Gesellschaft mbH",
		"registration_number": "HRB12345",
		"tax_id":              "DE123456789",
		"email":               "info@acme.de",
		"phone":               "+49 30 1234567",
		"address":             map[string]any{"street": "Hauptstraße 1", "city": "Berlin"},
	})
	b := a.Clone()
	b.ID = "b"

	assert.Equal(t, 100.0, scorer.Score(a, b))
}

func TestSimilarityScorer_CompareFieldScores(t *testing.T) {
	scorer := NewSimilarityScorer()
	result := scorer.Compare(
		record("a", models.Fields{"name": "Acme", "tax_id": "1"}),
		record("b", models.Fields{"name": "Acme", "tax_id": "2"}),
	)

	assert.Equal(t, 1.0, result.FieldScores["name"])
	assert.Equal(t, 0.0, result.FieldScores["tax_id"])
	_, hasEmail := result.FieldScores["email"]
	assert.False(t, hasEmail)
}

func TestSimilarityScorer_WithFieldWeights(t *testing.T) {
	scorer := NewSimilarityScorer(WithFieldWeights([]FieldWeight{
		{Field: "name", Comparator: ComparatorLevenshtein, Weight: 1, Normalizer: "nname"},
	}))

	score := scorer.Score(
		record("a", models.Fields{"name": "kitten", "tax_id": "1"}),
		record("b", models.Fields{"name": "sitting", "tax_id": "2"}),
	)
	assert.InDelta(t, 57.14, score, 0.01)
}
