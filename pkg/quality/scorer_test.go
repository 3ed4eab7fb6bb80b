package quality

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/fern/pkg/models"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestScorer() *Scorer {
	return NewScorer(WithClock(func() time.Time { return fixedNow }))
}

func completeRecord() *models.MasterRecord {
	return &models.MasterRecord{
		ID: "r1",
		Fields: models.Fields{
			"name":                "Acme GmbH",
			"legal_name":          "Acme Gesellschaft mbH",
			"registration_number": "HRB 12345",
			"tax_id":              "DE123456789",
			"email":               "info@acme.de",
			"phone":               "+49 30 1234567",
			"address":             map[string]any{"street": "Hauptstraße 1", "city": "Berlin", "country": "DE"},
			"country":             "DE",
		},
	}
}

func issueFields(score models.QualityScore, dimension string) []string {
	var fields []string
	for _, issue := range score.Issues {
		if issue.Dimension == dimension {
			fields = append(fields, issue.Field)
		}
	}
	return fields
}

func TestScorer_CompleteValidRecordScores100(t *testing.T) {
	score := newTestScorer().Score(completeRecord())

	assert.Equal(t, 100, score.Score)
	assert.Equal(t, models.QualityBreakdown{Completeness: 100, Validity: 100, Consistency: 100}, score.Breakdown)
	assert.Empty(t, score.Issues)
	assert.Equal(t, "r1", score.RecordID)
	assert.Equal(t, fixedNow, score.ComputedAt)
}

func TestScorer_EmptyRecordScores0(t *testing.T) {
	scorer := newTestScorer()

	for _, record := range []*models.MasterRecord{
		{ID: "empty"},
		{ID: "blank", Fields: models.Fields{"name": "  ", "notes": "not an expected field"}},
	} {
		score := scorer.Score(record)
		assert.Equal(t, 0, score.Score)
		assert.Equal(t, models.QualityBreakdown{}, score.Breakdown)
		assert.Len(t, issueFields(score, models.DimensionCompleteness), len(ExpectedFields))
	}

	assert.Equal(t, 0, scorer.Score(nil).Score)
}

func TestScorer_Partial(t *testing.T) {
	record := &models.MasterRecord{ID: "r1", Fields: models.Fields{"name": "Acme Inc", "tax_id": "123", "email": "info@acme.com"}}
	score := newTestScorer().Score(record)

	// 3 of 8 present, tax id too short, no consistency check applicable
	assert.Equal(t, models.QualityBreakdown{Completeness: 38, Validity: 67, Consistency: 100}, score.Breakdown)
	assert.Equal(t, 54, score.Score)
	assert.Equal(t, []string{"tax_id"}, issueFields(score, models.DimensionValidity))
}

func TestScorer_Validity(t *testing.T) {
	tests := []struct {
		field string
		value any
		valid bool
	}{
		{"name", "A", false},
		{"name", "42", false},
		{"name", "Ötker AG", true},
		{"registration_number", "HRB", false},
		{"registration_number", "HRB-12345/B", true},
		{"registration_number", "HRB#1234", false},
		{"tax_id", "DE123456789", true},
		{"tax_id", "ABCDEFG", false},
		{"tax_id", "12-3456789", true},
		{"tax_id", "DE12345678901234567890", true},
		{"tax_id", "DE123456789012345678901", false},
		{"tax_id", "123456789012345678901", false},
		{"tax_id", "DE1234", false},
		{"email", "info@acme", false},
		{"email", "info@acme.com", true},
		{"email", "info at acme.com", false},
		{"phone", "+1 (555) 010-9999", true},
		{"phone", "0049 30 1234567", true},
		{"phone", "12345", false},
		{"phone", "+49 30 CALL-ME", false},
		{"phone", "1234567", true},
		{"phone", "+1234567890123456", false},
		{"address", "---", false},
		{"address", map[string]any{"city": "Berlin"}, true},
		{"country", "de", true},
		{"country", "XX", false},
		{"country", "Germany", false},
		{"country", " gb ", true},
		{"country", "EU", false},
	}

	scorer := newTestScorer()
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s=%v", tt.field, tt.value), func(t *testing.T) {
			score := scorer.Score(&models.MasterRecord{Fields: models.Fields{tt.field: tt.value}})
			invalid := issueFields(score, models.DimensionValidity)
			if tt.valid {
				assert.Empty(t, invalid)
				return
			}
			assert.Equal(t, []string{tt.field}, invalid)
		})
	}
}

func TestScorer_Consistency(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(models.Fields)
		inconsistent []string
	}{
		{"phone calling code mismatch", func(f models.Fields) { f["phone"] = "+33 1 23456789" }, []string{"phone"}},
		{"national phone format is not checked", func(f models.Fields) { f["phone"] = "030 1234567" }, nil},
		{"tax prefix mismatch", func(f models.Fields) { f["tax_id"] = "FR12345678901" }, []string{"tax_id"}},
		{"tax id without prefix is not checked", func(f models.Fields) { f["tax_id"] = "123456789" }, nil},
		{"email country tld mismatch", func(f models.Fields) { f["email"] = "info@acme.fr" }, []string{"email"}},
		{"generic tld is not checked", func(f models.Fields) { f["email"] = "info@acme.io" }, nil},
		{"every check failing", func(f models.Fields) {
			f["country"] = "AT"
			f["address"] = "Hauptstraße 1, Wien"
		}, []string{"phone", "tax_id", "email"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := completeRecord()
			tt.mutate(record.Fields)
			score := newTestScorer().Score(record)
			assert.Equal(t, tt.inconsistent, issueFields(score, models.DimensionConsistency))
		})
	}
}

func TestScorer_ConsistencyAliases(t *testing.T) {
	record := &models.MasterRecord{Fields: models.Fields{
		"tax_id":  "EL123456789",
		"email":   "info@acme.gr",
		"phone":   "+30 21 0123 4567",
		"country": "GR",
	}}
	score := newTestScorer().Score(record)
	assert.Equal(t, 100, score.Breakdown.Consistency)

	record = &models.MasterRecord{Fields: models.Fields{"email": "info@acme.co.uk", "country": "GB"}}
	score = newTestScorer().Score(record)
	assert.Equal(t, 100, score.Breakdown.Consistency)
}

func TestScorer_CountryFromStructuredAddress(t *testing.T) {
	record := &models.MasterRecord{Fields: models.Fields{
		"phone":   "+33 1 23456789",
		"address": map[string]any{"city": "Berlin", "country": "DE"},
	}}
	score := newTestScorer().Score(record)
	assert.Equal(t, []string{"phone"}, issueFields(score, models.DimensionConsistency))
}

func TestScorer_Idempotent(t *testing.T) {
	scorer := newTestScorer()
	record := completeRecord()
	record.Fields["email"] = "broken"

	assert.Equal(t, scorer.Score(record), scorer.Score(record))
}

func TestScorer_TaxIDMessageStatesRule(t *testing.T) {
	score := newTestScorer().Score(&models.MasterRecord{Fields: models.Fields{"tax_id": "DE1234"}})

	var message string
	for _, issue := range score.Issues {
		if issue.Field == "tax_id" && issue.Dimension == models.DimensionValidity {
			message = issue.Message
		}
	}
	assert.Equal(t, "must be 5-20 alphanumeric characters after an optional 2-letter country prefix", message)
}

func TestIsCountryCode(t *testing.T) {
	assert.True(t, isCountryCode("DE"))
	assert.True(t, isCountryCode("GR"))
	assert.False(t, isCountryCode("de"))
	assert.False(t, isCountryCode("EL"))
	assert.False(t, isCountryCode("UK"))
}
