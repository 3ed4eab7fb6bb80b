package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizers(t *testing.T) {
	tests := []struct {
		name     string
		fn       Normalizer
		input    string
		expected string
	}{
		{"phone strips formatting", NormalizePhone, "+49 (30) 123-4567", "49301234567"},
		{"email lowercases and trims", NormalizeEmail, "  Info@ACME.de ", "info@acme.de"},
		{"name strips punctuation", NormalizeName, "Acme, Inc.", "acme inc"},
		{"name collapses whitespace", NormalizeName, "  Acme   Holdings-Group ", "acme holdings group"},
		{"company folds suffix", NormalizeCompanyName, "Acme Incorporated", "acme inc"},
		{"company keeps short suffix", NormalizeCompanyName, "ACME INC.", "acme inc"},
		{"identifier", NormalizeIdentifier, "de 123-456.789", "DE123456789"},
		{"address abbreviates", NormalizeAddress, "1 Main Street, Suite 5", "1 main st ste 5"},
		{"address keeps inner words", NormalizeAddress, "Eastgate Road", "eastgate rd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.fn(tt.input))
		})
	}
}

func TestApply(t *testing.T) {
	assert.Equal(t, "acme inc", Apply("Acme Incorporated", "ncompany"))
	assert.Equal(t, "Unchanged", Apply("Unchanged", "does-not-exist"))

	_, ok := Get("nphone")
	assert.True(t, ok)
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "42", Stringify(float64(42)))
	assert.Equal(t, "1.5", Stringify(1.5))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "Berlin DE 1 Main St", Stringify(map[string]any{
		"street":  "1 Main St",
		"city":    "Berlin",
		"country": "DE",
		"zip":     nil,
	}))
	assert.Equal(t, "a b", Stringify([]any{"a", nil, "b"}))
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty("   "))
	assert.True(t, IsEmpty(map[string]any{}))
	assert.False(t, IsEmpty("x"))
	assert.False(t, IsEmpty(0.0))
}
