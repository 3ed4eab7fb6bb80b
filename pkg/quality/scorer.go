// Package quality scores master records for completeness, validity and consistency.
package quality

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// ExpectedFields are the fields a complete party record carries
var ExpectedFields = []string{
	models.FieldName,
	models.FieldLegalName,
	models.FieldRegistrationNumber,
	models.FieldTaxID,
	models.FieldEmail,
	models.FieldPhone,
	models.FieldAddress,
	models.FieldCountry,
}

// Dimension weights of the overall score
const (
	CompletenessWeight = 0.6
	ValidityWeight     = 0.25
	ConsistencyWeight  = 0.15
)

var validate = validator.New()

var (
	emailRe         = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[A-Za-z]{2,}$`)
	phoneFormatting = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "", "/", "")
	registrationRe  = regexp.MustCompile(`^[A-Za-z0-9 ./\-]+$`)
	// alphanumeric with at least one digit
	taxIDRe = regexp.MustCompile(`^[0-9A-Z]*[0-9][0-9A-Z]*$`)
)

var validityCheckers = map[string]func(string) error{
	models.FieldName:               validateName,
	models.FieldLegalName:          validateName,
	models.FieldRegistrationNumber: validateRegistrationNumber,
	models.FieldTaxID:              validateTaxID,
	models.FieldEmail:              validateEmail,
	models.FieldPhone:              validatePhone,
	models.FieldAddress:            validateAddress,
	models.FieldCountry:            validateCountry,
}

// Scorer computes QualityScores. It is stateless apart from its clock.
type Scorer struct {
	now func() time.Time
}

type Option func(*Scorer)

// WithClock overrides the time source stamped on scores
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) {
		s.now = now
	}
}

func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score assesses the record's current state. An empty record scores 0; a record
// with every expected field populated, well formed and consistent scores 100.
func (s *Scorer) Score(record *models.MasterRecord) models.QualityScore {
	result := models.QualityScore{ComputedAt: s.now()}
	if record == nil {
		return result
	}
	result.RecordID = record.ID

	values := map[string]string{}
	var issues []models.QualityIssue

	for _, field := range ExpectedFields {
		raw, ok := record.Fields[field]
		if !ok || normalizers.IsEmpty(raw) {
			issues = append(issues, models.QualityIssue{Field: field, Dimension: models.DimensionCompleteness, Message: "missing"})
			continue
		}
		values[field] = strings.TrimSpace(normalizers.Stringify(raw))
	}

	if len(values) == 0 {
		result.Issues = issues
		return result
	}

	completeness := float64(len(values)) / float64(len(ExpectedFields))

	passed, checked := 0, 0
	for _, field := range ExpectedFields {
		value, ok := values[field]
		if !ok {
			continue
		}
		checked++
		if err := validityCheckers[field](value); err != nil {
			issues = append(issues, models.QualityIssue{Field: field, Dimension: models.DimensionValidity, Message: err.Error()})
			continue
		}
		passed++
	}
	validity := float64(passed) / float64(checked)

	consistencyIssues, applied := checkConsistency(values, countryOf(record, values))
	issues = append(issues, consistencyIssues...)
	consistency := 1.0
	if applied > 0 {
		consistency = float64(applied-len(consistencyIssues)) / float64(applied)
	}

	result.Breakdown = models.QualityBreakdown{
		Completeness: percent(completeness),
		Validity:     percent(validity),
		Consistency:  percent(consistency),
	}
	result.Score = percent(CompletenessWeight*completeness + ValidityWeight*validity + ConsistencyWeight*consistency)
	result.Issues = issues
	return result
}

func percent(fraction float64) int {
	return int(math.Round(math.Min(math.Max(fraction, 0), 1) * 100))
}

// countryOf prefers the country field and falls back to a structured address.
func countryOf(record *models.MasterRecord, values map[string]string) string {
	if country, ok := values[models.FieldCountry]; ok {
		return strings.ToUpper(country)
	}
	if address, ok := record.Fields[models.FieldAddress].(map[string]any); ok {
		if country, ok := address["country"].(string); ok {
			return strings.ToUpper(strings.TrimSpace(country))
		}
	}
	return ""
}

func checkConsistency(values map[string]string, country string) ([]models.QualityIssue, int) {
	if !isCountryCode(country) {
		return nil, 0
	}

	var issues []models.QualityIssue
	applied := 0

	if phone, ok := values[models.FieldPhone]; ok {
		if code, known := callingCodes[country]; known && isInternationalPhone(phone) {
			applied++
			digits := strings.TrimPrefix(normalizers.DigitsOnly(phone), "00")
			if !strings.HasPrefix(digits, code) {
				issues = append(issues, models.QualityIssue{
					Field:     models.FieldPhone,
					Dimension: models.DimensionConsistency,
					Message:   fmt.Sprintf("calling code does not match country %s (+%s)", country, code),
				})
			}
		}
	}

	if taxID, ok := values[models.FieldTaxID]; ok {
		if prefix := taxPrefix(taxID); prefix != "" {
			applied++
			if alias, ok := taxPrefixAliases[prefix]; ok {
				prefix = alias
			}
			if prefix != country {
				issues = append(issues, models.QualityIssue{
					Field:     models.FieldTaxID,
					Dimension: models.DimensionConsistency,
					Message:   fmt.Sprintf("tax id prefix does not match country %s", country),
				})
			}
		}
	}

	if email, ok := values[models.FieldEmail]; ok {
		if tld := countryTLD(email); tld != "" {
			applied++
			if alias, ok := emailTLDAliases[tld]; ok {
				tld = alias
			}
			if tld != country {
				issues = append(issues, models.QualityIssue{
					Field:     models.FieldEmail,
					Dimension: models.DimensionConsistency,
					Message:   fmt.Sprintf("email domain does not match country %s", country),
				})
			}
		}
	}

	return issues, applied
}

func isInternationalPhone(phone string) bool {
	phone = strings.TrimSpace(phone)
	return strings.HasPrefix(phone, "+") || strings.HasPrefix(phone, "00")
}

// taxPrefix returns a leading two-letter country prefix of a tax id, if any.
func taxPrefix(taxID string) string {
	normalized := normalizers.NormalizeIdentifier(taxID)
	if len(normalized) < 3 {
		return ""
	}
	prefix := normalized[:2]
	if !unicode.IsLetter(rune(prefix[0])) || !unicode.IsLetter(rune(prefix[1])) {
		return ""
	}
	if _, alias := taxPrefixAliases[prefix]; !alias && !isCountryCode(prefix) {
		return ""
	}
	return prefix
}

// countryTLD returns the uppercased two-letter TLD of an email domain, skipping
// TLDs commonly used generically.
func countryTLD(email string) string {
	at := strings.LastIndex(email, "@")
	dot := strings.LastIndex(email, ".")
	if at < 0 || dot < at {
		return ""
	}
	tld := strings.ToUpper(email[dot+1:])
	if len(tld) != 2 {
		return ""
	}
	if _, generic := genericCountryTLDs[tld]; generic {
		return ""
	}
	if _, alias := emailTLDAliases[tld]; !alias && !isCountryCode(tld) {
		return ""
	}
	return tld
}

func validateName(value string) error {
	if len([]rune(value)) < 2 {
		return fmt.Errorf("must be at least 2 characters")
	}
	for _, r := range value {
		if unicode.IsLetter(r) {
			return nil
		}
	}
	return fmt.Errorf("must contain a letter")
}

func validateRegistrationNumber(value string) error {
	normalized := normalizers.NormalizeIdentifier(value)
	if !registrationRe.MatchString(value) || len(normalized) < 4 || len(normalized) > 30 {
		return fmt.Errorf("must be 4-30 alphanumeric characters")
	}
	return nil
}

func validateTaxID(value string) error {
	body := strings.TrimPrefix(normalizers.NormalizeIdentifier(value), taxPrefix(value))
	if len(body) < 5 || len(body) > 20 || !taxIDRe.MatchString(body) {
		return fmt.Errorf("must be 5-20 alphanumeric characters after an optional 2-letter country prefix")
	}
	return nil
}

func validateEmail(value string) error {
	if !emailRe.MatchString(value) {
		return fmt.Errorf("is not a valid email address")
	}
	return nil
}

// validatePhone checks the digits against E.164 length. National numbers are
// checked as if their leading + were present.
func validatePhone(value string) error {
	compact := phoneFormatting.Replace(value)
	compact = "+" + strings.TrimPrefix(strings.TrimPrefix(compact, "00"), "+")
	if err := validate.Var(compact, "e164"); err != nil {
		return fmt.Errorf("must be 7-15 digits with an optional leading +")
	}
	return nil
}

func validateAddress(value string) error {
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return nil
		}
	}
	return fmt.Errorf("must contain letters or digits")
}

func validateCountry(value string) error {
	if !isCountryCode(strings.ToUpper(strings.TrimSpace(value))) {
		return fmt.Errorf("must be an ISO 3166-1 alpha-2 code")
	}
	return nil
}
