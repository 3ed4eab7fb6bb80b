// Package normalizers provides value normalization used before comparing or validating party fields
package normalizers

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("uppercase", Uppercase)
	Register("trim", Trim)
	Register("nphone", NormalizePhone)
	Register("nemail", NormalizeEmail)
	Register("nname", NormalizeName)
	Register("ncompany", NormalizeCompanyName)
	Register("naddress", NormalizeAddress)
	Register("nidentifier", NormalizeIdentifier)
	Register("digits_only", DigitsOnly)
	Register("alphanumeric", Alphanumeric)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value. Unknown names leave it unchanged.
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Uppercase converts string to uppercase
func Uppercase(s string) string {
	return strings.ToUpper(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// NormalizePhone keeps only the digits of a phone number
func NormalizePhone(s string) string {
	return DigitsOnly(s)
}

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeName lowercases, strips punctuation and collapses whitespace
func NormalizeName(s string) string {
	s = strings.ToLower(s)

	var result strings.Builder
	prevSpace := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			result.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '/':
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	return strings.TrimSpace(result.String())
}

// legalSuffixes fold long-form company designators onto their short form.
var legalSuffixes = map[string]string{
	"incorporated": "inc",
	"corporation":  "corp",
	"company":      "co",
	"limited":      "ltd",
	"llc":          "llc",
	"gmbh":         "gmbh",
	"plc":          "plc",
}

// NormalizeCompanyName normalizes a name and folds legal-form suffixes
func NormalizeCompanyName(s string) string {
	words := strings.Fields(NormalizeName(s))
	for i, w := range words {
		if short, ok := legalSuffixes[w]; ok {
			words[i] = short
		}
	}
	return strings.Join(words, " ")
}

// NormalizeIdentifier uppercases and keeps alphanumerics, for tax and registration numbers
func NormalizeIdentifier(s string) string {
	return strings.ToUpper(Alphanumeric(s))
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Alphanumeric keeps only alphanumeric characters
func Alphanumeric(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

var (
	spaceRe = regexp.MustCompile(`\s+`)

	// word-boundary abbreviations, applied in a fixed order
	addressAbbreviations = []struct{ full, abbr string }{
		{"apartment", "apt"},
		{"avenue", "ave"},
		{"boulevard", "blvd"},
		{"circle", "cir"},
		{"court", "ct"},
		{"drive", "dr"},
		{"east", "e"},
		{"lane", "ln"},
		{"north", "n"},
		{"place", "pl"},
		{"road", "rd"},
		{"south", "s"},
		{"street", "st"},
		{"suite", "ste"},
		{"west", "w"},
	}
)

// NormalizeAddress lowercases an address, strips punctuation and abbreviates common words
func NormalizeAddress(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return ' '
		}
		return r
	}, s)

	words := strings.Fields(spaceRe.ReplaceAllString(s, " "))
	for i, w := range words {
		for _, a := range addressAbbreviations {
			if w == a.full {
				words[i] = a.abbr
				break
			}
		}
	}

	return strings.Join(words, " ")
}

// Stringify renders a field value as text. Maps are flattened in key order so
// structured addresses compare deterministically.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if s := Stringify(v[k]); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s := Stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// IsEmpty reports whether a field value carries no information
func IsEmpty(value any) bool {
	return strings.TrimSpace(Stringify(value)) == ""
}
