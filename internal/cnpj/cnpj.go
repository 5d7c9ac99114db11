// Package cnpj normalizes and validates Brazilian tax identifiers.
//
// Validation is shape-only (digit count), not check-digit verification:
// the ranking and CVM datasets contain historically registered IDs that
// must never be rejected or coerced, only nulled when the shape is wrong.
package cnpj

import (
	"regexp"
	"strings"
)

const (
	// CNPJLen is the digit length of a company identifier.
	CNPJLen = 14
	// CPFLen is the digit length of an individual identifier.
	CPFLen = 11
	// RadicalLen is the digit length of a CNPJ root registrant prefix.
	RadicalLen = 8
)

var (
	formattedPattern = regexp.MustCompile(`\b\d{2}\.?\d{3}\.?\d{3}/?\d{4}-?\d{2}\b`)
	barePattern      = regexp.MustCompile(`\b\d{14}\b`)
)

// Normalize strips every non-digit character from raw.
// Returns "" when nothing remains. Idempotent.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsCNPJ reports whether s is a digits-only 14-character company identifier.
func IsCNPJ(s string) bool { return isDigits(s, CNPJLen) }

// IsCPF reports whether s is a digits-only 11-character person identifier.
func IsCPF(s string) bool { return isDigits(s, CPFLen) }

// IsRadical reports whether s is a digits-only 8-character CNPJ prefix.
func IsRadical(s string) bool { return isDigits(s, RadicalLen) }

// Radical returns the first 8 digits of a valid CNPJ, or "" when the
// input is not a valid CNPJ. Leading zeros are preserved.
func Radical(c string) string {
	if !IsCNPJ(c) {
		return ""
	}
	return c[:RadicalLen]
}

// HasPattern reports whether text contains a plausible CNPJ, either in
// formatted form (12.345.678/0001-90, separators optional) or as a bare
// 14-digit run.
func HasPattern(text string) bool {
	if text == "" {
		return false
	}
	return formattedPattern.MatchString(text) || barePattern.MatchString(text)
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
