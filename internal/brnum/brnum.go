// Package brnum parses Brazilian-locale numeric strings, where "." groups
// thousands and "," marks the decimal point (e.g. "5.006,4" = 5006.4).
package brnum

import (
	"strconv"
	"strings"
)

// ParseFloat parses a pt-BR formatted number. A trailing "%" is ignored so
// percentage columns parse with the same rule. Returns false for empty or
// unparseable input.
func ParseFloat(raw string) (float64, bool) {
	text := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	if text == "" {
		return 0, false
	}

	hasComma := strings.Contains(text, ",")
	hasDot := strings.Contains(text, ".")
	switch {
	case hasComma && hasDot:
		text = strings.ReplaceAll(text, ".", "")
		text = strings.ReplaceAll(text, ",", ".")
	case hasComma:
		text = strings.ReplaceAll(text, ",", ".")
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
