// Package textutil holds small parsing helpers shared by the feed ingestion
// and the HTTP boundary.
package textutil

import (
	"regexp"
	"strings"
	"time"
)

// DateLayout is the dd/mm/yyyy layout used by feeds, invoices and reports.
const DateLayout = "02/01/2006"

var (
	datePattern  = regexp.MustCompile(`\b(0[1-9]|[12][0-9]|3[01])/(0[1-9]|1[0-2])/(\d{4})\b`)
	taxIDPattern = regexp.MustCompile(`^\d+-[0-9kK]$`)
)

// ExtractDate returns the first dd/mm/yyyy date found in text.
func ExtractDate(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	match := datePattern.FindString(text)
	if match == "" {
		return "", false
	}
	return match, true
}

// ValidTaxID reports whether value is digits, a hyphen and a single check
// character (digit, k or K). Surrounding whitespace is not tolerated.
func ValidTaxID(value string) bool {
	if value == "" {
		return false
	}
	return taxIDPattern.MatchString(value)
}

// FormatDate renders t as dd/mm/yyyy.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a dd/mm/yyyy string.
func ParseDate(value string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(value))
}
