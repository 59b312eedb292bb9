// Package registration decodes and validates the staff-typed visit
// registration SMS.
//
// Staff register a visit by texting "CLINIC MOBILE SERIAL SERVICE" with digit
// codes. The messages are typed on feature phones, so the parser tolerates
// the common slips: letter o for zero, letter i for one, and '*' or '.' used
// as separators.
package registration

import (
	"strings"

	"github.com/BTreeMap/FeedbackPipe/internal/models"
)

// Registration holds the four raw fields tokenized from a registration SMS,
// plus the normalized text retained for audit.
type Registration struct {
	Clinic     string
	Mobile     string
	Serial     string
	Service    string
	Normalized string
}

// Normalize canonicalizes a raw registration SMS. Applied in order: trim,
// '*' and '.' to space, o/O to 0, i/I to 1, whitespace runs to one space.
// Normalize is idempotent.
func Normalize(text string) string {
	t := strings.TrimSpace(text)
	t = strings.NewReplacer(
		"*", " ",
		".", " ",
		"o", "0",
		"O", "0",
		"i", "1",
		"I", "1",
	).Replace(t)
	return strings.Join(strings.Fields(t), " ")
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// Parse normalizes and tokenizes a registration SMS. A text that does not
// yield exactly four digit fields is rejected with a malformed error.
func Parse(text string) (*Registration, error) {
	normalized := Normalize(text)
	fields := strings.Fields(normalized)
	if len(fields) != 4 {
		return nil, &models.RegistrationError{Kind: models.KindMalformed}
	}
	for _, f := range fields {
		if !allDigits(f) {
			return nil, &models.RegistrationError{Kind: models.KindMalformed}
		}
	}
	return &Registration{
		Clinic:     fields[0],
		Mobile:     fields[1],
		Serial:     fields[2],
		Service:    fields[3],
		Normalized: normalized,
	}, nil
}
