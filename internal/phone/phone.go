// Package phone converts Nigerian mobile numbers between the 11-digit local
// format staff type into SMS and the E.164 format the flow provider expects.
package phone

import (
	"fmt"
	"strings"
)

// CountryCode is the Nigerian dialing prefix used for E.164 conversion.
const CountryCode = "234"

// localLength is the length of a local number: leading 0 plus 10 digits.
const localLength = 11

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// ToLocal converts a raw phone number to the 11-digit local format.
// Accepts "+234XXXXXXXXXX", "234XXXXXXXXXX" and "0XXXXXXXXXX".
func ToLocal(raw string) (string, error) {
	p := strings.TrimSpace(raw)
	p = strings.TrimPrefix(p, "+")
	if strings.HasPrefix(p, CountryCode) && len(p) == len(CountryCode)+10 {
		p = "0" + p[len(CountryCode):]
	}
	if len(p) != localLength || !digitsOnly(p) || p[0] != '0' {
		return "", fmt.Errorf("not a valid local number: %q", raw)
	}
	return p, nil
}

// ToInternational converts a raw phone number to E.164 format.
// Accepts the same inputs as ToLocal plus already-international numbers.
func ToInternational(raw string) (string, error) {
	p := strings.TrimSpace(raw)
	p = strings.TrimPrefix(p, "+")
	if strings.HasPrefix(p, CountryCode) && len(p) == len(CountryCode)+10 && digitsOnly(p) {
		return "+" + p, nil
	}
	if len(p) == localLength && digitsOnly(p) && p[0] == '0' {
		return "+" + CountryCode + p[1:], nil
	}
	return "", fmt.Errorf("not a convertible number: %q", raw)
}

// LocalOrRaw converts to local format, falling back to the raw input when the
// number does not convert. Used where a best-effort sender identity is enough.
func LocalOrRaw(raw string) string {
	if local, err := ToLocal(raw); err == nil {
		return local
	}
	return strings.TrimSpace(raw)
}
