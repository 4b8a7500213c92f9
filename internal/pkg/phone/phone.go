package phone

import (
	"errors"
	"strings"
)

// DefaultCountryCode is prepended to local and stripped subscriber forms.
const DefaultCountryCode = "234"

var ErrInvalidPhoneNumber = errors.New("invalid phone number")

// Normalize parses any accepted phone-number syntax into a canonical E.164
// string. Accepted shapes for Nigerian numbers:
//
//	08012345678      local format
//	8012345678       stripped subscriber
//	2348012345678    international compact
//	+2348012345678   already canonical
//
// Every store lookup and outbound send funnels through this function.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "(", "")
	s = strings.ReplaceAll(s, ")", "")

	if s == "" {
		return "", ErrInvalidPhoneNumber
	}

	hasPlus := strings.HasPrefix(s, "+")
	if hasPlus {
		s = s[1:]
	}
	if strings.Contains(s, "+") {
		return "", ErrInvalidPhoneNumber
	}
	if !isDigits(s) {
		return "", ErrInvalidPhoneNumber
	}

	switch {
	case hasPlus:
		// already international, digits only below
	case strings.HasPrefix(s, DefaultCountryCode):
		// international compact
	case strings.HasPrefix(s, "0") && len(s) == 11:
		// local format: drop the trunk zero
		s = DefaultCountryCode + s[1:]
	case len(s) == 10 && s[0] != '0':
		// stripped subscriber
		s = DefaultCountryCode + s
	default:
		return "", ErrInvalidPhoneNumber
	}

	// E.164: country code starts 1-9, total 5-15 digits.
	if len(s) < 5 || len(s) > 15 {
		return "", ErrInvalidPhoneNumber
	}
	if s[0] == '0' {
		return "", ErrInvalidPhoneNumber
	}

	return "+" + s, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
