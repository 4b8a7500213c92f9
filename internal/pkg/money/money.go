// Package money formats and parses naira amounts. All amounts are carried
// as int64 kobo throughout the system; floats never touch money.
package money

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidAmount = errors.New("invalid amount")

// Format renders kobo as a user-facing naira string, e.g. 505000 -> "₦5,050".
// Kobo cents are shown only when non-zero.
func Format(kobo int64) string {
	sign := ""
	if kobo < 0 {
		sign = "-"
		kobo = -kobo
	}
	naira := kobo / 100
	cents := kobo % 100
	if cents == 0 {
		return sign + "₦" + group(naira)
	}
	return fmt.Sprintf("%s₦%s.%02d", sign, group(naira), cents)
}

func group(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// Parse reads a user-typed naira amount into kobo. Accepts plain numbers
// ("5000"), currency prefixes and grouping ("₦5,000", "N5000"), decimals
// ("1500.50") and the colloquial k suffix ("5k" = ₦5,000).
func Parse(raw string) (int64, error) {
	s := strings.TrimSpace(strings.ToLower(raw))
	s = strings.TrimPrefix(s, "₦")
	s = strings.TrimPrefix(s, "ngn")
	s = strings.TrimPrefix(s, "n")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}

	multiplier := int64(1)
	if strings.HasSuffix(s, "k") {
		multiplier = 1000
		s = strings.TrimSuffix(s, "k")
	}

	whole, frac, _ := strings.Cut(s, ".")
	naira, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || naira < 0 {
		return 0, ErrInvalidAmount
	}

	kobo := naira * multiplier * 100
	if frac != "" {
		if multiplier != 1 {
			// "1.5k" means 1500 naira
			if len(frac) > 3 {
				return 0, ErrInvalidAmount
			}
			fracVal, err := strconv.ParseInt(frac, 10, 64)
			if err != nil {
				return 0, ErrInvalidAmount
			}
			scale := int64(1)
			for i := 0; i < len(frac); i++ {
				scale *= 10
			}
			kobo += fracVal * multiplier * 100 / scale
		} else {
			if len(frac) > 2 {
				frac = frac[:2]
			}
			fracVal, err := strconv.ParseInt(frac, 10, 64)
			if err != nil {
				return 0, ErrInvalidAmount
			}
			if len(frac) == 1 {
				fracVal *= 10
			}
			kobo += fracVal
		}
	}
	if kobo <= 0 {
		return 0, ErrInvalidAmount
	}
	return kobo, nil
}
