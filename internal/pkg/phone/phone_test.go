package phone

import (
	"errors"
	"testing"
)

func TestNormalizeAcceptedShapes(t *testing.T) {
	cases := map[string]string{
		"08012345678":      "+2348012345678",
		"8012345678":       "+2348012345678",
		"2348012345678":    "+2348012345678",
		"+2348012345678":   "+2348012345678",
		" +234 801 234-5678 ": "+2348012345678",
	}
	for in, want := range cases {
		got, err := Normalize(in)
		if err != nil {
			t.Errorf("Normalize(%q) returned error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeRejectsInvalidShapes(t *testing.T) {
	cases := []string{
		"",
		"abc",
		"123",
		"+0 123",
		"+234+8012345678",
		"801234567890123456",
		"0801234",
	}
	for _, in := range cases {
		if _, err := Normalize(in); !errors.Is(err, ErrInvalidPhoneNumber) {
			t.Errorf("Normalize(%q) = %v, want ErrInvalidPhoneNumber", in, err)
		}
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	first, err := Normalize("08012345678")
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	second, err := Normalize(first)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if first != second {
		t.Errorf("normalization not idempotent: %q != %q", first, second)
	}
}
