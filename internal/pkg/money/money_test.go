package money

import "testing"

func TestFormat(t *testing.T) {
	cases := []struct {
		kobo int64
		want string
	}{
		{0, "₦0"},
		{100, "₦1"},
		{500000, "₦5,000"},
		{505000, "₦5,050"},
		{150050, "₦1,500.50"},
		{2000000000, "₦20,000,000"},
		{-500000, "-₦5,000"},
		{101, "₦1.01"},
	}
	for _, tc := range cases {
		if got := Format(tc.kobo); got != tc.want {
			t.Errorf("Format(%d) = %q, want %q", tc.kobo, got, tc.want)
		}
	}
}

func TestParse(t *testing.T) {
	cases := []struct {
		raw  string
		want int64
	}{
		{"5000", 500000},
		{"₦5,000", 500000},
		{"N5000", 500000},
		{"ngn 200", 20000},
		{"5k", 500000},
		{"1.5k", 150000},
		{"1500.50", 150050},
		{"1500.5", 150050},
		{" 100 ", 10000},
	}
	for _, tc := range cases {
		got, err := Parse(tc.raw)
		if err != nil {
			t.Errorf("Parse(%q) error: %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Parse(%q) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}

func TestParseRejects(t *testing.T) {
	for _, raw := range []string{"", "abc", "-500", "0", "1.2345k", "₦"} {
		if _, err := Parse(raw); err == nil {
			t.Errorf("Parse(%q) should fail", raw)
		}
	}
}
