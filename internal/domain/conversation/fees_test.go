package conversation

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestTransferFeeTiers(t *testing.T) {
	cases := []struct {
		amount int64
		want   int64
	}{
		{100_000, 5_000},    // ₦1,000 -> ₦50
		{500_000, 5_000},    // ₦5,000 -> ₦50
		{1_000_000, 5_000},  // ₦10,000 boundary -> ₦50
		{1_000_100, 7_500},  // just above -> ₦75
		{5_000_000, 7_500},  // ₦50,000 boundary -> ₦75
		{5_000_100, 10_000}, // just above -> ₦100
		{50_000_000, 10_000},
	}
	for _, tc := range cases {
		if got := TransferFee(tc.amount); got != tc.want {
			t.Errorf("TransferFee(%d) = %d, want %d", tc.amount, got, tc.want)
		}
	}
}

func TestNewReferenceShape(t *testing.T) {
	userID := uuid.New()
	ref := newReference("transfer", userID)

	parts := strings.Split(ref, "_")
	if len(parts) != 3 {
		t.Fatalf("reference %q should have 3 parts", ref)
	}
	if parts[0] != "TRANSFER" {
		t.Errorf("category part = %q, want TRANSFER", parts[0])
	}
	id := userID.String()
	if parts[2] != id[len(id)-6:] {
		t.Errorf("suffix = %q, want last 6 of user id", parts[2])
	}
}

func TestMatchBankAliases(t *testing.T) {
	cases := []struct {
		text string
		code string
	}{
		{"send 5k to 0123456789 zenith", "057"},
		{"gtbank", "058"},
		{"first bank", "011"},
		{"opay", "999992"},
	}
	for _, tc := range cases {
		b, ok := matchBank(tokenize(tc.text))
		if !ok {
			t.Errorf("matchBank(%q) found nothing", tc.text)
			continue
		}
		if b.Code != tc.code {
			t.Errorf("matchBank(%q) = %s, want %s", tc.text, b.Code, tc.code)
		}
	}
}
