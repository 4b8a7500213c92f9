package conversation

import (
	"context"
	"testing"
)

func classify(t *testing.T, text string) Intent {
	t.Helper()
	intent, err := NewRuleClassifier().Classify(context.Background(), text)
	if err != nil {
		t.Fatalf("classify %q: %v", text, err)
	}
	return intent
}

func TestClassifyTransferWithEntities(t *testing.T) {
	intent := classify(t, "Send 5000 to 0123456789 Zenith")

	if intent.Kind != IntentTransfer {
		t.Fatalf("kind = %s, want transfer", intent.Kind)
	}
	if intent.Amount != 500_000 {
		t.Errorf("amount = %d kobo, want 500000", intent.Amount)
	}
	if intent.Account != "0123456789" {
		t.Errorf("account = %q", intent.Account)
	}
	if intent.Bank.Code != "057" {
		t.Errorf("bank code = %q, want 057 (Zenith)", intent.Bank.Code)
	}
	if intent.Confidence < minConfidence {
		t.Errorf("confidence = %f, below threshold", intent.Confidence)
	}
}

func TestClassifyTransferWithoutVerb(t *testing.T) {
	intent := classify(t, "5k to 0123456789 gtb")

	if intent.Kind != IntentTransfer {
		t.Fatalf("kind = %s, want transfer", intent.Kind)
	}
	if intent.Amount != 500_000 {
		t.Errorf("amount = %d kobo, want 500000", intent.Amount)
	}
	if intent.Bank.Code != "058" {
		t.Errorf("bank code = %q, want 058 (GTBank)", intent.Bank.Code)
	}
}

func TestClassifyAirtimeWithPhone(t *testing.T) {
	intent := classify(t, "buy 500 airtime for 08031234567")

	if intent.Kind != IntentAirtime {
		t.Fatalf("kind = %s, want airtime", intent.Kind)
	}
	if intent.Amount != 50_000 {
		t.Errorf("amount = %d kobo, want 50000", intent.Amount)
	}
	if intent.Phone != "+2348031234567" {
		t.Errorf("phone = %q, want normalized E.164", intent.Phone)
	}
	if intent.Confidence < 0.9 {
		t.Errorf("confidence = %f, want >= 0.9 for fully specified airtime", intent.Confidence)
	}
}

func TestClassifyPhoneNotMistakenForAmount(t *testing.T) {
	intent := classify(t, "buy airtime for 08031234567")

	if intent.Amount != 0 {
		t.Errorf("amount = %d, the phone number must not parse as an amount", intent.Amount)
	}
}

func TestClassifySimpleKinds(t *testing.T) {
	cases := []struct {
		text string
		want IntentKind
	}{
		{"hi", IntentGreeting},
		{"Good morning", IntentGreeting},
		{"help", IntentHelp},
		{"balance", IntentBalance},
		{"what's my account number", IntentAccountDetails},
		{"buy data", IntentData},
		{"pay nepa bill", IntentBills},
	}
	for _, tc := range cases {
		if got := classify(t, tc.text); got.Kind != tc.want {
			t.Errorf("classify(%q) = %s, want %s", tc.text, got.Kind, tc.want)
		}
	}
}

func TestClassifyGibberishIsUnknown(t *testing.T) {
	for _, text := range []string{"asdf qwerty", "the weather is nice today", ""} {
		if got := classify(t, text); got.Kind != IntentUnknown {
			t.Errorf("classify(%q) = %s, want unknown", text, got.Kind)
		}
	}
}
