package conversation

import (
	"context"
	"regexp"
	"strings"

	"github.com/owopay/owo-api/internal/pkg/money"
	"github.com/owopay/owo-api/internal/pkg/phone"
)

// IntentKind is what the user wants to do.
type IntentKind string

const (
	IntentGreeting       IntentKind = "greeting"
	IntentHelp           IntentKind = "help"
	IntentBalance        IntentKind = "balance"
	IntentAccountDetails IntentKind = "account_details"
	IntentTransfer       IntentKind = "transfer"
	IntentAirtime        IntentKind = "airtime"
	IntentData           IntentKind = "data"
	IntentBills          IntentKind = "bills"
	IntentUnknown        IntentKind = "unknown"
)

// Intent is a classified inbound message plus whatever entities could be
// extracted from it.
type Intent struct {
	Kind       IntentKind
	Confidence float64

	Amount      int64  // kobo, 0 when absent
	Account     string // 10-digit NUBAN
	Bank        Bank
	Phone       string // E.164, for airtime/data
	MeterNumber string
}

// Classifier turns free text into an Intent. The rule-based fallback below
// is the default; an ML-backed classifier can be swapped in behind the same
// interface.
type Classifier interface {
	Classify(ctx context.Context, text string) (Intent, error)
}

// minConfidence below which the dispatcher asks the user to disambiguate.
const minConfidence = 0.5

var (
	accountRe = regexp.MustCompile(`\b\d{10}\b`)
	meterRe   = regexp.MustCompile(`\b\d{11,13}\b`)
	phoneRe   = regexp.MustCompile(`\b0[789][01]\d{8}\b`)
	amountRe  = regexp.MustCompile(`(?i)(?:₦|ngn\s?|n)?\d[\d,]*(?:\.\d+)?k?\b`)
)

var keywordKinds = []struct {
	kind     IntentKind
	keywords []string
}{
	{IntentTransfer, []string{"send", "transfer", "pay to", "wire"}},
	{IntentAirtime, []string{"airtime", "recharge", "top up", "topup", "credit my phone"}},
	{IntentData, []string{"data", "mb", "gb", "internet"}},
	{IntentBills, []string{"bill", "electricity", "nepa", "meter", "disco", "light"}},
	{IntentBalance, []string{"balance", "how much do i have", "wallet"}},
	{IntentAccountDetails, []string{"account number", "account details", "my account", "nuban"}},
	{IntentHelp, []string{"help", "menu", "what can you do", "options"}},
	{IntentGreeting, []string{"hi", "hello", "hey", "good morning", "good afternoon", "good evening"}},
}

// RuleClassifier is the deterministic keyword/entity fallback classifier.
type RuleClassifier struct{}

func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{}
}

func (c *RuleClassifier) Classify(_ context.Context, text string) (Intent, error) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return Intent{Kind: IntentUnknown}, nil
	}
	tokens := tokenize(lower)

	intent := Intent{Kind: IntentUnknown}
	for _, kk := range keywordKinds {
		score := keywordScore(lower, tokens, kk.keywords)
		if score > intent.Confidence {
			intent.Kind = kk.kind
			intent.Confidence = score
		}
	}

	c.extractEntities(&intent, text, lower, tokens)

	// Entities sharpen a weak keyword match: "5k to 0123456789 zenith" is a
	// transfer even without the word "send".
	if intent.Account != "" && intent.Amount > 0 {
		if intent.Kind == IntentUnknown || intent.Kind == IntentTransfer {
			intent.Kind = IntentTransfer
			if intent.Confidence < 0.8 {
				intent.Confidence = 0.8
			}
		}
	}
	if intent.Kind == IntentAirtime && intent.Amount > 0 && intent.Phone != "" {
		intent.Confidence = 0.9
	}

	if intent.Confidence < minConfidence {
		intent.Kind = IntentUnknown
	}
	return intent, nil
}

func (c *RuleClassifier) extractEntities(intent *Intent, original, lower string, tokens []string) {
	if m := accountRe.FindString(lower); m != "" {
		// A 10-digit number doubles as an account; phone numbers are 11.
		intent.Account = m
	}
	if m := phoneRe.FindString(lower); m != "" {
		if normalized, err := phone.Normalize(m); err == nil {
			intent.Phone = normalized
		}
	}
	if intent.Kind == IntentBills {
		if m := meterRe.FindString(lower); m != "" {
			intent.MeterNumber = m
		}
	}
	if b, ok := matchBank(tokens); ok {
		intent.Bank = b
	}
	intent.Amount = extractAmount(lower, intent)
}

// extractAmount scans candidate numeric tokens, skipping ones already
// claimed as account, phone or meter numbers.
func extractAmount(lower string, intent *Intent) int64 {
	for _, m := range amountRe.FindAllString(lower, -1) {
		digits := strings.NewReplacer(",", "", "₦", "", "k", "", ".", "").Replace(strings.TrimPrefix(m, "n"))
		if digits == intent.Account || digits == intent.MeterNumber {
			continue
		}
		if len(digits) == 11 && strings.HasPrefix(digits, "0") {
			continue // phone number
		}
		amount, err := money.Parse(m)
		if err != nil {
			continue
		}
		// Ten-digit "amounts" are almost certainly account numbers.
		if amount >= 100_000_000_000 {
			continue
		}
		return amount
	}
	return 0
}

func keywordScore(lower string, tokens []string, keywords []string) float64 {
	best := 0.0
	for _, kw := range keywords {
		if strings.Contains(kw, " ") {
			if strings.Contains(lower, kw) {
				best = max64(best, 0.9)
			}
			continue
		}
		for _, tok := range tokens {
			if tok == kw {
				best = max64(best, 0.7)
			}
		}
	}
	// A bare greeting with nothing else is unambiguous.
	if best > 0 && len(tokens) <= 3 {
		best += 0.2
	}
	if best > 1 {
		best = 1
	}
	return best
}

func tokenize(lower string) []string {
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
}

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
