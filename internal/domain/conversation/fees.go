package conversation

// Transfer fee tiers in kobo, charged on top of the transfer amount.
const (
	feeTierOne   = 5_000  // ₦50  for transfers up to ₦10,000
	feeTierTwo   = 7_500  // ₦75  for transfers up to ₦50,000
	feeTierThree = 10_000 // ₦100 above that
)

// TransferFee returns the fee for an outbound transfer amount (kobo).
func TransferFee(amount int64) int64 {
	switch {
	case amount <= 1_000_000:
		return feeTierOne
	case amount <= 5_000_000:
		return feeTierTwo
	default:
		return feeTierThree
	}
}
