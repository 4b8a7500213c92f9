package conversation

import "strings"

// Bank is one entry of the interbank routing dictionary.
type Bank struct {
	Name string
	Code string
}

// banksByAlias maps the names users actually type to routing codes.
// Aliases are matched case-insensitively as whole words.
var banksByAlias = map[string]Bank{
	"zenith":      {Name: "Zenith Bank", Code: "057"},
	"gtb":         {Name: "GTBank", Code: "058"},
	"gtbank":      {Name: "GTBank", Code: "058"},
	"guaranty":    {Name: "GTBank", Code: "058"},
	"access":      {Name: "Access Bank", Code: "044"},
	"uba":         {Name: "UBA", Code: "033"},
	"first":       {Name: "First Bank", Code: "011"},
	"firstbank":   {Name: "First Bank", Code: "011"},
	"union":       {Name: "Union Bank", Code: "032"},
	"fidelity":    {Name: "Fidelity Bank", Code: "070"},
	"fcmb":        {Name: "FCMB", Code: "214"},
	"sterling":    {Name: "Sterling Bank", Code: "232"},
	"stanbic":     {Name: "Stanbic IBTC", Code: "221"},
	"wema":        {Name: "Wema Bank", Code: "035"},
	"polaris":     {Name: "Polaris Bank", Code: "076"},
	"keystone":    {Name: "Keystone Bank", Code: "082"},
	"ecobank":     {Name: "Ecobank", Code: "050"},
	"kuda":        {Name: "Kuda", Code: "090267"},
	"opay":        {Name: "OPay", Code: "999992"},
	"palmpay":     {Name: "PalmPay", Code: "999991"},
	"moniepoint":  {Name: "Moniepoint", Code: "50515"},
	"bellbank":    {Name: "BellBank", Code: "000023"},
	"providus":    {Name: "Providus Bank", Code: "101"},
}

// matchBank scans tokenized text for a known bank alias.
func matchBank(tokens []string) (Bank, bool) {
	for _, tok := range tokens {
		if b, ok := banksByAlias[strings.ToLower(tok)]; ok {
			return b, true
		}
	}
	return Bank{}, false
}
