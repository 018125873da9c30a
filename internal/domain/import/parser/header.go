package parser

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/statementdesk/statement-desk/internal/domain/statement"
)

// Header is the statement metadata printed around the transaction table.
type Header struct {
	BankType string
	Account  *statement.AccountInfo
	Period   *statement.StatementPeriod
}

// bankKeywords maps a lowercase keyword to the bank name reported as
// bankType. Longer names come first so "td bank" wins over "td".
var bankKeywords = []struct {
	keyword string
	name    string
}{
	{"bank of america", "Bank of America"},
	{"wells fargo", "Wells Fargo"},
	{"jpmorgan chase", "Chase"},
	{"chase", "Chase"},
	{"citibank", "Citibank"},
	{"capital one", "Capital One"},
	{"td bank", "TD Bank"},
	{"us bank", "U.S. Bank"},
	{"pnc bank", "PNC"},
	{"barclays", "Barclays"},
	{"hsbc", "HSBC"},
	{"lloyds", "Lloyds"},
	{"natwest", "NatWest"},
	{"santander", "Santander"},
	{"monzo", "Monzo"},
	{"revolut", "Revolut"},
	{"ing bank", "ING"},
	{"deutsche bank", "Deutsche Bank"},
	{"bnp paribas", "BNP Paribas"},
}

var (
	accountNumberRe = regexp.MustCompile(`(?i)account\s*(?:number|no\.?|#)?\s*[:#]?\s*([0-9Xx*•][0-9Xx*•\- ]{2,}[0-9]{2,})`)
	accountHolderRe = regexp.MustCompile(`(?im)^\s*(?:account\s+holder|account\s+name|customer\s+name|name)\s*:\s*(.+?)\s*$`)
	currencyCodeRe  = regexp.MustCompile(`(?i:currency)\s*:\s*([A-Z]{3})\b`)
	openingRe       = regexp.MustCompile(`(?i)(?:opening|beginning|starting|previous)\s+balance\b[^\n0-9(+-]*([^\n]+)`)
	closingRe       = regexp.MustCompile(`(?i)(?:closing|ending|new)\s+balance\b[^\n0-9(+-]*([^\n]+)`)
	periodRe        = regexp.MustCompile(`(?i)(?:statement\s+period|period|from)\s*:?\s*(.+?)\s+(?:to|through|thru|-|–)\s+(.+?)\s*$`)
)

// parseHeader extracts metadata from the statement text. order resolves
// numeric dates in the period line.
func parseHeader(text string, order slashOrder) Header {
	h := Header{BankType: detectBank(text)}

	info := &statement.AccountInfo{Currency: detectCurrency(text)}
	if m := accountNumberRe.FindStringSubmatch(text); m != nil {
		info.AccountNumber = maskAccount(m[1])
	}
	if m := accountHolderRe.FindStringSubmatch(text); m != nil {
		info.AccountHolder = cleanDescription(m[1])
	}
	info.OpeningBalance = balanceAfter(openingRe, text)
	info.ClosingBalance = balanceAfter(closingRe, text)
	if *info != (statement.AccountInfo{}) {
		h.Account = info
	}

	for _, line := range strings.Split(text, "\n") {
		m := periodRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		start, ok1 := parseDate(m[1], order)
		end, ok2 := parseDate(m[2], order)
		if ok1 && ok2 && !end.Before(start) {
			h.Period = &statement.StatementPeriod{Start: start, End: end}
			break
		}
	}
	return h
}

func detectBank(text string) string {
	lower := strings.ToLower(text)
	for _, b := range bankKeywords {
		if strings.Contains(lower, b.keyword) {
			return b.name
		}
	}
	return ""
}

// detectCurrency prefers an explicit "Currency: XXX" label and otherwise
// picks the most frequent currency symbol.
func detectCurrency(text string) string {
	if m := currencyCodeRe.FindStringSubmatch(text); m != nil {
		return strings.ToUpper(m[1])
	}
	counts := map[string]int{
		"USD": strings.Count(text, "$"),
		"GBP": strings.Count(text, "£"),
		"EUR": strings.Count(text, "€"),
	}
	best, bestN := "", 0
	for _, code := range []string{"USD", "GBP", "EUR"} {
		if counts[code] > bestN {
			best, bestN = code, counts[code]
		}
	}
	return best
}

// maskAccount keeps the last four digits of an account number.
func maskAccount(raw string) string {
	digits := make([]rune, 0, len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) < 4 {
		return ""
	}
	return "****" + string(digits[len(digits)-4:])
}

func balanceAfter(re *regexp.Regexp, text string) *decimal.Decimal {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	amounts, _ := trailingAmounts(m[1], 0)
	if len(amounts) == 0 {
		return nil
	}
	v := amounts[len(amounts)-1].signed()
	return &v
}
