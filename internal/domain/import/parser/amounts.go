package parser

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// amountRe matches one whitespace-free money token with exactly two
// decimals, e.g. -125.67, (1,204.00), $3,200.00, 1.234,56, 99.10-.
var amountRe = regexp.MustCompile(`^(\()?([-+])?([$€£])?(\d{1,3}(?:[,.']\d{3})+|\d+)([.,]\d{2})(\))?(-)?$`)

var currencyTokens = map[string]bool{
	"$": true, "€": true, "£": true,
	"USD": true, "EUR": true, "GBP": true, "CAD": true, "AUD": true, "CHF": true,
}

// Direction markers carried by an amount token.
const (
	markNone  = 0
	markMinus = '-'
	markPlus  = '+'
	markCR    = 'C'
	markDR    = 'D'
)

// amountToken is a parsed money value. sign is -1 for money out, +1 for
// money in and 0 when the token carries no direction; mark records which
// notation set it.
type amountToken struct {
	value decimal.Decimal
	sign  int
	mark  byte
	start int
}

// signed applies the explicit sign, treating an unsigned token as positive.
func (a amountToken) signed() decimal.Decimal {
	if a.sign < 0 {
		return a.value.Neg()
	}
	return a.value
}

// parseAmountToken parses a single token. The decimal separator is the
// last '.' or ',' followed by exactly two digits, so both 1,234.56 and
// 1.234,56 are accepted without a locale switch.
func parseAmountToken(tok string) (amountToken, bool) {
	m := amountRe.FindStringSubmatch(tok)
	if m == nil {
		return amountToken{}, false
	}
	openParen, sign, whole, frac, closeParen, trailingMinus := m[1], m[2], m[4], m[5], m[6], m[7]
	if (openParen == "") != (closeParen == "") {
		return amountToken{}, false
	}
	sep := frac[:1]
	if strings.Contains(whole, sep) {
		// 1.234.56 or 1,234,56 has no unambiguous reading.
		return amountToken{}, false
	}

	digits := strings.NewReplacer(",", "", ".", "", "'", "").Replace(whole)
	value, err := decimal.NewFromString(digits + "." + frac[1:])
	if err != nil {
		return amountToken{}, false
	}

	out := amountToken{value: value}
	switch {
	case openParen != "", sign == "-", trailingMinus != "":
		out.sign, out.mark = -1, markMinus
	case sign == "+":
		out.sign, out.mark = 1, markPlus
	}
	return out, true
}

// parseAmount parses a free-form amount cell such as "$ -1,234.56" or
// "1.234,56 EUR". It returns the signed value.
func parseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	fields := strings.Fields(s)
	kept := fields[:0]
	neg := false
	for _, f := range fields {
		switch up := strings.ToUpper(f); {
		case currencyTokens[up]:
			continue
		case up == "DR":
			neg = true
			continue
		case up == "CR":
			continue
		}
		kept = append(kept, f)
	}
	joined := strings.Join(kept, "")
	// "$-12.00" puts the symbol before the sign.
	for _, sym := range []string{"$", "€", "£"} {
		joined = strings.Replace(joined, sym, "", 1)
	}

	tok, ok := parseAmountToken(joined)
	if !ok {
		plain, err := decimal.NewFromString(joined)
		if err != nil {
			return decimal.Zero, false
		}
		tok = amountToken{value: plain.Abs()}
		if plain.IsNegative() {
			tok.sign, tok.mark = -1, markMinus
		}
	}
	if neg {
		tok.sign = -1
	}
	return tok.signed(), true
}

// field is one whitespace separated token of a line with its byte offsets.
type field struct {
	text       string
	start, end int
}

var fieldRe = regexp.MustCompile(`\S+`)

func splitFields(line string) []field {
	locs := fieldRe.FindAllStringIndex(line, -1)
	out := make([]field, len(locs))
	for i, loc := range locs {
		out[i] = field{text: line[loc[0]:loc[1]], start: loc[0], end: loc[1]}
	}
	return out
}

// trailingAmounts collects up to three money tokens from the end of line,
// skipping currency markers and attaching CR/DR suffixes. Tokens starting
// before from are never considered. descEnd is the byte offset where the
// text in front of the amounts ends.
func trailingAmounts(line string, from int) (amounts []amountToken, descEnd int) {
	fields := splitFields(line)
	var suffix byte
	first := len(fields)

	for i := len(fields) - 1; i >= 0 && len(amounts) < 3; i-- {
		f := fields[i]
		if f.start < from {
			break
		}
		up := strings.ToUpper(f.text)
		switch {
		case currencyTokens[up]:
			continue
		case up == "CR":
			suffix = markCR
			continue
		case up == "DR":
			suffix = markDR
			continue
		}

		tok, ok := parseAmountToken(f.text)
		if !ok {
			break
		}
		switch suffix {
		case markCR:
			tok.sign, tok.mark = 1, markCR
		case markDR:
			tok.sign, tok.mark = -1, markDR
		}
		suffix = markNone
		tok.start = f.start
		amounts = append([]amountToken{tok}, amounts...)
		first = i
	}

	if len(amounts) == 0 {
		return nil, len(line)
	}
	descEnd = fields[first].start
	for j := first - 1; j >= 0 && fields[j].start >= from && currencyTokens[strings.ToUpper(fields[j].text)]; j-- {
		descEnd = fields[j].start
	}
	return amounts, descEnd
}
