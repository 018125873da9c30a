// Package parser turns statement text into raw transaction rows. It knows
// the common bank table layouts and falls back to a best-effort scan when a
// page matches none of them. It also reads back exported CSV files.
package parser

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/statementdesk/statement-desk/internal/domain/import/pdftext"
	"github.com/statementdesk/statement-desk/internal/domain/statement"
)

// Built-in layouts reported as statement.Recognized{BankFormat}.
const (
	FormatISOSigned     = "iso_signed"
	FormatUSDebitCredit = "us_debit_credit"
	FormatUKPaidInOut   = "uk_paid_in_out"
	FormatEUComma       = "eu_comma"
	FormatShortDate     = "short_date"
)

// TypeSource records how a row's direction was decided.
type TypeSource string

const (
	TypeExplicit TypeSource = "explicit"
	TypeBalance  TypeSource = "balance"
	TypeKeyword  TypeSource = "keyword"
)

// RawRow is one transaction as printed on the statement, before
// enrichment. Amount is unsigned.
type RawRow struct {
	Date            civil.Date
	DateInferred    bool
	DateCarried     bool
	Description     string
	Amount          decimal.Decimal
	Type            statement.TransactionType
	TypeSource      TypeSource
	Balance         *decimal.Decimal
	BalanceMismatch bool
	Wrapped         bool
	Page            int
	Layout          statement.Layout
}

// Fallback reports whether the row came from the best-effort scanner.
func (r RawRow) Fallback() bool {
	_, ok := r.Layout.(statement.Unrecognized)
	return ok
}

// Segmentation is the outcome of segmenting one document.
type Segmentation struct {
	Rows         []RawRow
	Layout       statement.Layout
	PageLayouts  []statement.Layout
	FallbackRows int
	Header       Header
	Period       *statement.StatementPeriod
	Warnings     []string
}

// DefaultMaxContinuation caps how many wrapped lines join one description.
const DefaultMaxContinuation = 3

const maxContinuationLen = 80

// Segmenter splits page text into rows. It keeps no per-document state
// and is safe for concurrent use.
type Segmenter struct {
	logger          *slog.Logger
	maxContinuation int
}

// NewSegmenter creates a segmenter.
func NewSegmenter(logger *slog.Logger) *Segmenter {
	return &Segmenter{logger: logger, maxContinuation: DefaultMaxContinuation}
}

var (
	pageNumberRe  = regexp.MustCompile(`(?i)^(?:page\s+\d+(?:\s*(?:of|/)\s*\d+)?|\d+\s*(?:of|/)\s*\d+)$`)
	totalLineRe   = regexp.MustCompile(`(?i)^(?:sub)?totals?\b`)
	balanceLineRe = regexp.MustCompile(`(?i)\b(?:(?:opening|closing|beginning|ending|starting|previous|new)\s+balance|balance\s+(?:brought|carried)\s+forward|(?:brought|carried)\s+forward|balance\s+forward)\b`)
	yearRe        = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
)

var columnWords = map[string]bool{
	"date": true, "dates": true, "description": true, "details": true, "amount": true,
	"balance": true, "debit": true, "debits": true, "credit": true, "credits": true,
	"withdrawals": true, "deposits": true, "paid": true, "in": true, "out": true,
	"money": true, "transaction": true, "transactions": true, "posted": true,
	"posting": true, "value": true, "reference": true, "ref": true, "type": true,
	"and": true, "&": true, "/": true, "($)": true, "(£)": true, "(€)": true,
}

var creditKeywords = []string{
	"deposit", "payroll", "salary", "direct dep", "refund", "interest paid",
	"interest earned", "dividend", "reversal", "cashback", "transfer from",
	"payment received", "rebate", "reimbursement", "incoming",
}

// entry is one item of the document in reading order: either a candidate
// row or a balance line that re-anchors the running balance.
type entry struct {
	row     *candidate
	balance *decimal.Decimal
}

type candidate struct {
	date     dateToken
	hasDate  bool
	desc     []string
	amounts  []amountToken
	page     int
	fallback bool
}

// Segment splits text, whose pages are separated by pdftext.PageBreak,
// into rows in statement order. A document that yields no rows returns
// statement.ErrNoTransactions together with the partial segmentation.
func (s *Segmenter) Segment(text string) (*Segmentation, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	pages := strings.Split(text, pdftext.PageBreak)

	currency := detectCurrency(text)
	order := detectOrder(pages, currency)
	seg := &Segmentation{
		Header:      parseHeader(text, order),
		PageLayouts: make([]statement.Layout, len(pages)),
	}

	var (
		entries []entry
		pending *candidate
	)
	for i, page := range pages {
		lines := strings.Split(page, "\n")
		pageEntries, formats, stillPending := s.scanPage(lines, i+1, order, pending, seg)
		pending = stillPending

		rows := 0
		for _, e := range pageEntries {
			if e.row != nil {
				rows++
			}
		}
		if rows > 0 {
			seg.PageLayouts[i] = statement.Recognized{BankFormat: dominant(formats)}
		} else if fallback := fallbackScan(lines, i+1); len(fallback) > 0 {
			pageEntries = fallback
			seg.PageLayouts[i] = statement.Unrecognized{FallbackUsed: true}
			seg.Warnings = append(seg.Warnings, fmt.Sprintf("page %d: layout not recognized, %d rows recovered by best-effort scan", i+1, len(fallback)))
		}
		entries = append(entries, pageEntries...)

		if seg.PageLayouts[i] != nil {
			s.logger.Debug("page segmented", "page", i+1, "layout", seg.PageLayouts[i].Name(), "entries", len(pageEntries))
		}
	}
	if pending != nil {
		seg.Warnings = append(seg.Warnings, fmt.Sprintf("page %d: dated line without amounts dropped", pending.page))
	}

	s.resolve(entries, order, yearHint(entries, text), seg)
	seg.Layout = documentLayout(seg)
	seg.Period = seg.Header.Period
	if seg.Period == nil && len(seg.Rows) > 0 {
		seg.Period = spanOf(seg.Rows)
	}

	if len(seg.Rows) == 0 {
		return seg, fmt.Errorf("%w: %d pages of text contained no dated lines with amounts", statement.ErrNoTransactions, len(pages))
	}
	return seg, nil
}

// scanPage walks one page. pending is a dated line from an earlier page
// still waiting for its amounts.
func (s *Segmenter) scanPage(lines []string, page int, order slashOrder, pending *candidate, seg *Segmentation) ([]entry, map[string]int, *candidate) {
	var (
		entries []entry
		last    *candidate
	)
	formats := make(map[string]int)

	emit := func(c *candidate) {
		entries = append(entries, entry{row: c})
		if c.hasDate {
			formats[c.date.format(order)]++
		}
		last = c
	}

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if balanceLineRe.MatchString(line) {
			if amounts, _ := trailingAmounts(line, 0); len(amounts) > 0 {
				v := amounts[len(amounts)-1].signed()
				entries = append(entries, entry{balance: &v})
			}
			last = nil
			continue
		}
		if isNoise(line) {
			continue
		}

		if tok, ok := matchDate(line); ok {
			start := tok.end
			if second, ok := matchDate(line[start:]); ok && second.style == tok.style {
				start += second.end
			}
			amounts, descEnd := trailingAmounts(line, start)
			if descEnd < start {
				descEnd = start
			}
			c := &candidate{
				date:    tok,
				hasDate: true,
				desc:    []string{strings.TrimSpace(line[start:descEnd])},
				page:    page,
			}
			if pending != nil {
				seg.Warnings = append(seg.Warnings, fmt.Sprintf("page %d: dated line without amounts dropped", pending.page))
			}
			pending = nil
			if len(amounts) == 0 {
				pending = c
				last = nil
				continue
			}
			c.amounts = amounts
			emit(c)
			continue
		}

		amounts, descEnd := trailingAmounts(line, 0)
		text := strings.TrimSpace(line[:descEnd])

		switch {
		case pending != nil:
			if text != "" {
				pending.desc = append(pending.desc, text)
			}
			if len(amounts) > 0 {
				pending.amounts = amounts
				emit(pending)
				pending = nil
			} else if len(pending.desc) > s.maxContinuation+1 {
				seg.Warnings = append(seg.Warnings, fmt.Sprintf("page %d: dated line without amounts dropped", pending.page))
				pending = nil
			}
		case len(amounts) > 0 && text != "" && last != nil:
			// Same-day rows often print the date only once.
			emit(&candidate{date: last.date, desc: []string{text}, amounts: amounts, page: page})
		case len(amounts) == 0 && last != nil && len(last.desc) <= s.maxContinuation && looksLikeContinuation(text):
			last.desc = append(last.desc, text)
		default:
			last = nil
		}
	}
	return entries, formats, pending
}

// fallbackScan recovers rows from a page none of whose lines start with a
// date: any line holding a full date and trailing amounts becomes a row.
func fallbackScan(lines []string, page int) []entry {
	var out []entry
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || balanceLineRe.MatchString(line) {
			continue
		}
		tok, ok := findDate(line)
		if !ok {
			continue
		}
		amounts, descEnd := trailingAmounts(line, tok.end)
		if len(amounts) == 0 {
			continue
		}
		desc := strings.TrimSpace(line[:tok.start]) + " " + strings.TrimSpace(line[tok.end:max(descEnd, tok.end)])
		out = append(out, entry{row: &candidate{
			date:     tok,
			hasDate:  true,
			desc:     []string{strings.TrimSpace(desc)},
			amounts:  amounts,
			page:     page,
			fallback: true,
		}})
	}
	return out
}

// resolve fixes dates, picks amount and balance columns and decides each
// row's direction, walking the running balance in reading order.
func (s *Segmenter) resolve(entries []entry, order slashOrder, hint int, seg *Segmentation) {
	refYear := referenceYear(seg.Header.Period, hint)
	signedDoc, crDoc := directionConventions(entries)

	var prev *decimal.Decimal
	if seg.Header.Account != nil && seg.Header.Account.OpeningBalance != nil {
		v := *seg.Header.Account.OpeningBalance
		prev = &v
	}
	var lastDate civil.Date
	haveLast := false

	for _, e := range entries {
		if e.balance != nil {
			v := *e.balance
			prev = &v
			continue
		}
		c := e.row

		date, ok := c.date.resolve(order, refYear)
		if !ok {
			seg.Warnings = append(seg.Warnings, fmt.Sprintf("page %d: unreadable date in %q", c.page, strings.Join(c.desc, " ")))
			continue
		}
		if !c.hasDate && haveLast {
			date = lastDate
		}
		lastDate, haveLast = date, true

		desc := cleanDescription(strings.Join(c.desc, " "))
		if desc == "" {
			seg.Warnings = append(seg.Warnings, fmt.Sprintf("page %d: row dated %s has no description", c.page, date))
			continue
		}

		amt, bal := pickColumns(c.amounts)
		row := RawRow{
			Date:         date,
			DateInferred: !c.date.hasYear,
			DateCarried:  !c.hasDate,
			Description:  desc,
			Amount:       amt.value,
			Wrapped:      len(c.desc) > 1,
			Page:         c.page,
			Layout:       statement.Recognized{BankFormat: c.date.format(order)},
		}
		if c.fallback {
			row.Layout = statement.Unrecognized{FallbackUsed: true}
			seg.FallbackRows++
		}
		if bal != nil {
			v := bal.signed()
			row.Balance = &v
		}

		row.Type, row.TypeSource = direction(amt, row.Balance, prev, desc, signedDoc, crDoc)

		switch {
		case row.Balance != nil && prev != nil:
			expected := prev.Add(signedValue(row.Amount, row.Type))
			row.BalanceMismatch = !expected.Equal(*row.Balance)
			v := *row.Balance
			prev = &v
		case row.Balance != nil:
			v := *row.Balance
			prev = &v
		case prev != nil:
			v := prev.Add(signedValue(row.Amount, row.Type))
			prev = &v
		}

		seg.Rows = append(seg.Rows, row)
	}
}

// pickColumns chooses the transaction amount and the running balance. With
// three columns the first two are paid-out and paid-in.
func pickColumns(amounts []amountToken) (amountToken, *amountToken) {
	switch len(amounts) {
	case 1:
		return amounts[0], nil
	case 2:
		return amounts[0], &amounts[1]
	}
	out, in, bal := amounts[0], amounts[1], amounts[2]
	if out.value.IsZero() && !in.value.IsZero() {
		if in.mark == markNone {
			in.sign, in.mark = 1, markCR
		}
		return in, &bal
	}
	if out.mark == markNone {
		out.sign, out.mark = -1, markDR
	}
	return out, &bal
}

func direction(amt amountToken, balance, prev *decimal.Decimal, desc string, signedDoc, crDoc bool) (statement.TransactionType, TypeSource) {
	switch {
	case amt.sign < 0:
		return statement.Debit, TypeExplicit
	case amt.sign > 0:
		return statement.Credit, TypeExplicit
	case signedDoc:
		return statement.Credit, TypeExplicit
	case crDoc:
		return statement.Debit, TypeExplicit
	}

	if balance != nil && prev != nil {
		delta := balance.Sub(*prev)
		if delta.Abs().Equal(amt.value) {
			if delta.IsNegative() {
				return statement.Debit, TypeBalance
			}
			return statement.Credit, TypeBalance
		}
	}

	lower := strings.ToLower(desc)
	for _, kw := range creditKeywords {
		if strings.Contains(lower, kw) {
			return statement.Credit, TypeKeyword
		}
	}
	return statement.Debit, TypeKeyword
}

// directionConventions inspects every transaction amount. signedDoc means
// debits carry a minus sign, so unsigned amounts are credits. crDoc means
// only credits are marked CR, so unmarked amounts are debits.
func directionConventions(entries []entry) (signedDoc, crDoc bool) {
	var cr, dr bool
	for _, e := range entries {
		if e.row == nil {
			continue
		}
		amt, _ := pickColumns(e.row.amounts)
		switch amt.mark {
		case markMinus:
			signedDoc = true
		case markCR:
			cr = true
		case markDR:
			dr = true
		}
	}
	return signedDoc, cr && !dr && !signedDoc
}

func signedValue(amount decimal.Decimal, t statement.TransactionType) decimal.Decimal {
	if t == statement.Debit {
		return amount.Neg()
	}
	return amount
}

// detectOrder decides whether numeric dates are month first or day first.
// Components above 12 settle it; otherwise the currency does.
func detectOrder(pages []string, currency string) slashOrder {
	var dmy, mdy int
	for _, page := range pages {
		for _, line := range strings.Split(page, "\n") {
			tok, ok := matchDate(strings.TrimSpace(line))
			if !ok || !tok.numeric() {
				continue
			}
			switch {
			case tok.first > 12 && tok.second <= 12:
				dmy++
			case tok.second > 12 && tok.first <= 12:
				mdy++
			}
		}
	}
	switch {
	case dmy > mdy:
		return orderDMY
	case mdy > dmy:
		return orderMDY
	case currency == "GBP" || currency == "EUR":
		return orderDMY
	}
	return orderMDY
}

// referenceYear returns the year lookup for yearless dates. With a known
// period, months after the period end belong to the previous year.
func referenceYear(period *statement.StatementPeriod, hint int) func(time.Month) (int, bool) {
	return func(m time.Month) (int, bool) {
		if period != nil {
			if m > period.End.Month {
				return period.End.Year - 1, true
			}
			return period.End.Year, true
		}
		if hint > 0 {
			return hint, true
		}
		return 0, false
	}
}

// yearHint finds a year for yearless dates when no period is printed:
// the first full row date, else any four digit year in the text.
func yearHint(entries []entry, text string) int {
	for _, e := range entries {
		if e.row != nil && e.row.date.hasYear {
			return e.row.date.year
		}
	}
	if m := yearRe.FindString(text); m != "" {
		y, _ := strconv.Atoi(m)
		return y
	}
	return 0
}

func isNoise(line string) bool {
	if pageNumberRe.MatchString(line) || totalLineRe.MatchString(line) {
		return true
	}
	words := strings.Fields(strings.ToLower(line))
	if len(words) < 2 {
		return false
	}
	for _, w := range words {
		if !columnWords[w] {
			return false
		}
	}
	return true
}

// looksLikeContinuation rejects labelled header and footer lines that
// would otherwise be glued onto the last row.
func looksLikeContinuation(text string) bool {
	return len(text) <= maxContinuationLen && !strings.Contains(text, ":")
}

func dominant(formats map[string]int) string {
	best, bestN := FormatShortDate, -1
	for _, f := range []string{FormatISOSigned, FormatUSDebitCredit, FormatUKPaidInOut, FormatEUComma, FormatShortDate} {
		if formats[f] > bestN {
			best, bestN = f, formats[f]
		}
	}
	return best
}

// documentLayout folds page layouts: any fallback page makes the document
// unrecognized, otherwise the most common recognized format wins.
func documentLayout(seg *Segmentation) statement.Layout {
	formats := make(map[string]int)
	for _, l := range seg.PageLayouts {
		switch v := l.(type) {
		case statement.Unrecognized:
			return statement.Unrecognized{FallbackUsed: true}
		case statement.Recognized:
			formats[v.BankFormat]++
		}
	}
	if len(formats) == 0 {
		return statement.Unrecognized{}
	}
	return statement.Recognized{BankFormat: dominant(formats)}
}

func spanOf(rows []RawRow) *statement.StatementPeriod {
	p := &statement.StatementPeriod{Start: rows[0].Date, End: rows[0].Date}
	for _, r := range rows[1:] {
		if r.Date.Before(p.Start) {
			p.Start = r.Date
		}
		if r.Date.After(p.End) {
			p.End = r.Date
		}
	}
	return p
}

// cleanDescription collapses runs of whitespace.
func cleanDescription(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
