// Package insights derives the statement level aiInsights summary from a set
// of enriched transactions. The computation is deterministic: the same
// transactions always produce the same text.
package insights

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/statementdesk/statement-desk/internal/domain/categorization"
	"github.com/statementdesk/statement-desk/internal/domain/statement"
	"github.com/statementdesk/statement-desk/pkg/money"
)

const (
	// Uncategorized labels debits that no categorizer could place.
	Uncategorized = "Uncategorized"

	topCategoryLimit     = 5
	uncategorizedTrigger = 5
	recurringLimit       = 3
)

var (
	hundred = decimal.NewFromInt(100)

	// A single category above this share of expenses gets a review recommendation.
	dominantShare = decimal.NewFromInt(40)

	// Food & Drink above this share gets a savings suggestion.
	diningShare = decimal.NewFromInt(15)
	diningCut   = decimal.NewFromFloat(0.2)

	// Discretionary categories eligible for the generic 10% suggestion.
	discretionary = map[string]bool{
		categorization.CategoryShopping:      true,
		categorization.CategoryEntertainment: true,
		categorization.CategoryFoodDrink:     true,
		categorization.CategoryTravel:        true,
	}
	discretionaryCut = decimal.NewFromFloat(0.1)
)

// Totals are the basic aggregates of a transaction set.
type Totals struct {
	Spent       decimal.Decimal
	Received    decimal.Decimal
	DebitCount  int
	CreditCount int
	First       civil.Date
	Last        civil.Date
}

// Net returns received minus spent.
func (t Totals) Net() decimal.Decimal {
	return t.Received.Sub(t.Spent)
}

// AverageDebit is the mean debit magnitude rounded to cents.
func (t Totals) AverageDebit() decimal.Decimal {
	if t.DebitCount == 0 {
		return decimal.Zero
	}
	return t.Spent.Div(decimal.NewFromInt(int64(t.DebitCount))).Round(2)
}

// Summarize computes totals and the covered date range.
func Summarize(txs []statement.Transaction) Totals {
	var totals Totals
	for i, tx := range txs {
		if tx.IsDebit() {
			totals.Spent = totals.Spent.Add(tx.Amount.Abs())
			totals.DebitCount++
		} else {
			totals.Received = totals.Received.Add(tx.Amount.Abs())
			totals.CreditCount++
		}
		if i == 0 || tx.Date.Before(totals.First) {
			totals.First = tx.Date
		}
		if i == 0 || tx.Date.After(totals.Last) {
			totals.Last = tx.Date
		}
	}
	return totals
}

// CategoryBreakdown aggregates debits by category, largest first. Ties are
// broken by category name. Shares are percentages of total spend with one
// decimal place.
func CategoryBreakdown(txs []statement.Transaction) []statement.CategorySpend {
	byCategory := make(map[string]*statement.CategorySpend)
	spent := decimal.Zero
	for _, tx := range txs {
		if !tx.IsDebit() {
			continue
		}
		name := categoryOf(tx)
		entry, ok := byCategory[name]
		if !ok {
			entry = &statement.CategorySpend{Category: name}
			byCategory[name] = entry
		}
		entry.Amount = entry.Amount.Add(tx.Amount.Abs())
		entry.Count++
		spent = spent.Add(tx.Amount.Abs())
	}

	result := make([]statement.CategorySpend, 0, len(byCategory))
	for _, entry := range byCategory {
		if spent.IsPositive() {
			entry.Share = entry.Amount.Div(spent).Mul(hundred).Round(1).InexactFloat64()
		}
		result = append(result, *entry)
	}
	sort.Slice(result, func(i, j int) bool {
		if c := result[i].Amount.Cmp(result[j].Amount); c != 0 {
			return c > 0
		}
		return result[i].Category < result[j].Category
	})
	return result
}

// Compute builds the aiInsights block for txs. currency selects money
// formatting and falls back to USD when unknown. It returns nil for an
// empty transaction set.
func Compute(txs []statement.Transaction, currency string) *statement.AIInsights {
	if len(txs) == 0 {
		return nil
	}

	totals := Summarize(txs)
	breakdown := CategoryBreakdown(txs)

	top := breakdown
	if len(top) > topCategoryLimit {
		top = top[:topCategoryLimit]
	}

	f := formatter(currency)
	return &statement.AIInsights{
		Summary:              generateSummary(len(txs), totals, breakdown, f),
		TotalSpent:           totals.Spent,
		AverageTransaction:   totals.AverageDebit(),
		TopCategories:        top,
		Trends:               generateTrends(txs, totals, breakdown, f),
		Recommendations:      generateRecommendations(txs, totals, breakdown, f),
		SavingsOpportunities: generateSavings(txs, breakdown, f),
	}
}

type formatFunc func(decimal.Decimal) string

func formatter(currency string) formatFunc {
	return func(d decimal.Decimal) string {
		return money.Format(d, currency)
	}
}

func categoryOf(tx statement.Transaction) string {
	if tx.Category == "" {
		return Uncategorized
	}
	return tx.Category
}

func merchantOf(tx statement.Transaction) string {
	if tx.NormalizedMerchant != "" {
		return tx.NormalizedMerchant
	}
	return tx.Description
}

func generateSummary(count int, totals Totals, breakdown []statement.CategorySpend, f formatFunc) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d transactions from %s to %s.", count, totals.First, totals.Last)
	fmt.Fprintf(&b, " You spent %s and received %s", f(totals.Spent), f(totals.Received))
	if len(breakdown) > 0 {
		fmt.Fprintf(&b, " across %d spending categories", len(breakdown))
	}
	b.WriteString(".")
	return b.String()
}

// generateTrends creates human-readable observations about the period.
func generateTrends(txs []statement.Transaction, totals Totals, breakdown []statement.CategorySpend, f formatFunc) []string {
	var trends []string

	// Net position
	net := totals.Net()
	if net.IsPositive() {
		trends = append(trends, fmt.Sprintf("You saved %s over this statement period", f(net)))
	} else if net.IsNegative() {
		trends = append(trends, fmt.Sprintf("You spent %s more than you received", f(net.Neg())))
	}

	// Month over month, last two months present
	if trend := monthOverMonth(txs); trend != "" {
		trends = append(trends, trend)
	}

	if len(breakdown) > 0 {
		topCat := breakdown[0]
		trends = append(trends, fmt.Sprintf("Top spending: %s (%s, %.1f%% of expenses)", topCat.Category, f(topCat.Amount), topCat.Share))
	}

	if largest, ok := largestDebit(txs); ok {
		trends = append(trends, fmt.Sprintf("Largest expense: %s (%s on %s)", merchantOf(largest), f(largest.Amount.Abs()), largest.Date))
	}

	return trends
}

type monthKey struct {
	year  int
	month int
}

func monthOverMonth(txs []statement.Transaction) string {
	byMonth := make(map[monthKey]decimal.Decimal)
	for _, tx := range txs {
		if !tx.IsDebit() {
			continue
		}
		k := monthKey{tx.Date.Year, int(tx.Date.Month)}
		byMonth[k] = byMonth[k].Add(tx.Amount.Abs())
	}
	if len(byMonth) < 2 {
		return ""
	}

	keys := make([]monthKey, 0, len(byMonth))
	for k := range byMonth {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		return keys[i].month < keys[j].month
	})

	prevKey, lastKey := keys[len(keys)-2], keys[len(keys)-1]
	prev, last := byMonth[prevKey], byMonth[lastKey]
	if prev.IsZero() || prev.Equal(last) {
		return ""
	}

	pct := last.Sub(prev).Div(prev).Mul(hundred).Abs().Round(0)
	direction := "up"
	if last.LessThan(prev) {
		direction = "down"
	}
	return fmt.Sprintf("Spending is %s %s%% in %s vs %s",
		direction, pct.String(), monthName(lastKey), monthName(prevKey))
}

func monthName(k monthKey) string {
	return fmt.Sprintf("%s %d", time.Month(k.month), k.year)
}

func largestDebit(txs []statement.Transaction) (statement.Transaction, bool) {
	var (
		best  statement.Transaction
		found bool
	)
	for _, tx := range txs {
		if !tx.IsDebit() {
			continue
		}
		if !found || tx.Amount.Abs().GreaterThan(best.Amount.Abs()) {
			best = tx
			found = true
		}
	}
	return best, found
}

// generateRecommendations lists actions in priority order. There is always
// at least one entry when the set contains a debit.
func generateRecommendations(txs []statement.Transaction, totals Totals, breakdown []statement.CategorySpend, f formatFunc) []string {
	var recs []string

	// 1. Uncategorized transactions
	for _, c := range breakdown {
		if c.Category == Uncategorized && c.Count > uncategorizedTrigger {
			recs = append(recs, fmt.Sprintf("Categorize %d uncategorized transactions (%s) so future statements are labelled automatically", c.Count, f(c.Amount)))
		}
	}

	// 2. Flagged anomalies
	flagged, high := 0, 0
	for _, tx := range txs {
		if tx.Anomaly == nil {
			continue
		}
		flagged++
		if tx.Anomaly.Severity == statement.SeverityHigh {
			high++
		}
	}
	if flagged > 0 {
		rec := fmt.Sprintf("Review %d flagged transactions", flagged)
		if high > 0 {
			rec += fmt.Sprintf(", %d of them high severity", high)
		}
		recs = append(recs, rec)
	}

	// 3. Dominant category
	for _, c := range breakdown {
		if c.Category == Uncategorized || c.Category == categorization.CategoryTransfers {
			continue
		}
		if decimal.NewFromFloat(c.Share).GreaterThan(dominantShare) {
			recs = append(recs, fmt.Sprintf("Review %s spending: it is %.1f%% of your expenses", c.Category, c.Share))
		}
		break
	}

	// 4. Default
	if len(recs) == 0 && totals.DebitCount > 0 {
		recs = append(recs, fmt.Sprintf("Review your spending: you spent %s across %d transactions", f(totals.Spent), totals.DebitCount))
	}

	return recs
}

// generateSavings points at concrete amounts that could be cut.
func generateSavings(txs []statement.Transaction, breakdown []statement.CategorySpend, f formatFunc) []string {
	var savings []string

	for _, c := range breakdown {
		if c.Category == categorization.CategoryFees {
			savings = append(savings, fmt.Sprintf("You paid %s in fees and charges; ask your bank about fee-free options", f(c.Amount)))
			break
		}
	}

	for _, r := range recurringCharges(txs) {
		savings = append(savings, fmt.Sprintf("Recurring charge at %s (%s x%d): cancel it if you no longer use it", r.merchant, f(r.amount), r.count))
	}

	for _, c := range breakdown {
		if c.Category == categorization.CategoryFoodDrink && decimal.NewFromFloat(c.Share).GreaterThan(diningShare) {
			savings = append(savings, fmt.Sprintf("Cutting Food & Drink by 20%% would save %s", f(c.Amount.Mul(diningCut).Round(2))))
			break
		}
	}

	for _, c := range breakdown {
		if discretionary[c.Category] && c.Category != categorization.CategoryFoodDrink {
			savings = append(savings, fmt.Sprintf("Reducing %s by 10%% would save %s", c.Category, f(c.Amount.Mul(discretionaryCut).Round(2))))
			break
		}
	}

	return savings
}

type recurring struct {
	merchant string
	amount   decimal.Decimal
	count    int
}

// recurringCharges finds merchants charged the same amount more than once.
func recurringCharges(txs []statement.Transaction) []recurring {
	type key struct {
		merchant string
		amount   string
	}
	counts := make(map[key]int)
	for _, tx := range txs {
		if !tx.IsDebit() || tx.Category == categorization.CategoryTransfers || tx.Category == categorization.CategoryHousing {
			continue
		}
		counts[key{merchantOf(tx), tx.Amount.Abs().StringFixed(2)}]++
	}

	var found []recurring
	for k, n := range counts {
		if n < 2 {
			continue
		}
		amount, _ := decimal.NewFromString(k.amount)
		found = append(found, recurring{merchant: k.merchant, amount: amount, count: n})
	}
	sort.Slice(found, func(i, j int) bool {
		ti := found[i].amount.Mul(decimal.NewFromInt(int64(found[i].count)))
		tj := found[j].amount.Mul(decimal.NewFromInt(int64(found[j].count)))
		if c := ti.Cmp(tj); c != 0 {
			return c > 0
		}
		return found[i].merchant < found[j].merchant
	})
	if len(found) > recurringLimit {
		found = found[:recurringLimit]
	}
	return found
}
