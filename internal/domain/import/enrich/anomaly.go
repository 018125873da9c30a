package enrich

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/statementdesk/statement-desk/internal/domain/categorization"
	"github.com/statementdesk/statement-desk/internal/domain/statement"
	"github.com/statementdesk/statement-desk/pkg/money"
)

// Default anomaly thresholds.
var (
	DefaultLargeAmount    = decimal.NewFromInt(1000)
	DefaultMedianMultiple = decimal.NewFromInt(5)
	DefaultATMThreshold   = decimal.NewFromInt(500)
)

// minMedianSample is the number of debits needed before the median is used.
const minMedianSample = 5

var (
	foreignMarker = regexp.MustCompile(`\b(?:INTL|INTERNATIONAL|FOREIGN|FX|NON-STERLING|CROSS[- ]BORDER|OVERSEAS)\b`)
	currencyCode  = regexp.MustCompile(`\b(USD|EUR|GBP|CHF|JPY|CAD|AUD|MXN|BRL|CNY|SEK|NOK|DKK|PLN)\b`)
)

// DetectorConfig tunes the anomaly pass.
type DetectorConfig struct {
	// LargeAmount is the floor below which no debit is called large.
	LargeAmount decimal.Decimal
	// MedianMultiple marks debits this many times above the median debit.
	MedianMultiple decimal.Decimal
	// ATMThreshold flags cash withdrawals at or above this amount.
	ATMThreshold decimal.Decimal
	// Currency is the account currency. Other currency codes in a
	// description mark the charge as international.
	Currency string
}

func (c DetectorConfig) withDefaults() DetectorConfig {
	if !c.LargeAmount.IsPositive() {
		c.LargeAmount = DefaultLargeAmount
	}
	if !c.MedianMultiple.IsPositive() {
		c.MedianMultiple = DefaultMedianMultiple
	}
	if !c.ATMThreshold.IsPositive() {
		c.ATMThreshold = DefaultATMThreshold
	}
	return c
}

// Detector flags unusual transactions. Flags annotate rows and never
// remove them.
type Detector struct {
	cfg DetectorConfig
}

// NewDetector creates a detector; zero thresholds take the defaults.
func NewDetector(cfg DetectorConfig) *Detector {
	return &Detector{cfg: cfg.withDefaults()}
}

// Detect returns one entry per transaction, nil where nothing is unusual.
// currency overrides the configured account currency when not empty.
func (d *Detector) Detect(txs []statement.Transaction, currency string) []*statement.Anomaly {
	if currency == "" {
		currency = d.cfg.Currency
	}
	currency = strings.ToUpper(currency)

	flags := make([]*statement.Anomaly, len(txs))
	median := medianDebit(txs)
	merchants := make(map[string]int)
	for _, tx := range txs {
		merchants[merchantKey(tx)]++
	}

	seen := make(map[string]bool)
	for i, tx := range txs {
		var found []*statement.Anomaly

		key := duplicateKey(tx)
		if seen[key] {
			found = append(found, &statement.Anomaly{
				Severity:       statement.SeverityMedium,
				Description:    fmt.Sprintf("Possible duplicate: same amount and description as an earlier transaction on %s", tx.Date),
				Recommendation: "Check with the merchant that you were not charged twice",
			})
		}
		seen[key] = true

		if !tx.IsDebit() {
			flags[i] = strongest(found)
			continue
		}

		large := d.isLarge(tx, median)
		if d.isInternational(tx, currency) && merchants[merchantKey(tx)] == 1 {
			severity := statement.SeverityMedium
			if large {
				severity = statement.SeverityHigh
			}
			found = append(found, &statement.Anomaly{
				Severity:       severity,
				Description:    fmt.Sprintf("International charge of %s from a merchant not seen elsewhere on this statement", money.Format(tx.Amount, currency)),
				Recommendation: "Confirm you made this purchase; report it to your bank if you did not",
			})
		}

		if large {
			severity := statement.SeverityMedium
			if d.isVeryLarge(tx, median) {
				severity = statement.SeverityHigh
			}
			desc := fmt.Sprintf("Unusually large payment of %s", money.Format(tx.Amount, currency))
			if median.IsPositive() {
				desc += fmt.Sprintf(" (typical payment %s)", money.Format(median, currency))
			}
			found = append(found, &statement.Anomaly{
				Severity:       severity,
				Description:    desc,
				Recommendation: "Verify this payment was expected",
			})
		}

		if tx.Category == categorization.CategoryCash && tx.Amount.GreaterThanOrEqual(d.cfg.ATMThreshold) {
			found = append(found, &statement.Anomaly{
				Severity:       statement.SeverityMedium,
				Description:    fmt.Sprintf("Large cash withdrawal of %s", money.Format(tx.Amount, currency)),
				Recommendation: "Make sure you recognise this withdrawal",
			})
		}

		if tx.Category == categorization.CategoryFees {
			found = append(found, &statement.Anomaly{
				Severity:       statement.SeverityLow,
				Description:    fmt.Sprintf("Bank fee of %s", money.Format(tx.Amount, currency)),
				Recommendation: "Ask your bank whether the fee can be waived or refunded",
			})
		}

		flags[i] = strongest(found)
	}
	return flags
}

func (d *Detector) isLarge(tx statement.Transaction, median decimal.Decimal) bool {
	if tx.Category == categorization.CategoryTransfers || tx.Category == categorization.CategoryHousing {
		return false
	}
	if tx.Amount.LessThan(d.cfg.LargeAmount) {
		return false
	}
	if median.IsZero() {
		return true
	}
	return tx.Amount.GreaterThanOrEqual(median.Mul(d.cfg.MedianMultiple))
}

func (d *Detector) isVeryLarge(tx statement.Transaction, median decimal.Decimal) bool {
	two := decimal.NewFromInt(2)
	if tx.Amount.LessThan(d.cfg.LargeAmount.Mul(two)) {
		return false
	}
	return median.IsZero() || tx.Amount.GreaterThanOrEqual(median.Mul(d.cfg.MedianMultiple).Mul(two))
}

func (d *Detector) isInternational(tx statement.Transaction, home string) bool {
	if tx.Category == categorization.CategoryFees {
		return false
	}
	upper := strings.ToUpper(tx.Description)
	if foreignMarker.MatchString(upper) {
		return true
	}
	for _, code := range currencyCode.FindAllString(upper, -1) {
		if code != home {
			return true
		}
	}
	return false
}

// medianDebit is zero when there are too few debits to be meaningful.
func medianDebit(txs []statement.Transaction) decimal.Decimal {
	var amounts []decimal.Decimal
	for _, tx := range txs {
		if tx.IsDebit() {
			amounts = append(amounts, tx.Amount.Abs())
		}
	}
	if len(amounts) < minMedianSample {
		return decimal.Zero
	}
	sort.Slice(amounts, func(i, j int) bool { return amounts[i].LessThan(amounts[j]) })
	mid := len(amounts) / 2
	if len(amounts)%2 == 1 {
		return amounts[mid]
	}
	return amounts[mid-1].Add(amounts[mid]).Div(decimal.NewFromInt(2))
}

func merchantKey(tx statement.Transaction) string {
	if tx.NormalizedMerchant != "" {
		return strings.ToUpper(tx.NormalizedMerchant)
	}
	return strings.ToUpper(tx.Description)
}

func duplicateKey(tx statement.Transaction) string {
	return strings.Join([]string{
		tx.Date.String(),
		string(tx.Type),
		tx.Amount.StringFixed(2),
		strings.ToUpper(strings.Join(strings.Fields(tx.Description), " ")),
	}, "|")
}

// strongest keeps the highest severity; earlier flags win ties.
func strongest(found []*statement.Anomaly) *statement.Anomaly {
	var best *statement.Anomaly
	for _, a := range found {
		if best == nil || a.Severity.Rank() > best.Severity.Rank() {
			best = a
		}
	}
	return best
}

// mergeAnomaly keeps the stronger of a rule flag and a classifier flag.
func mergeAnomaly(rule, ai *statement.Anomaly) *statement.Anomaly {
	if ai == nil || ai.Description == "" {
		return rule
	}
	if rule == nil || ai.Severity.Rank() > rule.Severity.Rank() {
		if ai.Severity.Rank() == 0 {
			ai.Severity = statement.SeverityLow
		}
		return ai
	}
	return rule
}
