package money

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/statementdesk/statement-desk/internal/domain/statement"
)

// TestDataGenerator generates realistic statement transactions using gofakeit.
type TestDataGenerator struct {
	faker *gofakeit.Faker
	start civil.Date
}

// NewTestDataGenerator creates a generator with a random seed.
func NewTestDataGenerator() *TestDataGenerator {
	return NewTestDataGeneratorWithSeed(0)
}

// NewTestDataGeneratorWithSeed creates a generator with a specific seed for
// reproducibility. Dates start on 2024-01-01.
func NewTestDataGeneratorWithSeed(seed int64) *TestDataGenerator {
	return &TestDataGenerator{
		faker: gofakeit.New(seed),
		start: civil.Date{Year: 2024, Month: time.January, Day: 1},
	}
}

var expenseCategories = []string{
	"Groceries", "Dining", "Transportation", "Shopping", "Entertainment",
	"Utilities", "Healthcare", "Travel", "Subscriptions", "Fees",
}

var merchants = []string{
	"AMAZON MKTPLACE", "WALMART SUPERCENTER", "TARGET", "COSTCO WHSE", "STARBUCKS STORE",
	"MCDONALD'S", "UBER TRIP", "NETFLIX.COM", "SPOTIFY USA", "WHOLE FOODS MKT",
	"CVS/PHARMACY", "SHELL OIL", "DELTA AIR", "HOME DEPOT", "SQ *CORNER CAFE",
}

var incomeDescriptions = []string{
	"PAYROLL DEPOSIT ACME CORP",
	"ACH CREDIT CLIENT INVOICE",
	"INTEREST PAYMENT",
	"ZELLE FROM J SMITH",
	"REFUND AMAZON",
}

// Transaction generates one transaction on the given day offset. Roughly
// four in five are debits.
func (g *TestDataGenerator) Transaction(day int) statement.Transaction {
	if g.faker.Number(1, 5) == 5 {
		return g.Income(day)
	}
	return g.Expense(day)
}

// Expense generates a debit between 0.50 and 500.00.
func (g *TestDataGenerator) Expense(day int) statement.Transaction {
	merchant := merchants[g.faker.Number(0, len(merchants)-1)]
	return statement.Transaction{
		ID:          uuid.New(),
		Date:        g.start.AddDays(day),
		Description: merchant + " " + g.faker.DigitN(4),
		Amount:      g.amount(50, 50000),
		Type:        statement.Debit,
		Category:    expenseCategories[g.faker.Number(0, len(expenseCategories)-1)],
		Confidence:  g.faker.Number(40, 100),
	}
}

// Income generates a credit between 100.00 and 5000.00.
func (g *TestDataGenerator) Income(day int) statement.Transaction {
	return statement.Transaction{
		ID:          uuid.New(),
		Date:        g.start.AddDays(day),
		Description: incomeDescriptions[g.faker.Number(0, len(incomeDescriptions)-1)],
		Amount:      g.amount(10000, 500000),
		Type:        statement.Credit,
		Category:    "Income",
		Confidence:  g.faker.Number(60, 100),
	}
}

// Transactions generates count transactions on consecutive days.
func (g *TestDataGenerator) Transactions(count int) []statement.Transaction {
	txs := make([]statement.Transaction, count)
	for i := range txs {
		txs[i] = g.Transaction(i)
	}
	return txs
}

// WithBalances fills a running balance starting from opening.
func WithBalances(txs []statement.Transaction, opening decimal.Decimal) []statement.Transaction {
	balance := opening
	for i := range txs {
		balance = balance.Add(txs[i].SignedAmount())
		b := balance
		txs[i].Balance = &b
	}
	return txs
}

func (g *TestDataGenerator) amount(minCents, maxCents int) decimal.Decimal {
	return decimal.New(int64(g.faker.Number(minCents, maxCents)), -2)
}
