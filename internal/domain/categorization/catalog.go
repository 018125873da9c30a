package categorization

import "github.com/statementdesk/statement-desk/internal/domain/statement"

// Category labels produced by the rule-based categorizer.
const (
	CategoryGroceries     = "Groceries"
	CategoryFoodDrink     = "Food & Drink"
	CategoryTransport     = "Transport"
	CategoryTravel        = "Travel"
	CategoryShopping      = "Shopping"
	CategoryEntertainment = "Entertainment"
	CategoryUtilities     = "Utilities"
	CategoryHealth        = "Health"
	CategoryHousing       = "Housing"
	CategoryInsurance     = "Insurance"
	CategoryEducation     = "Education"
	CategoryIncome        = "Income"
	CategoryTransfers     = "Transfers"
	CategoryCash          = "Cash"
	CategoryFees          = "Fees & Charges"
	CategoryTaxes         = "Taxes"
)

// Categories lists every label the catalog can assign.
func Categories() []string {
	return []string{
		CategoryGroceries, CategoryFoodDrink, CategoryTransport, CategoryTravel,
		CategoryShopping, CategoryEntertainment, CategoryUtilities, CategoryHealth,
		CategoryHousing, CategoryInsurance, CategoryEducation, CategoryIncome,
		CategoryTransfers, CategoryCash, CategoryFees, CategoryTaxes,
	}
}

// Rule maps a keyword found in a description to a category.
type Rule struct {
	// Pattern is matched case-insensitively as a substring.
	Pattern     string
	Merchant    string
	Category    string
	Subcategory string
	// Direction restricts the rule to credits or debits. Empty matches both.
	Direction statement.TransactionType
	Priority  int
}

// Applies reports whether the rule may be used for a transaction of type t.
func (r Rule) Applies(t statement.TransactionType) bool {
	return r.Direction == "" || t == "" || r.Direction == t
}

func kw(pattern, category, subcategory string) Rule {
	return Rule{Pattern: pattern, Category: category, Subcategory: subcategory}
}

func merchant(pattern, name, category, subcategory string) Rule {
	return Rule{Pattern: pattern, Merchant: name, Category: category, Subcategory: subcategory, Priority: 10}
}

func credit(r Rule) Rule {
	r.Direction = statement.Credit
	return r
}

func debit(r Rule) Rule {
	r.Direction = statement.Debit
	return r
}

// DefaultRules returns the built-in catalog: merchant names that the fuzzy
// and search stages can recover from typos, plus generic statement keywords.
func DefaultRules() []Rule {
	return []Rule{
		// Income
		credit(kw("PAYROLL", CategoryIncome, "Salary")),
		credit(kw("SALARY", CategoryIncome, "Salary")),
		credit(kw("DIRECT DEP", CategoryIncome, "Salary")),
		credit(kw("DIR DEP", CategoryIncome, "Salary")),
		credit(kw("BGC", CategoryIncome, "Salary")),
		credit(kw("INTEREST PAID", CategoryIncome, "Interest")),
		credit(kw("INTEREST CREDIT", CategoryIncome, "Interest")),
		credit(kw("DIVIDEND", CategoryIncome, "Investments")),
		credit(kw("REFUND", CategoryIncome, "Refund")),
		credit(kw("CASHBACK", CategoryIncome, "Refund")),
		credit(kw("TAX REFUND", CategoryIncome, "Refund")),
		credit(kw("MOBILE DEPOSIT", CategoryIncome, "Deposit")),
		credit(kw("DEPOSIT", CategoryIncome, "Deposit")),

		// Cash and fees
		debit(kw("ATM", CategoryCash, "ATM Withdrawal")),
		debit(kw("CASH WITHDRAWAL", CategoryCash, "ATM Withdrawal")),
		debit(kw("CASH MACHINE", CategoryCash, "ATM Withdrawal")),
		kw("OVERDRAFT", CategoryFees, "Overdraft"),
		kw("NSF", CategoryFees, "Overdraft"),
		kw("FOREIGN TRANSACTION FEE", CategoryFees, "Foreign Transaction"),
		kw("INTL TRANSACTION FEE", CategoryFees, "Foreign Transaction"),
		kw("NON-STERLING", CategoryFees, "Foreign Transaction"),
		kw("MONTHLY SERVICE FEE", CategoryFees, "Service Fee"),
		kw("SERVICE CHARGE", CategoryFees, "Service Fee"),
		kw("MAINTENANCE FEE", CategoryFees, "Service Fee"),
		kw("LATE FEE", CategoryFees, "Late Fee"),
		kw("WIRE FEE", CategoryFees, "Service Fee"),
		debit(kw("INTEREST CHARGE", CategoryFees, "Interest")),
		debit(kw("FEE", CategoryFees, "Service Fee")),

		// Transfers
		kw("TRANSFER", CategoryTransfers, "Account Transfer"),
		kw("XFER", CategoryTransfers, "Account Transfer"),
		kw("TFR", CategoryTransfers, "Account Transfer"),
		kw("STANDING ORDER", CategoryTransfers, "Standing Order"),
		kw("FASTER PAYMENT", CategoryTransfers, "Bank Transfer"),
		kw("WIRE", CategoryTransfers, "Wire"),
		kw("CREDIT CARD PAYMENT", CategoryTransfers, "Card Payment"),
		kw("CARD PAYMENT THANK YOU", CategoryTransfers, "Card Payment"),
		kw("AUTOPAY", CategoryTransfers, "Card Payment"),
		kw("CHECK", CategoryTransfers, "Check"),
		kw("CHEQUE", CategoryTransfers, "Check"),

		// Housing, insurance, taxes
		debit(kw("RENT", CategoryHousing, "Rent")),
		kw("MORTGAGE", CategoryHousing, "Mortgage"),
		kw("HOA", CategoryHousing, "HOA"),
		kw("COUNCIL TAX", CategoryTaxes, "Local Tax"),
		kw("IRS", CategoryTaxes, "Income Tax"),
		kw("HMRC", CategoryTaxes, "Income Tax"),
		kw("INSURANCE", CategoryInsurance, ""),
		merchant("GEICO", "GEICO", CategoryInsurance, "Auto"),
		merchant("STATE FARM", "State Farm", CategoryInsurance, "Auto"),
		merchant("PROGRESSIVE", "Progressive", CategoryInsurance, "Auto"),

		// Generic spending keywords
		kw("GROCERY", CategoryGroceries, "Supermarket"),
		kw("GROCERIES", CategoryGroceries, "Supermarket"),
		kw("SUPERMARKET", CategoryGroceries, "Supermarket"),
		kw("FOOD MARKET", CategoryGroceries, "Supermarket"),
		kw("RESTAURANT", CategoryFoodDrink, "Restaurant"),
		kw("CAFE", CategoryFoodDrink, "Coffee"),
		kw("COFFEE", CategoryFoodDrink, "Coffee"),
		kw("PIZZA", CategoryFoodDrink, "Restaurant"),
		kw("BAKERY", CategoryFoodDrink, "Restaurant"),
		kw("BAR & GRILL", CategoryFoodDrink, "Restaurant"),
		kw("PUB", CategoryFoodDrink, "Bar"),
		kw("GAS STATION", CategoryTransport, "Fuel"),
		kw("FUEL", CategoryTransport, "Fuel"),
		kw("PARKING", CategoryTransport, "Parking"),
		kw("TOLL", CategoryTransport, "Tolls"),
		kw("TRANSIT", CategoryTransport, "Public Transit"),
		kw("RAILWAY", CategoryTransport, "Train"),
		kw("AIRLINES", CategoryTravel, "Flights"),
		kw("AIRWAYS", CategoryTravel, "Flights"),
		kw("HOTEL", CategoryTravel, "Lodging"),
		kw("PHARMACY", CategoryHealth, "Pharmacy"),
		kw("DENTAL", CategoryHealth, "Dental"),
		kw("MEDICAL", CategoryHealth, "Medical"),
		kw("CLINIC", CategoryHealth, "Medical"),
		kw("HOSPITAL", CategoryHealth, "Medical"),
		kw("GYM", CategoryHealth, "Fitness"),
		kw("ELECTRIC", CategoryUtilities, "Electricity"),
		kw("ENERGY", CategoryUtilities, "Electricity"),
		kw("WATER", CategoryUtilities, "Water"),
		kw("INTERNET", CategoryUtilities, "Internet"),
		kw("WIRELESS", CategoryUtilities, "Telecom"),
		kw("TUITION", CategoryEducation, "Tuition"),
		kw("UNIVERSITY", CategoryEducation, "Tuition"),
		kw("BOOKSTORE", CategoryEducation, "Books"),

		// Merchants
		merchant("WALMART", "Walmart", CategoryGroceries, "Supermarket"),
		merchant("KROGER", "Kroger", CategoryGroceries, "Supermarket"),
		merchant("SAFEWAY", "Safeway", CategoryGroceries, "Supermarket"),
		merchant("COSTCO", "Costco", CategoryGroceries, "Warehouse Club"),
		merchant("WHOLE FOODS", "Whole Foods", CategoryGroceries, "Supermarket"),
		merchant("TESCO", "Tesco", CategoryGroceries, "Supermarket"),
		merchant("SAINSBURYS", "Sainsbury's", CategoryGroceries, "Supermarket"),
		merchant("WAITROSE", "Waitrose", CategoryGroceries, "Supermarket"),
		merchant("CARREFOUR", "Carrefour", CategoryGroceries, "Supermarket"),
		merchant("STARBUCKS", "Starbucks", CategoryFoodDrink, "Coffee"),
		merchant("MCDONALDS", "McDonald's", CategoryFoodDrink, "Fast Food"),
		merchant("CHIPOTLE", "Chipotle", CategoryFoodDrink, "Fast Food"),
		merchant("DOORDASH", "DoorDash", CategoryFoodDrink, "Delivery"),
		merchant("DELIVEROO", "Deliveroo", CategoryFoodDrink, "Delivery"),
		merchant("CHEVRON", "Chevron", CategoryTransport, "Fuel"),
		merchant("EXXONMOBIL", "ExxonMobil", CategoryTransport, "Fuel"),
		merchant("AMAZON", "Amazon", CategoryShopping, "Online"),
		merchant("TARGET", "Target", CategoryShopping, "General Merchandise"),
		merchant("BEST BUY", "Best Buy", CategoryShopping, "Electronics"),
		merchant("HOME DEPOT", "The Home Depot", CategoryShopping, "Home"),
		merchant("NETFLIX", "Netflix", CategoryEntertainment, "Streaming"),
		merchant("SPOTIFY", "Spotify", CategoryEntertainment, "Streaming"),
		merchant("VERIZON", "Verizon", CategoryUtilities, "Telecom"),
		merchant("COMCAST", "Xfinity", CategoryUtilities, "Internet"),
		merchant("WALGREENS", "Walgreens", CategoryHealth, "Pharmacy"),
		merchant("AIRBNB", "Airbnb", CategoryTravel, "Lodging"),
	}
}
