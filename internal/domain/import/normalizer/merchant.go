// Package normalizer turns raw statement descriptions into canonical merchant
// names and applies user merchant overrides.
package normalizer

import (
	"regexp"
	"strings"
)

// MerchantInfo contains normalized merchant information
type MerchantInfo struct {
	OriginalName   string `json:"original_name"`
	NormalizedName string `json:"normalized_name"`
	Category       string `json:"category,omitempty"`
	Subcategory    string `json:"subcategory,omitempty"`
	// Matched is true when a known merchant pattern produced the name.
	Matched bool `json:"matched"`
}

// MerchantPattern defines a pattern for matching and normalizing merchants
type MerchantPattern struct {
	Pattern     *regexp.Regexp
	Name        string
	Category    string
	Subcategory string
}

// MerchantSanitizer normalizes merchant names and detects categories
type MerchantSanitizer struct {
	patterns []MerchantPattern
}

// NewMerchantSanitizer creates a new sanitizer with common merchant patterns
func NewMerchantSanitizer() *MerchantSanitizer {
	return &MerchantSanitizer{
		patterns: defaultMerchantPatterns(),
	}
}

// Sanitize normalizes a merchant name and detects its category
func (s *MerchantSanitizer) Sanitize(rawMerchant string) MerchantInfo {
	result := MerchantInfo{
		OriginalName: rawMerchant,
	}

	cleaned := CleanMerchantName(rawMerchant)
	upper := strings.ToUpper(cleaned)
	for _, pattern := range s.patterns {
		if pattern.Pattern.MatchString(upper) {
			result.NormalizedName = pattern.Name
			result.Category = pattern.Category
			result.Subcategory = pattern.Subcategory
			result.Matched = true
			return result
		}
	}

	result.NormalizedName = titleCase(cleaned)
	return result
}

// AddPattern adds a custom merchant pattern. Patterns added later are tried
// after the built-in ones.
func (s *MerchantSanitizer) AddPattern(pattern string, name, category, subcategory string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	s.patterns = append(s.patterns, MerchantPattern{
		Pattern:     re,
		Name:        name,
		Category:    category,
		Subcategory: subcategory,
	})
	return nil
}

var (
	descriptionPrefixes = []string{
		"DEBIT CARD PURCHASE ", "CARD PURCHASE ", "POS PURCHASE ", "CHECKCARD ",
		"PURCHASE AUTHORIZED ON ", "RECURRING PAYMENT ", "ONLINE PAYMENT ",
		"PURCHASE ", "PAYMENT TO ", "PAYMENT ", "POS ", "VISA ", "MASTERCARD ",
		"CARD ", "DD ", "SO ", "FPI ", "BGC ", "TFR ", "ACH ",
		"COMPRA ", "PAGAMENTO ", "LASTSCHRIFT ", "KARTENZAHLUNG ",
	}
	// Point-of-sale aggregator markers such as "SQ *" and "TST* ".
	aggregatorRe  = regexp.MustCompile(`^(?:SQ|TST|SP|PP|PAYPAL|IZ|ZTL)\s?\*\s*`)
	authDateRe    = regexp.MustCompile(`^\d{1,2}/\d{1,2}\s+`)
	cardRefRe     = regexp.MustCompile(`(?i)\s+(?:card|crd)?\s*(?:x{2,}|\*{2,})\d{2,4}\b`)
	storeNumberRe = regexp.MustCompile(`\s*[#*]\s*\d+\b`)
	trailingRefRe = regexp.MustCompile(`\s+(?:REF\s*:?\s*)?[A-Z]*\d{4,}[A-Z0-9]*$`)
	trailingDtRe  = regexp.MustCompile(`\s+\d{1,2}/\d{1,2}(?:/\d{2,4})?$`)
	phoneRe       = regexp.MustCompile(`\s+\d{3}[-.]\d{3}[-.]?\d{0,4}$`)
	stateSuffixRe = regexp.MustCompile(`\s+[A-Z]{2}$`)
	spaceRe       = regexp.MustCompile(`\s+`)
)

// CleanMerchantName removes card-network prefixes, store numbers, trailing
// references and dates from a raw description.
func CleanMerchantName(raw string) string {
	result := spaceRe.ReplaceAllString(strings.TrimSpace(raw), " ")

	upper := strings.ToUpper(result)
	for _, prefix := range descriptionPrefixes {
		if strings.HasPrefix(upper, prefix) {
			result = result[len(prefix):]
			break
		}
	}
	result = authDateRe.ReplaceAllString(result, "")
	if loc := aggregatorRe.FindStringIndex(strings.ToUpper(result)); loc != nil {
		result = result[loc[1]:]
	}

	result = cardRefRe.ReplaceAllString(result, "")
	result = storeNumberRe.ReplaceAllString(result, "")
	for _, re := range []*regexp.Regexp{trailingDtRe, phoneRe, trailingRefRe} {
		result = strings.TrimSpace(re.ReplaceAllString(result, ""))
	}
	// A trailing two-letter state code only goes when a city-like word is left.
	if len(strings.Fields(result)) > 2 && result == strings.ToUpper(result) {
		result = stateSuffixRe.ReplaceAllString(result, "")
	}

	result = spaceRe.ReplaceAllString(result, " ")
	return strings.Trim(result, " -*#")
}

// titleCase converts a string to title case
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		if len(word) > 0 {
			words[i] = strings.ToUpper(string(word[0])) + strings.ToLower(word[1:])
		}
	}
	return strings.Join(words, " ")
}

// defaultMerchantPatterns returns merchant patterns common on US, UK and
// euro-area statements. Order matters: the first match wins.
func defaultMerchantPatterns() []MerchantPattern {
	patterns := []MerchantPattern{
		// Groceries
		{regexp.MustCompile(`WAL-?\s*MART|WM\s+SUPERCENTER`), "Walmart", "Groceries", "Supermarket"},
		{regexp.MustCompile(`WHOLE\s*FOODS|WHOLEFDS`), "Whole Foods", "Groceries", "Supermarket"},
		{regexp.MustCompile(`TRADER\s*JOE`), "Trader Joe's", "Groceries", "Supermarket"},
		{regexp.MustCompile(`\bKROGER\b`), "Kroger", "Groceries", "Supermarket"},
		{regexp.MustCompile(`SAFEWAY`), "Safeway", "Groceries", "Supermarket"},
		{regexp.MustCompile(`COSTCO`), "Costco", "Groceries", "Warehouse Club"},
		{regexp.MustCompile(`TESCO`), "Tesco", "Groceries", "Supermarket"},
		{regexp.MustCompile(`SAINSBURY`), "Sainsbury's", "Groceries", "Supermarket"},
		{regexp.MustCompile(`\bASDA\b`), "Asda", "Groceries", "Supermarket"},
		{regexp.MustCompile(`WAITROSE`), "Waitrose", "Groceries", "Supermarket"},
		{regexp.MustCompile(`\bLIDL\b`), "Lidl", "Groceries", "Supermarket"},
		{regexp.MustCompile(`\bALDI\b`), "Aldi", "Groceries", "Supermarket"},
		{regexp.MustCompile(`CARREFOUR`), "Carrefour", "Groceries", "Supermarket"},
		{regexp.MustCompile(`\bREWE\b`), "REWE", "Groceries", "Supermarket"},
		{regexp.MustCompile(`PINGO\s*DOCE`), "Pingo Doce", "Groceries", "Supermarket"},

		// Food & Drink (delivery before rideshare so UBER EATS wins over UBER)
		{regexp.MustCompile(`STARBUCKS`), "Starbucks", "Food & Drink", "Coffee"},
		{regexp.MustCompile(`DUNKIN`), "Dunkin'", "Food & Drink", "Coffee"},
		{regexp.MustCompile(`COSTA\s+COFFEE`), "Costa Coffee", "Food & Drink", "Coffee"},
		{regexp.MustCompile(`MC\s*DONALD`), "McDonald's", "Food & Drink", "Fast Food"},
		{regexp.MustCompile(`BURGER\s*KING`), "Burger King", "Food & Drink", "Fast Food"},
		{regexp.MustCompile(`CHIPOTLE`), "Chipotle", "Food & Drink", "Fast Food"},
		{regexp.MustCompile(`\bKFC\b`), "KFC", "Food & Drink", "Fast Food"},
		{regexp.MustCompile(`UBER\s*\*?\s*EATS`), "Uber Eats", "Food & Drink", "Delivery"},
		{regexp.MustCompile(`DOORDASH`), "DoorDash", "Food & Drink", "Delivery"},
		{regexp.MustCompile(`GRUBHUB`), "Grubhub", "Food & Drink", "Delivery"},
		{regexp.MustCompile(`DELIVEROO`), "Deliveroo", "Food & Drink", "Delivery"},
		{regexp.MustCompile(`JUST\s*EAT`), "Just Eat", "Food & Drink", "Delivery"},

		// Transport
		{regexp.MustCompile(`\bUBER\b`), "Uber", "Transport", "Rideshare"},
		{regexp.MustCompile(`\bLYFT\b`), "Lyft", "Transport", "Rideshare"},
		{regexp.MustCompile(`\bBOLT\b`), "Bolt", "Transport", "Rideshare"},
		{regexp.MustCompile(`SHELL\b`), "Shell", "Transport", "Fuel"},
		{regexp.MustCompile(`CHEVRON`), "Chevron", "Transport", "Fuel"},
		{regexp.MustCompile(`EXXON|MOBIL\b`), "ExxonMobil", "Transport", "Fuel"},
		{regexp.MustCompile(`\bBP\b`), "BP", "Transport", "Fuel"},
		{regexp.MustCompile(`TFL\b|TRANSPORT\s+FOR\s+LONDON`), "TfL", "Transport", "Public Transit"},
		{regexp.MustCompile(`\bMTA\b`), "MTA", "Transport", "Public Transit"},

		// Travel
		{regexp.MustCompile(`RYANAIR`), "Ryanair", "Travel", "Flights"},
		{regexp.MustCompile(`EASYJET`), "easyJet", "Travel", "Flights"},
		{regexp.MustCompile(`DELTA\s+AIR`), "Delta", "Travel", "Flights"},
		{regexp.MustCompile(`UNITED\s+AIR`), "United", "Travel", "Flights"},
		{regexp.MustCompile(`AMERICAN\s+AIR`), "American Airlines", "Travel", "Flights"},
		{regexp.MustCompile(`AIRBNB`), "Airbnb", "Travel", "Lodging"},
		{regexp.MustCompile(`BOOKING\.COM`), "Booking.com", "Travel", "Lodging"},
		{regexp.MustCompile(`MARRIOTT`), "Marriott", "Travel", "Lodging"},

		// Shopping
		{regexp.MustCompile(`AMAZON|AMZN`), "Amazon", "Shopping", "Online"},
		{regexp.MustCompile(`\bEBAY\b`), "eBay", "Shopping", "Online"},
		{regexp.MustCompile(`\bTARGET\b`), "Target", "Shopping", "General Merchandise"},
		{regexp.MustCompile(`BEST\s*BUY`), "Best Buy", "Shopping", "Electronics"},
		{regexp.MustCompile(`HOME\s*DEPOT`), "The Home Depot", "Shopping", "Home"},
		{regexp.MustCompile(`\bIKEA\b`), "IKEA", "Shopping", "Home"},
		{regexp.MustCompile(`\bZARA\b`), "Zara", "Shopping", "Clothing"},
		{regexp.MustCompile(`H\s*&\s*M\b`), "H&M", "Shopping", "Clothing"},
		{regexp.MustCompile(`PRIMARK`), "Primark", "Shopping", "Clothing"},
		{regexp.MustCompile(`APPLE\s*STORE`), "Apple Store", "Shopping", "Electronics"},

		// Entertainment and subscriptions
		{regexp.MustCompile(`NETFLIX`), "Netflix", "Entertainment", "Streaming"},
		{regexp.MustCompile(`SPOTIFY`), "Spotify", "Entertainment", "Streaming"},
		{regexp.MustCompile(`HULU`), "Hulu", "Entertainment", "Streaming"},
		{regexp.MustCompile(`DISNEY\s*\+|DISNEYPLUS|DISNEY\s+PLUS`), "Disney+", "Entertainment", "Streaming"},
		{regexp.MustCompile(`APPLE\.COM|ITUNES`), "Apple", "Entertainment", "Streaming"},
		{regexp.MustCompile(`YOUTUBE|GOOGLE\s*\*\s*YOUTUBE`), "YouTube", "Entertainment", "Streaming"},
		{regexp.MustCompile(`PLAYSTATION|\bPSN\b`), "PlayStation", "Entertainment", "Gaming"},
		{regexp.MustCompile(`STEAM(?:GAMES|POWERED)?\b`), "Steam", "Entertainment", "Gaming"},

		// Utilities
		{regexp.MustCompile(`COMCAST|XFINITY`), "Xfinity", "Utilities", "Internet"},
		{regexp.MustCompile(`VERIZON`), "Verizon", "Utilities", "Telecom"},
		{regexp.MustCompile(`AT\s*&\s*T\b`), "AT&T", "Utilities", "Telecom"},
		{regexp.MustCompile(`T-MOBILE|TMOBILE`), "T-Mobile", "Utilities", "Telecom"},
		{regexp.MustCompile(`VODAFONE`), "Vodafone", "Utilities", "Telecom"},
		{regexp.MustCompile(`BRITISH\s+GAS`), "British Gas", "Utilities", "Gas"},
		{regexp.MustCompile(`THAMES\s+WATER`), "Thames Water", "Utilities", "Water"},
		{regexp.MustCompile(`CON\s*ED|PG\s*&\s*E|DUKE\s+ENERGY`), "Electric Company", "Utilities", "Electricity"},

		// Health
		{regexp.MustCompile(`\bCVS\b`), "CVS", "Health", "Pharmacy"},
		{regexp.MustCompile(`WALGREENS`), "Walgreens", "Health", "Pharmacy"},
		{regexp.MustCompile(`\bBOOTS\b`), "Boots", "Health", "Pharmacy"},
		{regexp.MustCompile(`PLANET\s+FITNESS|PURE\s*GYM|EQUINOX`), "Gym", "Health", "Fitness"},

		// Finance
		{regexp.MustCompile(`PAYPAL`), "PayPal", "Transfers", "Payment Service"},
		{regexp.MustCompile(`VENMO`), "Venmo", "Transfers", "Payment Service"},
		{regexp.MustCompile(`ZELLE`), "Zelle", "Transfers", "Payment Service"},
		{regexp.MustCompile(`REVOLUT`), "Revolut", "Transfers", "Digital Bank"},
		{regexp.MustCompile(`WISE\b|TRANSFERWISE`), "Wise", "Transfers", "Payment Service"},
	}
	return patterns
}
