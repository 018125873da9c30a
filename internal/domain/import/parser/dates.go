package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// dateStyle is the textual shape of a date token.
type dateStyle int

const (
	styleNone dateStyle = iota
	styleISO
	styleSlash
	styleDotted
	styleDayMonth
	styleMonthDay
	styleShort
)

// slashOrder resolves ambiguous numeric dates for a whole document.
type slashOrder int

const (
	orderMDY slashOrder = iota
	orderDMY
)

type datePattern struct {
	style dateStyle
	re    *regexp.Regexp
	float *regexp.Regexp
}

func newDatePattern(style dateStyle, body string) datePattern {
	return datePattern{
		style: style,
		re:    regexp.MustCompile(`^\s*` + body),
		float: regexp.MustCompile(`(?:^|\s)` + body),
	}
}

// Order matters: longer forms are tried before their prefixes.
var datePatterns = []datePattern{
	newDatePattern(styleISO, `(\d{4})[-/](\d{1,2})[-/](\d{1,2})\b`),
	newDatePattern(styleSlash, `(\d{1,2})[/-](\d{1,2})[/-](\d{4}|\d{2})\b`),
	newDatePattern(styleDotted, `(\d{1,2})\.(\d{1,2})\.(\d{4}|\d{2})\b`),
	newDatePattern(styleDayMonth, `(\d{1,2})[ -]([A-Za-z]{3,9})\.?(?:[ -]|, ?)(\d{4}|\d{2})(?:\s|$)`),
	newDatePattern(styleMonthDay, `([A-Za-z]{3,9})\.? (\d{1,2}),? (\d{4})\b`),
	newDatePattern(styleShort, `(\d{1,2})[ -]([A-Za-z]{3,9})\b\.?`),
	newDatePattern(styleShort, `([A-Za-z]{3,9})\.? (\d{1,2})\b`),
	newDatePattern(styleShort, `(\d{1,2})/(\d{1,2})\b`),
}

var monthNames = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

// dateToken is a date found in a line before it is resolved against the
// document's slash order and reference year.
type dateToken struct {
	style   dateStyle
	day     int
	month   int
	first   int // raw numeric components for slash and short forms
	second  int
	year    int
	hasYear bool
	start   int
	end     int
}

// matchDate finds a date at the start of line.
func matchDate(line string) (dateToken, bool) {
	for _, p := range datePatterns {
		loc := p.re.FindStringSubmatchIndex(line)
		if loc == nil {
			continue
		}
		if tok, ok := buildToken(p.style, line, loc); ok {
			return tok, true
		}
	}
	return dateToken{}, false
}

// findDate finds the first full date anywhere in line. Yearless forms are
// not accepted here since they collide with too many reference numbers.
func findDate(line string) (dateToken, bool) {
	best := dateToken{start: -1}
	for _, p := range datePatterns {
		if p.style == styleShort {
			continue
		}
		loc := p.float.FindStringSubmatchIndex(line)
		if loc == nil {
			continue
		}
		tok, ok := buildToken(p.style, line, loc)
		if !ok {
			continue
		}
		if best.start < 0 || loc[2] < best.start {
			best = tok
		}
	}
	return best, best.start >= 0
}

func buildToken(style dateStyle, line string, loc []int) (dateToken, bool) {
	group := func(i int) string {
		if loc[2*i] < 0 {
			return ""
		}
		return line[loc[2*i]:loc[2*i+1]]
	}
	tok := dateToken{style: style, start: loc[2], end: loc[1]}

	switch style {
	case styleISO:
		tok.year, _ = strconv.Atoi(group(1))
		tok.month, _ = strconv.Atoi(group(2))
		tok.day, _ = strconv.Atoi(group(3))
		tok.hasYear = true
	case styleSlash:
		tok.first, _ = strconv.Atoi(group(1))
		tok.second, _ = strconv.Atoi(group(2))
		tok.year = expandYear(group(3))
		tok.hasYear = true
	case styleDotted:
		tok.day, _ = strconv.Atoi(group(1))
		tok.month, _ = strconv.Atoi(group(2))
		tok.year = expandYear(group(3))
		tok.hasYear = true
	case styleDayMonth:
		m, ok := monthNames[strings.ToLower(group(2))]
		if !ok {
			return dateToken{}, false
		}
		tok.day, _ = strconv.Atoi(group(1))
		tok.month = int(m)
		tok.year = expandYear(group(3))
		tok.hasYear = true
	case styleMonthDay:
		m, ok := monthNames[strings.ToLower(group(1))]
		if !ok {
			return dateToken{}, false
		}
		tok.month = int(m)
		tok.day, _ = strconv.Atoi(group(2))
		tok.year, _ = strconv.Atoi(group(3))
		tok.hasYear = true
	case styleShort:
		a, b := group(1), group(2)
		switch {
		case isAlpha(a):
			m, ok := monthNames[strings.ToLower(a)]
			if !ok {
				return dateToken{}, false
			}
			tok.month = int(m)
			tok.day, _ = strconv.Atoi(b)
		case isAlpha(b):
			m, ok := monthNames[strings.ToLower(b)]
			if !ok {
				return dateToken{}, false
			}
			tok.month = int(m)
			tok.day, _ = strconv.Atoi(a)
		default:
			tok.first, _ = strconv.Atoi(a)
			tok.second, _ = strconv.Atoi(b)
		}
	}
	return tok, true
}

// numeric reports whether day and month still depend on the slash order.
func (t dateToken) numeric() bool {
	return t.style == styleSlash || (t.style == styleShort && t.first > 0)
}

// resolve turns the token into a calendar date. refYear supplies the year
// for yearless forms given their month.
func (t dateToken) resolve(order slashOrder, refYear func(time.Month) (int, bool)) (civil.Date, bool) {
	day, month, year := t.day, t.month, t.year
	if t.numeric() {
		if order == orderDMY {
			day, month = t.first, t.second
		} else {
			month, day = t.first, t.second
		}
	}
	if !t.hasYear {
		y, ok := refYear(time.Month(month))
		if !ok {
			return civil.Date{}, false
		}
		year = y
	}
	d := civil.Date{Year: year, Month: time.Month(month), Day: day}
	return d, d.IsValid()
}

// format names the layout implied by a date style.
func (t dateToken) format(order slashOrder) string {
	switch t.style {
	case styleISO:
		return FormatISOSigned
	case styleSlash:
		if order == orderDMY {
			return FormatUKPaidInOut
		}
		return FormatUSDebitCredit
	case styleMonthDay:
		return FormatUSDebitCredit
	case styleDayMonth:
		return FormatUKPaidInOut
	case styleDotted:
		return FormatEUComma
	}
	return FormatShortDate
}

// parseDate parses a standalone date string such as a CSV cell or a
// header value.
func parseDate(s string, order slashOrder) (civil.Date, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return civil.Date{}, false
	}
	if d, err := civil.ParseDate(s); err == nil {
		return d, true
	}

	formats := []string{
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02 15:04:05",
		"02/01/2006 15:04",
		"01/02/2006 15:04",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return civil.DateOf(t), true
		}
	}

	tok, ok := matchDate(s)
	if !ok || !tok.hasYear {
		return civil.Date{}, false
	}
	return tok.resolve(order, nil)
}

func expandYear(s string) int {
	y, _ := strconv.Atoi(s)
	if len(s) == 2 {
		y += 2000
	}
	return y
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
