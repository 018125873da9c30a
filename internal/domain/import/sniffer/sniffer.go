// Package sniffer detects the layout of a transactions CSV: delimiter,
// preamble lines before the header and the date order of the data rows.
package sniffer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

// headerKeywords appear in export headers and common hand-edited variants.
var headerKeywords = []string{
	"date", "description", "amount", "debit", "credit", "balance", "category",
	"merchant", "type", "confidence", "source file",
	"fecha", "descripción", "descripcion", "importe", "saldo", "datum", "betrag",
}

// maxHeaderSearch bounds how far down a preamble may push the header.
const maxHeaderSearch = 20

var (
	ErrEmptyFile      = errors.New("file is empty")
	ErrNoHeadersFound = errors.New("could not find data headers")
)

// Config is the detected layout of a file.
type Config struct {
	Delimiter rune
	// SkipLines is the number of lines before the header row.
	SkipLines int
	Headers   []string
	// DayFirst is true when a data row has a numeric date whose first
	// part can only be a day (13 to 31).
	DayFirst bool
}

// Detect inspects data and returns its layout.
func Detect(data []byte) (*Config, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}
	lines := strings.Split(string(data), "\n")

	delimiter, skip, err := findHeaderRow(lines)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(cleanLine(lines[skip], skip == 0)))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	headers, err := reader.Read()
	if err != nil {
		return nil, err
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	cfg := &Config{Delimiter: delimiter, SkipLines: skip, Headers: headers}
	if dateIdx := columnIndex(headers, "date", "fecha", "datum"); dateIdx >= 0 {
		for _, row := range sampleRows(Body(data, skip), delimiter, 50) {
			if dateIdx < len(row) && dayFirst(row[dateIdx]) {
				cfg.DayFirst = true
				break
			}
		}
	}
	return cfg, nil
}

// Body returns data starting at line skip.
func Body(data []byte, skip int) []byte {
	for i := 0; i < skip; i++ {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			return nil
		}
		data = data[idx+1:]
	}
	return data
}

// findHeaderRow returns the delimiter and index of the header: the
// earliest line with the most keyword hits, otherwise the widest line.
func findHeaderRow(lines []string) (rune, int, error) {
	keywordIndex, keywordDelim, keywordMatches := -1, rune(0), 1
	fallbackIndex, fallbackDelim, fallbackCount := -1, rune(0), 0

	for i, line := range lines {
		if i >= maxHeaderSearch {
			break
		}
		line = cleanLine(line, i == 0)
		if line == "" {
			continue
		}
		delimiter, count := detectDelimiter(line)
		if count < 1 {
			continue
		}

		lower := strings.ToLower(line)
		matches := 0
		for _, kw := range headerKeywords {
			if strings.Contains(lower, kw) {
				matches++
			}
		}

		if matches > keywordMatches {
			keywordIndex, keywordDelim, keywordMatches = i, delimiter, matches
		} else if matches < 2 && count > fallbackCount {
			fallbackIndex, fallbackDelim, fallbackCount = i, delimiter, count
		}
	}

	switch {
	case keywordIndex >= 0:
		return keywordDelim, keywordIndex, nil
	case fallbackCount >= 2:
		return fallbackDelim, fallbackIndex, nil
	}
	return 0, 0, ErrNoHeadersFound
}

func cleanLine(line string, firstLine bool) string {
	line = strings.TrimRight(line, "\r")
	if firstLine {
		line = strings.TrimPrefix(line, "\uFEFF")
	}
	return strings.TrimSpace(line)
}

// detectDelimiter counts candidate separators outside quotes.
func detectDelimiter(line string) (rune, int) {
	best, bestCount := rune(0), 0
	for _, d := range []rune{',', ';', '\t', '|'} {
		count, quoted := 0, false
		for _, r := range line {
			switch {
			case r == '"':
				quoted = !quoted
			case r == d && !quoted:
				count++
			}
		}
		if count > bestCount {
			best, bestCount = d, count
		}
	}
	return best, bestCount
}

func columnIndex(headers []string, names ...string) int {
	for i, h := range headers {
		h = strings.ToLower(h)
		for _, n := range names {
			if h == n {
				return i
			}
		}
	}
	return -1
}

// dayFirst reports whether a numeric date must be read day first.
func dayFirst(value string) bool {
	parts := strings.FieldsFunc(strings.TrimSpace(value), func(r rune) bool {
		return r == '/' || r == '-' || r == '.'
	})
	if len(parts) < 3 || len(parts[0]) == 4 {
		return false
	}
	day := 0
	for _, c := range parts[0] {
		if c < '0' || c > '9' {
			return false
		}
		day = day*10 + int(c-'0')
	}
	return day > 12 && day <= 31
}

func sampleRows(data []byte, delimiter rune, maxRows int) [][]string {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var rows [][]string
	if _, err := reader.Read(); err != nil {
		return nil
	}
	for len(rows) < maxRows {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		rows = append(rows, record)
	}
	return rows
}
