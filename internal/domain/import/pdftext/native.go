package pdftext

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dslipak/pdf"

	"github.com/statementdesk/statement-desk/internal/domain/statement"
)

// TextLayer gives page-by-page access to a document's embedded text.
// Pages are numbered from 1.
type TextLayer interface {
	PageCount() int
	PageText(page int) (string, error)
}

// OpenFunc opens the text layer of a PDF held in memory.
type OpenFunc func(data []byte) (TextLayer, error)

// nativeLayer reads the text layer with dslipak/pdf.
type nativeLayer struct {
	r *pdf.Reader
}

// OpenNative is the default OpenFunc.
func OpenNative(data []byte) (layer TextLayer, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			layer, err = nil, fmt.Errorf("%w: %v", statement.ErrInvalidPDF, rec)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", statement.ErrInvalidPDF, err)
	}
	return &nativeLayer{r: r}, nil
}

func (l *nativeLayer) PageCount() int {
	return l.r.NumPage()
}

// PageText rebuilds reading order by grouping glyphs into rows on their
// baseline and sorting each row left to right. Wide horizontal gaps are
// kept as two spaces so column boundaries survive.
func (l *nativeLayer) PageText(page int) (text string, err error) {
	if page < 1 || page > l.r.NumPage() {
		return "", fmt.Errorf("%w: %d", statement.ErrPageOutOfRange, page)
	}

	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("read page %d: %v", page, rec)
		}
	}()

	p := l.r.Page(page)
	if p.V.IsNull() {
		return "", nil
	}

	return joinGlyphs(p.Content().Text), nil
}

type glyph struct {
	x, y, w, size float64
	s             string
}

const rowTolerance = 2.0

func joinGlyphs(texts []pdf.Text) string {
	if len(texts) == 0 {
		return ""
	}

	glyphs := make([]glyph, 0, len(texts))
	for _, t := range texts {
		if t.S == "" {
			continue
		}
		glyphs = append(glyphs, glyph{x: t.X, y: t.Y, w: t.W, size: t.FontSize, s: t.S})
	}

	// Top of the page first; PDF y grows upwards.
	sort.SliceStable(glyphs, func(i, j int) bool {
		if math.Abs(glyphs[i].y-glyphs[j].y) > rowTolerance {
			return glyphs[i].y > glyphs[j].y
		}
		return glyphs[i].x < glyphs[j].x
	})

	var rows [][]glyph
	for _, g := range glyphs {
		n := len(rows)
		if n > 0 && math.Abs(rows[n-1][0].y-g.y) <= rowTolerance {
			rows[n-1] = append(rows[n-1], g)
			continue
		}
		rows = append(rows, []glyph{g})
	}

	var b strings.Builder
	for i, row := range rows {
		sort.SliceStable(row, func(a, c int) bool { return row[a].x < row[c].x })
		if i > 0 {
			b.WriteByte('\n')
		}
		end := row[0].x
		for j, g := range row {
			if j > 0 {
				gap := g.x - end
				size := g.size
				if size <= 0 {
					size = 10
				}
				switch {
				case gap > size*1.5:
					b.WriteString("  ")
				case gap > size*0.15:
					b.WriteByte(' ')
				}
			}
			b.WriteString(g.s)
			end = g.x + g.w
		}
	}

	return b.String()
}
