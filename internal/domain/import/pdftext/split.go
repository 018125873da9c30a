package pdftext

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/statementdesk/statement-desk/internal/domain/statement"
)

// PageSplitter cuts single pages out of a document.
type PageSplitter interface {
	// PageCount returns the number of pages without reading any text.
	PageCount(data []byte) (int, error)
	// ExtractPage returns page as a standalone one-page PDF.
	ExtractPage(data []byte, page int) ([]byte, error)
}

// PDFCPUSplitter implements PageSplitter with pdfcpu.
type PDFCPUSplitter struct{}

func (PDFCPUSplitter) PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", statement.ErrInvalidPDF, err)
	}
	return n, nil
}

func (s PDFCPUSplitter) ExtractPage(data []byte, page int) ([]byte, error) {
	if page < 1 {
		return nil, fmt.Errorf("%w: %d", statement.ErrPageOutOfRange, page)
	}

	var out bytes.Buffer
	if err := api.Trim(bytes.NewReader(data), &out, []string{strconv.Itoa(page)}, nil); err != nil {
		return nil, fmt.Errorf("extract page %d: %w", page, err)
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("%w: %d", statement.ErrPageOutOfRange, page)
	}
	return out.Bytes(), nil
}
