// Package pdftext turns a PDF statement into per-page plain text. Pages with
// a usable text layer are read directly; sparse pages are cut out and sent to
// an OCR engine one at a time.
package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/statementdesk/statement-desk/internal/domain/statement"
)

// PageBreak separates pages in Result.Joined.
const PageBreak = "\f"

// DefaultMinChars is the number of non-space characters below which a page
// is treated as a scanned image.
const DefaultMinChars = 40

// OCREngine recovers text from a one-page PDF. An empty string with a nil
// error means the page has no text.
type OCREngine interface {
	DetectText(ctx context.Context, pagePDF []byte) (string, error)
}

// PageText is the text of one page.
type PageText struct {
	Number int
	Text   string
	Method statement.ExtractionMethod
}

// Result is the text of every processed page, in page order.
type Result struct {
	Pages      []PageText
	PagesTotal int
	Truncated  bool
	OCRPages   []int
	Warnings   []string
}

// Method is "ocr" when the text of at least one page came from OCR.
func (r *Result) Method() statement.ExtractionMethod {
	if len(r.OCRPages) > 0 {
		return statement.MethodOCR
	}
	return statement.MethodNative
}

// Joined concatenates all page texts separated by PageBreak.
func (r *Result) Joined() string {
	parts := make([]string, len(r.Pages))
	for i, p := range r.Pages {
		parts[i] = p.Text
	}
	return strings.Join(parts, PageBreak)
}

// Extractor acquires page text. It is safe for concurrent use; it holds no
// per-document state.
type Extractor struct {
	ocr      OCREngine
	splitter PageSplitter
	open     OpenFunc
	minChars int
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option customises an Extractor.
type Option func(*Extractor)

// WithSplitter replaces the page splitter.
func WithSplitter(s PageSplitter) Option {
	return func(e *Extractor) { e.splitter = s }
}

// WithOpener replaces the text layer reader.
func WithOpener(open OpenFunc) Option {
	return func(e *Extractor) { e.open = open }
}

// WithMinChars sets the scanned-page threshold.
func WithMinChars(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.minChars = n
		}
	}
}

// NewExtractor creates an extractor. ocr may be nil: sparse pages then keep
// their native text, and only a document with no usable page at all fails
// with statement.ErrOCRNotConfigured.
func NewExtractor(ocr OCREngine, logger *slog.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		ocr:      ocr,
		splitter: PDFCPUSplitter{},
		open:     OpenNative,
		minChars: DefaultMinChars,
		logger:   logger,
		tracer:   otel.Tracer("statement-desk/pdftext"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract reads up to maxPages pages of data. Pages are accumulated as they
// are read, so when an error is returned the Result still holds every page
// acquired before it.
func (e *Extractor) Extract(ctx context.Context, data []byte, maxPages int, progress statement.ProgressFunc) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "pdftext.Extract")
	defer span.End()

	res := &Result{}
	if !looksLikePDF(data) {
		err := fmt.Errorf("%w: missing %%PDF header", statement.ErrInvalidPDF)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	if maxPages <= 0 {
		maxPages = statement.DefaultMaxPages
	}

	layer, total, err := e.openLayer(data)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	res.PagesTotal = total

	limit := total
	if total > maxPages {
		limit = maxPages
		res.Truncated = true
		msg := fmt.Sprintf("document has %d pages; only the first %d were processed", total, maxPages)
		res.Warnings = append(res.Warnings, msg)
		e.logger.Warn("page cap reached", "pages_total", total, "max_pages", maxPages)
	}
	span.SetAttributes(attribute.Int("pdf.pages_total", total), attribute.Int("pdf.pages_limit", limit))

	if layer == nil && e.ocr == nil {
		span.SetStatus(codes.Error, statement.ErrOCRNotConfigured.Error())
		return res, statement.ErrOCRNotConfigured
	}

	usable := false
	for page := 1; page <= limit; page++ {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("page %d: %w", page, err)
		}

		native := ""
		if layer != nil {
			native, err = layer.PageText(page)
			if err != nil {
				e.logger.Warn("native text extraction failed", "page", page, "error", err)
				native = ""
			}
		}

		pt := PageText{Number: page, Text: native, Method: statement.MethodNative}
		switch {
		case countNonSpace(native) >= e.minChars:
		case e.ocr == nil:
			msg := fmt.Sprintf("page %d: too little text and no ocr engine, kept native text", page)
			res.Warnings = append(res.Warnings, msg)
			e.logger.Warn("sparse page kept without ocr", "page", page, "chars", countNonSpace(native))
		default:
			text, err := e.ocrPage(ctx, data, page)
			switch {
			case err == nil:
				if countNonSpace(text) > countNonSpace(native) {
					pt.Text = text
					pt.Method = statement.MethodOCR
					res.OCRPages = append(res.OCRPages, page)
				}
			case fatalOCRError(err) || ctx.Err() != nil:
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return res, fmt.Errorf("page %d: %w", page, err)
			default:
				msg := fmt.Sprintf("page %d: ocr failed, kept native text: %v", page, err)
				res.Warnings = append(res.Warnings, msg)
				e.logger.Warn("ocr page failed", "page", page, "error", err)
			}
		}
		if countNonSpace(pt.Text) >= e.minChars {
			usable = true
		}

		res.Pages = append(res.Pages, pt)
		if progress != nil {
			progress(page, limit)
		}
	}

	// Without an engine a document with no usable text layer is a scan.
	if e.ocr == nil && !usable {
		span.SetStatus(codes.Error, statement.ErrOCRNotConfigured.Error())
		return res, statement.ErrOCRNotConfigured
	}

	span.SetAttributes(attribute.Int("pdf.ocr_pages", len(res.OCRPages)))
	return res, nil
}

// openLayer opens the text layer, falling back to a bare page count when
// the text reader cannot parse the file. In that case every page is OCR'd.
func (e *Extractor) openLayer(data []byte) (TextLayer, int, error) {
	layer, err := e.open(data)
	if err == nil {
		return layer, layer.PageCount(), nil
	}

	n, countErr := e.splitter.PageCount(data)
	if countErr != nil {
		return nil, 0, errors.Join(err, countErr)
	}
	e.logger.Warn("text layer unreadable, all pages need ocr", "pages", n, "error", err)
	return nil, n, nil
}

func (e *Extractor) ocrPage(ctx context.Context, data []byte, page int) (string, error) {
	ctx, span := e.tracer.Start(ctx, "pdftext.OCRPage", trace.WithAttributes(attribute.Int("pdf.page", page)))
	defer span.End()

	single, err := e.splitter.ExtractPage(data, page)
	if err != nil {
		return "", err
	}

	text, err := e.ocr.DetectText(ctx, single)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return text, nil
}

// fatalOCRError reports errors that mean the engine itself is unusable, as
// opposed to a problem with one page.
func fatalOCRError(err error) bool {
	return errors.Is(err, statement.ErrOCRNotConfigured) ||
		errors.Is(err, statement.ErrOCRAuth) ||
		errors.Is(err, statement.ErrOCRQuotaExceeded)
}

func looksLikePDF(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.Contains(head, []byte("%PDF-"))
}

func countNonSpace(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
