// Package service wires the statement pipeline into one call: text
// acquisition, segmentation and enrichment under an explicit time budget,
// plus rendering of exports.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/statementdesk/statement-desk/internal/domain/import/enrich"
	"github.com/statementdesk/statement-desk/internal/domain/import/normalizer"
	"github.com/statementdesk/statement-desk/internal/domain/import/parser"
	"github.com/statementdesk/statement-desk/internal/domain/import/pdftext"
	"github.com/statementdesk/statement-desk/internal/domain/statement"
	"github.com/statementdesk/statement-desk/pkg/observability"
)

// DefaultTimeout is the wall-clock budget of one Parse call.
const DefaultTimeout = 5 * time.Minute

// PreviewSize is the number of leading and trailing rows in a Preview.
const PreviewSize = 5

// TextExtractor acquires page text from a PDF.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, maxPages int, progress statement.ProgressFunc) (*pdftext.Result, error)
}

// RowSegmenter splits page text into rows.
type RowSegmenter interface {
	Segment(text string) (*parser.Segmentation, error)
}

// RowEnricher turns rows into transactions.
type RowEnricher interface {
	Enrich(ctx context.Context, rows []parser.RawRow, opts enrich.Options) (*enrich.Outcome, error)
}

// OverrideSource loads a user's merchant corrections.
type OverrideSource interface {
	GetOverridesForUser(ctx context.Context, userID string) (normalizer.Overrides, error)
	RecordMatches(ctx context.Context, ids []uuid.UUID) error
}

// Exporter renders transactions to a file.
type Exporter interface {
	Export(txs []statement.Transaction, format statement.Format, scope statement.Scope, baseName string) (*statement.ExportArtifact, error)
}

// ExportRequest is a validated export call.
type ExportRequest struct {
	Transactions []statement.Transaction `validate:"required,min=1"`
	Format       statement.Format        `validate:"required,oneof=csv excel"`
	Scope        statement.Scope         `validate:"omitempty,oneof=single bulk"`
	BaseName     string                  `validate:"max=255"`
}

// Preview is the head and tail of a transaction list.
type Preview struct {
	First []statement.Transaction `json:"first"`
	Last  []statement.Transaction `json:"last"`
}

// PreviewOf returns the first and last PreviewSize transactions. Lists no
// longer than PreviewSize have an empty Last.
func PreviewOf(txs []statement.Transaction) Preview {
	p := Preview{First: []statement.Transaction{}, Last: []statement.Transaction{}}
	if len(txs) <= PreviewSize {
		p.First = append(p.First, txs...)
		return p
	}
	p.First = append(p.First, txs[:PreviewSize]...)
	tail := len(txs) - PreviewSize
	if tail < PreviewSize {
		tail = PreviewSize
	}
	p.Last = append(p.Last, txs[tail:]...)
	return p
}

// Service runs the statement pipeline. It keeps no per-document state.
type Service struct {
	extractor TextExtractor
	segmenter RowSegmenter
	enricher  RowEnricher
	exporter  Exporter
	overrides OverrideSource
	metrics   *observability.Metrics
	validate  *validator.Validate
	tracer    trace.Tracer
	timeout   time.Duration
	logger    *slog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithTimeout sets the Parse budget. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithOverrides enables per-user merchant overrides.
func WithOverrides(o OverrideSource) Option {
	return func(s *Service) { s.overrides = o }
}

// WithMetrics records pipeline metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates the pipeline service.
func NewService(extractor TextExtractor, segmenter RowSegmenter, enricher RowEnricher, exporter Exporter, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		extractor: extractor,
		segmenter: segmenter,
		enricher:  enricher,
		exporter:  exporter,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		tracer:    otel.Tracer("statement-desk/import"),
		timeout:   DefaultTimeout,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Parse converts a PDF statement into transactions. It always returns a
// result; when err is non-nil the result has Success false, no
// transactions and the error text, plus whatever metadata was collected.
func (s *Service) Parse(ctx context.Context, data []byte, opts statement.ParseOptions) (result *statement.ParseResult, err error) {
	started := time.Now()
	meta := statement.Metadata{}

	ctx, span := s.tracer.Start(ctx, "import.Parse", trace.WithAttributes(
		attribute.Bool("parse.ai_enhanced", opts.AIEnhanced),
		attribute.Int("parse.max_pages", opts.PageLimit()),
		attribute.Int("parse.bytes", len(data)),
	))
	defer span.End()

	logger := s.logger.With("file", opts.FileName, "user_id", opts.UserID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("parse panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: reader failed: %v", statement.ErrInvalidPDF, r)
			result = nil
		}
		if err != nil {
			meta.ProcessingTime = time.Since(started)
			result = statement.Failed(err, meta)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.metrics.ObserveParse(string(meta.ExtractionMethod), string(statement.Kind(err)), meta.ProcessingTime, meta.PagesProcessed-len(meta.OCRPages), len(meta.OCRPages), 0)
			logger.Warn("parse failed", "kind", statement.Kind(err), "error", err, "elapsed", meta.ProcessingTime)
		}
	}()

	if err := s.validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("%w: %v", statement.ErrValidation, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty document", statement.ErrInvalidPDF)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, err := s.extractor.Extract(ctx, data, opts.PageLimit(), opts.OnProgress)
	if text != nil {
		meta.PagesTotal = text.PagesTotal
		meta.PagesProcessed = len(text.Pages)
		meta.Truncated = text.Truncated
		meta.OCRPages = text.OCRPages
		meta.ExtractionMethod = text.Method()
		meta.Warnings = append(meta.Warnings, text.Warnings...)
	}
	if err != nil {
		return nil, s.budgetError(ctx, "extract text", err)
	}

	seg, err := s.segmenter.Segment(text.Joined())
	if seg != nil {
		meta.Layout = seg.Layout
		meta.FallbackRows = seg.FallbackRows
		meta.Warnings = append(meta.Warnings, seg.Warnings...)
	}
	if err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}
	if seg.Layout != nil && seg.FallbackRows > 0 {
		logger.Warn("layout fallback used", "layout", seg.Layout.Name(), "fallback_rows", seg.FallbackRows)
	}
	if err := ctx.Err(); err != nil {
		return nil, s.budgetError(ctx, "segment", err)
	}

	currency := ""
	if seg.Header.Account != nil {
		currency = seg.Header.Account.Currency
	}
	overrides := s.loadOverrides(ctx, opts.UserID, logger)

	outcome, err := s.enricher.Enrich(ctx, seg.Rows, enrich.Options{
		AIEnhanced: opts.AIEnhanced,
		SourceFile: opts.FileName,
		Overrides:  overrides,
		BankType:   seg.Header.BankType,
		Currency:   currency,
	})
	if err != nil {
		return nil, s.budgetError(ctx, "enrich", err)
	}
	meta.AIEnhanced = outcome.AIEnhanced
	meta.Warnings = append(meta.Warnings, outcome.Warnings...)
	s.recordOverrides(ctx, outcome.OverridesApplied, logger)

	meta.ProcessingTime = time.Since(started)
	result = &statement.ParseResult{
		Success:         true,
		Transactions:    outcome.Transactions,
		BankType:        seg.Header.BankType,
		AccountInfo:     seg.Header.Account,
		StatementPeriod: seg.Period,
		Metadata:        meta,
		AIInsights:      outcome.Insights,
	}

	span.SetAttributes(
		attribute.String("parse.method", string(meta.ExtractionMethod)),
		attribute.Int("parse.transactions", len(result.Transactions)),
		attribute.Bool("parse.truncated", meta.Truncated),
	)
	s.metrics.ObserveParse(string(meta.ExtractionMethod), "success", meta.ProcessingTime,
		meta.PagesProcessed-len(meta.OCRPages), len(meta.OCRPages), len(result.Transactions))
	logger.Info("statement parsed",
		"transactions", len(result.Transactions),
		"method", meta.ExtractionMethod,
		"pages", meta.PagesProcessed,
		"pages_total", meta.PagesTotal,
		"truncated", meta.Truncated,
		"ai_enhanced", meta.AIEnhanced,
		"elapsed", meta.ProcessingTime,
	)
	return result, nil
}

// ExportTransactions renders transactions as CSV or Excel.
func (s *Service) ExportTransactions(ctx context.Context, req ExportRequest) (*statement.ExportArtifact, error) {
	_, span := s.tracer.Start(ctx, "import.Export", trace.WithAttributes(
		attribute.String("export.format", string(req.Format)),
		attribute.String("export.scope", string(req.Scope)),
		attribute.Int("export.rows", len(req.Transactions)),
	))
	defer span.End()

	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", statement.ErrValidation, err)
	}
	scope := req.Scope
	if scope == "" {
		scope = statement.ScopeSingle
	}

	art, err := s.exporter.Export(req.Transactions, req.Format, scope, req.BaseName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	s.metrics.ObserveExport(string(req.Format), string(scope))
	return art, nil
}

// budgetError reports a stage failure, naming the time budget when it ran
// out.
func (s *Service) budgetError(ctx context.Context, stage string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w after %s", stage, statement.ErrTimeout, s.timeout)
	}
	return fmt.Errorf("%s: %w", stage, err)
}

func (s *Service) loadOverrides(ctx context.Context, userID string, logger *slog.Logger) normalizer.Overrides {
	if s.overrides == nil || userID == "" {
		return nil
	}
	overrides, err := s.overrides.GetOverridesForUser(ctx, userID)
	if err != nil {
		logger.Warn("failed to load merchant overrides", "error", err)
		return nil
	}
	return overrides
}

func (s *Service) recordOverrides(ctx context.Context, ids []uuid.UUID, logger *slog.Logger) {
	if s.overrides == nil || len(ids) == 0 {
		return
	}
	if err := s.overrides.RecordMatches(ctx, ids); err != nil {
		logger.Warn("failed to record override matches", "error", err)
	}
}
