// Package pipeline assembles the statement pipeline from configuration.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/statementdesk/statement-desk/internal/domain/categorization"
	"github.com/statementdesk/statement-desk/internal/domain/export"
	"github.com/statementdesk/statement-desk/internal/domain/import/aiclassifier"
	"github.com/statementdesk/statement-desk/internal/domain/import/enrich"
	"github.com/statementdesk/statement-desk/internal/domain/import/normalizer"
	"github.com/statementdesk/statement-desk/internal/domain/import/ocr"
	"github.com/statementdesk/statement-desk/internal/domain/import/parser"
	"github.com/statementdesk/statement-desk/internal/domain/import/pdftext"
	"github.com/statementdesk/statement-desk/internal/domain/import/service"
	"github.com/statementdesk/statement-desk/internal/domain/statement"
	"github.com/statementdesk/statement-desk/pkg/observability"
)

// Config selects the optional engines and tunes the stages.
type Config struct {
	VisionAPIKey         string
	GeminiAPIKey         string
	GeminiModel          string
	MinNativeChars       int
	Timeout              time.Duration
	LargeAmountThreshold float64
}

// Pipeline is the assembled service plus the resources it owns.
type Pipeline struct {
	*service.Service
	// OCREnabled and AIEnabled report which optional engines were built.
	OCREnabled bool
	AIEnabled  bool

	categorizer *categorization.Service
}

// Build wires extraction, segmentation, enrichment and export. Missing API
// keys leave the matching engine unconfigured instead of failing.
// overrides and metrics may be nil.
func Build(ctx context.Context, cfg Config, overrides service.OverrideSource, metrics *observability.Metrics, logger *slog.Logger) (*Pipeline, error) {
	p := &Pipeline{}

	var ocrEngine pdftext.OCREngine
	engine, err := ocr.NewVisionEngine(ctx, cfg.VisionAPIKey, logger)
	switch {
	case errors.Is(err, statement.ErrOCRNotConfigured):
		logger.Warn("vision api key not set, scanned pages will fail")
	case err != nil:
		return nil, fmt.Errorf("failed to init ocr engine: %w", err)
	default:
		ocrEngine = engine
		p.OCREnabled = true
	}

	var classifier enrich.Classifier
	gemini, err := aiclassifier.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
	switch {
	case errors.Is(err, statement.ErrAINotConfigured):
		logger.Warn("gemini api key not set, ai enhancement degrades to rules")
	case err != nil:
		return nil, fmt.Errorf("failed to init ai classifier: %w", err)
	default:
		classifier = gemini
		p.AIEnabled = true
	}

	categorizer, err := categorization.NewDefaultService(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init categorizer: %w", err)
	}
	p.categorizer = categorizer

	detectorCfg := enrich.DetectorConfig{}
	if cfg.LargeAmountThreshold > 0 {
		detectorCfg.LargeAmount = decimal.NewFromFloat(cfg.LargeAmountThreshold)
	}

	opts := []service.Option{service.WithMetrics(metrics)}
	if cfg.Timeout > 0 {
		opts = append(opts, service.WithTimeout(cfg.Timeout))
	}
	if overrides != nil {
		opts = append(opts, service.WithOverrides(overrides))
	}

	p.Service = service.NewService(
		pdftext.NewExtractor(ocrEngine, logger, pdftext.WithMinChars(cfg.MinNativeChars)),
		parser.NewSegmenter(logger),
		enrich.NewEnricher(normalizer.NewMerchantSanitizer(), categorizer, enrich.NewDetector(detectorCfg), classifier, logger),
		export.NewExporter(logger),
		logger,
		opts...,
	)
	return p, nil
}

// Close releases the categorizer's search index.
func (p *Pipeline) Close() error {
	if p.categorizer == nil {
		return nil
	}
	return p.categorizer.Close()
}
