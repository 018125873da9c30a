// Package ocr adapts Google Cloud Vision document text detection to the
// page OCR contract used by text acquisition.
package ocr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"

	"github.com/statementdesk/statement-desk/internal/domain/statement"
)

const featureDocumentText = "DOCUMENT_TEXT_DETECTION"

// Google rejects a bad API key with 400 INVALID_ARGUMENT and this reason.
const reasonKeyInvalid = "API_KEY_INVALID"

// gRPC status codes carried in per-file Vision errors.
const (
	codeInvalidArgument   = 3
	codePermissionDenied  = 7
	codeResourceExhausted = 8
	codeUnauthenticated   = 16
)

// VisionEngine submits one-page PDFs to the Vision files:annotate endpoint.
// Build it once at start-up and share it.
type VisionEngine struct {
	svc    *vision.Service
	logger *slog.Logger
	tracer trace.Tracer
}

// NewVisionEngine creates an engine authenticated with an API key. An empty
// key yields statement.ErrOCRNotConfigured.
func NewVisionEngine(ctx context.Context, apiKey string, logger *slog.Logger, opts ...option.ClientOption) (*VisionEngine, error) {
	if apiKey == "" && len(opts) == 0 {
		return nil, statement.ErrOCRNotConfigured
	}
	if apiKey != "" {
		opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	}

	svc, err := vision.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create vision service: %w", err)
	}

	return &VisionEngine{
		svc:    svc,
		logger: logger,
		tracer: otel.Tracer("statement-desk/ocr"),
	}, nil
}

// DetectText returns the full text of the first page of pagePDF.
func (e *VisionEngine) DetectText(ctx context.Context, pagePDF []byte) (string, error) {
	ctx, span := e.tracer.Start(ctx, "ocr.DetectText", trace.WithAttributes(attribute.Int("ocr.bytes", len(pagePDF))))
	defer span.End()

	req := &vision.BatchAnnotateFilesRequest{
		Requests: []*vision.AnnotateFileRequest{{
			InputConfig: &vision.InputConfig{
				Content:  base64.StdEncoding.EncodeToString(pagePDF),
				MimeType: "application/pdf",
			},
			Features: []*vision.Feature{{Type: featureDocumentText}},
			Pages:    []int64{1},
		}},
	}

	resp, err := e.svc.Files.Annotate(req).Context(ctx).Do()
	if err != nil {
		span.RecordError(err)
		return "", mapError(err)
	}

	var b strings.Builder
	for _, file := range resp.Responses {
		if file.Error != nil && file.Error.Code != 0 {
			return "", mapStatus(file.Error)
		}
		for _, page := range file.Responses {
			if page.Error != nil && page.Error.Code != 0 {
				return "", mapStatus(page.Error)
			}
			if page.FullTextAnnotation == nil {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(page.FullTextAnnotation.Text)
		}
	}

	e.logger.Debug("ocr page processed", "chars", b.Len())
	return b.String(), nil
}

// mapError converts transport errors into the pipeline's error taxonomy.
func mapError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fmt.Errorf("vision annotate: %w", err)
	}

	switch {
	case gerr.Code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", statement.ErrOCRQuotaExceeded, gerr.Message)
	case gerr.Code == http.StatusUnauthorized, gerr.Code == http.StatusForbidden, keyRejected(gerr):
		return fmt.Errorf("%w: %s", statement.ErrOCRAuth, gerr.Message)
	case gerr.Code == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", statement.ErrOCRInvalidFormat, gerr.Message)
	}
	return fmt.Errorf("vision annotate: %w", err)
}

// keyRejected reports an invalid API key, which arrives as a 400.
func keyRejected(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		if item.Reason == reasonKeyInvalid || item.Reason == "keyInvalid" {
			return true
		}
	}
	for _, d := range gerr.Details {
		if m, ok := d.(map[string]interface{}); ok && m["reason"] == reasonKeyInvalid {
			return true
		}
	}
	return strings.Contains(gerr.Message, "API key not valid")
}

func mapStatus(s *vision.Status) error {
	switch s.Code {
	case codeResourceExhausted:
		return fmt.Errorf("%w: %s", statement.ErrOCRQuotaExceeded, s.Message)
	case codeUnauthenticated, codePermissionDenied:
		return fmt.Errorf("%w: %s", statement.ErrOCRAuth, s.Message)
	case codeInvalidArgument:
		if strings.Contains(s.Message, "API key not valid") {
			return fmt.Errorf("%w: %s", statement.ErrOCRAuth, s.Message)
		}
		return fmt.Errorf("%w: %s", statement.ErrOCRInvalidFormat, s.Message)
	}
	return fmt.Errorf("vision page error %d: %s", s.Code, s.Message)
}
