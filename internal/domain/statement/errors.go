package statement

import (
	"context"
	"errors"
)

// Configuration errors. Not retryable without operator action.
var (
	ErrOCRNotConfigured = errors.New("ocr engine not configured: set VISION_API_KEY to process scanned pages")
	ErrAINotConfigured  = errors.New("ai classifier not configured: set GEMINI_API_KEY to enable ai-enhanced mode")
	ErrOCRAuth          = errors.New("ocr engine authentication failed")
	ErrFeatureDisabled  = errors.New("feature not configured")
)

// Quota and rate errors. Retryable after backoff.
var (
	ErrOCRQuotaExceeded      = errors.New("ocr quota exceeded")
	ErrClassifierRateLimited = errors.New("ai classifier rate limited")
	ErrQuotaExceeded         = errors.New("monthly conversion quota exceeded")
	ErrRateLimited           = errors.New("too many requests")
)

// Validation errors.
var (
	ErrInvalidPDF       = errors.New("input is not a readable pdf document")
	ErrPageOutOfRange   = errors.New("page index out of range")
	ErrOCRInvalidFormat = errors.New("ocr engine rejected the page format")
	ErrValidation       = errors.New("validation error")
)

// Outcome errors.
var (
	ErrNoTransactions = errors.New("no transactions found in document")
	ErrTimeout        = errors.New("processing time budget exceeded")
	ErrNotFound       = errors.New("resource not found")
)

// ErrorKind groups errors by how a caller should react to them.
type ErrorKind string

const (
	KindConfiguration  ErrorKind = "configuration"
	KindQuota          ErrorKind = "quota"
	KindValidation     ErrorKind = "validation"
	KindNoTransactions ErrorKind = "no_transactions"
	KindTimeout        ErrorKind = "timeout"
	KindNotFound       ErrorKind = "not_found"
	KindInternal       ErrorKind = "internal"
)

// Kind classifies err. A nil error has no kind.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrOCRNotConfigured), errors.Is(err, ErrAINotConfigured), errors.Is(err, ErrOCRAuth),
		errors.Is(err, ErrFeatureDisabled):
		return KindConfiguration
	case errors.Is(err, ErrOCRQuotaExceeded), errors.Is(err, ErrClassifierRateLimited),
		errors.Is(err, ErrQuotaExceeded), errors.Is(err, ErrRateLimited):
		return KindQuota
	case errors.Is(err, ErrInvalidPDF), errors.Is(err, ErrPageOutOfRange),
		errors.Is(err, ErrOCRInvalidFormat), errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNoTransactions):
		return KindNoTransactions
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	}
	return KindInternal
}

// Retryable reports whether the same request may succeed after backoff.
func Retryable(err error) bool {
	k := Kind(err)
	return k == KindQuota || k == KindTimeout
}
