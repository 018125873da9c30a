package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/statementdesk/statement-desk/internal/domain/statement"
	"github.com/statementdesk/statement-desk/pkg/storage"
)

// StatusFor maps an error class to an HTTP status code.
func StatusFor(kind statement.ErrorKind) int {
	switch kind {
	case statement.KindConfiguration:
		return http.StatusServiceUnavailable
	case statement.KindQuota:
		return http.StatusTooManyRequests
	case statement.KindValidation:
		return http.StatusBadRequest
	case statement.KindNoTransactions:
		return http.StatusUnprocessableEntity
	case statement.KindTimeout:
		return http.StatusGatewayTimeout
	case statement.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Error     string              `json:"error"`
	ErrorKind statement.ErrorKind `json:"errorKind"`
	Retryable bool                `json:"retryable"`
}

func (h *ImportHandler) respondError(c *gin.Context, err error) {
	if errors.Is(err, storage.ErrNotFound) && !errors.Is(err, statement.ErrNotFound) {
		err = errors.Join(err, statement.ErrNotFound)
	}
	kind := statement.Kind(err)
	status := StatusFor(kind)

	logger := loggerFrom(c, h.logger)
	msg := err.Error()
	if status >= http.StatusInternalServerError && kind == statement.KindInternal {
		logger.Error("request failed", "error", err)
		msg = "internal error"
	} else {
		logger.Warn("request rejected", "kind", kind, "error", err)
	}

	c.AbortWithStatusJSON(status, errorResponse{
		Error:     msg,
		ErrorKind: kind,
		Retryable: statement.Retryable(err),
	})
}
