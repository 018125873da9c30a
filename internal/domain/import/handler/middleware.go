package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/statementdesk/statement-desk/internal/domain/statement"
)

type contextKey string

const (
	loggerKey = contextKey("logger")
	userIDKey = contextKey("userID")
)

// UserIDHeader carries the caller's identity. Authentication happens in
// front of this service.
const UserIDHeader = "X-User-ID"

// RequestIDHeader is echoed on every response.
const RequestIDHeader = "X-Request-ID"

// RequestLogger injects a request-scoped logger and logs completion.
func RequestLogger(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}

		logger := base.With(
			slog.String("request_id", requestID),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
		)
		c.Header(RequestIDHeader, requestID)
		c.Set(string(loggerKey), logger)

		c.Next()

		logger.Info("request completed",
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		)
	}
}

// RequireUser rejects requests without an X-User-ID header.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserIDHeader)
		if userID == "" || len(userID) > 128 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid " + UserIDHeader + " header"})
			return
		}
		c.Set(string(userIDKey), userID)
		c.Next()
	}
}

// multipartOverhead covers form fields and part headers around the files.
const multipartOverhead = 1 << 20

// LimitBody caps the request body at n bytes before multipart parsing
// spools it to memory or disk.
func LimitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > n {
			abortTooLarge(c, n)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}

func abortTooLarge(c *gin.Context, limit int64) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, errorResponse{
		Error:     fmt.Sprintf("request body exceeds %d bytes", limit),
		ErrorKind: statement.KindValidation,
	})
}

// bodyTooLarge reports whether err came from a LimitBody cap, and the cap.
func bodyTooLarge(err error) (int64, bool) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return maxErr.Limit, true
	}
	return 0, false
}

func loggerFrom(c *gin.Context, fallback *slog.Logger) *slog.Logger {
	if v, ok := c.Get(string(loggerKey)); ok {
		if l, ok := v.(*slog.Logger); ok {
			return l
		}
	}
	return fallback
}

func userIDFrom(c *gin.Context) string {
	return c.GetString(string(userIDKey))
}
