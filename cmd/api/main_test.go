package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statementdesk/statement-desk/pkg/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestInitDependencies_WithoutDatabase(t *testing.T) {
	t.Setenv("DATABASE_ENABLED", "false")
	t.Setenv("STORAGE_LOCAL_PATH", t.TempDir())
	t.Setenv("VISION_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("RESEND_API_KEY", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	deps, err := InitDependencies(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(deps.Cleanup)

	assert.Nil(t, deps.DB)
	assert.Nil(t, deps.Scheduler)
	assert.False(t, deps.Pipeline.OCREnabled)
	assert.False(t, deps.Mailer.Enabled())

	rec := httptest.NewRecorder()
	deps.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversions/00000000-0000-0000-0000-000000000001/transactions", nil)
	req.Header.Set("X-User-ID", "user-1")
	rec = httptest.NewRecorder()
	deps.Router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	deps.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
