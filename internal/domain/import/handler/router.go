package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Health is pinged by /healthz when set.
	Health HealthChecker
}

// NewRouter builds the HTTP handler: request logging, panic recovery,
// CORS, health and metrics endpoints, and the import API under /api/v1.
func NewRouter(h *ImportHandler, logger *slog.Logger, opts RouterOptions) http.Handler {
	r := gin.New()
	r.Use(RequestLogger(logger), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	r.GET("/healthz", healthz(opts.Health))
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	v1 := r.Group("/api/v1", RequireUser())
	h.RegisterRoutes(v1)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", UserIDHeader, RequestIDHeader},
		ExposedHeaders: []string{"Content-Disposition", RequestIDHeader},
		MaxAge:         300,
	}).Handler(r)
}

func healthz(checker HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := checker.Health(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
