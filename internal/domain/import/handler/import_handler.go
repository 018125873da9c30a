// Package handler exposes the statement pipeline over HTTP.
package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/statementdesk/statement-desk/internal/domain/export"
	"github.com/statementdesk/statement-desk/internal/domain/import/batch"
	"github.com/statementdesk/statement-desk/internal/domain/import/normalizer"
	"github.com/statementdesk/statement-desk/internal/domain/import/repository"
	"github.com/statementdesk/statement-desk/internal/domain/import/service"
	"github.com/statementdesk/statement-desk/internal/domain/statement"
	"github.com/statementdesk/statement-desk/pkg/storage"
)

const (
	defaultMaxUploadBytes = 25 << 20
	defaultMaxBatchFiles  = 20
)

// Pipeline parses and exports statements.
type Pipeline interface {
	Parse(ctx context.Context, data []byte, opts statement.ParseOptions) (*statement.ParseResult, error)
	ExportTransactions(ctx context.Context, req service.ExportRequest) (*statement.ExportArtifact, error)
}

// QuotaChecker is consulted before a parse.
type QuotaChecker interface {
	Check(ctx context.Context, userID string) error
}

// ConversionStore persists conversions, transactions and artifacts.
type ConversionStore interface {
	Record(ctx context.Context, userID, fileName string, res *statement.ParseResult) (uuid.UUID, error)
	GetConversion(ctx context.Context, userID string, id uuid.UUID) (*repository.Conversion, error)
	ListTransactions(ctx context.Context, userID string, conversionID uuid.UUID) ([]statement.Transaction, error)
	UpdateTransaction(ctx context.Context, userID string, txID uuid.UUID, patch repository.TransactionPatch) (*statement.Transaction, error)
	CreateArtifact(ctx context.Context, a *repository.Artifact) error
	GetArtifact(ctx context.Context, userID string, id uuid.UUID) (*repository.Artifact, error)
}

// OverrideManager stores a user's merchant corrections.
type OverrideManager interface {
	SaveOverride(ctx context.Context, override normalizer.MerchantOverride) (*normalizer.MerchantOverride, error)
	GetOverridesForUser(ctx context.Context, userID string) (normalizer.Overrides, error)
	DeleteOverride(ctx context.Context, userID string, overrideID uuid.UUID) error
}

// BatchRunner converts several documents in one job.
type BatchRunner interface {
	Run(ctx context.Context, userID string, files []batch.File, opts batch.Options) (*batch.Result, error)
}

// Config limits request sizes. Zero values take the defaults.
type Config struct {
	MaxUploadBytes int64
	MaxBatchFiles  int
}

// ImportHandler serves the statement endpoints.
type ImportHandler struct {
	pipeline  Pipeline
	quota     QuotaChecker
	store     ConversionStore
	overrides OverrideManager
	batch     BatchRunner
	files     storage.Storage
	validate  *validator.Validate
	cfg       Config
	logger    *slog.Logger
}

// Deps are the collaborators of an ImportHandler. Only Pipeline is
// required; endpoints whose collaborator is missing answer 503.
type Deps struct {
	Pipeline  Pipeline
	Quota     QuotaChecker
	Store     ConversionStore
	Overrides OverrideManager
	Batch     BatchRunner
	Files     storage.Storage
}

// NewImportHandler creates a new import handler
func NewImportHandler(deps Deps, cfg Config, logger *slog.Logger) *ImportHandler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.MaxBatchFiles <= 0 {
		cfg.MaxBatchFiles = defaultMaxBatchFiles
	}
	return &ImportHandler{
		pipeline:  deps.Pipeline,
		quota:     deps.Quota,
		store:     deps.Store,
		overrides: deps.Overrides,
		batch:     deps.Batch,
		files:     deps.Files,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		cfg:       cfg,
		logger:    logger,
	}
}

// RegisterRoutes mounts the endpoints on rg.
func (h *ImportHandler) RegisterRoutes(rg gin.IRouter) {
	rg.POST("/parse", LimitBody(h.cfg.MaxUploadBytes+multipartOverhead), h.Parse)
	rg.POST("/batch", LimitBody(h.cfg.MaxUploadBytes*int64(h.cfg.MaxBatchFiles)+multipartOverhead), h.Batch)
	rg.POST("/export", h.Export)
	rg.GET("/conversions/:id/transactions", h.ListTransactions)
	rg.POST("/conversions/:id/export", h.ExportConversion)
	rg.PATCH("/transactions/:id", h.UpdateTransaction)
	rg.GET("/artifacts/:id", h.DownloadArtifact)
	rg.GET("/overrides", h.ListOverrides)
	rg.POST("/overrides", h.CreateOverride)
	rg.DELETE("/overrides/:id", h.DeleteOverride)
}

// ParseResponse is the parse endpoint body.
type ParseResponse struct {
	*statement.ParseResult
	ConversionID *uuid.UUID      `json:"conversionId,omitempty"`
	Preview      service.Preview `json:"preview"`
	Totals       export.Summary  `json:"totals"`
}

// Parse converts one uploaded PDF.
func (h *ImportHandler) Parse(c *gin.Context) {
	ctx := c.Request.Context()
	userID := userIDFrom(c)
	logger := loggerFrom(c, h.logger)

	opts, err := parseOptionsFromForm(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	fh, err := c.FormFile("file")
	if limit, ok := bodyTooLarge(err); ok {
		abortTooLarge(c, limit)
		return
	}
	if err != nil {
		h.respondError(c, fmt.Errorf("%w: multipart field \"file\" is required", statement.ErrValidation))
		return
	}
	data, err := h.readUpload(fh)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if h.quota != nil {
		if err := h.quota.Check(ctx, userID); err != nil {
			h.respondError(c, err)
			return
		}
	}

	opts.UserID = userID
	opts.FileName = fh.Filename
	res, parseErr := h.pipeline.Parse(ctx, data, opts)
	if res == nil {
		h.respondError(c, parseErr)
		return
	}

	resp := ParseResponse{
		ParseResult: res,
		Preview:     service.PreviewOf(res.Transactions),
		Totals:      export.Summarize(res.Transactions),
	}
	if h.store != nil {
		id, err := h.store.Record(ctx, userID, fh.Filename, res)
		if err != nil {
			logger.Error("failed to record conversion", "error", err)
		} else {
			resp.ConversionID = &id
		}
	}

	if parseErr != nil {
		c.JSON(StatusFor(statement.Kind(parseErr)), resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Batch converts several uploaded PDFs in one job.
func (h *ImportHandler) Batch(c *gin.Context) {
	if h.batch == nil {
		h.respondError(c, fmt.Errorf("%w: batch processing is disabled", statement.ErrFeatureDisabled))
		return
	}
	opts, err := parseOptionsFromForm(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	form, err := c.MultipartForm()
	if limit, ok := bodyTooLarge(err); ok {
		abortTooLarge(c, limit)
		return
	}
	if err != nil {
		h.respondError(c, fmt.Errorf("%w: multipart form expected", statement.ErrValidation))
		return
	}
	headers := form.File["files[]"]
	if len(headers) == 0 {
		headers = form.File["files"]
	}
	if len(headers) == 0 {
		h.respondError(c, fmt.Errorf("%w: at least one file is required", statement.ErrValidation))
		return
	}
	if len(headers) > h.cfg.MaxBatchFiles {
		h.respondError(c, fmt.Errorf("%w: at most %d files per batch", statement.ErrValidation, h.cfg.MaxBatchFiles))
		return
	}

	files := make([]batch.File, 0, len(headers))
	for _, fh := range headers {
		data, err := h.readUpload(fh)
		if err != nil {
			h.respondError(c, err)
			return
		}
		files = append(files, batch.File{Name: fh.Filename, Data: data})
	}

	res, err := h.batch.Run(c.Request.Context(), userIDFrom(c), files, batch.Options{
		AIEnhanced:  opts.AIEnhanced,
		MaxPages:    opts.MaxPages,
		NotifyEmail: c.PostForm("notifyEmail"),
	})
	if res == nil {
		h.respondError(c, err)
		return
	}
	if err != nil {
		loggerFrom(c, h.logger).Warn("batch ended early", "error", err)
	}
	c.JSON(http.StatusOK, gin.H{
		"batch":   res,
		"preview": service.PreviewOf(res.Transactions),
		"totals":  export.Summarize(res.Transactions),
	})
}

// ExportBody is the JSON body of the export endpoint.
type ExportBody struct {
	Transactions []statement.Transaction `json:"transactions"`
	Format       string                  `json:"format"`
	Scope        string                  `json:"scope"`
	FileName     string                  `json:"fileName"`
}

// Export renders caller-supplied transactions and returns the file.
func (h *ImportHandler) Export(c *gin.Context) {
	var body ExportBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.respondError(c, fmt.Errorf("%w: %v", statement.ErrValidation, err))
		return
	}
	if len(body.Transactions) == 0 {
		h.respondError(c, fmt.Errorf("%w: transactions must not be empty", statement.ErrValidation))
		return
	}
	req, err := exportRequest(body.Transactions, body.Format, body.Scope, body.FileName)
	if err != nil {
		h.respondError(c, err)
		return
	}

	art, err := h.pipeline.ExportTransactions(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	sendArtifact(c, art)
}

// ConversionExportBody is the JSON body of the conversion export endpoint.
type ConversionExportBody struct {
	Format string `json:"format"`
	Scope  string `json:"scope"`
	Store  bool   `json:"store"`
}

// ExportConversion renders a stored conversion. With store=true the file
// is kept and its artifact record is returned instead of the bytes.
func (h *ImportHandler) ExportConversion(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	ctx := c.Request.Context()
	userID := userIDFrom(c)

	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var body ConversionExportBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.respondError(c, fmt.Errorf("%w: %v", statement.ErrValidation, err))
		return
	}

	conv, err := h.store.GetConversion(ctx, userID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	txs, err := h.store.ListTransactions(ctx, userID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if len(txs) == 0 {
		h.respondError(c, fmt.Errorf("conversion %s: %w", id, statement.ErrNoTransactions))
		return
	}

	req, err := exportRequest(txs, body.Format, body.Scope, conv.FileName)
	if err != nil {
		h.respondError(c, err)
		return
	}
	art, err := h.pipeline.ExportTransactions(ctx, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !body.Store {
		sendArtifact(c, art)
		return
	}

	if h.files == nil {
		h.respondError(c, fmt.Errorf("%w: artifact storage is not configured", statement.ErrFeatureDisabled))
		return
	}
	info, err := h.files.Upload(ctx, userID, art.FileName, art.MimeType, bytes.NewReader(art.Content))
	if err != nil {
		h.respondError(c, fmt.Errorf("failed to store artifact: %w", err))
		return
	}
	record := &repository.Artifact{
		UserID:       userID,
		ConversionID: &id,
		FileName:     art.FileName,
		MimeType:     art.MimeType,
		StorageKey:   info.Key,
		Size:         info.Size,
	}
	if err := h.store.CreateArtifact(ctx, record); err != nil {
		_ = h.files.Delete(context.WithoutCancel(ctx), info.Key)
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"artifact": record})
}

// ListTransactions returns a stored conversion with its transactions.
func (h *ImportHandler) ListTransactions(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	ctx := c.Request.Context()
	userID := userIDFrom(c)
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	conv, err := h.store.GetConversion(ctx, userID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	txs, err := h.store.ListTransactions(ctx, userID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conversion":   conv,
		"transactions": txs,
		"totals":       export.Summarize(txs),
	})
}

// UpdateTransaction applies a user correction and remembers it as a
// merchant override for later parses.
func (h *ImportHandler) UpdateTransaction(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	ctx := c.Request.Context()
	userID := userIDFrom(c)
	logger := loggerFrom(c, h.logger)

	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var patch repository.TransactionPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.respondError(c, fmt.Errorf("%w: %v", statement.ErrValidation, err))
		return
	}
	if err := h.validate.Struct(patch); err != nil {
		h.respondError(c, fmt.Errorf("%w: %v", statement.ErrValidation, err))
		return
	}

	tx, err := h.store.UpdateTransaction(ctx, userID, id, patch)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if override, ok := overrideFor(userID, tx, patch); ok && h.overrides != nil {
		if _, err := h.overrides.SaveOverride(ctx, override); err != nil {
			logger.Warn("failed to save merchant override", "transaction_id", id, "error", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

// DownloadArtifact streams a stored export.
func (h *ImportHandler) DownloadArtifact(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	if h.files == nil {
		h.respondError(c, fmt.Errorf("%w: artifact storage is not configured", statement.ErrFeatureDisabled))
		return
	}
	ctx := c.Request.Context()
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	a, err := h.store.GetArtifact(ctx, userIDFrom(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	rc, err := h.files.Open(ctx, a.StorageKey)
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, a.Size, a.MimeType, rc, map[string]string{
		"Content-Disposition": contentDisposition(a.FileName),
	})
}

// overrideFor builds the merchant override implied by a correction. Only
// category and description edits teach the categorizer.
func overrideFor(userID string, tx *statement.Transaction, patch repository.TransactionPatch) (normalizer.MerchantOverride, bool) {
	if patch.Category == nil && patch.Description == nil {
		return normalizer.MerchantOverride{}, false
	}
	pattern := tx.NormalizedMerchant
	if pattern == "" {
		return normalizer.MerchantOverride{}, false
	}

	name := tx.NormalizedMerchant
	if patch.Description != nil {
		if cleaned := normalizer.CleanMerchantName(*patch.Description); cleaned != "" {
			name = cleaned
		}
	}
	o := normalizer.MerchantOverride{
		UserID:       userID,
		MatchPattern: pattern,
		MatchType:    normalizer.MatchContains,
		MerchantName: name,
	}
	if patch.Category != nil && *patch.Category != "" {
		o.Category = patch.Category
	}
	return o, true
}

func parseOptionsFromForm(c *gin.Context) (statement.ParseOptions, error) {
	var opts statement.ParseOptions
	if v := c.PostForm("aiEnhanced"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("%w: aiEnhanced must be a boolean", statement.ErrValidation)
		}
		opts.AIEnhanced = b
	}
	if v := c.PostForm("maxPages"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("%w: maxPages must be a non-negative integer", statement.ErrValidation)
		}
		opts.MaxPages = n
	}
	return opts, nil
}

func exportRequest(txs []statement.Transaction, format, scope, baseName string) (service.ExportRequest, error) {
	f, err := statement.ParseFormat(format)
	if err != nil {
		return service.ExportRequest{}, err
	}
	s, err := statement.ParseScope(scope)
	if err != nil {
		return service.ExportRequest{}, err
	}
	return service.ExportRequest{Transactions: txs, Format: f, Scope: s, BaseName: baseName}, nil
}

func (h *ImportHandler) readUpload(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > h.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", statement.ErrValidation, fh.Filename, h.cfg.MaxUploadBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.cfg.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > h.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", statement.ErrValidation, fh.Filename, h.cfg.MaxUploadBytes)
	}
	return data, nil
}

func (h *ImportHandler) pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.respondError(c, fmt.Errorf("%w: invalid id %q", statement.ErrValidation, c.Param("id")))
		return uuid.Nil, false
	}
	return id, true
}

func (h *ImportHandler) requireStore(c *gin.Context) bool {
	if h.store == nil {
		h.respondError(c, fmt.Errorf("%w: persistence is disabled", statement.ErrFeatureDisabled))
		return false
	}
	return true
}

func sendArtifact(c *gin.Context, art *statement.ExportArtifact) {
	c.Header("Content-Disposition", contentDisposition(art.FileName))
	c.Data(http.StatusOK, art.MimeType, art.Content)
}

func contentDisposition(name string) string {
	return fmt.Sprintf("attachment; filename=%q", name)
}
