// Package batch converts several statements in one job, one after the
// other with a fixed pause between documents.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/statementdesk/statement-desk/internal/domain/statement"
	"github.com/statementdesk/statement-desk/pkg/notify"
	"github.com/statementdesk/statement-desk/pkg/observability"
)

// DefaultDelay is the pause between two documents.
const DefaultDelay = 2 * time.Second

// File is one uploaded document.
type File struct {
	Name string
	Data []byte
}

// Parser runs the single-document pipeline.
type Parser interface {
	Parse(ctx context.Context, data []byte, opts statement.ParseOptions) (*statement.ParseResult, error)
}

// QuotaChecker is consulted before each document.
type QuotaChecker interface {
	Check(ctx context.Context, userID string) error
}

// Recorder persists a finished parse and returns its conversion id.
type Recorder interface {
	Record(ctx context.Context, userID, fileName string, res *statement.ParseResult) (uuid.UUID, error)
}

// Notifier emails a batch summary.
type Notifier interface {
	SendBatchSummary(ctx context.Context, to string, summary notify.BatchSummary) error
}

// Options apply to every document of a job.
type Options struct {
	AIEnhanced bool
	MaxPages   int
	// NotifyEmail receives the completion summary when set.
	NotifyEmail string
}

// FileResult is the outcome of one document.
type FileResult struct {
	FileName         string              `json:"fileName"`
	Success          bool                `json:"success"`
	Skipped          bool                `json:"skipped,omitempty"`
	ConversionID     *uuid.UUID          `json:"conversionId,omitempty"`
	TransactionCount int                 `json:"transactionCount"`
	BankType         string              `json:"bankType,omitempty"`
	ErrorKind        statement.ErrorKind `json:"errorKind,omitempty"`
	Error            string              `json:"error,omitempty"`
	Metadata         *statement.Metadata `json:"metadata,omitempty"`
}

// Result is the outcome of a job. Transactions of every successful file
// are concatenated in upload order and carry their SourceFile.
type Result struct {
	JobID        uuid.UUID               `json:"jobId"`
	Files        []FileResult            `json:"files"`
	Transactions []statement.Transaction `json:"transactions"`
	Succeeded    int                     `json:"succeeded"`
	Failed       int                     `json:"failed"`
	// StoppedBy is set when a configuration error ended the job early.
	StoppedBy string `json:"stoppedBy,omitempty"`
}

// Processor runs batch jobs.
type Processor struct {
	parser   Parser
	quota    QuotaChecker
	recorder Recorder
	notifier Notifier
	metrics  *observability.Metrics
	delay    time.Duration
	logger   *slog.Logger
}

// Option customises a Processor.
type Option func(*Processor)

// WithQuota checks the user's quota before each document.
func WithQuota(q QuotaChecker) Option {
	return func(p *Processor) { p.quota = q }
}

// WithRecorder persists each parse.
func WithRecorder(r Recorder) Option {
	return func(p *Processor) { p.recorder = r }
}

// WithNotifier emails a summary when the job ends.
func WithNotifier(n Notifier) Option {
	return func(p *Processor) { p.notifier = n }
}

// WithMetrics counts processed files.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithDelay sets the pause between documents. Negative values are ignored.
func WithDelay(d time.Duration) Option {
	return func(p *Processor) {
		if d >= 0 {
			p.delay = d
		}
	}
}

// NewProcessor creates a batch processor.
func NewProcessor(parser Parser, logger *slog.Logger, opts ...Option) *Processor {
	p := &Processor{
		parser: parser,
		delay:  DefaultDelay,
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run converts files sequentially. A failing document does not stop the
// job unless the failure is a configuration error; the remaining files
// are then reported as skipped. Cancelling ctx stops the job between
// documents and returns the partial result with ctx's error.
func (p *Processor) Run(ctx context.Context, userID string, files []File, opts Options) (*Result, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files in batch", statement.ErrValidation)
	}

	res := &Result{
		JobID:        uuid.New(),
		Files:        make([]FileResult, 0, len(files)),
		Transactions: []statement.Transaction{},
	}
	logger := p.logger.With("job_id", res.JobID, "user_id", userID)
	logger.Info("batch started", "files", len(files))

	var runErr error
	currency := ""
	for i, f := range files {
		if i > 0 && p.delay > 0 {
			if err := sleep(ctx, p.delay); err != nil {
				runErr = err
				res.skipFrom(files, i)
				break
			}
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			res.skipFrom(files, i)
			break
		}

		fr, parsed := p.processFile(ctx, userID, f, opts, logger)
		res.Files = append(res.Files, fr)
		if fr.Success {
			res.Succeeded++
			res.Transactions = append(res.Transactions, parsed.Transactions...)
			if currency == "" && parsed.AccountInfo != nil {
				currency = parsed.AccountInfo.Currency
			}
			p.metrics.ObserveBatchFile("success")
			continue
		}

		res.Failed++
		p.metrics.ObserveBatchFile(string(fr.ErrorKind))
		if fr.ErrorKind == statement.KindConfiguration {
			res.StoppedBy = fr.Error
			logger.Error("batch stopped by configuration error", "file", f.Name, "error", fr.Error)
			res.skipFrom(files, i+1)
			break
		}
	}

	logger.Info("batch finished",
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"transactions", len(res.Transactions),
	)
	p.notify(ctx, opts.NotifyEmail, res, currency, logger)
	return res, runErr
}

func (p *Processor) processFile(ctx context.Context, userID string, f File, opts Options, logger *slog.Logger) (FileResult, *statement.ParseResult) {
	fr := FileResult{FileName: f.Name}

	if p.quota != nil {
		if err := p.quota.Check(ctx, userID); err != nil {
			fr.ErrorKind = statement.Kind(err)
			fr.Error = err.Error()
			logger.Warn("file refused by quota", "file", f.Name, "error", err)
			return fr, nil
		}
	}

	parsed, err := p.parser.Parse(ctx, f.Data, statement.ParseOptions{
		AIEnhanced: opts.AIEnhanced,
		MaxPages:   opts.MaxPages,
		UserID:     userID,
		FileName:   f.Name,
	})
	if parsed != nil {
		meta := parsed.Metadata
		fr.Metadata = &meta
		fr.BankType = parsed.BankType
	}
	if p.recorder != nil && parsed != nil {
		id, recErr := p.recorder.Record(ctx, userID, f.Name, parsed)
		if recErr != nil {
			logger.Error("failed to record conversion", "file", f.Name, "error", recErr)
		} else {
			fr.ConversionID = &id
		}
	}
	if err != nil {
		fr.ErrorKind = statement.Kind(err)
		fr.Error = err.Error()
		logger.Warn("file failed", "file", f.Name, "kind", fr.ErrorKind, "error", err)
		return fr, nil
	}

	for i := range parsed.Transactions {
		if parsed.Transactions[i].SourceFile == "" {
			parsed.Transactions[i].SourceFile = f.Name
		}
	}
	fr.Success = true
	fr.TransactionCount = len(parsed.Transactions)
	return fr, parsed
}

func (p *Processor) notify(ctx context.Context, to string, res *Result, currency string, logger *slog.Logger) {
	if p.notifier == nil || to == "" {
		return
	}
	summary := notify.BatchSummary{
		JobID:    res.JobID.String(),
		Files:    make([]notify.FileSummary, 0, len(res.Files)),
		Debits:   decimal.Zero,
		Credits:  decimal.Zero,
		Currency: currency,
	}
	for _, f := range res.Files {
		summary.Files = append(summary.Files, notify.FileSummary{
			Name:         f.FileName,
			Succeeded:    f.Success,
			Transactions: f.TransactionCount,
			Error:        f.Error,
		})
	}
	for _, tx := range res.Transactions {
		if tx.IsDebit() {
			summary.Debits = summary.Debits.Add(tx.Amount.Abs())
		} else {
			summary.Credits = summary.Credits.Add(tx.Amount.Abs())
		}
	}

	// the job is done even if the caller went away
	sendCtx := context.WithoutCancel(ctx)
	if err := p.notifier.SendBatchSummary(sendCtx, to, summary); err != nil {
		logger.Warn("failed to send batch summary", "error", err)
	}
}

func (r *Result) skipFrom(files []File, start int) {
	for _, f := range files[start:] {
		r.Files = append(r.Files, FileResult{FileName: f.Name, Skipped: true})
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
