// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// RetentionStore removes expired rows.
type RetentionStore interface {
	DeleteArtifactsBefore(ctx context.Context, cutoff time.Time) ([]string, error)
	DeleteConversionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ObjectDeleter removes stored artifact files.
type ObjectDeleter interface {
	Delete(ctx context.Context, key string) error
}

// RetentionConfig controls what the retention job deletes.
type RetentionConfig struct {
	// Schedule is a standard 5-field cron spec or a descriptor like @daily.
	Schedule      string
	ArtifactTTL   time.Duration
	ConversionTTL time.Duration
}

// RetentionReport summarizes one retention run.
type RetentionReport struct {
	Artifacts   int
	FilesFailed int
	Conversions int64
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron   *cron.Cron
	store  RetentionStore
	files  ObjectDeleter
	cfg    RetentionConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewScheduler creates a new job scheduler. files may be nil when no
// artifact storage is configured.
func NewScheduler(store RetentionStore, files ObjectDeleter, cfg RetentionConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@daily"
	}
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:   c,
		store:  store,
		files:  files,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.cfg.Schedule, s.runRetention)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
		slog.String("retention_schedule", s.cfg.Schedule),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

func (s *Scheduler) runRetention() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	_, _ = s.RunRetention(ctx)
}

// RunRetention deletes artifacts older than ArtifactTTL, then their files,
// then conversions older than ConversionTTL. A zero TTL disables that step.
func (s *Scheduler) RunRetention(ctx context.Context) (RetentionReport, error) {
	var report RetentionReport
	now := s.now()

	s.logger.Info("starting retention run")

	if s.cfg.ArtifactTTL > 0 {
		keys, err := s.store.DeleteArtifactsBefore(ctx, now.Add(-s.cfg.ArtifactTTL))
		if err != nil {
			s.logger.Error("failed to delete expired artifacts", slog.Any("error", err))
			return report, err
		}
		report.Artifacts = len(keys)

		if s.files != nil {
			for _, key := range keys {
				if err := s.files.Delete(ctx, key); err != nil {
					s.logger.Warn("failed to delete artifact file",
						slog.String("key", key),
						slog.Any("error", err),
					)
					report.FilesFailed++
				}
			}
		}
	}

	if s.cfg.ConversionTTL > 0 {
		n, err := s.store.DeleteConversionsBefore(ctx, now.Add(-s.cfg.ConversionTTL))
		if err != nil {
			s.logger.Error("failed to delete expired conversions", slog.Any("error", err))
			return report, err
		}
		report.Conversions = n
	}

	s.logger.Info("retention run completed",
		slog.Int("artifacts_deleted", report.Artifacts),
		slog.Int("files_failed", report.FilesFailed),
		slog.Int64("conversions_deleted", report.Conversions),
	)
	return report, nil
}
