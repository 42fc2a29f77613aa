package scheduler

import (
	"context"
	"time"

	"github.com/ikkim/catalog-admin/config"
	"github.com/ikkim/catalog-admin/internal/app/service"
	"github.com/ikkim/catalog-admin/internal/metrics"
	"github.com/ikkim/catalog-admin/pkg/logger"
	"github.com/robfig/cron/v3"
)

// Staged files younger than this are never treated as orphans, so an
// upload racing its owner's creation survives.
const orphanGrace = time.Hour

const jobTimeout = 2 * time.Minute

type Services struct {
	Vocabulary service.VocabularyService
	Resolver   service.DetailResolverService
	Editor     service.VariantEditorService
	Imports    service.ImportService
	Uploads    service.UploadStager
}

// HousekeepingScheduler refreshes the vocabulary and drops abandoned state.
type HousekeepingScheduler struct {
	cron     *cron.Cron
	cfg      config.SchedulerConfig
	sessions config.SessionConfig
	svc      Services
}

func NewHousekeepingScheduler(cfg config.SchedulerConfig, sessions config.SessionConfig, svc Services) *HousekeepingScheduler {
	cronLog := cronLogger{}
	return &HousekeepingScheduler{
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		cfg:      cfg,
		sessions: sessions,
		svc:      svc,
	}
}

func (s *HousekeepingScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.VocabularyRefresh, s.RefreshVocabulary); err != nil {
		logger.Error("Failed to add cron job for vocabulary refresh", err, map[string]interface{}{
			"spec": s.cfg.VocabularyRefresh,
		})
		return err
	}
	if _, err := s.cron.AddFunc(s.cfg.SweepSpec, s.Sweep); err != nil {
		logger.Error("Failed to add cron job for sweeping", err, map[string]interface{}{
			"spec": s.cfg.SweepSpec,
		})
		return err
	}

	s.cron.Start()
	logger.Info("Housekeeping scheduler started", map[string]interface{}{
		"vocabulary_spec": s.cfg.VocabularyRefresh,
		"sweep_spec":      s.cfg.SweepSpec,
	})
	return nil
}

// Stop waits for a running job to finish.
func (s *HousekeepingScheduler) Stop() {
	logger.Info("Stopping housekeeping scheduler...", nil)
	<-s.cron.Stop().Done()
	logger.Info("Housekeeping scheduler stopped", nil)
}

func (s *HousekeepingScheduler) RefreshVocabulary() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	// a failed refresh keeps serving the cached snapshot
	if _, err := s.svc.Vocabulary.Refresh(ctx); err != nil {
		logger.Error("Scheduled vocabulary refresh failed", err, nil)
		return
	}
	logger.Debug("Scheduled vocabulary refresh done", nil)
}

// Sweep expires idle detail sessions, then stale drafts and batches, then
// whatever staged files lost their owner along the way.
func (s *HousekeepingScheduler) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	s.record("detail_sessions", s.svc.Resolver.ExpireIdle(s.sessions.DetailSessionTTL), nil)

	n, err := s.svc.Editor.SweepStale(ctx, s.sessions.DraftTTL)
	s.record("drafts", n, err)

	n, err = s.svc.Imports.SweepStale(ctx, s.sessions.ImportBatchTTL)
	s.record("import_batches", n, err)

	n, err = s.svc.Uploads.SweepOrphans(ctx, orphanGrace)
	s.record("orphan_uploads", n, err)
}

func (s *HousekeepingScheduler) record(job string, n int, err error) {
	if err != nil {
		logger.Error("Housekeeping job failed", err, map[string]interface{}{
			"job":   job,
			"swept": n,
		})
	}
	if n > 0 {
		metrics.HousekeepingSwept.WithLabelValues(job).Add(float64(n))
		logger.Info("Housekeeping swept", map[string]interface{}{
			"job":   job,
			"swept": n,
		})
	}
}

// cronLogger routes cron's own messages through zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("cron: "+msg, pairs(keysAndValues))
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error("cron: "+msg, err, pairs(keysAndValues))
}

func pairs(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			fields[key] = kv[i+1]
		}
	}
	return fields
}
