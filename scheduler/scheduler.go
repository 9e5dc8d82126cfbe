// Package scheduler runs the periodic jobs: campaign dispatch, scheduled
// publishing and cache/analytics housekeeping.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"axiscyber/analytics"
	"axiscyber/cache"
	"axiscyber/email"
	"axiscyber/models"
)

const jobTimeout = 5 * time.Minute

type Options struct {
	Dispatcher *email.Dispatcher
	Analytics  *analytics.AnalyticsModule
	// Cache is purged whenever scheduled content goes live.
	Cache cache.Store
	// FileCache, when set, has its expired entries removed hourly.
	FileCache *cache.FileStore
	Retention time.Duration
}

type Scheduler struct {
	db   *gorm.DB
	opts Options
	cron *cron.Cron
	now  func() time.Time
}

func New(db *gorm.DB, opts Options) *Scheduler {
	if opts.Cache == nil {
		opts.Cache = cache.Nop{}
	}
	return &Scheduler{
		db:   db,
		opts: opts,
		cron: cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger))),
		now:  time.Now,
	}
}

// Start registers the jobs and starts the cron loop in the background.
func (s *Scheduler) Start() error {
	jobs := []struct {
		spec string
		name string
		run  func(context.Context) error
	}{
		{"* * * * *", "publish scheduled content", s.publishDue},
		{"* * * * *", "send scheduled campaigns", s.sendDue},
		{"@hourly", "clear expired cache entries", s.clearExpiredCache},
		{"30 3 * * *", "purge old analytics", s.purgeAnalytics},
	}
	for _, job := range jobs {
		if _, err := s.cron.AddFunc(job.spec, s.wrap(job.name, job.run)); err != nil {
			return err
		}
	}

	s.cron.Start()
	zap.S().Infow("scheduler started", "jobs", len(s.cron.Entries()))
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	zap.S().Info("scheduler stopped")
}

func (s *Scheduler) wrap(name string, run func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if err := run(ctx); err != nil {
			zap.S().Errorw("scheduled job failed", "job", name, "error", err)
		}
	}
}

// RunOnce runs the every-minute jobs immediately.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if err := s.publishDue(ctx); err != nil {
		return err
	}
	return s.sendDue(ctx)
}

// publishDue moves scheduled posts and case studies whose published_at has
// passed to published.
func (s *Scheduler) publishDue(ctx context.Context) error {
	now := s.now()
	published := int64(0)
	for _, model := range []any{&models.BlogPost{}, &models.CaseStudy{}} {
		result := s.db.WithContext(ctx).Model(model).
			Where("status = ? AND published_at IS NOT NULL AND published_at <= ?", models.StatusScheduled, now).
			Update("status", models.StatusPublished)
		if result.Error != nil {
			return result.Error
		}
		published += result.RowsAffected
	}

	if published > 0 {
		zap.S().Infow("published scheduled content", "count", published)
		if err := s.opts.Cache.Purge(ctx); err != nil {
			zap.S().Warnw("purging page cache", "error", err)
		}
	}
	return nil
}

func (s *Scheduler) sendDue(ctx context.Context) error {
	if s.opts.Dispatcher == nil {
		return nil
	}
	sent, err := s.opts.Dispatcher.SendDue(ctx)
	if sent > 0 {
		zap.S().Infow("sent scheduled campaigns", "count", sent)
	}
	return err
}

func (s *Scheduler) clearExpiredCache(context.Context) error {
	if s.opts.FileCache == nil {
		return nil
	}
	removed, err := s.opts.FileCache.ClearExpired()
	if removed > 0 {
		zap.S().Debugw("cleared expired cache entries", "count", removed)
	}
	return err
}

func (s *Scheduler) purgeAnalytics(ctx context.Context) error {
	if s.opts.Analytics == nil || s.opts.Retention <= 0 {
		return nil
	}
	deleted, err := s.opts.Analytics.PurgeBefore(ctx, s.now().Add(-s.opts.Retention))
	if deleted > 0 {
		zap.S().Infow("purged old analytics events", "count", deleted)
	}
	return err
}
