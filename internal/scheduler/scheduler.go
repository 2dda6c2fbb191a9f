// Package scheduler runs the periodic non-critical sweeps: tier
// recomputation for active affiliates and draining of the event
// outbox. Everything latency-sensitive happens inline in the request
// path; these jobs only reconcile.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	affdomain "github.com/smallbiznis/affina/internal/affiliate/domain"
	"github.com/smallbiznis/affina/internal/clock"
	"github.com/smallbiznis/affina/internal/events"
	"github.com/smallbiznis/affina/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	AffiliateSvc affdomain.Service
	Clock        clock.Clock
	JobLock      *ratelimit.JobLock `optional:"true"`
	Config       Config             `optional:"true"`
}

type Scheduler struct {
	db           *gorm.DB
	log          *zap.Logger
	cfg          Config
	clock        clock.Clock
	affiliateSvc affdomain.Service
	jobLock      *ratelimit.JobLock
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.AffiliateSvc == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:           p.DB,
		log:          p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:          p.Config.withDefaults(),
		clock:        p.Clock,
		affiliateSvc: p.AffiliateSvc,
		jobLock:      p.JobLock,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	// With multiple replicas a Redis lock keeps the sweep on a single
	// runner. Without Redis every replica sweeps, which is safe but
	// wasteful.
	if s.jobLock != nil {
		lease, err := s.jobLock.Acquire(ctx, name, s.cfg.JobTimeout)
		switch {
		case err != nil:
			s.log.Warn("job lock unavailable", zap.String("job", name), zap.Error(err))
		case lease == nil:
			return nil
		default:
			defer func() {
				if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
					s.log.Warn("job lock release failed", zap.String("job", name), zap.Error(err))
				}
			}()
		}
	}

	start := s.clock.Now()
	err := fn(ctx)
	duration := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			s.log.Warn("job timed out",
				zap.String("job", name),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
			return nil
		}
		return fmt.Errorf("%s: %w", name, err)
	}

	s.log.Debug("job finished",
		zap.String("job", name),
		zap.Duration("duration", duration),
	)
	return nil
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{"tier_recompute", s.TierRecomputeJob},
		{"outbox_sweep", s.OutboxSweepJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// An empty EnabledJobs list enables everything, monolith mode.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// TierRecomputeJob re-evaluates tiers for active affiliates. The
// request path already upgrades the selling affiliate after each sale;
// this sweep catches affiliates whose referral counts changed without
// a sale of their own.
func (s *Scheduler) TierRecomputeJob(ctx context.Context) error {
	var affiliates []affdomain.Affiliate
	if err := s.db.WithContext(ctx).
		Where("status = ?", affdomain.StatusActive).
		Order("updated_at asc").
		Limit(s.cfg.BatchSize).
		Find(&affiliates).Error; err != nil {
		return err
	}

	var upgraded int
	for _, affiliate := range affiliates {
		_, changed, err := s.affiliateSvc.RecomputeTier(ctx, affiliate.ID)
		if err != nil {
			s.log.Warn("tier recompute failed",
				zap.String("affiliate_id", affiliate.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if changed {
			upgraded++
		}
	}
	if upgraded > 0 {
		s.log.Info("tier sweep upgraded affiliates", zap.Int("count", upgraded))
	}
	return nil
}

// OutboxSweepJob drains unpublished rows from the event outbox. The
// delivery target is the structured log stream; external consumers
// tail it or replace this job with a broker publisher.
func (s *Scheduler) OutboxSweepJob(ctx context.Context) error {
	var rows []events.Row
	if err := s.db.WithContext(ctx).
		Where("published = ?", false).
		Order("id asc").
		Limit(s.cfg.BatchSize).
		Find(&rows).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	ids := make([]any, 0, len(rows))
	for _, row := range rows {
		s.log.Info("event published",
			zap.String("event_id", row.ID.String()),
			zap.String("event_type", row.EventType),
			zap.Any("payload", map[string]any(row.Payload)),
		)
		ids = append(ids, row.ID)
	}

	return s.db.WithContext(ctx).Model(&events.Row{}).
		Where("id IN ?", ids).
		UpdateColumn("published", true).Error
}
