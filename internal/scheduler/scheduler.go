// Package scheduler runs the billing sweeps: overdue subscriptions fall to
// past_due, and past_due subscriptions beyond the grace window expire. It
// never moves money; payments do that.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/licensia/internal/clock"
	"github.com/smallbiznis/licensia/internal/config"
	subscriptiondomain "github.com/smallbiznis/licensia/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

type Params struct {
	fx.In

	Log             *zap.Logger
	Clock           clock.Clock
	SubscriptionSvc subscriptiondomain.Service
	BillingCfg      *config.BillingConfigHolder
	Config          Config `optional:"true"`
}

type Scheduler struct {
	log             *zap.Logger
	cfg             Config
	clock           clock.Clock
	subscriptionSvc subscriptiondomain.Service
	billingCfg      *config.BillingConfigHolder
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.SubscriptionSvc == nil || p.BillingCfg == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:             p.Log.Named("scheduler"),
		cfg:             p.Config.withDefaults(),
		clock:           p.Clock,
		subscriptionSvc: p.SubscriptionSvc,
		billingCfg:      p.BillingCfg,
	}, nil
}

// RunOnce executes both sweeps against the current clock.
func (s *Scheduler) RunOnce(parent context.Context) error {
	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{"mark_past_due", s.MarkPastDueJob},
		{"expire_lapsed", s.ExpireLapsedJob},
	}

	var err error
	for _, job := range jobs {
		err = errors.Join(err, s.runJob(parent, job.Name, job.Run))
	}
	return err
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		s.log.Warn("sweep job failed", zap.String("job", name), zap.Error(err))
		return err
	}
	return nil
}

// RunForever loops RunOnce on the configured interval until the context
// ends.
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

// MarkPastDueJob moves active subscriptions whose next billing date passed
// into past_due.
func (s *Scheduler) MarkPastDueJob(ctx context.Context) error {
	now := s.clock.Now()
	moved, err := s.subscriptionSvc.MarkPastDue(ctx, now)
	if err != nil {
		return err
	}
	if moved > 0 {
		s.log.Info("subscriptions marked past due", zap.Int64("count", moved))
	}
	return nil
}

// ExpireLapsedJob expires past_due subscriptions whose grace window has
// fully elapsed.
func (s *Scheduler) ExpireLapsedJob(ctx context.Context) error {
	now := s.clock.Now()
	grace := s.billingCfg.Get().GracePeriodDays
	expired, err := s.subscriptionSvc.ExpireLapsed(ctx, now, grace)
	if err != nil {
		return err
	}
	if expired > 0 {
		s.log.Info("subscriptions expired", zap.Int64("count", expired), zap.Int("grace_days", grace))
	}
	return nil
}
