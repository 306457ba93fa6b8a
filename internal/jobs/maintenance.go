package jobs

import (
	"context"
	"time"
)

const (
	JobExpireSubscriptions = "expire-subscriptions"
	JobLimiterCleanup      = "ratelimit-cleanup"
	JobEventSweep          = "webhook-event-sweep"
)

// SubscriptionSweeper is implemented by the checkout service.
type SubscriptionSweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// VisitorCleaner is implemented by the rate limiter.
type VisitorCleaner interface {
	Cleanup() int
}

// EventSweeper is implemented by the in-memory idempotency store. Redis
// expires keys by itself.
type EventSweeper interface {
	Sweep() int
}

// Maintenance lists the collaborators of the built-in jobs. Nil members
// are skipped.
type Maintenance struct {
	Subscriptions SubscriptionSweeper
	Limiter       VisitorCleaner
	Events        EventSweeper

	// ExpirySchedule defaults to every 15 minutes.
	ExpirySchedule string
}

// RegisterMaintenance adds the built-in jobs to s.
func RegisterMaintenance(s *Scheduler, m Maintenance) error {
	if m.ExpirySchedule == "" {
		m.ExpirySchedule = "@every 15m"
	}

	if m.Subscriptions != nil {
		err := s.Register(JobExpireSubscriptions, m.ExpirySchedule, func(ctx context.Context) error {
			n, err := m.Subscriptions.SweepExpired(ctx, time.Now().UTC())
			if err != nil {
				return err
			}
			if n > 0 {
				s.logger.WithContext(ctx).WithField("removed", n).Info("expired subscriptions removed")
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	if m.Limiter != nil {
		err := s.Register(JobLimiterCleanup, "@every 5m", func(ctx context.Context) error {
			m.Limiter.Cleanup()
			return nil
		})
		if err != nil {
			return err
		}
	}

	if m.Events != nil {
		err := s.Register(JobEventSweep, "@every 1h", func(ctx context.Context) error {
			m.Events.Sweep()
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
