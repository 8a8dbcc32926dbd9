package housekeeping

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

// Service fronts the sweeps so that scheduled and on-demand runs of the same
// sweep share one execution.
type Service struct {
	quota  *QuotaEnforcer
	trash  *TrashPurger
	flight singleflight.Group
}

// NewService constructs a Service.
func NewService(quota *QuotaEnforcer, trash *TrashPurger) *Service {
	return &Service{quota: quota, trash: trash}
}

// SweepQuota runs (or joins) a quota sweep.
func (s *Service) SweepQuota(ctx context.Context, dryRun bool) (QuotaResult, error) {
	if s == nil || s.quota == nil {
		return QuotaResult{DryRun: dryRun}, fmt.Errorf("quota enforcer is not configured")
	}
	v, err := s.do(ctx, flightKey("quota", dryRun), func(runCtx context.Context) (any, error) {
		return s.quota.Run(runCtx, dryRun)
	})
	result, _ := v.(QuotaResult)
	return result, err
}

// PurgeTrash runs (or joins) a trash purge.
func (s *Service) PurgeTrash(ctx context.Context, dryRun bool) (PurgeResult, error) {
	if s == nil || s.trash == nil {
		return PurgeResult{DryRun: dryRun}, fmt.Errorf("trash purger is not configured")
	}
	v, err := s.do(ctx, flightKey("trash", dryRun), func(runCtx context.Context) (any, error) {
		return s.trash.Run(runCtx, dryRun)
	})
	result, _ := v.(PurgeResult)
	return result, err
}

// do runs fn once per key for all concurrent callers. The shared run is
// detached from every caller's cancellation; a caller whose ctx ends stops
// waiting and gets ctx.Err() while the run finishes for the others.
func (s *Service) do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	runCtx := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(key, func() (any, error) {
		return fn(runCtx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Jobs returns the scheduler jobs for both sweeps.
func (s *Service) Jobs(quotaInterval, trashInterval time.Duration) []Job {
	return []Job{
		{
			Name:     "quota",
			Interval: quotaInterval,
			Run: func(ctx context.Context) error {
				_, err := s.SweepQuota(ctx, false)
				return err
			},
		},
		{
			Name:     "trash",
			Interval: trashInterval,
			Run: func(ctx context.Context) error {
				_, err := s.PurgeTrash(ctx, false)
				return err
			},
		},
	}
}

func flightKey(name string, dryRun bool) string {
	if dryRun {
		return name + ":dry-run"
	}
	return name
}
