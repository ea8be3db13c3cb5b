package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// PruneReport counts the rows removed by one janitor pass.
type PruneReport struct {
	Permissions int64 `json:"permissions"`
	Tokens      int64 `json:"tokens"`
	Idempotency int64 `json:"idempotency"`
}

// Janitor periodically purges rows that are no longer useful: permissions
// past the retention window, expired blacklist entries and expired
// idempotency records. Each purge belongs to the service owning the table.
type Janitor struct {
	Permissions *PermissionService
	Auth        *AuthService
	Idempotency *IdempotencyService
	Retention   time.Duration
	Interval    time.Duration
}

// NewJanitor constructs a Janitor over the services whose tables it prunes.
func NewJanitor(perms *PermissionService, auth *AuthService, idem *IdempotencyService, retention, interval time.Duration) *Janitor {
	return &Janitor{Permissions: perms, Auth: auth, Idempotency: idem, Retention: retention, Interval: interval}
}

// RunOnce performs a single pass. Each purge is independent; the first
// error is returned after all three have been attempted.
func (j *Janitor) RunOnce(ctx context.Context) (PruneReport, error) {
	var (
		rep      PruneReport
		firstErr error
	)
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	n, err := j.Permissions.PruneExpired(ctx, j.Retention)
	keep(err)
	rep.Permissions = n

	n, err = j.Auth.PruneRevoked(ctx)
	keep(err)
	rep.Tokens = n

	n, err = j.Idempotency.PruneExpired(ctx)
	keep(err)
	rep.Idempotency = n

	janitorPrunedTotal.WithLabelValues("permissions").Add(float64(rep.Permissions))
	janitorPrunedTotal.WithLabelValues("tokens").Add(float64(rep.Tokens))
	janitorPrunedTotal.WithLabelValues("idempotency").Add(float64(rep.Idempotency))

	return rep, firstErr
}

// Run ticks every Interval until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	interval := j.Interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rep, err := j.RunOnce(ctx)
			ev := log.Info()
			if err != nil {
				ev = log.Warn().Err(err)
			}
			ev.Int64("permissions", rep.Permissions).
				Int64("tokens", rep.Tokens).
				Int64("idempotency", rep.Idempotency).
				Msg("janitor pass")
		case <-ctx.Done():
			return
		}
	}
}
