package services

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"

	"siem-console/system"
)

// HealthChecker is satisfied by the gateway
type HealthChecker interface {
	Health(ctx context.Context) error
}

// WaitForBackend probes /api/health with exponential backoff until it
// answers or maxElapsed passes. The console starts either way; this only
// avoids a burst of failed first fetches while the backend boots.
func WaitForBackend(ctx context.Context, hc HealthChecker, maxElapsed time.Duration) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = maxElapsed

	return backoff.RetryNotify(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return hc.Health(ctx)
	}, backoff.WithContext(bo, ctx), func(err error, next time.Duration) {
		system.Warn("Backend not reachable yet (%s), retrying in %v", Display(err), next)
	})
}
