package ratelimit

import "context"

// RateLimiter caps outbound throughput toward a rate-sensitive collaborator.
// The resource name keys the limit, e.g. "smtp".
type RateLimiter interface {
	Allow(ctx context.Context, resource string) (bool, error)
	Wait(ctx context.Context, resource string) error
}
