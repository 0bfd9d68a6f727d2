package lib

import (
	"context"
	"fmt"
	"time"

	"github.com/uvensys/slidegate"
	"github.com/uvensys/slidegate/internal"
	"github.com/uvensys/slidegate/lib/store"
)

// issueLimiter throttles challenge issuance per client IP with a fixed
// window counter in the shared store, so the limit holds across instances.
type issueLimiter struct {
	store  store.Interface
	limit  int
	window time.Duration
}

// allow burns one issuance slot for ip. Store failures fail open: losing
// the limiter must not take challenge issuance down with it.
func (il *issueLimiter) allow(ctx context.Context, ip string) bool {
	if ip == "" {
		return true
	}

	key := slidegate.RateLimitKeyPrefix + internal.FastHash(ip)

	count, err := il.store.Increment(ctx, key, il.window)
	if err != nil {
		return true
	}

	return count <= int64(il.limit)
}

func (il *issueLimiter) String() string {
	return fmt.Sprintf("%d per %v", il.limit, il.window)
}
