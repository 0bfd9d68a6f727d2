// Package slidegate contains the version number and default settings of
// slidegate, a slider-captcha human verification service.
package slidegate

import "time"

var (
	// Version is the version of slidegate, injected at build time.
	Version = "devel"

	// APIPrefix is the prefix of all slidegate API routes.
	APIPrefix = "/api/v1/"
)

const (
	// ChallengeKeyPrefix namespaces challenge records in the store.
	ChallengeKeyPrefix = "challenge:"

	// TokenKeyPrefix namespaces verification token records in the store.
	TokenKeyPrefix = "token:"

	// RateLimitKeyPrefix namespaces issuance rate-limit counters in the store.
	RateLimitKeyPrefix = "rl:issue:"

	// DefaultChallengeTTL is how long an abandoned challenge lives in the store.
	DefaultChallengeTTL = 5 * time.Minute

	// DefaultTokenTTL is how long a verification token stays redeemable.
	DefaultTokenTTL = 30 * time.Minute

	// DefaultMaxAttempts is the number of verification attempts a single
	// challenge can absorb before it is destroyed.
	DefaultMaxAttempts = 3

	// SliderWidth is the width of the draggable slider block in pixels. The
	// usable track width is the puzzle width minus this.
	SliderWidth = 50

	// MinPuzzleWidth and MaxPuzzleWidth bound client-supplied puzzle widths.
	MinPuzzleWidth = 150
	MaxPuzzleWidth = 1000
)
