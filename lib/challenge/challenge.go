package challenge

import "time"

// Challenge is the server-side state of a single slider puzzle issuance.
type Challenge struct {
	ID           string    `json:"id"`           // UUID identifying the challenge session
	TargetOffset int       `json:"targetOffset"` // Pixel offset the user must drag the slider to
	CreatedAt    time.Time `json:"createdAt"`    // When the challenge was issued
	Attempts     int       `json:"attempts"`     // Failed verification attempts so far
}

// Remaining returns how much of the challenge TTL is left, so that attempt
// counter updates do not extend the challenge lifetime.
func (c Challenge) Remaining(ttl time.Duration) time.Duration {
	return time.Until(c.CreatedAt.Add(ttl))
}
