package challenge

import "errors"

var (
	// ErrExpired means the challenge does not exist in the store, either
	// because it was never issued, its TTL lapsed, or it was consumed.
	ErrExpired = errors.New("challenge: not found or expired")

	// ErrExhausted means the attempt budget was spent and the challenge was
	// destroyed. The client must request a fresh one.
	ErrExhausted = errors.New("challenge: attempt budget exhausted")

	// ErrMismatch means the client submitted a target offset that diverges
	// from the stored one, which indicates a tampered or replayed request.
	ErrMismatch = errors.New("challenge: challenge data mismatch")
)
