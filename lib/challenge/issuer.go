package challenge

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/uvensys/slidegate"
	"github.com/uvensys/slidegate/lib/store"
)

// Offset band as a fraction of the usable track width. Keeping the target
// away from both ends stops trivial "drag to the far edge" bots.
const (
	bandLow  = 0.30
	bandHigh = 0.80
)

// Issuer creates and tracks challenges in the shared store.
type Issuer struct {
	DB  *store.JSON[Challenge]
	TTL time.Duration
}

func NewIssuer(st store.Interface, ttl time.Duration) *Issuer {
	if ttl == 0 {
		ttl = slidegate.DefaultChallengeTTL
	}

	return &Issuer{
		DB: &store.JSON[Challenge]{
			Underlying: st,
			Prefix:     slidegate.ChallengeKeyPrefix,
		},
		TTL: ttl,
	}
}

// Issue creates a challenge with a random target offset inside the band
// [0.30, 0.80] of the usable track width and persists it with the configured
// TTL and a zero attempt count.
func (i *Issuer) Issue(ctx context.Context, puzzleWidth int) (*Challenge, error) {
	if puzzleWidth < slidegate.MinPuzzleWidth {
		puzzleWidth = slidegate.MinPuzzleWidth
	}
	if puzzleWidth > slidegate.MaxPuzzleWidth {
		puzzleWidth = slidegate.MaxPuzzleWidth
	}

	usable := puzzleWidth - slidegate.SliderWidth

	offset, err := randomOffset(usable)
	if err != nil {
		return nil, fmt.Errorf("can't generate target offset: %w", err)
	}

	result := &Challenge{
		ID:           uuid.NewString(),
		TargetOffset: offset,
		CreatedAt:    time.Now(),
		Attempts:     0,
	}

	if err := i.DB.Set(ctx, result.ID, *result, i.TTL); err != nil {
		return nil, err
	}

	ChallengesIssued.Inc()

	return result, nil
}

// Get loads a live challenge, mapping a store miss to ErrExpired.
func (i *Issuer) Get(ctx context.Context, id string) (Challenge, error) {
	result, err := i.DB.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Challenge{}, fmt.Errorf("%w: %q", ErrExpired, id)
		}
		return Challenge{}, err
	}

	return result, nil
}

// Update re-persists a mutated challenge without extending its lifetime.
func (i *Issuer) Update(ctx context.Context, c Challenge) error {
	remaining := c.Remaining(i.TTL)
	if remaining <= 0 {
		return fmt.Errorf("%w: %q", ErrExpired, c.ID)
	}

	return i.DB.Set(ctx, c.ID, c, remaining)
}

// Destroy removes a challenge. Destroying an already-gone challenge is not an
// error, concurrent attempts may race on the delete.
func (i *Issuer) Destroy(ctx context.Context, id string) error {
	if err := i.DB.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	return nil
}

// randomOffset picks a uniform pixel offset in [bandLow*usable, bandHigh*usable].
func randomOffset(usable int) (int, error) {
	low := int(bandLow * float64(usable))
	high := int(bandHigh * float64(usable))

	n, err := rand.Int(rand.Reader, big.NewInt(int64(high-low+1)))
	if err != nil {
		return 0, err
	}

	return low + int(n.Int64()), nil
}
