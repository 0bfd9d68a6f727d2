// Package token mints and validates the bearer proofs handed out after a
// successful slider verification. Tokens are opaque random strings with a
// TTL, not signed credentials: possession is the whole proof.
package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uvensys/slidegate"
	"github.com/uvensys/slidegate/lib/store"
)

// Prefix tags every token so downstream services can cheaply reject garbage
// before touching the store.
const Prefix = "sg1_"

const randomBytes = 16

// Record is what gets stored next to a token, for audit only. The token's
// validity is its presence in the store.
type Record struct {
	SessionID string    `json:"sessionId"`
	IssuedAt  time.Time `json:"issuedAt"`
}

// Store mints and redeems tokens against the shared TTL store.
type Store struct {
	DB  *store.JSON[Record]
	TTL time.Duration
}

func NewStore(st store.Interface, ttl time.Duration) *Store {
	if ttl == 0 {
		ttl = slidegate.DefaultTokenTTL
	}

	return &Store{
		DB: &store.JSON[Record]{
			Underlying: st,
			Prefix:     slidegate.TokenKeyPrefix,
		},
		TTL: ttl,
	}
}

// Mint creates a fresh token bound loosely to the session that earned it.
func (s *Store) Mint(ctx context.Context, sessionID string) (string, error) {
	buf := make([]byte, randomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("can't read entropy: %w", err)
	}

	tok := Prefix + hex.EncodeToString(buf)

	if err := s.DB.Set(ctx, tok, Record{
		SessionID: sessionID,
		IssuedAt:  time.Now(),
	}, s.TTL); err != nil {
		return "", err
	}

	return tok, nil
}

// Check reports whether a token is currently redeemable. It does not consume
// the token; redemption belongs to the flow that accepts it.
func (s *Store) Check(ctx context.Context, tok string) (bool, error) {
	if !WellFormed(tok) {
		return false, nil
	}

	if _, err := s.DB.Get(ctx, tok); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// Consume redeems a token exactly once: a token that was consumed never
// validates again, even inside its TTL window.
func (s *Store) Consume(ctx context.Context, tok string) (bool, error) {
	ok, err := s.Check(ctx, tok)
	if err != nil || !ok {
		return false, err
	}

	if err := s.DB.Delete(ctx, tok); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Another consumer won the race, the token is spent either way.
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// WellFormed checks the shape of a token without touching the store.
func WellFormed(tok string) bool {
	if !strings.HasPrefix(tok, Prefix) {
		return false
	}

	rest := strings.TrimPrefix(tok, Prefix)
	if len(rest) != randomBytes*2 {
		return false
	}

	_, err := hex.DecodeString(rest)
	return err == nil
}
