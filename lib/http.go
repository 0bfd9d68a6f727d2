package lib

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/uvensys/slidegate/internal"
	"github.com/uvensys/slidegate/lib/store"
)

// MakeChallenge issues a fresh slider challenge. The target offset goes out
// so the client can render the gap; the echoed copy is checked against the
// stored one on every attempt.
func (s *Server) MakeChallenge(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)

	ip := r.Header.Get("X-Real-Ip")
	if s.limiter != nil && !s.limiter.allow(r.Context(), ip) {
		rateLimited.Inc()
		lg.Info("challenge issuance rate limited", "limit", s.limiter.String())
		s.respondWithError(w, http.StatusTooManyRequests, "too many challenge requests, slow down")
		return
	}

	var req struct {
		PuzzleWidth int `json:"puzzleWidth"`
	}
	if r.Body != nil {
		// An empty or absent body means default puzzle width.
		json.NewDecoder(r.Body).Decode(&req)
	}

	ch, err := s.issuer.Issue(r.Context(), req.PuzzleWidth)
	if err != nil {
		lg.Error("can't issue challenge", "err", err)
		s.respondToStoreError(w, err)
		return
	}

	lg.Debug("made challenge", "session_id", ch.ID, "target_offset", ch.TargetOffset)

	encoder := json.NewEncoder(w)
	err = encoder.Encode(struct {
		SessionID    string `json:"sessionId"`
		TargetOffset int    `json:"targetOffset"`
		ExpiresInSec int    `json:"expiresInSec"`
		MaxAttempts  int    `json:"maxAttempts"`
	}{
		SessionID:    ch.ID,
		TargetOffset: ch.TargetOffset,
		ExpiresInSec: int(s.opts.ChallengeTTL.Seconds()),
		MaxAttempts:  s.opts.MaxAttempts,
	})
	if err != nil {
		lg.Error("failed to encode challenge", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// PassChallenge accepts one verification attempt against a live challenge.
func (s *Server) PassChallenge(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		lg.Debug("malformed verify request", "err", err)
		s.respondWithError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if req.SessionID == "" {
		s.respondWithError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	req.UserAgent = r.UserAgent()
	req.ClientIP = r.Header.Get("X-Real-Ip")

	result, err := s.Verify(r.Context(), &req)
	if err != nil {
		lg.Error("verification errored", "err", err)
		s.respondToStoreError(w, err)
		return
	}

	if err := json.NewEncoder(w).Encode(result); err != nil {
		lg.Error("failed to encode verification result", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// CheckToken reports whether a proof token is currently valid without
// spending it.
func (s *Server) CheckToken(w http.ResponseWriter, r *http.Request) {
	s.tokenEndpoint(w, r, s.tokens.Check)
}

// ConsumeToken redeems a proof token. The token never validates again.
func (s *Server) ConsumeToken(w http.ResponseWriter, r *http.Request) {
	s.tokenEndpoint(w, r, s.tokens.Consume)
}

func (s *Server) tokenEndpoint(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, tok string) (bool, error)) {
	lg := internal.GetRequestLogger(r)

	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		s.respondWithError(w, http.StatusBadRequest, "token is required")
		return
	}

	ok, err := op(r.Context(), req.Token)
	if err != nil {
		lg.Error("token lookup failed", "err", err)
		s.respondToStoreError(w, err)
		return
	}

	err = json.NewEncoder(w).Encode(struct {
		Valid bool `json:"valid"`
	}{
		Valid: ok,
	})
	if err != nil {
		lg.Error("failed to encode token response", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (s *Server) respondWithError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{
		Error: msg,
	})
}

// respondToStoreError maps backend failures onto 503 so load balancers retry
// another instance, and everything else onto 500.
func (s *Server) respondToStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrUnavailable) {
		s.respondWithError(w, http.StatusServiceUnavailable, "verification backend unavailable, try again")
		return
	}

	s.respondWithError(w, http.StatusInternalServerError, "internal server error")
}
