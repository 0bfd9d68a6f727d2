// Package lib implements the slider verification service: challenge
// issuance, trajectory verification with optional third-party providers,
// and proof token redemption.
package lib

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/uvensys/slidegate"
	"github.com/uvensys/slidegate/lib/challenge"
	"github.com/uvensys/slidegate/lib/provider"
	"github.com/uvensys/slidegate/lib/store"
	"github.com/uvensys/slidegate/lib/token"
	"github.com/uvensys/slidegate/lib/trajectory"

	// store implementations
	_ "github.com/uvensys/slidegate/lib/store/all"
)

var (
	verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slidegate_verifications",
		Help: "The total number of verification attempts by outcome",
	}, []string{"outcome"})

	providerFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slidegate_provider_fallbacks",
		Help: "The total number of times a third-party provider failed and the local scorer took over",
	})

	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slidegate_issue_rate_limited",
		Help: "The total number of challenge requests rejected by the issuance rate limit",
	})
)

// Outcome is the terminal state of one verification attempt.
type Outcome string

const (
	OutcomeVerified  Outcome = "verified"
	OutcomeFailed    Outcome = "failed"
	OutcomeExpired   Outcome = "expired"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeMismatch  Outcome = "mismatch"
)

// MismatchTolerance is how far the client-echoed target offset may drift
// from the stored one before the request counts as tampered.
const MismatchTolerance = 5

// Options configures a verification Server.
type Options struct {
	// Store is the shared TTL store holding challenge and token state.
	Store store.Interface

	// Provider is an optional third-party verifier tried ahead of the
	// built-in scorer.
	Provider provider.Verifier

	// ProviderRetries bounds provider attempts per verification.
	ProviderRetries int

	MaxAttempts  int
	ChallengeTTL time.Duration
	TokenTTL     time.Duration

	// IssueLimit allows at most this many challenge issuances per client IP
	// per IssueWindow. Zero disables the limiter.
	IssueLimit  int
	IssueWindow time.Duration
}

// Server is safe for concurrent use and holds no challenge state in process
// memory: every instance behind a load balancer sees the same store.
type Server struct {
	mux      *http.ServeMux
	issuer   *challenge.Issuer
	tokens   *token.Store
	limiter  *issueLimiter
	provider provider.Verifier
	opts     Options
}

func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("lib: Options.Store is required")
	}

	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = slidegate.DefaultMaxAttempts
	}
	if opts.ChallengeTTL == 0 {
		opts.ChallengeTTL = slidegate.DefaultChallengeTTL
	}
	if opts.TokenTTL == 0 {
		opts.TokenTTL = slidegate.DefaultTokenTTL
	}
	if opts.ProviderRetries == 0 {
		opts.ProviderRetries = provider.DefaultMaxRetries
	}
	if opts.IssueWindow == 0 {
		opts.IssueWindow = time.Minute
	}

	result := &Server{
		issuer:   challenge.NewIssuer(opts.Store, opts.ChallengeTTL),
		tokens:   token.NewStore(opts.Store, opts.TokenTTL),
		provider: opts.Provider,
		opts:     opts,
	}

	if opts.IssueLimit > 0 {
		result.limiter = &issueLimiter{
			store:  opts.Store,
			limit:  opts.IssueLimit,
			window: opts.IssueWindow,
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+slidegate.APIPrefix+"challenge", result.MakeChallenge)
	mux.HandleFunc("POST "+slidegate.APIPrefix+"verify", result.PassChallenge)
	mux.HandleFunc("POST "+slidegate.APIPrefix+"token/check", result.CheckToken)
	mux.HandleFunc("POST "+slidegate.APIPrefix+"token/consume", result.ConsumeToken)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	result.mux = mux

	return result, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// VerifyRequest is one verification attempt as submitted by a client.
type VerifyRequest struct {
	SessionID     string              `json:"sessionId"`
	SlideDistance int                 `json:"slideDistance"`
	TargetOffset  int                 `json:"targetOffset"`
	DurationMs    int                 `json:"durationMs"`
	Trajectory    []trajectory.Point  `json:"trajectory"`
	TrackData     []trajectory.Sample `json:"trackData"`

	// Filled in server-side, never trusted from the body.
	UserAgent string `json:"-"`
	ClientIP  string `json:"-"`
}

// VerificationResult is what one attempt produced. Reason carries the
// detection diagnostics and deliberately never serializes: clients only
// learn pass or fail.
type VerificationResult struct {
	Verified   bool    `json:"verified"`
	Token      string  `json:"token,omitempty"`
	AccuracyPx int     `json:"accuracy"`
	DurationMs int     `json:"durationMs"`
	SessionID  string  `json:"sessionId"`
	Outcome    Outcome `json:"-"`
	Reason     string  `json:"-"`
}

// Verify drives the challenge state machine for one attempt. A non-nil error
// means the store is unavailable; every challenge-level failure comes back as
// a well-formed negative result instead.
func (s *Server) Verify(ctx context.Context, req *VerifyRequest) (*VerificationResult, error) {
	lg := slog.With("session_id", req.SessionID)

	result := &VerificationResult{
		SessionID:  req.SessionID,
		DurationMs: req.DurationMs,
	}

	ch, err := s.issuer.Get(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, challenge.ErrExpired) {
			return s.conclude(lg, result, OutcomeExpired, "challenge not found or expired"), nil
		}
		return nil, err
	}

	if ch.Attempts >= s.opts.MaxAttempts {
		// A leftover record at the budget cap is destroyed on sight.
		if err := s.issuer.Destroy(ctx, ch.ID); err != nil {
			lg.Error("can't destroy exhausted challenge", "err", err)
		}
		return s.conclude(lg, result, OutcomeExhausted, challenge.ErrExhausted.Error()), nil
	}

	if abs(req.TargetOffset-ch.TargetOffset) > MismatchTolerance {
		if err := s.recordFailure(ctx, lg, ch); err != nil {
			return nil, err
		}
		return s.conclude(lg, result, OutcomeMismatch, challenge.ErrMismatch.Error()), nil
	}

	verdict := s.verdict(ctx, lg, ch, req)
	result.AccuracyPx = verdict.AccuracyPx
	result.Reason = strings.Join(verdict.Reasons, "; ")

	if !verdict.Verified {
		if err := s.recordFailure(ctx, lg, ch); err != nil {
			return nil, err
		}
		return s.conclude(lg, result, OutcomeFailed, result.Reason), nil
	}

	tok, err := s.tokens.Mint(ctx, ch.ID)
	if err != nil {
		return nil, err
	}

	if err := s.issuer.Destroy(ctx, ch.ID); err != nil {
		lg.Error("can't destroy verified challenge", "err", err)
	}

	challenge.TimeTaken.Observe(float64(req.DurationMs))

	result.Verified = true
	result.Token = tok
	return s.conclude(lg, result, OutcomeVerified, ""), nil
}

// verdict asks the configured provider first and falls back to the built-in
// scorer on any provider failure. The fallback is silent: clients cannot
// tell which path judged them.
func (s *Server) verdict(ctx context.Context, lg *slog.Logger, ch challenge.Challenge, req *VerifyRequest) trajectory.Result {
	if s.provider != nil {
		resp, err := provider.WithRetry(ctx, s.provider, &provider.Request{
			SessionID:     req.SessionID,
			SlideDistance: req.SlideDistance,
			TargetOffset:  ch.TargetOffset,
			DurationMs:    req.DurationMs,
			UserAgent:     req.UserAgent,
			ClientIP:      req.ClientIP,
		}, s.opts.ProviderRetries)

		switch {
		case err != nil:
			providerFallbacks.Inc()
			lg.Warn("third-party verifier unavailable, falling back to local scorer", "err", err)
		case resp.Verified && resp.RiskLevel != provider.RiskHigh:
			return trajectory.Result{
				Verified:   true,
				Score:      resp.Confidence,
				AccuracyPx: abs(req.SlideDistance - ch.TargetOffset),
			}
		default:
			reason := fmt.Sprintf("provider verdict: verified=%v risk=%s", resp.Verified, resp.RiskLevel)
			if resp.Reason != "" {
				reason += ": " + resp.Reason
			}
			return trajectory.Result{
				Verified:   false,
				Score:      resp.Confidence,
				AccuracyPx: abs(req.SlideDistance - ch.TargetOffset),
				Reasons:    []string{reason},
			}
		}
	}

	return trajectory.Score(trajectory.Input{
		SlideDistance: req.SlideDistance,
		TargetOffset:  ch.TargetOffset,
		DurationMs:    req.DurationMs,
		Path:          req.Trajectory,
		Samples:       req.TrackData,
	})
}

// recordFailure burns one attempt. The challenge is destroyed when the
// budget is spent and re-persisted with its remaining TTL otherwise.
func (s *Server) recordFailure(ctx context.Context, lg *slog.Logger, ch challenge.Challenge) error {
	ch.Attempts++

	if ch.Attempts >= s.opts.MaxAttempts {
		lg.Debug("challenge exhausted", "attempts", ch.Attempts)
		return s.issuer.Destroy(ctx, ch.ID)
	}

	if err := s.issuer.Update(ctx, ch); err != nil {
		if errors.Is(err, challenge.ErrExpired) {
			// Expired between the read and the write, nothing to track.
			return nil
		}
		return err
	}

	return nil
}

func (s *Server) conclude(lg *slog.Logger, result *VerificationResult, outcome Outcome, reason string) *VerificationResult {
	result.Outcome = outcome
	result.Reason = reason
	verifications.WithLabelValues(string(outcome)).Inc()

	if outcome == OutcomeVerified {
		lg.Info("verification passed", "accuracy_px", result.AccuracyPx, "duration_ms", result.DurationMs)
	} else {
		lg.Info("verification failed", "outcome", string(outcome), "reason", reason)
	}

	return result
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
