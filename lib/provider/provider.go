// Package provider integrates external bot-detection services that can vouch
// for a slider verification ahead of the built-in scorer. Providers are an
// optimization: every caller must be able to fall back to local scoring when
// a provider misbehaves.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrUnavailable is returned once the retry budget against a provider is
	// spent. Callers recover by scoring locally, never by failing the
	// user's request.
	ErrUnavailable = errors.New("provider: verification service unavailable")

	// ErrBadConfig is returned when a provider's configuration is invalid.
	ErrBadConfig = errors.New("provider: configuration is invalid")

	// ErrRejected is returned when a provider answers but refuses the
	// request itself (bad credentials, malformed payload).
	ErrRejected = errors.New("provider: request rejected")
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 5 * time.Second

// Request is the normalized payload sent to every provider.
type Request struct {
	SessionID     string `json:"sessionId,omitempty"`
	SlideDistance int    `json:"slideDistance"`
	TargetOffset  int    `json:"targetOffset"`
	DurationMs    int    `json:"durationMs"`
	UserAgent     string `json:"userAgent,omitempty"`
	ClientIP      string `json:"clientIp,omitempty"`
}

// Response is the provider verdict normalized across response shapes.
type Response struct {
	Success    bool      `json:"success"`
	Verified   bool      `json:"verified"`
	Confidence float64   `json:"confidence"`
	RiskLevel  RiskLevel `json:"riskLevel"`
	Reason     string    `json:"reason,omitempty"`
	RequestID  string    `json:"requestId,omitempty"`
}

// Verifier is implemented once per external provider. Implementations only
// differ in wire format, normalization happens inside Verify.
type Verifier interface {
	Verify(ctx context.Context, req *Request) (*Response, error)
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskFromScore maps a provider's numeric risk signal onto the fixed levels.
func RiskFromScore(score float64) RiskLevel {
	switch {
	case score >= 0.7:
		return RiskHigh
	case score >= 0.4:
		return RiskMedium
	default:
		return RiskLow
	}
}

// RiskFromString maps provider-specific risk words onto the fixed levels.
// Unknown words read as low so that a provider inventing new labels cannot
// lock users out.
func RiskFromString(s string) RiskLevel {
	s = strings.ToLower(s)

	switch {
	case strings.Contains(s, "high"), strings.Contains(s, "danger"), strings.Contains(s, "bot"):
		return RiskHigh
	case strings.Contains(s, "medium"), strings.Contains(s, "suspicious"), strings.Contains(s, "warn"):
		return RiskMedium
	default:
		return RiskLow
	}
}

var (
	registry map[string]Factory = map[string]Factory{}
	regLock  sync.RWMutex
)

// Factory builds a Verifier from its JSON configuration. New providers are
// added by implementing Verifier and registering a Factory, not by branching
// in shared code.
type Factory interface {
	Build(config json.RawMessage) (Verifier, error)
	Valid(config json.RawMessage) error
}

func Register(name string, impl Factory) {
	regLock.Lock()
	defer regLock.Unlock()

	registry[name] = impl
}

func Get(name string) (Factory, bool) {
	regLock.RLock()
	defer regLock.RUnlock()
	result, ok := registry[name]
	return result, ok
}

func Methods() []string {
	regLock.RLock()
	defer regLock.RUnlock()
	var result []string
	for method := range registry {
		result = append(result, method)
	}
	sort.Strings(result)
	return result
}
