package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

func init() {
	Register("sentineld", sentineldFactory{})
}

var (
	ErrNoEndpoint = errors.New("provider: no endpoint defined")
	ErrBadEndpoint = errors.New("provider: endpoint is not a valid URL")
)

type sentineldFactory struct{}

func (sentineldFactory) Build(data json.RawMessage) (Verifier, error) {
	var config HTTPConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadConfig, err)
	}

	if err := config.Valid(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadConfig, err)
	}

	return &Sentineld{
		config: config,
		client: &http.Client{Timeout: config.timeout()},
	}, nil
}

func (sentineldFactory) Valid(data json.RawMessage) error {
	var config HTTPConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("%w: %w", ErrBadConfig, err)
	}

	return config.Valid()
}

// HTTPConfig is shared by the HTTP-based provider adapters.
type HTTPConfig struct {
	Endpoint  string `json:"endpoint"`
	APIKey    string `json:"api_key"`
	TimeoutMs int    `json:"timeout_ms"`
}

func (c HTTPConfig) Valid() error {
	var errs []error

	if c.Endpoint == "" {
		errs = append(errs, ErrNoEndpoint)
	} else if _, err := url.Parse(c.Endpoint); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrBadEndpoint, err))
	}

	if len(errs) != 0 {
		return fmt.Errorf("%w: %w", ErrBadConfig, errors.Join(errs...))
	}

	return nil
}

func (c HTTPConfig) timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return DefaultTimeout
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Sentineld talks to a sentineld-compatible risk engine. Its wire format is
// a numeric risk score:
//
//	{"code": 0, "request_id": "...", "data": {"pass": true, "score": 0.93, "risk": 0.05}}
//
// code is zero on success, anything else is a request-level rejection.
type Sentineld struct {
	config HTTPConfig
	client *http.Client
}

type sentineldResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Data      struct {
		Pass  bool    `json:"pass"`
		Score float64 `json:"score"`
		Risk  float64 `json:"risk"`
	} `json:"data"`
}

func (s *Sentineld) Verify(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("can't encode sentineld request: %w", err)
	}

	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("can't create sentineld request: %w", err)
	}
	hr.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		hr.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.client.Do(hr)
	if err != nil {
		return nil, fmt.Errorf("can't call sentineld at %s: %w", s.config.Endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sentineld returned status %d", resp.StatusCode)
	}

	var parsed sentineldResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("can't decode sentineld response: %w", err)
	}

	if parsed.Code != 0 {
		return nil, fmt.Errorf("%w: sentineld code %d: %s", ErrRejected, parsed.Code, parsed.Message)
	}

	risk := RiskFromScore(parsed.Data.Risk)
	Verdicts.WithLabelValues("sentineld", string(risk)).Inc()

	return &Response{
		Success:    true,
		Verified:   parsed.Data.Pass,
		Confidence: parsed.Data.Score,
		RiskLevel:  risk,
		Reason:     parsed.Message,
		RequestID:  parsed.RequestID,
	}, nil
}
