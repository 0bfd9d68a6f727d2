package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

func init() {
	Register("humancheck", humancheckFactory{})
}

type humancheckFactory struct{}

func (humancheckFactory) Build(data json.RawMessage) (Verifier, error) {
	var config HTTPConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadConfig, err)
	}

	if err := config.Valid(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadConfig, err)
	}

	return &Humancheck{
		config: config,
		client: &http.Client{Timeout: config.timeout()},
	}, nil
}

func (humancheckFactory) Valid(data json.RawMessage) error {
	var config HTTPConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("%w: %w", ErrBadConfig, err)
	}

	return config.Valid()
}

// Humancheck talks to a humancheck-style service. Unlike sentineld it
// reports risk as a keyword:
//
//	{"success": true, "request_id": "...", "result": {"human": true, "confidence": 0.87, "risk_level": "low"}}
type Humancheck struct {
	config HTTPConfig
	client *http.Client
}

type humancheckResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	RequestID string `json:"request_id"`
	Result    struct {
		Human      bool    `json:"human"`
		Confidence float64 `json:"confidence"`
		RiskLevel  string  `json:"risk_level"`
	} `json:"result"`
}

func (h *Humancheck) Verify(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("can't encode humancheck request: %w", err)
	}

	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, h.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("can't create humancheck request: %w", err)
	}
	hr.Header.Set("Content-Type", "application/json")
	if h.config.APIKey != "" {
		hr.Header.Set("X-Api-Key", h.config.APIKey)
	}

	resp, err := h.client.Do(hr)
	if err != nil {
		return nil, fmt.Errorf("can't call humancheck at %s: %w", h.config.Endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("humancheck returned status %d", resp.StatusCode)
	}

	var parsed humancheckResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("can't decode humancheck response: %w", err)
	}

	if !parsed.Success {
		return nil, fmt.Errorf("%w: humancheck: %s", ErrRejected, parsed.Error)
	}

	risk := RiskFromString(parsed.Result.RiskLevel)
	Verdicts.WithLabelValues("humancheck", string(risk)).Inc()

	return &Response{
		Success:    true,
		Verified:   parsed.Result.Human,
		Confidence: parsed.Result.Confidence,
		RiskLevel:  risk,
		RequestID:  parsed.RequestID,
	}, nil
}
