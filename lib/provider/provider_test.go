package provider

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
)

func TestRiskFromScore(t *testing.T) {
	for _, tt := range []struct {
		score float64
		want  RiskLevel
	}{
		{0.0, RiskLow},
		{0.39, RiskLow},
		{0.4, RiskMedium},
		{0.69, RiskMedium},
		{0.7, RiskHigh},
		{1.0, RiskHigh},
	} {
		if got := RiskFromScore(tt.score); got != tt.want {
			t.Errorf("RiskFromScore(%.2f) = %s, wanted %s", tt.score, got, tt.want)
		}
	}
}

func TestRiskFromString(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want RiskLevel
	}{
		{"HIGH", RiskHigh},
		{"likely-bot", RiskHigh},
		{"dangerous", RiskHigh},
		{"suspicious", RiskMedium},
		{"warn", RiskMedium},
		{"medium_risk", RiskMedium},
		{"low", RiskLow},
		{"ok", RiskLow},
		{"", RiskLow},
		{"some-new-label", RiskLow},
	} {
		if got := RiskFromString(tt.in); got != tt.want {
			t.Errorf("RiskFromString(%q) = %s, wanted %s", tt.in, got, tt.want)
		}
	}
}

func TestRegistry(t *testing.T) {
	methods := Methods()

	for _, want := range []string{"sentineld", "humancheck"} {
		if !slices.Contains(methods, want) {
			t.Errorf("provider %q is not registered: %v", want, methods)
		}
	}
}

func TestSentineld(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer hunter2" {
			t.Error("api key was not forwarded")
		}

		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("can't decode request: %v", err)
		}
		if req.SlideDistance != 120 {
			t.Errorf("wanted slideDistance 120, got: %d", req.SlideDistance)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"code":       0,
			"request_id": "req-1",
			"data": map[string]any{
				"pass":  true,
				"score": 0.93,
				"risk":  0.05,
			},
		})
	}))
	defer srv.Close()

	config, _ := json.Marshal(HTTPConfig{Endpoint: srv.URL, APIKey: "hunter2"})
	v, err := (sentineldFactory{}).Build(config)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := v.Verify(t.Context(), &Request{SlideDistance: 120, TargetOffset: 118, DurationMs: 2000})
	if err != nil {
		t.Fatal(err)
	}

	if !resp.Verified {
		t.Error("wanted verified verdict")
	}
	if resp.RiskLevel != RiskLow {
		t.Errorf("wanted low risk, got: %s", resp.RiskLevel)
	}
	if resp.RequestID != "req-1" {
		t.Errorf("request id was not propagated: %q", resp.RequestID)
	}
}

func TestSentineldRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"code":    401,
			"message": "bad credentials",
		})
	}))
	defer srv.Close()

	config, _ := json.Marshal(HTTPConfig{Endpoint: srv.URL})
	v, err := (sentineldFactory{}).Build(config)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := v.Verify(t.Context(), &Request{}); !errors.Is(err, ErrRejected) {
		t.Errorf("wanted ErrRejected, got: %v", err)
	}
}

func TestHumancheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "hunter2" {
			t.Error("api key was not forwarded")
		}

		json.NewEncoder(w).Encode(map[string]any{
			"success":    true,
			"request_id": "req-2",
			"result": map[string]any{
				"human":      false,
				"confidence": 0.2,
				"risk_level": "suspicious",
			},
		})
	}))
	defer srv.Close()

	config, _ := json.Marshal(HTTPConfig{Endpoint: srv.URL, APIKey: "hunter2"})
	v, err := (humancheckFactory{}).Build(config)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := v.Verify(t.Context(), &Request{})
	if err != nil {
		t.Fatal(err)
	}

	if resp.Verified {
		t.Error("wanted unverified verdict")
	}
	if resp.RiskLevel != RiskMedium {
		t.Errorf("wanted medium risk, got: %s", resp.RiskLevel)
	}
}

func TestHTTPConfigValid(t *testing.T) {
	if err := (HTTPConfig{}).Valid(); !errors.Is(err, ErrNoEndpoint) {
		t.Errorf("wanted ErrNoEndpoint, got: %v", err)
	}

	if err := (HTTPConfig{Endpoint: "https://example.com/verify"}).Valid(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestFactoryBadJSON(t *testing.T) {
	for _, f := range []Factory{sentineldFactory{}, humancheckFactory{}} {
		if err := f.Valid(json.RawMessage("}")); !errors.Is(err, ErrBadConfig) {
			t.Errorf("wanted ErrBadConfig, got: %v", err)
		}
	}
}
