package lib

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/uvensys/slidegate"
)

func postJSON(t *testing.T, url string, body any, extraHeaders map[string]string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}

	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var result T
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	return result
}

type challengeResponse struct {
	SessionID    string `json:"sessionId"`
	TargetOffset int    `json:"targetOffset"`
	ExpiresIn    int    `json:"expiresInSec"`
	MaxAttempts  int    `json:"maxAttempts"`
}

func TestHTTPEndToEnd(t *testing.T) {
	s := newTestServer(t, Options{})
	srv := httptest.NewServer(s)
	defer srv.Close()

	resp := postJSON(t, srv.URL+slidegate.APIPrefix+"challenge", map[string]int{"puzzleWidth": 320}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("challenge endpoint returned %d", resp.StatusCode)
	}

	ch := decodeBody[challengeResponse](t, resp)
	if ch.SessionID == "" {
		t.Fatal("challenge has no session id")
	}
	if ch.MaxAttempts != slidegate.DefaultMaxAttempts {
		t.Errorf("wanted maxAttempts %d, got: %d", slidegate.DefaultMaxAttempts, ch.MaxAttempts)
	}

	attempt := goodAttempt(t, ch.SessionID, ch.TargetOffset)
	resp = postJSON(t, srv.URL+slidegate.APIPrefix+"verify", attempt, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify endpoint returned %d", resp.StatusCode)
	}

	result := decodeBody[VerificationResult](t, resp)
	if !result.Verified {
		t.Fatal("clean drag was rejected over HTTP")
	}
	if result.Token == "" {
		t.Fatal("verified response has no token")
	}

	resp = postJSON(t, srv.URL+slidegate.APIPrefix+"token/check", map[string]string{"token": result.Token}, nil)
	if valid := decodeBody[struct {
		Valid bool `json:"valid"`
	}](t, resp); !valid.Valid {
		t.Error("fresh token did not check out")
	}

	resp = postJSON(t, srv.URL+slidegate.APIPrefix+"token/consume", map[string]string{"token": result.Token}, nil)
	if valid := decodeBody[struct {
		Valid bool `json:"valid"`
	}](t, resp); !valid.Valid {
		t.Error("fresh token could not be consumed")
	}

	resp = postJSON(t, srv.URL+slidegate.APIPrefix+"token/check", map[string]string{"token": result.Token}, nil)
	if valid := decodeBody[struct {
		Valid bool `json:"valid"`
	}](t, resp); valid.Valid {
		t.Error("consumed token still checks out")
	}
}

func TestHTTPResultHidesDiagnostics(t *testing.T) {
	s := newTestServer(t, Options{})
	srv := httptest.NewServer(s)
	defer srv.Close()

	resp := postJSON(t, srv.URL+slidegate.APIPrefix+"challenge", nil, nil)
	ch := decodeBody[challengeResponse](t, resp)

	resp = postJSON(t, srv.URL+slidegate.APIPrefix+"verify", badAttempt(t, ch.SessionID, ch.TargetOffset), nil)
	body := decodeBody[map[string]any](t, resp)

	if verified, _ := body["verified"].(bool); verified {
		t.Error("bot-like drag verified")
	}
	for _, key := range []string{"reason", "Reason", "outcome", "Outcome"} {
		if _, ok := body[key]; ok {
			t.Errorf("response leaks internal field %q", key)
		}
	}
}

func TestHTTPVerifyValidation(t *testing.T) {
	s := newTestServer(t, Options{})
	srv := httptest.NewServer(s)
	defer srv.Close()

	resp := postJSON(t, srv.URL+slidegate.APIPrefix+"verify", map[string]string{}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing sessionId: wanted 400, got: %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+slidegate.APIPrefix+"verify", bytes.NewBufferString("{not json"))
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body: wanted 400, got: %d", resp2.StatusCode)
	}
}

func TestHTTPTokenValidation(t *testing.T) {
	s := newTestServer(t, Options{})
	srv := httptest.NewServer(s)
	defer srv.Close()

	resp := postJSON(t, srv.URL+slidegate.APIPrefix+"token/check", map[string]string{}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing token: wanted 400, got: %d", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+slidegate.APIPrefix+"token/check", map[string]string{"token": "garbage"}, nil)
	if valid := decodeBody[struct {
		Valid bool `json:"valid"`
	}](t, resp); valid.Valid {
		t.Error("garbage token checked out")
	}
}

func TestHTTPIssueRateLimit(t *testing.T) {
	s := newTestServer(t, Options{IssueLimit: 2})
	srv := httptest.NewServer(s)
	defer srv.Close()

	headers := map[string]string{"X-Real-Ip": "203.0.113.7"}

	for i := range 2 {
		resp := postJSON(t, srv.URL+slidegate.APIPrefix+"challenge", nil, headers)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d inside the limit returned %d", i+1, resp.StatusCode)
		}
	}

	resp := postJSON(t, srv.URL+slidegate.APIPrefix+"challenge", nil, headers)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("request over the limit: wanted 429, got: %d", resp.StatusCode)
	}

	// A different client is not affected.
	resp = postJSON(t, srv.URL+slidegate.APIPrefix+"challenge", nil, map[string]string{"X-Real-Ip": "203.0.113.8"})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("unrelated client was limited: %d", resp.StatusCode)
	}
}

func TestHTTPHealthz(t *testing.T) {
	s := newTestServer(t, Options{})
	srv := httptest.NewServer(s)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz returned %d", resp.StatusCode)
	}
}
