package provider

import (
	"context"
	"errors"
	"testing"
	"time"
)

type failingVerifier struct {
	calls int
	err   error
}

func (f *failingVerifier) Verify(ctx context.Context, req *Request) (*Response, error) {
	f.calls++
	return nil, f.err
}

func TestBackoffSchedule(t *testing.T) {
	var prev time.Duration
	for attempt := 1; attempt <= 6; attempt++ {
		d := Backoff(attempt)
		if d < prev {
			t.Errorf("backoff decreased at attempt %d: %v -> %v", attempt, prev, d)
		}
		if d > 5*time.Second {
			t.Errorf("backoff at attempt %d exceeds cap: %v", attempt, d)
		}
		prev = d
	}

	if Backoff(1) != time.Second {
		t.Errorf("first backoff should be 1s, got: %v", Backoff(1))
	}
	if Backoff(2) != 2*time.Second {
		t.Errorf("second backoff should be 2s, got: %v", Backoff(2))
	}
}

func TestWithRetryExhaustion(t *testing.T) {
	t.Cleanup(func() { after = time.After })
	after = func(time.Duration) <-chan time.Time {
		c := make(chan time.Time, 1)
		c <- time.Time{}
		return c
	}

	boom := errors.New("boom")
	v := &failingVerifier{err: boom}

	_, err := WithRetry(t.Context(), v, &Request{}, 3)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("wanted ErrUnavailable, got: %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("last provider error was not preserved: %v", err)
	}
	if v.calls != 3 {
		t.Errorf("wanted exactly 3 attempts, got: %d", v.calls)
	}
}

func TestWithRetryFirstTry(t *testing.T) {
	v := verifierFunc(func(ctx context.Context, req *Request) (*Response, error) {
		return &Response{Success: true, Verified: true}, nil
	})

	resp, err := WithRetry(t.Context(), v, &Request{}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Verified {
		t.Error("wanted verified response")
	}
}

func TestWithRetryContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	v := &failingVerifier{err: errors.New("boom")}

	if _, err := WithRetry(ctx, v, &Request{}, 3); !errors.Is(err, ErrUnavailable) {
		t.Errorf("wanted ErrUnavailable on canceled context, got: %v", err)
	}
	if v.calls > 1 {
		t.Errorf("canceled context should stop retries, got %d calls", v.calls)
	}
}

type verifierFunc func(ctx context.Context, req *Request) (*Response, error)

func (f verifierFunc) Verify(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
