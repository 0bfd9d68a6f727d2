package lib

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	doc := `
store:
  backend: memory
max_attempts: 5
challenge_ttl_seconds: 120
token_ttl_seconds: 600
issue_limit: 10
issue_window_seconds: 60
`

	c, err := LoadConfig(strings.NewReader(doc), "test.yaml")
	if err != nil {
		t.Fatal(err)
	}

	if c.Store.Backend != "memory" {
		t.Errorf("wanted memory backend, got: %q", c.Store.Backend)
	}
	if c.MaxAttempts != 5 {
		t.Errorf("wanted 5 max attempts, got: %d", c.MaxAttempts)
	}
	if c.ChallengeTTL != 2*time.Minute {
		t.Errorf("wanted 2m challenge TTL, got: %v", c.ChallengeTTL)
	}
	if c.TokenTTL != 10*time.Minute {
		t.Errorf("wanted 10m token TTL, got: %v", c.TokenTTL)
	}
	if c.IssueLimit != 10 || c.IssueWindow != time.Minute {
		t.Errorf("issue limit was not parsed: %d per %v", c.IssueLimit, c.IssueWindow)
	}
	if c.Provider != nil {
		t.Error("provider appeared out of nowhere")
	}
}

func TestLoadConfigDefaultsToMemory(t *testing.T) {
	c, err := LoadConfig(strings.NewReader("max_attempts: 3\n"), "test.yaml")
	if err != nil {
		t.Fatal(err)
	}

	if c.Store.Backend != "memory" {
		t.Errorf("wanted memory backend by default, got: %q", c.Store.Backend)
	}
}

func TestLoadConfigUnknownBackend(t *testing.T) {
	doc := `
store:
  backend: cassandra
`

	if _, err := LoadConfig(strings.NewReader(doc), "test.yaml"); !errors.Is(err, ErrUnknownStoreBackend) {
		t.Errorf("wanted ErrUnknownStoreBackend, got: %v", err)
	}
}

func TestLoadConfigProvider(t *testing.T) {
	doc := `
store:
  backend: memory
provider:
  method: sentineld
  parameters:
    endpoint: https://sentineld.example.com/v1/verify
    api_key: hunter2
`

	c, err := LoadConfig(strings.NewReader(doc), "test.yaml")
	if err != nil {
		t.Fatal(err)
	}

	if c.Provider == nil || c.Provider.Method != "sentineld" {
		t.Fatalf("provider was not parsed: %#v", c.Provider)
	}

	if _, err := c.Provider.Build(); err != nil {
		t.Errorf("can't build configured provider: %v", err)
	}
}

func TestLoadConfigUnknownProvider(t *testing.T) {
	doc := `
store:
  backend: memory
provider:
  method: psychic
`

	if _, err := LoadConfig(strings.NewReader(doc), "test.yaml"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("wanted ErrUnknownProvider, got: %v", err)
	}
}

func TestLoadConfigProviderMissingEndpoint(t *testing.T) {
	doc := `
store:
  backend: memory
provider:
  method: humancheck
  parameters: {}
`

	if _, err := LoadConfig(strings.NewReader(doc), "test.yaml"); err == nil {
		t.Error("provider without an endpoint validated")
	}
}

func TestLoadConfigBadYAML(t *testing.T) {
	if _, err := LoadConfig(strings.NewReader(":\t not yaml"), "test.yaml"); err == nil {
		t.Error("garbage YAML parsed")
	}
}
