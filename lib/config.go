package lib

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/uvensys/slidegate/lib/provider"
	"github.com/uvensys/slidegate/lib/store"
)

var (
	ErrNoStoreBackend      = errors.New("config: no store backend defined")
	ErrUnknownStoreBackend = errors.New("config: unknown store backend")
	ErrUnknownProvider     = errors.New("config: unknown provider")
)

// Parameters is a free-form YAML block handed to a backend factory. Factories
// take JSON, so the block is round-tripped through encoding/json.
type Parameters map[string]any

func (p Parameters) JSON() (json.RawMessage, error) {
	if p == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(p)
}

// StoreConfig selects and configures the shared TTL store backend.
type StoreConfig struct {
	Backend    string     `yaml:"backend"`
	Parameters Parameters `yaml:"parameters"`
}

func (sc *StoreConfig) Valid() error {
	var errs []error

	if len(sc.Backend) == 0 {
		errs = append(errs, ErrNoStoreBackend)
	}

	fac, ok := store.Get(sc.Backend)
	switch ok {
	case true:
		params, err := sc.Parameters.JSON()
		if err != nil {
			errs = append(errs, err)
			break
		}
		if err := fac.Valid(params); err != nil {
			errs = append(errs, err)
		}
	case false:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownStoreBackend, sc.Backend))
	}

	if len(errs) != 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Build constructs the configured store backend.
func (sc *StoreConfig) Build(ctx context.Context) (store.Interface, error) {
	fac, ok := store.Get(sc.Backend)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStoreBackend, sc.Backend)
	}

	params, err := sc.Parameters.JSON()
	if err != nil {
		return nil, err
	}

	return fac.Build(ctx, params)
}

// ProviderConfig selects an optional third-party verifier.
type ProviderConfig struct {
	Method     string     `yaml:"method"`
	Parameters Parameters `yaml:"parameters"`
}

func (pc *ProviderConfig) Valid() error {
	fac, ok := provider.Get(pc.Method)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, pc.Method)
	}

	params, err := pc.Parameters.JSON()
	if err != nil {
		return err
	}

	return fac.Valid(params)
}

func (pc *ProviderConfig) Build() (provider.Verifier, error) {
	fac, ok := provider.Get(pc.Method)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, pc.Method)
	}

	params, err := pc.Parameters.JSON()
	if err != nil {
		return nil, err
	}

	return fac.Build(params)
}

type fileConfig struct {
	Store    StoreConfig     `yaml:"store"`
	Provider *ProviderConfig `yaml:"provider"`

	MaxAttempts        int `yaml:"max_attempts"`
	ChallengeTTLSec    int `yaml:"challenge_ttl_seconds"`
	TokenTTLSec        int `yaml:"token_ttl_seconds"`
	IssueLimit         int `yaml:"issue_limit"`
	IssueWindowSeconds int `yaml:"issue_window_seconds"`
}

func (c *fileConfig) Valid() error {
	var errs []error

	if err := c.Store.Valid(); err != nil {
		errs = append(errs, err)
	}

	if c.Provider != nil {
		if err := c.Provider.Valid(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) != 0 {
		return fmt.Errorf("config is not valid:\n%w", errors.Join(errs...))
	}

	return nil
}

// Config is the validated service configuration.
type Config struct {
	Store    StoreConfig
	Provider *ProviderConfig

	MaxAttempts  int
	ChallengeTTL time.Duration
	TokenTTL     time.Duration
	IssueLimit   int
	IssueWindow  time.Duration
}

// LoadConfig parses and validates a YAML config from fin. fname only feeds
// error messages.
func LoadConfig(fin io.Reader, fname string) (*Config, error) {
	c := &fileConfig{
		Store: StoreConfig{Backend: "memory"},
	}

	if err := yaml.NewDecoder(fin).Decode(c); err != nil {
		return nil, fmt.Errorf("can't parse config YAML %s: %w", fname, err)
	}

	if err := c.Valid(); err != nil {
		return nil, fmt.Errorf("%s: %w", fname, err)
	}

	return &Config{
		Store:        c.Store,
		Provider:     c.Provider,
		MaxAttempts:  c.MaxAttempts,
		ChallengeTTL: time.Duration(c.ChallengeTTLSec) * time.Second,
		TokenTTL:     time.Duration(c.TokenTTLSec) * time.Second,
		IssueLimit:   c.IssueLimit,
		IssueWindow:  time.Duration(c.IssueWindowSeconds) * time.Second,
	}, nil
}

// LoadConfigFile is LoadConfig against a file on disk.
func LoadConfigFile(fname string) (*Config, error) {
	fin, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("can't open config file: %w", err)
	}
	defer fin.Close()

	return LoadConfig(fin, fname)
}
