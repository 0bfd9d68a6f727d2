package bbolt

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/uvensys/slidegate/lib/store"
)

func TestFactoryValid(t *testing.T) {
	for _, tt := range []struct {
		name   string
		config Config
		err    error
	}{
		{
			name:   "ok",
			config: Config{Path: filepath.Join(t.TempDir(), "db")},
			err:    nil,
		},
		{
			name:   "missing path",
			config: Config{},
			err:    ErrMissingPath,
		},
		{
			name:   "unwritable path",
			config: Config{Path: "/proc/does/not/exist/db"},
			err:    ErrCantWriteToPath,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.config)
			if err != nil {
				t.Fatal(err)
			}

			if err := (Factory{}).Valid(json.RawMessage(data)); !errors.Is(err, tt.err) {
				t.Logf("want: %v", tt.err)
				t.Logf("got:  %v", err)
				t.Error("wrong error")
			}
		})
	}
}

func TestFactoryBadJSON(t *testing.T) {
	if err := (Factory{}).Valid(json.RawMessage("}")); !errors.Is(err, store.ErrBadConfig) {
		t.Errorf("wanted %v, got: %v", store.ErrBadConfig, err)
	}
}
