package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/uvensys/slidegate/decaymap"
	"github.com/uvensys/slidegate/lib/store"
)

type factory struct{}

func (factory) Build(ctx context.Context, _ json.RawMessage) (store.Interface, error) {
	return New(ctx), nil
}

func (factory) Valid(json.RawMessage) error { return nil }

func init() {
	store.Register("memory", factory{})
}

type impl struct {
	store *decaymap.Impl[string, []byte]

	// incrLock serializes Increment so the read-modify-write on the counter
	// is atomic, matching the INCR semantics of the valkey backend.
	incrLock sync.Mutex
}

func (i *impl) Delete(_ context.Context, key string) error {
	if !i.store.Delete(key) {
		return fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}

	return nil
}

func (i *impl) Get(_ context.Context, key string) ([]byte, error) {
	result, ok := i.store.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}

	return result, nil
}

func (i *impl) Set(_ context.Context, key string, value []byte, expiry time.Duration) error {
	i.store.Set(key, value, expiry)
	return nil
}

func (i *impl) Increment(_ context.Context, key string, expiry time.Duration) (int64, error) {
	i.incrLock.Lock()
	defer i.incrLock.Unlock()

	raw, ok := i.store.Get(key)
	if !ok {
		i.store.Set(key, []byte("1"), expiry)
		return 1, nil
	}

	count, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: counter %q: %w", store.ErrCantDecode, key, err)
	}
	count++

	// Incrementing must not extend the window, keep the original deadline.
	deadline, ok := i.store.Deadline(key)
	if !ok {
		deadline = time.Now().Add(expiry)
	}
	i.store.SetUntil(key, []byte(strconv.FormatInt(count, 10)), deadline)

	return count, nil
}

func (i *impl) cleanupThread(ctx context.Context) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			i.store.Cleanup()
		}
	}
}

// New creates a simple in-memory store. This will not scale to multiple slidegate instances.
func New(ctx context.Context) store.Interface {
	result := &impl{
		store: decaymap.New[string, []byte](),
	}

	go result.cleanupThread(ctx)

	return result
}
