package entitlement

import (
	"context"
	"strings"
	"sync"
)

// Store is the key-value persistence the tracker is injected with. Behind
// this interface the medium is swappable: memory for tests and single-pod
// runs, Redis when state must survive restarts and multiple pods.
type Store interface {
	// Get returns the value for key, with found=false when the key is absent.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// Set writes the value for key, overwriting any previous value.
	Set(ctx context.Context, key string, value string) error
}

// Per-wallet storage keys. Addresses are lowercased so key lookups are
// case-insensitive the way EVM addresses are.
func messageCountKey(address string) string {
	return "message_count:" + strings.ToLower(address)
}

func lastPaymentKey(address string) string {
	return "last_payment_hash:" + strings.ToLower(address)
}

func verifiedPaymentsKey(address string) string {
	return "verified_payments:" + strings.ToLower(address)
}

// MemoryStore is a mutex-guarded map Store for tests and single-pod runs.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}
