package attribution

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tracklink/tracklink/internal/model"
)

// Storage keys for the client identity.
const (
	AnonymousIDKey = "sl_anon_id"
	SessionIDKey   = "sl_session_id"
)

// Store is a minimal key/value store backed by client storage. Durable stores
// survive across sessions; session stores do not.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// NewClientID generates a prefixed random client identifier.
func NewClientID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.New().String())
}

// readOrCreate returns the stored id if present; otherwise it generates a
// fresh one and stores it. Storage failures degrade silently to a fresh,
// non-persisted id.
func readOrCreate(store Store, key, prefix string) string {
	if store == nil {
		return NewClientID(prefix)
	}

	existing, err := store.Get(key)
	if err == nil {
		if trimmed := strings.TrimSpace(existing); trimmed != "" {
			return trimmed
		}
	}

	next := NewClientID(prefix)
	_ = store.Set(key, next)
	return next
}

// ResolveIdentity reads or creates the anonymous and session ids. The result
// is idempotent within a session; only the anonymous id survives across
// sessions. It never fails.
func ResolveIdentity(durable, session Store) model.Identity {
	return model.Identity{
		AnonymousID: readOrCreate(durable, AnonymousIDKey, "anon"),
		SessionID:   readOrCreate(session, SessionIDKey, "session"),
	}
}

// MemoryStore is an in-memory Store for tests and embedded environments.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get returns the stored value, or an empty string when absent.
func (m *MemoryStore) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

// Set stores a value.
func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}
