package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

var (
	ErrStateNotFound   = errors.New("session state not found")
	ErrNilSessionState = errors.New("session state is nil")
	ErrInvalidSession  = errors.New("session id is empty")
)

const (
	defaultStoreKeyPrefix = "session:"
	defaultStoreTTL       = 24 * time.Hour
	maxResponseSizeBytes  = 2 << 20
)

// Store is the persistence contract used by the orchestrator. It reads and writes whole session
// documents; callers serialize read-merge-write cycles per session.
type Store interface {
	Load(ctx context.Context, sessionID string) (*Session, error)
	Save(ctx context.Context, st *Session) error
	Delete(ctx context.Context, sessionID string) error
}

type storeOptions struct {
	keyPrefix  string
	ttl        time.Duration
	httpClient *http.Client
	now        func() time.Time
}

func defaultStoreOptions() storeOptions {
	return storeOptions{
		keyPrefix: defaultStoreKeyPrefix,
		ttl:       defaultStoreTTL,
		now:       time.Now,
	}
}

// StoreOption customizes any Store implementation in this package.
type StoreOption func(*storeOptions)

func WithKeyPrefix(prefix string) StoreOption {
	return func(s *storeOptions) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

// WithTTL sets the session expiry. Zero disables expiry.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *storeOptions) {
		s.ttl = ttl
	}
}

func WithHTTPClient(client *http.Client) StoreOption {
	return func(s *storeOptions) {
		if client != nil {
			s.httpClient = client
		}
	}
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *storeOptions) {
		if now != nil {
			s.now = now
		}
	}
}

func applyStoreOptions(opts []StoreOption) (storeOptions, error) {
	o := defaultStoreOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.ttl < 0 {
		return o, errors.New("ttl must be >= 0")
	}
	return o, nil
}

func sessionKey(prefix, sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", ErrInvalidSession
	}
	return strings.TrimSpace(prefix) + sessionID, nil
}

func encodeSession(st *Session, now time.Time) ([]byte, error) {
	if st == nil {
		return nil, ErrNilSessionState
	}
	if strings.TrimSpace(st.SessionID) == "" {
		return nil, ErrInvalidSession
	}
	if st.Status == "" {
		st.Status = StatusActive
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now.UTC()
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = now.UTC()
	} else {
		st.UpdatedAt = st.UpdatedAt.UTC()
	}
	payload, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshal session state: %w", err)
	}
	return payload, nil
}

func decodeSession(payload []byte) (*Session, error) {
	var st Session
	if err := json.Unmarshal(payload, &st); err != nil {
		return nil, fmt.Errorf("unmarshal session state: %w", err)
	}
	if st.Metadata == nil {
		st.Metadata = make(map[string]any, 4)
	}
	return &st, nil
}

// MemoryStore keeps sessions for the lifetime of the process. Documents are stored encoded so
// callers never share pointers with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]memoryEntry
	opts storeOptions
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// NewMemoryStore builds an in-process store. Unlike the durable stores, TTL defaults to zero.
func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	o, err := applyStoreOptions(append([]StoreOption{WithTTL(0)}, opts...))
	if err != nil {
		o.ttl = 0
	}
	return &MemoryStore{
		docs: make(map[string]memoryEntry, 64),
		opts: o,
	}
}

func (m *MemoryStore) Load(ctx context.Context, sessionID string) (*Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSession
	}
	m.mu.RLock()
	entry, ok := m.docs[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrStateNotFound
	}
	if !entry.expiresAt.IsZero() && !m.opts.now().Before(entry.expiresAt) {
		m.mu.Lock()
		delete(m.docs, sessionID)
		m.mu.Unlock()
		return nil, ErrStateNotFound
	}
	return decodeSession(entry.payload)
}

func (m *MemoryStore) Save(ctx context.Context, st *Session) error {
	now := m.opts.now()
	payload, err := encodeSession(st, now)
	if err != nil {
		return err
	}
	entry := memoryEntry{payload: payload}
	if m.opts.ttl > 0 {
		entry.expiresAt = now.Add(m.opts.ttl)
	}
	m.mu.Lock()
	m.docs[st.SessionID] = entry
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSession
	}
	m.mu.Lock()
	delete(m.docs, sessionID)
	m.mu.Unlock()
	return nil
}
