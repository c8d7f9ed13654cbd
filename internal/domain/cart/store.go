package cart

import (
	"context"
	"sync"
	"time"
)

// SnapshotStore persists cart snapshots keyed by session so a cart survives a
// page reload and disappears after its TTL. The storage technology is an
// external collaborator; the domain only requires these semantics. Backends
// may drop blobs early or late; expiry remains authoritative inside Cart.
type SnapshotStore interface {
	// Save stores the blob under the session key until expiresAt.
	Save(ctx context.Context, sessionID string, blob []byte, expiresAt time.Time) error
	// Load returns the stored blob, or nil when absent or already expired.
	Load(ctx context.Context, sessionID string) ([]byte, error)
	Delete(ctx context.Context, sessionID string) error
}

// MemoryStore is an in-process SnapshotStore used in tests and as a fallback
// when no Redis address is configured. Expiry is checked lazily on Load.
type MemoryStore struct {
	mu    sync.Mutex
	now   func() time.Time
	blobs map[string]memoryEntry
}

type memoryEntry struct {
	blob      []byte
	expiresAt time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:   time.Now,
		blobs: make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) Save(_ context.Context, sessionID string, blob []byte, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[sessionID] = memoryEntry{blob: blob, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.blobs[sessionID]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.blobs, sessionID)
		return nil, nil
	}
	return e.blob, nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, sessionID)
	return nil
}
