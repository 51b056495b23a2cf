package refreshtokens

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is an in-process denylist for tests and single-node
// development setups.
type MemoryRepository struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{revoked: make(map[string]time.Time), now: time.Now}
}

func (r *MemoryRepository) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if expiresAt.After(r.now()) {
		r.revoked[jti] = expiresAt
	}
	return nil
}

func (r *MemoryRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exp, ok := r.revoked[jti]
	if !ok {
		return false, nil
	}
	if !exp.After(r.now()) {
		delete(r.revoked, jti)
		return false, nil
	}
	return true, nil
}
