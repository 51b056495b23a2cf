package accounts

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/emes-auth/internal/common"
	"github.com/dmitrijs2005/emes-auth/internal/server/models"
)

// MemoryRepository keeps accounts and the role catalogue in process memory.
// It mirrors the Postgres repository's semantics and is safe for concurrent
// use.
type MemoryRepository struct {
	mu        sync.RWMutex
	seq       int64
	accounts  map[int64]*models.Account
	roles     map[string][]string
	userRoles map[int64][]string
	now       func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts:  make(map[int64]*models.Account),
		roles:     make(map[string][]string),
		userRoles: make(map[int64][]string),
		now:       time.Now,
	}
}

// DefineRole registers (or replaces) a role and the permissions it grants.
func (r *MemoryRepository) DefineRole(code string, permissions ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles[code] = slices.Clone(permissions)
}

func clone(a *models.Account) *models.Account {
	c := *a
	return &c
}

func (r *MemoryRepository) find(match func(*models.Account) bool) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if a.DeletedAt == nil && match(a) {
			return clone(a), nil
		}
	}
	return nil, common.ErrorNotFound
}

// active returns the live account with id; callers hold the lock.
func (r *MemoryRepository) active(id int64) (*models.Account, error) {
	a, ok := r.accounts[id]
	if !ok || a.DeletedAt != nil {
		return nil, common.ErrorNotFound
	}
	return a, nil
}

func (r *MemoryRepository) FindByUsername(ctx context.Context, username string) (*models.Account, error) {
	return r.find(func(a *models.Account) bool { return a.Username == username })
}

func (r *MemoryRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.find(func(a *models.Account) bool { return a.Email == email })
}

func (r *MemoryRepository) FindByID(ctx context.Context, id int64) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, err := r.active(id)
	if err != nil {
		return nil, err
	}
	return clone(a), nil
}

func (r *MemoryRepository) PermissionsFor(ctx context.Context, accountID int64) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[string]struct{}{}
	for _, role := range r.userRoles[accountID] {
		for _, p := range r.roles[role] {
			seen[p] = struct{}{}
		}
	}
	perms := make([]string, 0, len(seen))
	for p := range seen {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	return perms, nil
}

func containsFold(s, substr string) bool {
	return substr == "" || strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func (r *MemoryRepository) List(ctx context.Context, filter models.AccountFilter) ([]*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []*models.Account{}
	for _, a := range r.accounts {
		if a.DeletedAt != nil ||
			!containsFold(a.Username, filter.Username) ||
			!containsFold(a.Email, filter.Email) ||
			!containsFold(a.Department, filter.Department) ||
			(filter.Enabled != nil && a.Enabled != *filter.Enabled) ||
			(filter.Locked != nil && a.Locked != *filter.Locked) {
			continue
		}
		result = append(result, clone(a))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

// checkUnique reports a clash with another live account; callers hold the lock.
func (r *MemoryRepository) checkUnique(id int64, username, email string) error {
	for _, other := range r.accounts {
		if other.ID == id || other.DeletedAt != nil {
			continue
		}
		if other.Username == username {
			return common.ErrUsernameAlreadyExists
		}
		if other.Email == email {
			return common.ErrEmailAlreadyExists
		}
	}
	return nil
}

func (r *MemoryRepository) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkUnique(0, a.Username, a.Email); err != nil {
		return nil, err
	}

	r.seq++
	now := r.now()
	a.ID = r.seq
	a.CreatedAt = now
	a.UpdatedAt = now
	a.UpdatedBy = a.CreatedBy
	a.Version = 0
	r.accounts[a.ID] = clone(a)
	return a, nil
}

func (r *MemoryRepository) Update(ctx context.Context, a *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, err := r.active(a.ID)
	if err != nil {
		return err
	}
	if err := r.checkUnique(a.ID, cur.Username, a.Email); err != nil {
		return err
	}

	cur.Email = a.Email
	cur.DisplayName = a.DisplayName
	cur.Phone = a.Phone
	cur.Department = a.Department
	cur.Position = a.Position
	cur.Enabled = a.Enabled
	r.touch(cur, a.UpdatedBy)
	return nil
}

func (r *MemoryRepository) touch(a *models.Account, by string) {
	a.UpdatedBy = by
	a.UpdatedAt = r.now()
	a.Version++
}

func (r *MemoryRepository) UpdatePassword(ctx context.Context, id int64, hash string, changedAt time.Time, by string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := r.active(id)
	if err != nil {
		return err
	}
	a.PasswordHash = hash
	a.PasswordChangedAt = &changedAt
	r.touch(a, by)
	return nil
}

func (r *MemoryRepository) SetLocked(ctx context.Context, id int64, locked bool, by string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := r.active(id)
	if err != nil {
		return err
	}
	a.Locked = locked
	if !locked {
		a.FailedLoginAttempts = 0
	}
	r.touch(a, by)
	return nil
}

func (r *MemoryRepository) SoftDelete(ctx context.Context, id int64, by string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := r.active(id)
	if err != nil {
		return err
	}
	now := r.now()
	a.DeletedAt = &now
	r.touch(a, by)
	return nil
}

func (r *MemoryRepository) RecordLoginFailure(ctx context.Context, id int64, maxAttempts int) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := r.active(id)
	if err != nil {
		return 0, false, err
	}
	a.FailedLoginAttempts++
	if maxAttempts > 0 && a.FailedLoginAttempts >= maxAttempts {
		a.Locked = true
	}
	return a.FailedLoginAttempts, a.Locked, nil
}

func (r *MemoryRepository) RecordLoginSuccess(ctx context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := r.active(id)
	if err != nil {
		return err
	}
	a.FailedLoginAttempts = 0
	a.LastLoginAt = &at
	return nil
}

func (r *MemoryRepository) AssignRoles(ctx context.Context, id int64, roleCodes []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.active(id); err != nil {
		return err
	}
	for _, code := range roleCodes {
		if _, ok := r.roles[code]; !ok {
			return fmt.Errorf("unknown role %q: %w", code, common.ErrorInvalidInput)
		}
	}
	for _, code := range roleCodes {
		if !slices.Contains(r.userRoles[id], code) {
			r.userRoles[id] = append(r.userRoles[id], code)
		}
	}
	return nil
}
