// Package accounts stores user accounts and resolves the permissions granted
// to them through their roles.
package accounts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/emes-auth/internal/server/models"
)

// Repository is the credential store. Lookups ignore soft-deleted accounts
// and return common.ErrorNotFound when nothing matches.
type Repository interface {
	FindByUsername(ctx context.Context, username string) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByID(ctx context.Context, id int64) (*models.Account, error)

	// PermissionsFor returns the distinct permission codes granted to the
	// account through its enabled roles, sorted.
	PermissionsFor(ctx context.Context, accountID int64) ([]string, error)

	List(ctx context.Context, filter models.AccountFilter) ([]*models.Account, error)

	// Create inserts a and fills in its ID and timestamps. A clash with an
	// active account yields common.ErrUsernameAlreadyExists or
	// common.ErrEmailAlreadyExists.
	Create(ctx context.Context, a *models.Account) (*models.Account, error)

	// Update writes the profile fields of a and bumps its version.
	Update(ctx context.Context, a *models.Account) error
	UpdatePassword(ctx context.Context, id int64, hash string, changedAt time.Time, by string) error

	// SetLocked locks or unlocks the account; unlocking also clears the
	// failed-login counter.
	SetLocked(ctx context.Context, id int64, locked bool, by string) error
	SoftDelete(ctx context.Context, id int64, by string) error

	// RecordLoginFailure increments the failed-login counter and locks the
	// account once it reaches maxAttempts (0 never locks).
	RecordLoginFailure(ctx context.Context, id int64, maxAttempts int) (attempts int, locked bool, err error)
	RecordLoginSuccess(ctx context.Context, id int64, at time.Time) error

	// AssignRoles grants the roles named by roleCodes. An unknown code is
	// common.ErrorInvalidInput.
	AssignRoles(ctx context.Context, id int64, roleCodes []string) error
}
