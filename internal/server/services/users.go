package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/emes-auth/internal/common"
	"github.com/dmitrijs2005/emes-auth/internal/logging"
	"github.com/dmitrijs2005/emes-auth/internal/server/auth"
	"github.com/dmitrijs2005/emes-auth/internal/server/models"
	"github.com/dmitrijs2005/emes-auth/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/emes-auth/internal/server/repositories/repomanager"
)

// CreateUserInput describes a new account. Enabled defaults to true.
type CreateUserInput struct {
	Username    string
	Password    string
	Email       string
	DisplayName string
	Phone       string
	Department  string
	Position    string
	Enabled     *bool
	Roles       []string
}

// UserService administers accounts. Every mutating call takes the username
// of the acting administrator for the audit columns.
type UserService struct {
	store  repomanager.Store
	hasher auth.PasswordHasher
	log    logging.Logger
	now    func() time.Time
}

func NewUserService(store repomanager.Store, hasher auth.PasswordHasher, log logging.Logger) *UserService {
	return &UserService{
		store:  store,
		hasher: hasher,
		log:    log.With("module", "user_service"),
		now:    time.Now,
	}
}

func (s *UserService) Create(ctx context.Context, actor string, in CreateUserInput) (*models.Account, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, fmt.Errorf("username, email and password are required: %w", common.ErrorInvalidInput)
	}

	repo := s.store.Accounts()
	if err := s.ensureFree(ctx, repo, in.Username, in.Email); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInvalidInput, err)
	}

	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}
	changedAt := s.now()

	account := &models.Account{
		Username:          in.Username,
		Email:             in.Email,
		PasswordHash:      hash,
		DisplayName:       in.DisplayName,
		Phone:             in.Phone,
		Department:        in.Department,
		Position:          in.Position,
		Enabled:           enabled,
		PasswordChangedAt: &changedAt,
		CreatedBy:         actor,
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx accounts.Repository) error {
		if _, err := tx.Create(ctx, account); err != nil {
			return err
		}
		if len(in.Roles) > 0 {
			return tx.AssignRoles(ctx, account.ID, in.Roles)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "user created", "user_id", account.ID, "username", account.Username, "by", actor)
	return account, nil
}

func (s *UserService) ensureFree(ctx context.Context, repo accounts.Repository, username, email string) error {
	if _, err := repo.FindByUsername(ctx, username); err == nil {
		return common.ErrUsernameAlreadyExists
	} else if !errors.Is(err, common.ErrorNotFound) {
		return err
	}
	if _, err := repo.FindByEmail(ctx, email); err == nil {
		return common.ErrEmailAlreadyExists
	} else if !errors.Is(err, common.ErrorNotFound) {
		return err
	}
	return nil
}

func (s *UserService) Get(ctx context.Context, id int64) (*models.Account, error) {
	a, err := s.store.Accounts().FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAsUser(err)
	}
	return a, nil
}

func (s *UserService) Search(ctx context.Context, filter models.AccountFilter) ([]*models.Account, error) {
	return s.store.Accounts().List(ctx, filter)
}

// Update applies the non-nil fields of upd to the account.
func (s *UserService) Update(ctx context.Context, actor string, id int64, upd models.AccountUpdate) (*models.Account, error) {
	repo := s.store.Accounts()

	a, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAsUser(err)
	}

	if upd.Email != nil {
		email := strings.TrimSpace(*upd.Email)
		if email == "" {
			return nil, fmt.Errorf("email must not be blank: %w", common.ErrorInvalidInput)
		}
		if email != a.Email {
			if other, err := repo.FindByEmail(ctx, email); err == nil && other.ID != id {
				return nil, common.ErrEmailAlreadyExists
			} else if err != nil && !errors.Is(err, common.ErrorNotFound) {
				return nil, err
			}
		}
		a.Email = email
	}
	if upd.DisplayName != nil {
		a.DisplayName = *upd.DisplayName
	}
	if upd.Phone != nil {
		a.Phone = *upd.Phone
	}
	if upd.Department != nil {
		a.Department = *upd.Department
	}
	if upd.Position != nil {
		a.Position = *upd.Position
	}
	if upd.Enabled != nil {
		a.Enabled = *upd.Enabled
	}
	a.UpdatedBy = actor

	if err := repo.Update(ctx, a); err != nil {
		return nil, notFoundAsUser(err)
	}

	s.log.Info(ctx, "user updated", "user_id", id, "by", actor)
	return s.Get(ctx, id)
}

func (s *UserService) Delete(ctx context.Context, actor string, id int64) error {
	if err := s.store.Accounts().SoftDelete(ctx, id, actor); err != nil {
		return notFoundAsUser(err)
	}
	s.log.Info(ctx, "user deleted", "user_id", id, "by", actor)
	return nil
}

func (s *UserService) ChangePassword(ctx context.Context, actor string, id int64, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("password is required: %w", common.ErrorInvalidInput)
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrorInvalidInput, err)
	}
	if err := s.store.Accounts().UpdatePassword(ctx, id, hash, s.now(), actor); err != nil {
		return notFoundAsUser(err)
	}
	s.log.Info(ctx, "password changed", "user_id", id, "by", actor)
	return nil
}

func (s *UserService) Lock(ctx context.Context, actor string, id int64) error {
	return s.setLocked(ctx, actor, id, true)
}

// Unlock also clears the failed-login counter.
func (s *UserService) Unlock(ctx context.Context, actor string, id int64) error {
	return s.setLocked(ctx, actor, id, false)
}

func (s *UserService) setLocked(ctx context.Context, actor string, id int64, locked bool) error {
	if err := s.store.Accounts().SetLocked(ctx, id, locked, actor); err != nil {
		return notFoundAsUser(err)
	}
	s.log.Info(ctx, "account lock changed", "user_id", id, "locked", locked, "by", actor)
	return nil
}

func notFoundAsUser(err error) error {
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrUserNotFound
	}
	return err
}
