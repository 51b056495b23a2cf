// Package services contains server-side business logic. AuthService turns
// credentials into tokens; UserService administers accounts.
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/emes-auth/internal/common"
	"github.com/dmitrijs2005/emes-auth/internal/logging"
	"github.com/dmitrijs2005/emes-auth/internal/server/auth"
	"github.com/dmitrijs2005/emes-auth/internal/server/models"
	"github.com/dmitrijs2005/emes-auth/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/emes-auth/internal/server/repositories/refreshtokens"
)

// UserSummary is the part of an account returned alongside tokens.
type UserSummary struct {
	ID          int64
	Username    string
	Email       string
	DisplayName string
}

// LoginResult is what a successful login or refresh hands back.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
	User         UserSummary
}

// dummyPassword is hashed once and checked against when the username is unknown.
const dummyPassword = "emes-dummy-password-for-timing"

type AuthService struct {
	accounts    accounts.Repository
	revoked     refreshtokens.Repository
	tokens      *auth.TokenProvider
	hasher      auth.PasswordHasher
	maxFailed   int
	log         logging.Logger
	now         func() time.Time
	dummyHashFn func() string
}

// NewAuthService wires the login flow. maxFailedAttempts > 0 locks an
// account after that many consecutive password mismatches.
func NewAuthService(accts accounts.Repository, revoked refreshtokens.Repository, tokens *auth.TokenProvider,
	hasher auth.PasswordHasher, maxFailedAttempts int, log logging.Logger) *AuthService {
	s := &AuthService{
		accounts:  accts,
		revoked:   revoked,
		tokens:    tokens,
		hasher:    hasher,
		maxFailed: maxFailedAttempts,
		log:       log.With("module", "auth_service"),
		now:       time.Now,
	}
	s.dummyHashFn = sync.OnceValue(func() string {
		h, err := hasher.Hash(dummyPassword)
		if err != nil {
			return ""
		}
		return h
	})
	return s
}

// Login checks username and password and issues an access/refresh token pair.
//
// Unknown usernames and wrong passwords both yield
// common.ErrInvalidCredentials. A locked or disabled account yields
// common.ErrAccountLocked / common.ErrAccountDisabled before the password
// is looked at.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	account, err := s.accounts.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.Verify(s.dummyHashFn(), password)
			s.log.Warn(ctx, "login failed: unknown user", "username", username)
			return nil, common.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find account: %w", err)
	}

	if err := auth.CheckAccountStatus(account); err != nil {
		s.log.Warn(ctx, "login refused", "username", username, "reason", err.Error())
		return nil, err
	}

	if !s.hasher.Verify(account.PasswordHash, password) {
		s.recordFailure(ctx, account)
		s.log.Warn(ctx, "login failed: bad credentials", "username", username)
		return nil, common.ErrInvalidCredentials
	}

	result, err := s.issue(ctx, account, "")
	if err != nil {
		return nil, err
	}

	if err := s.accounts.RecordLoginSuccess(ctx, account.ID, s.now()); err != nil {
		s.log.Error(ctx, "record login success", "username", username, "error", err)
	}

	s.log.Info(ctx, "user logged in", "username", username)
	return result, nil
}

// Refresh issues a new access token for the subject of refreshToken. The
// refresh token itself is returned unchanged.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if !s.tokens.ValidateToken(refreshToken) {
		return nil, common.ErrInvalidToken
	}

	claims, err := s.tokens.ParseClaims(refreshToken)
	if err != nil {
		return nil, common.ErrInvalidToken
	}

	if claims.ID != "" {
		revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("check refresh token: %w", err)
		}
		if revoked {
			s.log.Warn(ctx, "refresh with revoked token", "username", claims.Subject)
			return nil, common.ErrRefreshTokenNotFound
		}
	}

	account, err := s.accounts.FindByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUserNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}

	if err := auth.CheckAccountStatus(account); err != nil {
		s.log.Warn(ctx, "refresh refused", "username", account.Username, "reason", err.Error())
		return nil, err
	}

	result, err := s.issue(ctx, account, refreshToken)
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "access token refreshed", "username", account.Username)
	return result, nil
}

// Logout revokes refreshToken until it expires. It never fails: an
// unreadable token or a storage error is only logged.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.tokens.ParseClaims(refreshToken)
	if err != nil {
		s.log.Info(ctx, "logout with unreadable token")
		return nil
	}

	if claims.ID != "" && claims.ExpiresAt != nil {
		if err := s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
			s.log.Error(ctx, "revoke refresh token", "username", claims.Subject, "error", err)
		}
	}

	s.log.Info(ctx, "user logged out", "username", claims.Subject)
	return nil
}

// issue mints an access token and, when refreshToken is empty, a new
// refresh token.
func (s *AuthService) issue(ctx context.Context, account *models.Account, refreshToken string) (*LoginResult, error) {
	perms, err := s.accounts.PermissionsFor(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("load permissions: %w", err)
	}

	access, err := s.tokens.CreateAccessToken(account.Username, normalizeAuthorities(perms))
	if err != nil {
		return nil, err
	}

	if refreshToken == "" {
		refreshToken, err = s.tokens.CreateRefreshToken(account.Username)
		if err != nil {
			return nil, err
		}
	}

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refreshToken,
		TokenType:    common.TokenTypeBearer,
		ExpiresIn:    int64(s.tokens.AccessTTL() / time.Second),
		User:         summarize(account),
	}, nil
}

func (s *AuthService) recordFailure(ctx context.Context, account *models.Account) {
	attempts, locked, err := s.accounts.RecordLoginFailure(ctx, account.ID, s.maxFailed)
	if err != nil {
		s.log.Error(ctx, "record login failure", "username", account.Username, "error", err)
		return
	}
	if locked && !account.Locked {
		s.log.Warn(ctx, "account locked after failed logins", "username", account.Username, "attempts", attempts)
	}
}

func normalizeAuthorities(perms []string) []string {
	seen := make(map[string]struct{}, len(perms))
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func summarize(a *models.Account) UserSummary {
	return UserSummary{ID: a.ID, Username: a.Username, Email: a.Email, DisplayName: a.DisplayName}
}
