// Package auth issues and validates the JWTs used by the REST API, verifies
// passwords and decides whether an account may sign in.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/emes-auth/internal/common"
	"github.com/dmitrijs2005/emes-auth/internal/logging"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the shortest HMAC key accepted for HS512 signing.
const MinSecretLength = 32

const authoritiesSeparator = ","

// Values of the typ claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims is the JWT payload. Access tokens carry the comma-joined
// authorities in Auth; refresh tokens carry a jti instead.
type Claims struct {
	jwt.RegisteredClaims
	Auth string `json:"auth,omitempty"`
	Type string `json:"typ,omitempty"`
}

// Authorities splits the auth claim. An absent or empty claim yields an
// empty, non-nil slice.
func (c *Claims) Authorities() []string {
	out := []string{}
	for _, a := range strings.Split(c.Auth, authoritiesSeparator) {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

type TokenErrorKind int

const (
	TokenEmpty TokenErrorKind = iota + 1
	TokenMalformed
	TokenSignatureInvalid
	TokenUnsupported
	TokenInvalidClaims
)

func (k TokenErrorKind) String() string {
	switch k {
	case TokenEmpty:
		return "empty"
	case TokenMalformed:
		return "malformed"
	case TokenSignatureInvalid:
		return "invalid signature"
	case TokenUnsupported:
		return "unsupported"
	case TokenInvalidClaims:
		return "invalid claims"
	default:
		return "unknown"
	}
}

// TokenError is returned by ParseClaims for every failure except expiry.
// It matches common.ErrInvalidToken under errors.Is.
type TokenError struct {
	Kind TokenErrorKind
	Err  error
}

func (e *TokenError) Error() string {
	if e.Err == nil {
		return "token " + e.Kind.String()
	}
	return fmt.Sprintf("token %s: %v", e.Kind, e.Err)
}

func (e *TokenError) Unwrap() error { return e.Err }

func (e *TokenError) Is(target error) bool { return target == common.ErrInvalidToken }

var (
	errUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
	errRefreshNotBearer     = errors.New("refresh token used as bearer credential")
)

// TokenProvider creates and checks HS512 access and refresh tokens.
// It is immutable after construction and safe for concurrent use.
type TokenProvider struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	log        logging.Logger
	now        func() time.Time
}

type Option func(*TokenProvider)

func WithLogger(l logging.Logger) Option {
	return func(p *TokenProvider) { p.log = l }
}

// WithClock replaces time.Now for issuing and validating tokens.
func WithClock(now func() time.Time) Option {
	return func(p *TokenProvider) { p.now = now }
}

func NewTokenProvider(secret []byte, accessTTL, refreshTTL time.Duration, opts ...Option) (*TokenProvider, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes, got %d", MinSecretLength, len(secret))
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, fmt.Errorf("token validity must be positive (access %s, refresh %s)", accessTTL, refreshTTL)
	}

	p := &TokenProvider{
		secret:     append([]byte(nil), secret...),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		log:        logging.NewNopLogger(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	p.log = p.log.With("module", "token_provider")
	return p, nil
}

func (p *TokenProvider) AccessTTL() time.Duration  { return p.accessTTL }
func (p *TokenProvider) RefreshTTL() time.Duration { return p.refreshTTL }

// CreateAccessToken signs a token for identity carrying its authorities.
func (p *TokenProvider) CreateAccessToken(identity string, authorities []string) (string, error) {
	now := p.now()
	return p.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.accessTTL)),
		},
		Auth: strings.Join(authorities, authoritiesSeparator),
		Type: TokenTypeAccess,
	})
}

// CreateRefreshToken signs a long-lived token for identity. It carries no
// authorities; a random jti lets a single token be revoked.
func (p *TokenProvider) CreateRefreshToken(identity string) (string, error) {
	now := p.now()
	return p.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.refreshTTL)),
			ID:        uuid.NewString(),
		},
		Type: TokenTypeRefresh,
	})
}

func (p *TokenProvider) sign(c Claims) (string, error) {
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS512, c).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// ValidateToken reports whether token is well-formed, signed with our key
// using HS512 and not expired. Failures are logged, never returned.
func (p *TokenProvider) ValidateToken(token string) bool {
	_, err := p.parse(token)
	if err == nil {
		return true
	}

	ctx := context.Background()
	var te *TokenError
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		p.log.Info(ctx, "jwt token expired")
	case errors.As(err, &te):
		p.log.Warn(ctx, "jwt token rejected", "reason", te.Kind.String())
	default:
		p.log.Warn(ctx, "jwt token rejected", "error", err)
	}
	return false
}

// ParseClaims returns the claims of a correctly signed token. An expired
// token still yields its claims with a nil error; any other problem is a
// *TokenError.
func (p *TokenProvider) ParseClaims(token string) (*Claims, error) {
	claims, err := p.parse(token)
	if err != nil && !errors.Is(err, jwt.ErrTokenExpired) {
		return nil, err
	}
	return claims, nil
}

// GetAuthentication builds the principal described by token. Refresh tokens
// are refused so they cannot stand in for an access token.
func (p *TokenProvider) GetAuthentication(token string) (*Principal, error) {
	claims, err := p.ParseClaims(token)
	if err != nil {
		return nil, err
	}
	if claims.Type == TokenTypeRefresh {
		return nil, &TokenError{Kind: TokenInvalidClaims, Err: errRefreshNotBearer}
	}
	return &Principal{Username: claims.Subject, Authorities: claims.Authorities()}, nil
}

func (p *TokenProvider) GetUsername(token string) (string, error) {
	claims, err := p.ParseClaims(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (p *TokenProvider) GetExpiration(token string) (time.Time, error) {
	claims, err := p.ParseClaims(token)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, &TokenError{Kind: TokenInvalidClaims, Err: jwt.ErrTokenRequiredClaimMissing}
	}
	return claims.ExpiresAt.Time, nil
}

// RemainingTime is how long token stays valid; zero once expired or when
// the token cannot be read.
func (p *TokenProvider) RemainingTime(token string) time.Duration {
	exp, err := p.GetExpiration(token)
	if err != nil {
		return 0
	}
	if d := exp.Sub(p.now()); d > 0 {
		return d
	}
	return 0
}

// parse returns the claims together with the raw jwt error when the only
// problem is expiry, and a *TokenError otherwise.
func (p *TokenProvider) parse(token string) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, &TokenError{Kind: TokenEmpty}
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, p.keyFunc,
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err == nil {
		return claims, nil
	}

	switch {
	case errors.Is(err, errUnsupportedAlgorithm), errors.Is(err, jwt.ErrTokenUnverifiable):
		return nil, &TokenError{Kind: TokenUnsupported, Err: err}
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, &TokenError{Kind: TokenMalformed, Err: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, &TokenError{Kind: TokenSignatureInvalid, Err: err}
	case errors.Is(err, jwt.ErrTokenExpired):
		return claims, err
	default:
		return nil, &TokenError{Kind: TokenInvalidClaims, Err: err}
	}
}

func (p *TokenProvider) keyFunc(t *jwt.Token) (any, error) {
	if t.Method != jwt.SigningMethodHS512 {
		return nil, fmt.Errorf("%w: %v", errUnsupportedAlgorithm, t.Header["alg"])
	}
	return p.secret, nil
}
