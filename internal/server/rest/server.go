// Package rest exposes the auth and user administration services over a
// JSON REST API routed with chi.
package rest

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/emes-auth/internal/logging"
	"github.com/dmitrijs2005/emes-auth/internal/server/auth"
	"github.com/dmitrijs2005/emes-auth/internal/server/models"
	"github.com/dmitrijs2005/emes-auth/internal/server/services"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Authenticator is the login flow used by the /auth endpoints.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*services.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*services.LoginResult, error)
	Logout(ctx context.Context, refreshToken string) error
}

// UserAdmin is the account administration used by the /admin/users endpoints.
type UserAdmin interface {
	Create(ctx context.Context, actor string, in services.CreateUserInput) (*models.Account, error)
	Get(ctx context.Context, id int64) (*models.Account, error)
	Search(ctx context.Context, filter models.AccountFilter) ([]*models.Account, error)
	Update(ctx context.Context, actor string, id int64, upd models.AccountUpdate) (*models.Account, error)
	Delete(ctx context.Context, actor string, id int64) error
	ChangePassword(ctx context.Context, actor string, id int64, newPassword string) error
	Lock(ctx context.Context, actor string, id int64) error
	Unlock(ctx context.Context, actor string, id int64) error
}

// TokenAuthenticator turns a bearer token into a principal.
type TokenAuthenticator interface {
	ValidateToken(token string) bool
	GetAuthentication(token string) (*auth.Principal, error)
}

type HTTPServer struct {
	address string
	auth    Authenticator
	users   UserAdmin
	tokens  TokenAuthenticator
	logger  logging.Logger
}

func NewHTTPServer(address string, l logging.Logger, as Authenticator, us UserAdmin, tokens TokenAuthenticator) *HTTPServer {
	return &HTTPServer{
		address: address,
		auth:    as,
		users:   us,
		tokens:  tokens,
		logger:  l.With("module", "http_server"),
	}
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *HTTPServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on ln until ctx is cancelled, then drains
// in-flight requests.
func (s *HTTPServer) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", ln.Addr().String())

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
