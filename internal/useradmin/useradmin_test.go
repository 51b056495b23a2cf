package useradmin

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dmitrijs2005/emes-auth/internal/common"
	"github.com/dmitrijs2005/emes-auth/internal/logging"
	"github.com/dmitrijs2005/emes-auth/internal/server/auth"
	"github.com/dmitrijs2005/emes-auth/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/emes-auth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/emes-auth/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// stubPasswords makes readPassword return the given answers in order.
func stubPasswords(t *testing.T, answers ...string) {
	t.Helper()
	orig := readPassword
	t.Cleanup(func() { readPassword = orig })

	i := 0
	readPassword = func(fd int) ([]byte, error) {
		if i >= len(answers) {
			return nil, errors.New("no more input")
		}
		pw := []byte(answers[i])
		i++
		return pw, nil
	}
}

func newService(t *testing.T) (*services.UserService, *accounts.MemoryRepository, auth.PasswordHasher) {
	t.Helper()
	repo := accounts.NewMemoryRepository()
	repo.DefineRole("ADMIN", "USER_CREATE", "USER_READ", "USER_UPDATE", "USER_DELETE")
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	return services.NewUserService(repomanager.NewMemoryStore(repo), hasher, logging.NewNopLogger()), repo, hasher
}

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions([]string{"-d", "postgres://x", "-username", "root", "--email=root@example.com", "-roles", "admin, user_viewer,"})
	require.NoError(t, err)
	assert.Equal(t, "root", opts.Username)
	assert.Equal(t, "root@example.com", opts.Email)
	assert.Equal(t, []string{"ADMIN", "USER_VIEWER"}, opts.Roles)
}

func TestRun_CreatesAdmin(t *testing.T) {
	svc, repo, hasher := newService(t)
	stubPasswords(t, "Secret1!", "Secret1!")

	var out bytes.Buffer
	a, err := Run(context.Background(), svc, Options{Roles: []string{"ADMIN"}},
		strings.NewReader("root\nroot@example.com\n"), &out, 0)
	require.NoError(t, err)

	assert.Equal(t, "root", a.Username)
	assert.Equal(t, "root", a.DisplayName)
	assert.Equal(t, Actor, a.CreatedBy)
	assert.Contains(t, out.String(), "Username: ")
	assert.Contains(t, out.String(), "created user root")

	stored, err := repo.FindByUsername(context.Background(), "root")
	require.NoError(t, err)
	assert.True(t, hasher.Verify(stored.PasswordHash, "Secret1!"))

	perms, err := repo.PermissionsFor(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Contains(t, perms, "USER_CREATE")
}

func TestRun_PasswordMismatch(t *testing.T) {
	svc, repo, _ := newService(t)
	stubPasswords(t, "Secret1!", "Secret2!")

	_, err := Run(context.Background(), svc, Options{Username: "root", Email: "root@example.com"},
		strings.NewReader(""), &bytes.Buffer{}, 0)
	assert.ErrorIs(t, err, errPasswordMismatch)

	_, err = repo.FindByUsername(context.Background(), "root")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRun_DuplicateUsername(t *testing.T) {
	svc, _, _ := newService(t)
	opts := Options{Username: "root", Email: "root@example.com"}

	stubPasswords(t, "Secret1!", "Secret1!", "Secret1!", "Secret1!")
	_, err := Run(context.Background(), svc, opts, strings.NewReader(""), &bytes.Buffer{}, 0)
	require.NoError(t, err)

	opts.Email = "other@example.com"
	_, err = Run(context.Background(), svc, opts, strings.NewReader(""), &bytes.Buffer{}, 0)
	assert.ErrorIs(t, err, common.ErrUsernameAlreadyExists)
}

func TestRun_InputClosed(t *testing.T) {
	svc, _, _ := newService(t)
	stubPasswords(t)

	_, err := Run(context.Background(), svc, Options{}, strings.NewReader(""), &bytes.Buffer{}, 0)
	assert.Error(t, err)
}
