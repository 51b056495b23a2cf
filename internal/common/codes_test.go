package common

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupErrorCode(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
	}{
		{"invalid token", ErrInvalidToken, "A001", http.StatusUnauthorized},
		{"expired token", ErrTokenExpired, "A002", http.StatusUnauthorized},
		{"invalid credentials", ErrInvalidCredentials, "A003", http.StatusUnauthorized},
		{"refresh token not found", ErrRefreshTokenNotFound, "A004", http.StatusUnauthorized},
		{"refresh token expired", ErrRefreshTokenExpired, "A005", http.StatusUnauthorized},
		{"account locked", ErrAccountLocked, "U005", http.StatusForbidden},
		{"account disabled", ErrAccountDisabled, "U006", http.StatusForbidden},
		{"user not found", ErrUserNotFound, "U001", http.StatusNotFound},
		{"duplicate username", ErrUsernameAlreadyExists, "U002", http.StatusConflict},
		{"duplicate email", ErrEmailAlreadyExists, "U003", http.StatusConflict},
		{"insufficient permission", ErrInsufficientPermission, "P003", http.StatusForbidden},
		{"wrapped sentinel", fmt.Errorf("login: %w", ErrAccountLocked), "U005", http.StatusForbidden},
		{"unknown", errors.New("db down"), "C006", http.StatusInternalServerError},
		{"nil", nil, "C006", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LookupErrorCode(tt.err)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.NotEmpty(t, got.Message)
		})
	}
}

func TestLookupErrorCode_InternalHidesDetail(t *testing.T) {
	got := LookupErrorCode(errors.New("pq: password authentication failed for user postgres"))
	assert.Equal(t, "Internal server error", got.Message)
}
