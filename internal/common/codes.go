package common

import (
	"errors"
	"net/http"
)

// ErrorCode is the client-facing description of a failure: the HTTP status,
// a stable short code and a human readable message.
type ErrorCode struct {
	Status  int
	Code    string
	Message string
}

var (
	CodeInvalidInput   = ErrorCode{http.StatusBadRequest, "C001", "Invalid input parameter"}
	CodeUnauthorized   = ErrorCode{http.StatusUnauthorized, "C002", "Unauthorized access"}
	CodeForbidden      = ErrorCode{http.StatusForbidden, "C003", "Forbidden access"}
	CodeNotFound       = ErrorCode{http.StatusNotFound, "C004", "Resource not found"}
	CodeConflict       = ErrorCode{http.StatusConflict, "C005", "Resource conflict"}
	CodeInternalServer = ErrorCode{http.StatusInternalServerError, "C006", "Internal server error"}

	CodeUserNotFound           = ErrorCode{http.StatusNotFound, "U001", "User not found"}
	CodeUsernameAlreadyExists  = ErrorCode{http.StatusConflict, "U002", "Username already exists"}
	CodeEmailAlreadyExists     = ErrorCode{http.StatusConflict, "U003", "Email already exists"}
	CodeAccountLocked          = ErrorCode{http.StatusForbidden, "U005", "Account is locked"}
	CodeAccountDisabled        = ErrorCode{http.StatusForbidden, "U006", "Account is disabled"}
	CodeInvalidToken           = ErrorCode{http.StatusUnauthorized, "A001", "Invalid token"}
	CodeExpiredToken           = ErrorCode{http.StatusUnauthorized, "A002", "Expired token"}
	CodeInvalidCredentials     = ErrorCode{http.StatusUnauthorized, "A003", "Invalid credentials"}
	CodeRefreshTokenNotFound   = ErrorCode{http.StatusUnauthorized, "A004", "Refresh token not found"}
	CodeRefreshTokenExpired    = ErrorCode{http.StatusUnauthorized, "A005", "Refresh token expired"}
	CodeInsufficientPermission = ErrorCode{http.StatusForbidden, "P003", "Insufficient permission"}
)

// errorCodes is ordered: the first sentinel matched by errors.Is wins.
var errorCodes = []struct {
	err  error
	code ErrorCode
}{
	{ErrInvalidCredentials, CodeInvalidCredentials},
	{ErrAccountLocked, CodeAccountLocked},
	{ErrAccountDisabled, CodeAccountDisabled},
	{ErrInvalidToken, CodeInvalidToken},
	{ErrTokenExpired, CodeExpiredToken},
	{ErrRefreshTokenNotFound, CodeRefreshTokenNotFound},
	{ErrRefreshTokenExpired, CodeRefreshTokenExpired},
	{ErrUserNotFound, CodeUserNotFound},
	{ErrUsernameAlreadyExists, CodeUsernameAlreadyExists},
	{ErrEmailAlreadyExists, CodeEmailAlreadyExists},
	{ErrInsufficientPermission, CodeInsufficientPermission},
	{ErrorInvalidInput, CodeInvalidInput},
	{ErrorUnauthorized, CodeUnauthorized},
	{ErrorForbidden, CodeForbidden},
	{ErrorNotFound, CodeNotFound},
	{ErrorAlreadyExists, CodeConflict},
}

// LookupErrorCode maps err to its ErrorCode. Anything unknown, including nil,
// becomes CodeInternalServer so no internal detail reaches the client.
func LookupErrorCode(err error) ErrorCode {
	if err == nil {
		return CodeInternalServer
	}
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return CodeInternalServer
}
