package rest

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/emes-auth/internal/common"
	"github.com/dmitrijs2005/emes-auth/internal/server/auth"
	"github.com/dmitrijs2005/emes-auth/internal/server/services"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type userSummaryResponse struct {
	UserID      int64  `json:"userId"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

type tokenResponse struct {
	AccessToken  string              `json:"accessToken"`
	RefreshToken string              `json:"refreshToken"`
	TokenType    string              `json:"tokenType"`
	ExpiresIn    int64               `json:"expiresIn"`
	User         userSummaryResponse `json:"user"`
}

type meResponse struct {
	Username    string   `json:"username"`
	Authorities []string `json:"authorities"`
}

func toTokenResponse(res *services.LoginResult) tokenResponse {
	return tokenResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		TokenType:    res.TokenType,
		ExpiresIn:    res.ExpiresIn,
		User: userSummaryResponse{
			UserID:      res.User.ID,
			Username:    res.User.Username,
			Email:       res.User.Email,
			DisplayName: res.User.DisplayName,
		},
	}
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeServiceError(w, r, s.logger, fmt.Errorf("%w: username and password are required", common.ErrorInvalidInput))
		return
	}

	res, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, toTokenResponse(res))
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeServiceError(w, r, s.logger, fmt.Errorf("%w: refreshToken is required", common.ErrorInvalidInput))
		return
	}

	res, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, toTokenResponse(res))
}

// handleLogout always succeeds; an unusable token simply has nothing to revoke.
func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	if err := s.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())
	authorities := p.Authorities
	if authorities == nil {
		authorities = []string{}
	}
	writeSuccess(w, http.StatusOK, meResponse{Username: p.Username, Authorities: authorities})
}
