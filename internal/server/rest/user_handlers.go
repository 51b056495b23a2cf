package rest

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/emes-auth/internal/common"
	"github.com/dmitrijs2005/emes-auth/internal/server/auth"
	"github.com/dmitrijs2005/emes-auth/internal/server/models"
	"github.com/dmitrijs2005/emes-auth/internal/server/services"
	"github.com/go-chi/chi/v5"
)

type createUserRequest struct {
	Username    string   `json:"username"`
	Password    string   `json:"password"`
	Email       string   `json:"email"`
	DisplayName string   `json:"displayName"`
	PhoneNumber string   `json:"phoneNumber"`
	Department  string   `json:"department"`
	Position    string   `json:"position"`
	Enabled     *bool    `json:"enabled"`
	Roles       []string `json:"roles"`
}

type updateUserRequest struct {
	Email       *string `json:"email"`
	DisplayName *string `json:"displayName"`
	PhoneNumber *string `json:"phoneNumber"`
	Department  *string `json:"department"`
	Position    *string `json:"position"`
	Enabled     *bool   `json:"enabled"`
}

type changePasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

type userResponse struct {
	UserID            int64      `json:"userId"`
	Username          string     `json:"username"`
	Email             string     `json:"email"`
	DisplayName       string     `json:"displayName"`
	PhoneNumber       string     `json:"phoneNumber,omitempty"`
	Department        string     `json:"department,omitempty"`
	Position          string     `json:"position,omitempty"`
	Enabled           bool       `json:"enabled"`
	AccountLocked     bool       `json:"accountLocked"`
	LastLoginAt       *time.Time `json:"lastLoginAt,omitempty"`
	PasswordChangedAt *time.Time `json:"passwordChangedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	CreatedBy         string     `json:"createdBy,omitempty"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	UpdatedBy         string     `json:"updatedBy,omitempty"`
}

func toUserResponse(a *models.Account) userResponse {
	return userResponse{
		UserID:            a.ID,
		Username:          a.Username,
		Email:             a.Email,
		DisplayName:       a.DisplayName,
		PhoneNumber:       a.Phone,
		Department:        a.Department,
		Position:          a.Position,
		Enabled:           a.Enabled,
		AccountLocked:     a.Locked,
		LastLoginAt:       a.LastLoginAt,
		PasswordChangedAt: a.PasswordChangedAt,
		CreatedAt:         a.CreatedAt,
		CreatedBy:         a.CreatedBy,
		UpdatedAt:         a.UpdatedAt,
		UpdatedBy:         a.UpdatedBy,
	}
}

// actor is the username recorded in the audit columns.
func actor(r *http.Request) string {
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		return p.Username
	}
	return ""
}

func userIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: userId must be a positive integer", common.ErrorInvalidInput)
	}
	return id, nil
}

func optionalBool(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be true or false", common.ErrorInvalidInput, name)
	}
	return &v, nil
}

func (s *HTTPServer) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}

	a, err := s.users.Create(r.Context(), actor(r), services.CreateUserInput{
		Username:    req.Username,
		Password:    req.Password,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Phone:       req.PhoneNumber,
		Department:  req.Department,
		Position:    req.Position,
		Enabled:     req.Enabled,
		Roles:       req.Roles,
	})
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusCreated, toUserResponse(a))
}

func (s *HTTPServer) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.AccountFilter{
		Username:   q.Get("username"),
		Email:      q.Get("email"),
		Department: q.Get("department"),
	}

	var err error
	if filter.Enabled, err = optionalBool(r, "enabled"); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	if filter.Locked, err = optionalBool(r, "locked"); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}

	list, err := s.users.Search(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}

	out := make([]userResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toUserResponse(a))
	}
	writeSuccess(w, http.StatusOK, out)
}

func (s *HTTPServer) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	a, err := s.users.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, toUserResponse(a))
}

func (s *HTTPServer) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}

	a, err := s.users.Update(r.Context(), actor(r), id, models.AccountUpdate{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Phone:       req.PhoneNumber,
		Department:  req.Department,
		Position:    req.Position,
		Enabled:     req.Enabled,
	})
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, toUserResponse(a))
}

func (s *HTTPServer) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	s.withUserID(w, r, func(id int64) error {
		return s.users.Delete(r.Context(), actor(r), id)
	})
}

func (s *HTTPServer) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	if err := s.users.ChangePassword(r.Context(), actor(r), id, req.NewPassword); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}

func (s *HTTPServer) handleLockUser(w http.ResponseWriter, r *http.Request) {
	s.withUserID(w, r, func(id int64) error {
		return s.users.Lock(r.Context(), actor(r), id)
	})
}

func (s *HTTPServer) handleUnlockUser(w http.ResponseWriter, r *http.Request) {
	s.withUserID(w, r, func(id int64) error {
		return s.users.Unlock(r.Context(), actor(r), id)
	})
}

// withUserID runs a body-less action against the {userId} path parameter.
func (s *HTTPServer) withUserID(w http.ResponseWriter, r *http.Request, action func(id int64) error) {
	id, err := userIDParam(r)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	if err := action(id); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}
