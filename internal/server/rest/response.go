package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/emes-auth/internal/common"
	"github.com/dmitrijs2005/emes-auth/internal/logging"
)

var (
	codeRouteNotFound    = common.ErrorCode{Status: http.StatusNotFound, Code: common.CodeNotFound.Code, Message: common.CodeNotFound.Message}
	codeMethodNotAllowed = common.ErrorCode{Status: http.StatusMethodNotAllowed, Code: common.CodeInvalidInput.Code, Message: "Method not allowed"}
)

type successResponse struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Success   bool      `json:"success"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
	RequestID string    `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort write to client
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, successResponse{Success: true, Data: data, Timestamp: time.Now().UTC()})
}

func writeErrorCode(w http.ResponseWriter, r *http.Request, code common.ErrorCode) {
	writeErrorMessage(w, r, code, code.Message)
}

func writeErrorMessage(w http.ResponseWriter, r *http.Request, code common.ErrorCode, message string) {
	writeJSON(w, code.Status, errorResponse{
		Code:      code.Code,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Path:      r.URL.Path,
		RequestID: requestIDFromContext(r.Context()),
	})
}

// writeServiceError maps err to its catalogued code. Server-side failures are
// logged and reported without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, log logging.Logger, err error) {
	code := common.LookupErrorCode(err)
	switch {
	case code.Status >= http.StatusInternalServerError:
		log.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err,
			"request_id", requestIDFromContext(r.Context()))
		writeErrorCode(w, r, code)
	case errors.Is(err, common.ErrorInvalidInput):
		writeErrorMessage(w, r, code, err.Error())
	default:
		writeErrorCode(w, r, code)
	}
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body", common.ErrorInvalidInput)
	}
	return nil
}
