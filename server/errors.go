package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/PurgeGame/purge-settlement-engine/engine"
)

// APIError is the standard error response for all endpoints.
type APIError struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, code int, errMsg, codeStr string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(APIError{
		Error:   errMsg,
		Code:    codeStr,
		Message: errMsg,
	})
}

// engineError maps engine sentinels onto HTTP statuses and stable codes so
// callers can branch without parsing messages.
func engineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNotAWinner):
		writeError(w, http.StatusForbidden, err.Error(), "not_a_winner")
	case errors.Is(err, engine.ErrAlreadyClaimed):
		writeError(w, http.StatusConflict, err.Error(), "already_claimed")
	case errors.Is(err, engine.ErrClaimRoundInactive):
		writeError(w, http.StatusConflict, err.Error(), "claim_inactive")
	case errors.Is(err, engine.ErrLevelSettled):
		writeError(w, http.StatusConflict, err.Error(), "level_settled")
	case errors.Is(err, engine.ErrNotActivityCaller), errors.Is(err, engine.ErrNotSettlementCaller):
		writeError(w, http.StatusForbidden, err.Error(), "wrong_caller")
	case errors.Is(err, engine.ErrInvalidKind):
		writeError(w, http.StatusBadRequest, err.Error(), "invalid_kind")
	default:
		writeError(w, http.StatusInternalServerError, err.Error(), "internal")
	}
}
