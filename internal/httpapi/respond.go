package httpapi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/MrEthical07/authcore"
)

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

func writeValidation(w http.ResponseWriter, err error) {
	body := errorBody{Code: "invalid_request", Message: "request validation failed"}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		body.Fields = make(map[string]string, len(verrs))
		for _, fe := range verrs {
			body.Fields[fe.Field()] = fe.Tag()
		}
	}
	writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": body})
}

// writeEngineError maps an Engine error onto a status code.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var locked *authcore.LockedError
	switch {
	case errors.As(err, &locked):
		if !locked.Until.IsZero() {
			secs := math.Ceil(time.Until(locked.Until).Seconds())
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(secs)))
		}
		writeError(w, http.StatusLocked, "account_locked", "account is temporarily locked")
	case errors.Is(err, authcore.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
	case errors.Is(err, authcore.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid_token", "invalid or expired token")
	case errors.Is(err, authcore.ErrPasswordExpired):
		writeError(w, http.StatusForbidden, "password_expired", "password expired, renew it to continue")
	case errors.Is(err, authcore.ErrAccountDisabled):
		writeError(w, http.StatusForbidden, "account_disabled", "account is disabled")
	case errors.Is(err, authcore.ErrWrongCurrentPassword):
		writeError(w, http.StatusForbidden, "wrong_current_password", "current password is incorrect")
	case errors.Is(err, authcore.ErrPasswordReuse):
		writeError(w, http.StatusUnprocessableEntity, "password_reuse", "new password must differ from the current one")
	case errors.Is(err, authcore.ErrPasswordPolicy):
		writeError(w, http.StatusUnprocessableEntity, "password_policy", "password does not meet the policy")
	case errors.Is(err, authcore.ErrInvalidAccount):
		writeError(w, http.StatusUnprocessableEntity, "invalid_account", "account data is invalid")
	case errors.Is(err, authcore.ErrDuplicate):
		writeError(w, http.StatusConflict, "duplicate", "email or phone already registered")
	case errors.Is(err, authcore.ErrRevocationUnsupported):
		writeError(w, http.StatusNotImplemented, "revocation_unsupported", "access token revocation is not enabled")
	case authcore.Classify(err) == authcore.OutcomeNotFound:
		writeError(w, http.StatusNotFound, "not_found", "account not found")
	default:
		if !errors.Is(err, authcore.ErrInternal) {
			s.logger.Error("unmapped engine error",
				zap.String("path", r.URL.Path),
				zap.Error(err),
			)
		}
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
