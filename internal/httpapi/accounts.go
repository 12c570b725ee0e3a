package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
)

// register is open to anonymous callers and always creates a USER account.
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}
	birth, err := parseDate(req.BirthDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "birth_date must be YYYY-MM-DD")
		return
	}

	account, err := s.engine.RegisterAccount(r.Context(), authcore.NewAccount{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		BirthDate: birth,
		Email:     req.Email,
		Phone:     req.Phone,
		Role:      authcore.RoleUser,
		Password:  req.Password,
	}, "")
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.Header().Set("Location", "/accounts/"+account.ID)
	writeJSON(w, http.StatusCreated, account)
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.engine.Account(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) updateAccount(w http.ResponseWriter, r *http.Request) {
	var req updateAccountRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, _ := middleware.IdentityFromContext(r.Context())
	if req.Role != nil && caller.Role != authcore.RoleAdmin {
		writeError(w, http.StatusForbidden, "forbidden", "only administrators may change roles")
		return
	}

	patch := authcore.AccountPatch{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
	}
	if req.BirthDate != nil {
		birth, err := parseDate(*req.BirthDate)
		if err != nil || birth == nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "birth_date must be YYYY-MM-DD")
			return
		}
		patch.BirthDate = birth
	}
	if req.Role != nil {
		role := authcore.Role(*req.Role)
		patch.Role = &role
	}

	account, err := s.engine.UpdateAccount(r.Context(), chi.URLParam(r, "id"), patch, caller.AccountID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) deactivateAccount(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.IdentityFromContext(r.Context())
	if err := s.engine.DeactivateAccount(r.Context(), chi.URLParam(r, "id"), caller.AccountID); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) unlockAccount(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.IdentityFromContext(r.Context())
	if err := s.engine.UnlockAccount(r.Context(), chi.URLParam(r, "id"), caller.AccountID); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) accountHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.AccountHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if entries == nil {
		entries = []authcore.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) lockoutStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.LockoutStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
