package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/salonpress/internal/interfaces"
)

// AccountHandler stores portal logins. Passwords are never echoed back.
type AccountHandler struct {
	credentials interfaces.CredentialStorage
	logger      arbor.ILogger
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(credentials interfaces.CredentialStorage, logger arbor.ILogger) *AccountHandler {
	return &AccountHandler{
		credentials: credentials,
		logger:      logger,
	}
}

type accountRequest struct {
	LoginID  string `json:"login_id" validate:"required,max=256"`
	Password string `json:"password" validate:"required,max=256"`
	SalonID  string `json:"salon_id" validate:"omitempty,max=32"`
}

type accountResponse struct {
	UserID    string    `json:"user_id"`
	LoginID   string    `json:"login_id"`
	SalonID   string    `json:"salon_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AccountHandler handles GET, PUT and DELETE /api/accounts/{user}
func (h *AccountHandler) AccountHandler(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodPut:
		h.saveAccount(w, r, userID)
	case http.MethodGet:
		h.getAccount(w, r, userID)
	case http.MethodDelete:
		if err := h.credentials.DeleteAccount(r.Context(), userID); err != nil {
			h.writeError(w, userID, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *AccountHandler) saveAccount(w http.ResponseWriter, r *http.Request, userID string) {
	var req accountRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	secret := []byte(req.Password)
	req.Password = ""
	err := h.credentials.SaveAccount(r.Context(), userID, req.LoginID, secret, req.SalonID)
	for i := range secret {
		secret[i] = 0
	}
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to save portal account")
		WriteError(w, http.StatusInternalServerError, "Failed to save account")
		return
	}
	h.getAccount(w, r, userID)
}

func (h *AccountHandler) getAccount(w http.ResponseWriter, r *http.Request, userID string) {
	account, err := h.credentials.GetAccount(r.Context(), userID)
	if err != nil {
		h.writeError(w, userID, err)
		return
	}
	WriteJSON(w, http.StatusOK, accountResponse{
		UserID:    account.UserID,
		LoginID:   account.LoginID,
		SalonID:   account.SalonID,
		UpdatedAt: account.UpdatedAt,
	})
}

func (h *AccountHandler) writeError(w http.ResponseWriter, userID string, err error) {
	if errors.Is(err, interfaces.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "Account not found")
		return
	}
	h.logger.Error().Err(err).Str("user_id", userID).Msg("Account request failed")
	WriteError(w, http.StatusInternalServerError, "Internal error")
}
