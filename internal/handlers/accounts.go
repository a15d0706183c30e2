package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"subscription-tracker/internal/database"
	"subscription-tracker/internal/workers"

	"github.com/go-chi/chi/v5"
)

// AccountHandler handles HTTP requests for connected mailbox accounts
type AccountHandler struct {
	db         *database.DB
	supervisor *workers.Supervisor
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(db *database.DB, supervisor *workers.Supervisor) *AccountHandler {
	return &AccountHandler{db: db, supervisor: supervisor}
}

// GetAccounts handles GET /api/accounts
func (h *AccountHandler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.db.Accounts.List()
	if err != nil {
		log.Printf("ERROR: Failed to list accounts: %v", err)
		http.Error(w, fmt.Sprintf("Failed to list accounts: %v", err), http.StatusInternalServerError)
		return
	}
	if accounts == nil {
		accounts = []database.Account{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(accounts)
}

// GetAccountByID handles GET /api/accounts/{id}
func (h *AccountHandler) GetAccountByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	account, err := h.db.Accounts.GetByID(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Account not found", http.StatusNotFound)
			return
		}
		log.Printf("ERROR: Failed to get account %s: %v", id, err)
		http.Error(w, fmt.Sprintf("Failed to get account: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(account)
}

// StartResponse acknowledges a fire-and-forget runner launch
type StartResponse struct {
	AccountID string `json:"account_id"`
	Status    string `json:"status"`
}

// StartSync handles POST /api/accounts/{id}/sync
func (h *AccountHandler) StartSync(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.supervisor.StartSync(id); err != nil {
		h.writeStartError(w, id, "sync", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(StartResponse{AccountID: id, Status: "sync_started"})
}

// StartProcessing handles POST /api/accounts/{id}/process
func (h *AccountHandler) StartProcessing(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.supervisor.StartProcessing(id); err != nil {
		h.writeStartError(w, id, "processing", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(StartResponse{AccountID: id, Status: "processing_started"})
}

func (h *AccountHandler) writeStartError(w http.ResponseWriter, id, phase string, err error) {
	switch {
	case errors.Is(err, workers.ErrAlreadyRunning):
		http.Error(w, "A run is already in progress for this account", http.StatusConflict)
	case errors.Is(err, sql.ErrNoRows):
		http.Error(w, "Account not found", http.StatusNotFound)
	default:
		log.Printf("ERROR: Failed to start %s for account %s: %v", phase, id, err)
		http.Error(w, fmt.Sprintf("Failed to start %s: %v", phase, err), http.StatusInternalServerError)
	}
}
