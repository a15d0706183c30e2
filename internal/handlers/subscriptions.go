package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"subscription-tracker/internal/database"

	"github.com/go-chi/chi/v5"
)

// SubscriptionHandler handles HTTP requests for the subscription ledger
type SubscriptionHandler struct {
	db *database.DB
}

// NewSubscriptionHandler creates a new subscription handler
func NewSubscriptionHandler(db *database.DB) *SubscriptionHandler {
	return &SubscriptionHandler{db: db}
}

// GetUserSubscriptions handles GET /api/users/{id}/subscriptions
func (h *SubscriptionHandler) GetUserSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	subscriptions, err := h.db.Subscriptions.ListByUser(userID)
	if err != nil {
		log.Printf("ERROR: Failed to list subscriptions for user %s: %v", userID, err)
		http.Error(w, fmt.Sprintf("Failed to list subscriptions: %v", err), http.StatusInternalServerError)
		return
	}
	if subscriptions == nil {
		subscriptions = []database.Subscription{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(subscriptions)
}
