package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subscription-tracker/internal/database"
)

func TestClientGetAccounts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/accounts", r.URL.Path)
		json.NewEncoder(w).Encode([]database.Account{
			{ID: "acc-1", EmailAddress: "owner@gmail.com", SyncStatus: database.SyncStatusCompleted},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	accounts, err := client.GetAccounts()
	require.NoError(t, err)

	require.Len(t, accounts, 1)
	assert.Equal(t, "acc-1", accounts[0].ID)
	assert.Equal(t, database.SyncStatusCompleted, accounts[0].SyncStatus)
}

func TestClientStartSync(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/accounts/acc-1/sync", r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(StartResponse{AccountID: "acc-1", Status: "sync_started"})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	start, err := client.StartSync("acc-1")
	require.NoError(t, err)

	assert.Equal(t, "acc-1", start.AccountID)
	assert.Equal(t, "sync_started", start.Status)
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "A run is already in progress for this account", http.StatusConflict)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.StartSync("acc-1")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Code)
	assert.Contains(t, apiErr.Message, "already in progress")
}

func TestClientHealthCheckUnreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")

	err := client.HealthCheck()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reachable")
}

func TestClientTrimsTrailingSlash(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL + "/")
	require.NoError(t, client.HealthCheck())
}
