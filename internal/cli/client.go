package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"subscription-tracker/internal/database"
)

// Client represents an HTTP client for the subscription tracker API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return NewClientWithTimeout(baseURL, 30*time.Second)
}

// NewClientWithTimeout creates a new API client with a custom timeout
func NewClientWithTimeout(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError represents an error from the API
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

// StartResponse acknowledges a runner launch
type StartResponse struct {
	AccountID string `json:"account_id"`
	Status    string `json:"status"`
}

func (c *Client) doRequest(method, path string) (*http.Response, error) {
	req, err := http.NewRequest(method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{
			Code:    resp.StatusCode,
			Message: strings.TrimSpace(string(body)),
		}
	}

	return resp, nil
}

func (c *Client) getJSON(path string, out interface{}) error {
	resp, err := c.doRequest("GET", path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// HealthCheck verifies the server is reachable
func (c *Client) HealthCheck() error {
	resp, err := c.doRequest("GET", "/api/health")
	if err != nil {
		return fmt.Errorf("server is not reachable: %w", err)
	}
	resp.Body.Close()
	return nil
}

// GetAccounts retrieves all connected accounts
func (c *Client) GetAccounts() ([]database.Account, error) {
	var accounts []database.Account
	if err := c.getJSON("/api/accounts", &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// GetAccount retrieves one account's status document
func (c *Client) GetAccount(id string) (*database.Account, error) {
	var account database.Account
	if err := c.getJSON("/api/accounts/"+id, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// StartSync triggers a background mailbox sync for the account
func (c *Client) StartSync(id string) (*StartResponse, error) {
	resp, err := c.doRequest("POST", "/api/accounts/"+id+"/sync")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var start StartResponse
	if err := json.NewDecoder(resp.Body).Decode(&start); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &start, nil
}

// StartProcessing triggers background classification for the account
func (c *Client) StartProcessing(id string) (*StartResponse, error) {
	resp, err := c.doRequest("POST", "/api/accounts/"+id+"/process")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var start StartResponse
	if err := json.NewDecoder(resp.Body).Decode(&start); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &start, nil
}

// GetSubscriptions retrieves a user's subscription ledger
func (c *Client) GetSubscriptions(userID string) ([]database.Subscription, error) {
	var subs []database.Subscription
	if err := c.getJSON("/api/users/"+userID+"/subscriptions", &subs); err != nil {
		return nil, err
	}
	return subs, nil
}
