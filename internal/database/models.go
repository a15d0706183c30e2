package database

import (
	"time"
)

// Sync status values for an account.
const (
	SyncStatusPending   = "pending"
	SyncStatusSyncing   = "syncing"
	SyncStatusCompleted = "completed"
	SyncStatusError     = "error"
)

// Processing status values for an account.
const (
	ProcessingStatusIdle      = "idle"
	ProcessingStatusAnalyzing = "analyzing"
	ProcessingStatusCompleted = "completed"
	ProcessingStatusError     = "error"
)

// Classifier provenance values recorded on a processed email.
const (
	ProviderKeywords         = "keywords"
	ProviderKeywordsFallback = "keywords_fallback"
	ProviderClaude           = "claude"
	ProviderError            = "error"
)

// Billing cycle values for a subscription.
const (
	CycleMonthly   = "monthly"
	CycleYearly    = "yearly"
	CycleWeekly    = "weekly"
	CycleQuarterly = "quarterly"
)

// Subscription status values.
const (
	SubscriptionActive    = "active"
	SubscriptionCancelled = "cancelled"
	SubscriptionPaused    = "paused"
)

// User owns accounts and the subscription ledger.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Credential is a stored OAuth client used to mint bearers.
// ClientSecret is encrypted at rest.
type Credential struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Provider     string    `json:"provider"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Account is a bound mailbox with its sync and processing state.
// AccessToken and RefreshToken are encrypted at rest.
type Account struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	CredentialID string `json:"credential_id"`
	EmailAddress string `json:"email_address"`

	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenExpiry  time.Time `json:"-"`

	IsActive         bool   `json:"is_active"`
	SyncStatus       string `json:"sync_status"`
	ProcessingStatus string `json:"processing_status"`

	TotalEmails        int     `json:"total_emails"`
	ProcessedEmails    int     `json:"processed_emails"`
	EmailsToAnalyze    int     `json:"emails_to_analyze"`
	EmailsAnalyzed     int     `json:"emails_analyzed"`
	SubscriptionsFound int     `json:"subscriptions_found"`
	AICostTotal        float64 `json:"ai_cost_total"`

	IsInitialSyncComplete  bool       `json:"is_initial_sync_complete"`
	LastSync               *time.Time `json:"last_sync,omitempty"`
	LastPageToken          string     `json:"-"`
	LastProcessedMessageID string     `json:"-"`
	QueryHash              string     `json:"-"`
	ProcessingStartedAt    *time.Time `json:"processing_started_at,omitempty"`
	LastError              string     `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Email is the persisted normalized form of a remote message.
// (AccountID, GmailMessageID) is unique.
type Email struct {
	ID             string `json:"id"`
	AccountID      string `json:"account_id"`
	GmailMessageID string `json:"gmail_message_id"`

	Subject    string    `json:"subject"`
	Sender     string    `json:"sender"`
	BodyText   string    `json:"body_text"`
	BodyHTML   string    `json:"body_html"`
	ReceivedAt time.Time `json:"received_at"`

	ProcessedAt            *time.Time `json:"processed_at,omitempty"`
	IsSubscription         bool       `json:"is_subscription"`
	SubscriptionConfidence float64    `json:"subscription_confidence"`
	ExtractedData          string     `json:"extracted_data,omitempty"`
	AIProvider             string     `json:"ai_provider,omitempty"`
	AIReasoning            string     `json:"ai_reasoning,omitempty"`
	AnalysisAttempts       int        `json:"analysis_attempts"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subscription is a detected recurring charge.
// (UserID, ServiceName, Amount) is unique; conflicting inserts are suppressed.
type Subscription struct {
	ID      string  `json:"id"`
	UserID  string  `json:"user_id"`
	EmailID *string `json:"email_id,omitempty"`

	ServiceName     string     `json:"service_name"`
	Amount          float64    `json:"amount"`
	Currency        string     `json:"currency"`
	BillingCycle    string     `json:"billing_cycle"`
	NextBillingDate *time.Time `json:"next_billing_date,omitempty"`
	Status          string     `json:"status"`
	ConfidenceScore float64    `json:"confidence_score"`
	UserVerified    bool       `json:"user_verified"`
	Category        string     `json:"category,omitempty"`
	Notes           string     `json:"notes,omitempty"`

	FirstDetected time.Time `json:"first_detected"`
	LastUpdated   time.Time `json:"last_updated"`
}
