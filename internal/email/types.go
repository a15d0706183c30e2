package email

import (
	"context"
	"time"
)

// Message is the normalized form of a remote mailbox message.
type Message struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	Sender     string    `json:"sender"`
	PlainText  string    `json:"plain_text"`
	HTMLText   string    `json:"html_text"`
	ReceivedAt time.Time `json:"received_at"`
}

// Page is one page of remote message IDs under a filter.
type Page struct {
	MessageIDs    []string
	NextPageToken string
}

// MailClient defines the mailbox operations the sync runner needs.
type MailClient interface {
	// ListMessageIDs returns a page of message IDs matching the query.
	// An empty NextPageToken marks the last page.
	ListMessageIDs(ctx context.Context, query, pageToken string, pageSize int64) (*Page, error)

	// GetMessage retrieves and normalizes the full content of one message.
	GetMessage(ctx context.Context, id string) (*Message, error)
}
