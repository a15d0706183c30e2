package email

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailClient talks to the Gmail API for a single connected account.
type GmailClient struct {
	service *gmail.Service
}

// NewGmailClient builds a client over the given token source.
func NewGmailClient(ctx context.Context, source oauth2.TokenSource) (*GmailClient, error) {
	service, err := gmail.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return &GmailClient{service: service}, nil
}

// ListMessageIDs returns one page of message IDs matching the query.
func (c *GmailClient) ListMessageIDs(ctx context.Context, query, pageToken string, pageSize int64) (*Page, error) {
	call := c.service.Users.Messages.List("me").
		Q(query).
		MaxResults(pageSize).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	page := &Page{NextPageToken: resp.NextPageToken}
	for _, msg := range resp.Messages {
		page.MessageIDs = append(page.MessageIDs, msg.Id)
	}

	return page, nil
}

// GetMessage fetches one message in full and normalizes it.
func (c *GmailClient) GetMessage(ctx context.Context, id string) (*Message, error) {
	msg, err := c.service.Users.Messages.Get("me", id).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}

	return normalizeMessage(msg), nil
}

func normalizeMessage(msg *gmail.Message) *Message {
	result := &Message{
		ID:         msg.Id,
		ReceivedAt: time.UnixMilli(msg.InternalDate).UTC(),
	}

	if msg.Payload != nil {
		for _, header := range msg.Payload.Headers {
			switch strings.ToLower(header.Name) {
			case "subject":
				result.Subject = header.Value
			case "from":
				result.Sender = extractSenderAddress(header.Value)
			}
		}

		plain, html := extractContent(msg.Payload)
		result.PlainText = plain
		result.HTMLText = html
	}

	return result
}

// extractSenderAddress pulls the address out of a From header like
// `Netflix <billing@netflix.com>`, falling back to the whole value.
func extractSenderAddress(from string) string {
	start := strings.LastIndex(from, "<")
	end := strings.LastIndex(from, ">")
	if start >= 0 && end > start {
		return strings.TrimSpace(from[start+1 : end])
	}
	return strings.TrimSpace(from)
}

// extractContent walks the MIME tree collecting the first text/plain and
// text/html bodies found.
func extractContent(part *gmail.MessagePart) (plain, html string) {
	if part.Body != nil && part.Body.Data != "" {
		decoded := decodeBody(part.Body.Data)
		switch {
		case strings.HasPrefix(part.MimeType, "text/plain") && plain == "":
			plain = decoded
		case strings.HasPrefix(part.MimeType, "text/html") && html == "":
			html = decoded
		}
	}

	for _, child := range part.Parts {
		childPlain, childHTML := extractContent(child)
		if plain == "" {
			plain = childPlain
		}
		if html == "" {
			html = childHTML
		}
	}

	return plain, html
}

func decodeBody(data string) string {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return string(decoded)
}
