package email

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/gmail/v1"
)

func encodeBody(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestNormalizeMessageHeaders(t *testing.T) {
	msg := &gmail.Message{
		Id:           "m1",
		InternalDate: 1718450000000,
		Payload: &gmail.MessagePart{
			Headers: []*gmail.MessagePartHeader{
				{Name: "SUBJECT", Value: "Your Netflix receipt"},
				{Name: "from", Value: "Netflix <billing@netflix.com>"},
			},
		},
	}

	got := normalizeMessage(msg)

	assert.Equal(t, "m1", got.ID)
	assert.Equal(t, "Your Netflix receipt", got.Subject)
	assert.Equal(t, "billing@netflix.com", got.Sender)
	assert.Equal(t, time.UnixMilli(1718450000000).UTC(), got.ReceivedAt)
}

func TestExtractSenderAddress(t *testing.T) {
	testCases := []struct {
		name     string
		from     string
		expected string
	}{
		{
			name:     "bracketed display name",
			from:     "Netflix <billing@netflix.com>",
			expected: "billing@netflix.com",
		},
		{
			name:     "bare address",
			from:     "billing@netflix.com",
			expected: "billing@netflix.com",
		},
		{
			name:     "whitespace around address",
			from:     "  billing@netflix.com  ",
			expected: "billing@netflix.com",
		},
		{
			name:     "angle bracket in display name",
			from:     `"Weird <name>" <real@example.com>`,
			expected: "real@example.com",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, extractSenderAddress(tc.from))
		})
	}
}

func TestExtractContentPrefersPlainText(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gmail.MessagePart{
			{
				MimeType: "text/html",
				Body:     &gmail.MessagePartBody{Data: encodeBody("<p>html body</p>")},
			},
			{
				MimeType: "text/plain",
				Body:     &gmail.MessagePartBody{Data: encodeBody("plain body")},
			},
		},
	}

	plain, html := extractContent(payload)

	assert.Equal(t, "plain body", plain)
	assert.Equal(t, "<p>html body</p>", html)
}

func TestExtractContentWalksNestedParts(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmail.MessagePart{
			{
				MimeType: "multipart/alternative",
				Parts: []*gmail.MessagePart{
					{
						MimeType: "text/plain",
						Body:     &gmail.MessagePartBody{Data: encodeBody("nested plain")},
					},
				},
			},
		},
	}

	plain, html := extractContent(payload)

	assert.Equal(t, "nested plain", plain)
	assert.Empty(t, html)
}

func TestDecodeBodyFallsBackToRawEncoding(t *testing.T) {
	padded := base64.URLEncoding.EncodeToString([]byte("padded body"))
	raw := base64.RawURLEncoding.EncodeToString([]byte("raw body"))

	assert.Equal(t, "padded body", decodeBody(padded))
	assert.Equal(t, "raw body", decodeBody(raw))

	// Decode failures yield empty strings, never errors
	assert.Empty(t, decodeBody("!!not base64!!"))
}
