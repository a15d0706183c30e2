package workers

import (
	"errors"
	"net"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// ErrorKind buckets runner failures by how they should be surfaced and
// whether saved resume state survives them.
type ErrorKind string

const (
	ErrorKindAuth      ErrorKind = "authentication"
	ErrorKindRateLimit ErrorKind = "rate_limit"
	ErrorKindNetwork   ErrorKind = "network"
	ErrorKindUnknown   ErrorKind = "unknown"
)

// ClassifyError maps a runner failure onto the error taxonomy.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ErrorKindUnknown
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401, 403:
			return ErrorKindAuth
		case 429:
			return ErrorKindRateLimit
		}
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return ErrorKindAuth
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorKindNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid_grant") ||
		strings.Contains(msg, "token refresh failed"):
		return ErrorKindAuth
	case strings.Contains(msg, "quota") || strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests"):
		return ErrorKindRateLimit
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "connection") ||
		strings.Contains(msg, "network") || strings.Contains(msg, "no such host"):
		return ErrorKindNetwork
	default:
		return ErrorKindUnknown
	}
}

// ClearsResume reports whether a failure of this kind invalidates the
// saved sync cursor. Only authentication failures do: the account must be
// reconnected and the next run starts from scratch.
func (k ErrorKind) ClearsResume() bool {
	return k == ErrorKindAuth
}

// UserMessage returns the account-facing error text for this kind.
func (k ErrorKind) UserMessage(err error) string {
	switch k {
	case ErrorKindAuth:
		return "Authentication failed - please reconnect your account"
	case ErrorKindRateLimit:
		return "Rate limit reached - please retry later"
	case ErrorKindNetwork:
		return "Network error - please retry"
	default:
		return "Sync failed: " + err.Error()
	}
}
