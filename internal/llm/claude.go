package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"regexp"
	"strings"
	"time"

	"subscription-tracker/internal/classifier"
	"subscription-tracker/internal/config"
)

const anthropicVersion = "2023-06-01"

// ErrInvalidResponse marks a model reply that could not be parsed or
// validated even after repair. Callers treat it as a per-row
// classification failure rather than a transport problem.
var ErrInvalidResponse = errors.New("invalid model response")

// IsInvalidResponse reports whether err is a parse or validation failure
// of the model's reply.
func IsInvalidResponse(err error) bool {
	return errors.Is(err, ErrInvalidResponse)
}

// Haiku pricing per million tokens, USD.
const (
	inputTokenPrice  = 0.25
	outputTokenPrice = 1.25
)

const promptTemplate = `Analyze this email and determine if it is a subscription-related charge (a recurring payment for a service).

Email subject: {subject}
Email sender: {sender}
Email date: {date}
Email body:
{body}

Respond with ONLY a JSON object, no other text:
{
  "is_subscription": true or false,
  "confidence": 0.0 to 1.0,
  "service_name": "name of the service" or null,
  "amount": numeric amount or null,
  "currency": "USD" or other ISO code or null,
  "billing_cycle": "monthly", "yearly", "weekly", "quarterly" or null,
  "next_billing_date": "YYYY-MM-DD" or null,
  "reasoning": "one sentence explaining your decision"
}`

// Classification is the LM verdict for one mail row, with token usage and
// the computed charge.
type Classification struct {
	classifier.Result
	InputTokens  int
	OutputTokens int
	Cost         float64
}

// Client calls the Anthropic messages API to classify mail rows the
// keyword stage is uncertain about.
type Client struct {
	config     config.LLMConfig
	httpClient *http.Client
}

func NewClient(cfg config.LLMConfig) *Client {
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Enabled reports whether an API key is configured. Callers must not
// invoke Classify on a disabled client.
func (c *Client) Enabled() bool {
	return c.config.Enabled()
}

type apiRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	Temperature float64      `json:"temperature"`
	Messages    []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Classify sends one mail row through the model and parses its verdict.
func (c *Client) Classify(ctx context.Context, subject, sender string, receivedAt time.Time, plainBody, htmlBody string) (*Classification, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("llm classifier is not configured")
	}

	body := plainBody
	if body == "" {
		body = StripHTML(htmlBody)
	}
	body = Truncate(body, c.config.TruncateChars)

	prompt := strings.NewReplacer(
		"{subject}", subject,
		"{sender}", sender,
		"{date}", receivedAt.UTC().Format(time.RFC3339),
		"{body}", body,
	).Replace(promptTemplate)

	resp, err := c.callWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}

	if len(resp.Content) == 0 {
		return nil, fmt.Errorf("%w: empty content", ErrInvalidResponse)
	}

	result, err := parseVerdict(resp.Content[0].Text)
	if err != nil {
		return nil, err
	}

	return &Classification{
		Result:       *result,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		Cost:         CalculateCost(resp.Usage.InputTokens, resp.Usage.OutputTokens),
	}, nil
}

func (c *Client) callWithRetry(ctx context.Context, prompt string) (*apiResponse, error) {
	maxAttempts := len(c.config.RetryDelays)
	if maxAttempts == 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, retriable, err := c.call(ctx, prompt)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retriable || attempt == maxAttempts-1 {
			break
		}

		select {
		case <-time.After(c.config.RetryDelays[attempt]):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

func (c *Client) call(ctx context.Context, prompt string) (*apiResponse, bool, error) {
	payload, err := json.Marshal(apiRequest{
		Model:       c.config.Model,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		Messages:    []apiMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.config.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read llm response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable:
		return nil, true, fmt.Errorf("llm API returned status %d", resp.StatusCode)
	case http.StatusUnauthorized:
		return nil, false, fmt.Errorf("llm API key rejected (status 401)")
	default:
		return nil, false, fmt.Errorf("llm API returned status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, false, fmt.Errorf("failed to decode llm response: %w", err)
	}

	return &parsed, false, nil
}

var codeFencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// verdict mirrors the JSON object the prompt asks the model to emit.
type verdict struct {
	IsSubscription  *bool    `json:"is_subscription"`
	Confidence      *float64 `json:"confidence"`
	ServiceName     *string  `json:"service_name"`
	Amount          *float64 `json:"amount"`
	Currency        *string  `json:"currency"`
	BillingCycle    *string  `json:"billing_cycle"`
	NextBillingDate *string  `json:"next_billing_date"`
	Reasoning       string   `json:"reasoning"`
}

var billingDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func parseVerdict(text string) (*classifier.Result, error) {
	cleaned := strings.TrimSpace(text)
	if m := codeFencePattern.FindStringSubmatch(cleaned); m != nil {
		cleaned = m[1]
	}

	var v verdict
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		repaired := repairJSON(cleaned)
		if err := json.Unmarshal([]byte(repaired), &v); err != nil {
			return nil, fmt.Errorf("%w: unparseable JSON: %v", ErrInvalidResponse, err)
		}
	}

	if v.IsSubscription == nil {
		return nil, fmt.Errorf("%w: missing is_subscription", ErrInvalidResponse)
	}
	if v.Confidence == nil || *v.Confidence < 0 || *v.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence out of range", ErrInvalidResponse)
	}
	if v.NextBillingDate != nil && !billingDatePattern.MatchString(*v.NextBillingDate) {
		return nil, fmt.Errorf("%w: next_billing_date %q is not YYYY-MM-DD", ErrInvalidResponse, *v.NextBillingDate)
	}

	result := &classifier.Result{
		IsSubscription: *v.IsSubscription,
		Confidence:     *v.Confidence,
		Reasoning:      v.Reasoning,
	}
	if v.ServiceName != nil {
		result.ServiceName = *v.ServiceName
	}
	if v.Amount != nil {
		result.Amount = *v.Amount
	}
	if v.Currency != nil {
		result.Currency = *v.Currency
	}
	if v.BillingCycle != nil {
		result.BillingCycle = *v.BillingCycle
	}
	if v.NextBillingDate != nil {
		result.NextBillingDate = *v.NextBillingDate
	}

	return result, nil
}

var trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)

// repairJSON applies the minimal fixes models commonly need: trailing
// commas removed and unbalanced braces closed.
func repairJSON(s string) string {
	open := strings.Count(s, "{")
	closed := strings.Count(s, "}")
	for i := closed; i < open; i++ {
		s += "}"
	}

	return trailingCommaPattern.ReplaceAllString(s, "$1")
}

// CalculateCost converts token usage to USD at Haiku rates, rounded to
// 6 decimal places.
func CalculateCost(inputTokens, outputTokens int) float64 {
	cost := float64(inputTokens)/1e6*inputTokenPrice + float64(outputTokens)/1e6*outputTokenPrice
	return math.Round(cost*1e6) / 1e6
}
