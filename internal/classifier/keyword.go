package classifier

import (
	"regexp"
	"strconv"
	"strings"
)

// Result is a classification verdict for a single mail row.
type Result struct {
	IsSubscription  bool    `json:"is_subscription"`
	Confidence      float64 `json:"confidence"`
	ServiceName     string  `json:"service_name,omitempty"`
	Amount          float64 `json:"amount,omitempty"`
	Currency        string  `json:"currency,omitempty"`
	BillingCycle    string  `json:"billing_cycle,omitempty"`
	NextBillingDate string  `json:"next_billing_date,omitempty"`
	Reasoning       string  `json:"reasoning,omitempty"`
}

// subscriptionKeywords each add 0.15 when present anywhere in the message.
// "weekly" is deliberately absent: it appears in too much non-billing mail
// (newsletters, digests) to carry signal on its own.
var subscriptionKeywords = []string{
	"subscription",
	"renew",
	"renewal",
	"membership",
	"premium",
	"monthly",
	"annual",
	"yearly",
	"recurring",
	"auto-pay",
	"autopay",
	"trial",
}

// billingKeywords each add 0.10 when present.
var billingKeywords = []string{
	"billing",
	"invoice",
	"receipt",
	"payment",
	"charged",
	"statement",
	"card ending",
	"payment method",
}

type servicePattern struct {
	name    string
	pattern *regexp.Regexp
}

var servicePatterns = []servicePattern{
	{"Netflix", regexp.MustCompile(`(?i)\bnetflix\b`)},
	{"Spotify", regexp.MustCompile(`(?i)\bspotify\b`)},
	{"Hulu", regexp.MustCompile(`(?i)\bhulu\b`)},
	{"Disney+", regexp.MustCompile(`(?i)\bdisney\s?(?:\+|plus)\b`)},
	{"Amazon Prime", regexp.MustCompile(`(?i)\bamazon\s+prime\b|\bprime\s+video\b`)},
	{"YouTube Premium", regexp.MustCompile(`(?i)\byoutube\s+(?:premium|music)\b`)},
	{"Apple", regexp.MustCompile(`(?i)\bapple\s+(?:music|tv|one|icloud)\b|\bicloud\b`)},
	{"Google One", regexp.MustCompile(`(?i)\bgoogle\s+(?:one|storage)\b`)},
	{"Dropbox", regexp.MustCompile(`(?i)\bdropbox\b`)},
	{"GitHub", regexp.MustCompile(`(?i)\bgithub\b`)},
	{"OpenAI", regexp.MustCompile(`(?i)\bopenai\b|\bchatgpt\b`)},
	{"Anthropic", regexp.MustCompile(`(?i)\banthropic\b|\bclaude\b`)},
	{"Adobe", regexp.MustCompile(`(?i)\badobe\b|\bcreative\s+cloud\b`)},
	{"Microsoft 365", regexp.MustCompile(`(?i)\bmicrosoft\s+365\b|\boffice\s+365\b`)},
	{"Zoom", regexp.MustCompile(`(?i)\bzoom\.us\b|\bzoom\s+(?:pro|one)\b`)},
	{"Slack", regexp.MustCompile(`(?i)\bslack\b`)},
	{"Notion", regexp.MustCompile(`(?i)\bnotion\b`)},
	{"HBO Max", regexp.MustCompile(`(?i)\bhbo\b|\bmax\.com\b`)},
	{"Paramount+", regexp.MustCompile(`(?i)\bparamount\s?(?:\+|plus)\b`)},
	{"Audible", regexp.MustCompile(`(?i)\baudible\b`)},
	{"Patreon", regexp.MustCompile(`(?i)\bpatreon\b`)},
	{"New York Times", regexp.MustCompile(`(?i)\bnytimes\b|\bnew\s+york\s+times\b`)},
}

var amountPattern = regexp.MustCompile(`(?i)(?:\$|usd\s?)(\d{1,5}(?:,\d{3})*(?:\.\d{1,2})?)`)

var (
	yearlyCycle = regexp.MustCompile(`(?i)\bannual\b|\byearly\b|\bper\s+year\b`)
	weeklyCycle = regexp.MustCompile(`(?i)\bweekly\b|\bper\s+week\b`)
)

// KeywordClassifier scores mail rows with a weighted keyword and pattern
// sum. It costs nothing to run and gates the paid language-model stage.
type KeywordClassifier struct {
	decisionThreshold float64
}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{decisionThreshold: 0.4}
}

// Classify scores the message content. Confidence is the capped sum of
// weighted hits; the verdict is positive above the decision threshold.
func (c *KeywordClassifier) Classify(subject, sender, body string) *Result {
	text := strings.ToLower(subject + " " + sender + " " + body)

	var score float64
	var matched []string

	for _, kw := range subscriptionKeywords {
		if strings.Contains(text, kw) {
			score += 0.15
			matched = append(matched, kw)
		}
	}
	for _, kw := range billingKeywords {
		if strings.Contains(text, kw) {
			score += 0.10
			matched = append(matched, kw)
		}
	}

	result := &Result{Currency: "USD"}

	for _, sp := range servicePatterns {
		if sp.pattern.MatchString(text) {
			score += 0.30
			result.ServiceName = sp.name
			matched = append(matched, "service:"+sp.name)
			break
		}
	}

	if m := amountPattern.FindStringSubmatch(text); m != nil {
		if amount, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil {
			score += 0.20
			result.Amount = amount
			matched = append(matched, "amount")
		}
	}

	result.Confidence = score
	if result.Confidence > 1 {
		result.Confidence = 1
	}
	result.IsSubscription = result.Confidence > c.decisionThreshold
	result.BillingCycle = detectBillingCycle(text)

	if len(matched) > 0 {
		result.Reasoning = "keyword matches: " + strings.Join(matched, ", ")
	} else {
		result.Reasoning = "no keyword matches"
	}

	return result
}

func detectBillingCycle(text string) string {
	switch {
	case yearlyCycle.MatchString(text):
		return "yearly"
	case weeklyCycle.MatchString(text):
		return "weekly"
	default:
		return "monthly"
	}
}
