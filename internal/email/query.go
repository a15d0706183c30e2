package email

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// subjectKeywords are the subject terms the mailbox filter matches on.
// Editing this list changes the query fingerprint, which invalidates any
// saved resume cursor.
var subjectKeywords = []string{
	"subscription",
	"billing",
	"invoice",
	"receipt",
	"payment received",
	"payment confirmation",
	"payment successful",
	"renew",
	"renewal",
	"auto-pay",
	"autopay",
	"membership",
	"premium",
	"plan upgraded",
	"plan downgraded",
	"recurring charge",
	"monthly charge",
	"annual charge",
	"yearly charge",
	"charged",
	"statement",
	"payment method",
	"card ending",
	"trial ending",
	"trial ends",
	"cancel subscription",
}

// senderPatterns match the local part of common billing sender addresses.
var senderPatterns = []string{
	"billing",
	"subscriptions",
	"payments",
	"invoices",
	"receipts",
	"finance",
	"accounts-payable",
	"membership",
}

// QueryBuilder assembles Gmail search filters for subscription-relevant
// mail. The content clauses are fixed policy; only the date clause varies
// between initial and incremental runs.
type QueryBuilder struct {
	monthsBack int
}

func NewQueryBuilder(monthsBack int) *QueryBuilder {
	return &QueryBuilder{monthsBack: monthsBack}
}

// BuildInitial returns the filter for a first full sync, looking back
// monthsBack from now.
func (q *QueryBuilder) BuildInitial(now time.Time) string {
	after := now.AddDate(0, -q.monthsBack, 0)
	return q.build(after)
}

// BuildIncremental returns the filter for a follow-up sync covering mail
// received since the last successful run.
func (q *QueryBuilder) BuildIncremental(lastSync *time.Time) (string, error) {
	if lastSync == nil {
		return "", fmt.Errorf("incremental sync requires a previous sync timestamp")
	}
	return q.build(*lastSync), nil
}

func (q *QueryBuilder) build(after time.Time) string {
	clauses := make([]string, 0, len(subjectKeywords)+len(senderPatterns))
	for _, kw := range subjectKeywords {
		if strings.Contains(kw, " ") {
			clauses = append(clauses, fmt.Sprintf("subject:%q", kw))
		} else {
			clauses = append(clauses, "subject:"+kw)
		}
	}
	for _, pattern := range senderPatterns {
		clauses = append(clauses, "from:"+pattern)
	}

	return fmt.Sprintf("(%s) after:%s -in:spam -in:trash",
		strings.Join(clauses, " OR "),
		after.Format("2006/01/02"))
}

// Fingerprint returns a short stable digest of a filter string, used to
// detect filter drift between a crashed run and its resume.
func Fingerprint(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])[:16]
}
