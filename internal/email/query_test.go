package email

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildInitialQuery(t *testing.T) {
	builder := NewQueryBuilder(12)
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	query := builder.BuildInitial(now)

	assert.Contains(t, query, "after:2024/06/15")
	assert.Contains(t, query, "-in:spam -in:trash")
	assert.Contains(t, query, "subject:subscription")
	assert.Contains(t, query, "from:billing")
	assert.True(t, strings.HasPrefix(query, "("))
}

func TestBuildQueryQuotesMultiWordKeywords(t *testing.T) {
	builder := NewQueryBuilder(12)
	query := builder.BuildInitial(time.Now())

	assert.Contains(t, query, `subject:"payment received"`)
	assert.Contains(t, query, `subject:"card ending"`)
	assert.NotContains(t, query, `subject:"renewal"`)
}

func TestBuildIncrementalQuery(t *testing.T) {
	builder := NewQueryBuilder(12)
	lastSync := time.Date(2025, 5, 1, 8, 30, 0, 0, time.UTC)

	query, err := builder.BuildIncremental(&lastSync)
	require.NoError(t, err)

	assert.Contains(t, query, "after:2025/05/01")
}

func TestBuildIncrementalRequiresLastSync(t *testing.T) {
	builder := NewQueryBuilder(12)

	_, err := builder.BuildIncremental(nil)
	assert.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	fp := Fingerprint("subject:netflix after:2024/06/15")

	assert.Len(t, fp, 16)
	assert.Equal(t, fp, Fingerprint("subject:netflix after:2024/06/15"))
	assert.NotEqual(t, fp, Fingerprint("subject:netflix after:2024/06/16"))
}

func TestFingerprintTracksDateWindow(t *testing.T) {
	builder := NewQueryBuilder(12)

	day1 := builder.BuildInitial(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))
	day2 := builder.BuildInitial(time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC))

	assert.NotEqual(t, Fingerprint(day1), Fingerprint(day2))
}
