package hangfire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeRoundTrip(t *testing.T) {
	now := time.Date(2024, 5, 17, 9, 30, 15, 123456789, time.UTC)
	parsed, err := parseTime(formatTime(now))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(now))
}

func TestTimeFormatIsUTC(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	local := time.Date(2024, 5, 17, 12, 0, 0, 0, loc)
	assert.Equal(t, "2024-05-17T09:00:00Z", formatTime(local))
}

func TestSerializeHistoryEntry(t *testing.T) {
	createdAt := time.Date(2024, 5, 17, 9, 0, 0, 0, time.UTC)
	raw, err := serializeHistoryEntry(State{
		Name:   StateProcessing,
		Reason: "picked up",
		Data:   map[string]string{"Server": "s1"},
	}, createdAt)
	require.NoError(t, err)

	entry, err := deserializeHistoryEntry(string(raw))
	require.NoError(t, err)
	assert.Equal(t, StateProcessing, entry["State"])
	assert.Equal(t, "picked up", entry["Reason"])
	assert.Equal(t, "s1", entry["Server"])
	assert.Equal(t, "2024-05-17T09:00:00Z", entry["CreatedAt"])
}

func TestSerializeHistoryEntryOmitsEmptyReason(t *testing.T) {
	raw, err := serializeHistoryEntry(State{Name: StateSucceeded}, time.Now())
	require.NoError(t, err)

	entry, err := deserializeHistoryEntry(string(raw))
	require.NoError(t, err)
	_, hasReason := entry["Reason"]
	assert.False(t, hasReason)
}

func TestInvocationFromHash(t *testing.T) {
	inv, err := invocationFromHash("j1", map[string]string{
		"Type":           "Mailer",
		"Method":         "Send",
		"ParameterTypes": "[string]",
		"Arguments":      `["hi"]`,
	})
	require.NoError(t, err)
	assert.Equal(t, "Mailer", inv.Type)
	assert.Equal(t, "Send", inv.Method)
}

func TestInvocationFromHashMissingTarget(t *testing.T) {
	inv, err := invocationFromHash("j1", map[string]string{"Arguments": "[]"})
	assert.Nil(t, inv)
	var loadErr *JobLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "j1", loadErr.JobID)
}
