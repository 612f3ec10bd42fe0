package builtin

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	kerrors "github.com/harunnryd/kiki/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func runTime(t *testing.T, input string) map[string]string {
	t.Helper()
	a := &TimeAction{Now: fixedNow}
	raw, err := a.Execute(context.Background(), json.RawMessage(input))
	require.NoError(t, err)

	resp := map[string]string{}
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

func TestTimeActionDefaultsToUTC(t *testing.T) {
	resp := runTime(t, `{}`)
	assert.Equal(t, "UTC", resp["timezone"])
	assert.Equal(t, "2024-06-01T12:00:00Z", resp["time"])
}

func TestTimeActionTimezone(t *testing.T) {
	resp := runTime(t, `{"timezone":"Asia/Tokyo"}`)
	assert.Equal(t, "Asia/Tokyo", resp["timezone"])
	assert.Equal(t, "2024-06-01T21:00:00+09:00", resp["time"])
	assert.Equal(t, "+09:00", resp["utc_offset"])
}

func TestTimeActionUTCOffset(t *testing.T) {
	resp := runTime(t, `{"utc_offset":"-03:30"}`)
	assert.Equal(t, "2024-06-01T08:30:00-03:30", resp["time"])

	resp = runTime(t, `{"timezone":"+07:00"}`)
	assert.Equal(t, "2024-06-01T19:00:00+07:00", resp["time"])
}

func TestTimeActionRejectsUnknownZone(t *testing.T) {
	a := &TimeAction{Now: fixedNow}

	_, err := a.Execute(context.Background(), json.RawMessage(`{"timezone":"Mars/Olympus"}`))
	assert.ErrorIs(t, err, kerrors.ErrInvalidInput)

	_, err = a.Execute(context.Background(), json.RawMessage(`{"utc_offset":"7"}`))
	assert.ErrorIs(t, err, kerrors.ErrInvalidInput)
}

func TestParseUTCOffset(t *testing.T) {
	seconds, err := parseUTCOffset("+05:45")
	require.NoError(t, err)
	assert.Equal(t, 5*3600+45*60, seconds)

	for _, bad := range []string{"05:45", "+5:45", "+24:00", "+05:60", "+0a:00"} {
		_, err := parseUTCOffset(bad)
		assert.Error(t, err, bad)
	}
}
