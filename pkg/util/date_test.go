package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeRFC3339(t *testing.T) {
	got, ok := ParseTime("2026-08-28T14:30:00Z")
	require.True(t, ok)
	assert.Equal(t, "2026-08-28T14:30:00Z", got.UTC().Format(time.RFC3339))

	got, ok = ParseTime("2026-08-28T14:30:00.250Z")
	require.True(t, ok)
	assert.Equal(t, 250*time.Millisecond, time.Duration(got.Nanosecond()))
}

func TestParseTimeUnixSeconds(t *testing.T) {
	ts := time.Date(2026, 8, 28, 14, 30, 0, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	require.True(t, ok)
	assert.Equal(t, ts, got.Unix())
}

func TestParseTimeUnixMillis(t *testing.T) {
	ms := time.Date(2026, 8, 28, 14, 30, 0, 0, time.UTC).UnixMilli()
	got, ok := ParseTime(strconv.FormatInt(ms, 10))
	require.True(t, ok)
	assert.Equal(t, ms, got.UnixMilli())
}

func TestParseTimeRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "yesterday", "-100"} {
		_, ok := ParseTime(s)
		assert.False(t, ok, "input %q", s)
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2026, 8, 28, 14, 30, 0, 0, time.UTC)
	assert.True(t, ParseTimeDefault("", def).Equal(def))
	assert.False(t, ParseTimeDefault("2026-01-01T00:00:00Z", def).Equal(def))
}
