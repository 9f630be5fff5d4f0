package util

import (
	"strconv"
	"time"
)

// unixMilliFloor splits unix seconds from unix milliseconds: anything above
// it is too far in the future to be seconds.
const unixMilliFloor = 1e12

// ParseTime accepts RFC3339 (with or without fractional seconds), unix
// seconds, or unix milliseconds. Provider payloads carry unix ms; query
// parameters are usually RFC3339.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	ts, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ts <= 0 {
		return time.Time{}, false
	}
	if ts > unixMilliFloor {
		return time.UnixMilli(ts), true
	}
	return time.Unix(ts, 0), true
}

// ParseTimeDefault parses s or returns def when empty or unparseable.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}
