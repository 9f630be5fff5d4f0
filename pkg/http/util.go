package http

import (
	"time"

	xutil "FlowScan/pkg/util"
)

// ParseTime accepts RFC3339, unix seconds, or unix milliseconds.
func ParseTime(s string) (time.Time, bool) { return xutil.ParseTime(s) }

// ParseTimeDefault parses s or returns def when empty or unparseable.
func ParseTimeDefault(s string, def time.Time) time.Time { return xutil.ParseTimeDefault(s, def) }
