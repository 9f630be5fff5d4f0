package util

import "strconv"

// ParseIntDefault parses s or returns def when empty or unparseable.
func ParseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
