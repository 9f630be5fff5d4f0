package cache

import (
	"net/url"
	"sort"
	"strings"
	"time"
)

// BytesCache stores raw response bodies with a TTL.
type BytesCache interface {
	GetBytes(key string) (b []byte, ok bool, err error)
	SetBytes(key string, value []byte, ttl time.Duration) error
}

// Key builds a deterministic cache key from an endpoint path and its query
// parameters. Parameters are sorted by name so two semantically identical
// requests always hit the same entry.
func Key(endpoint string, params url.Values) string {
	if len(params) == 0 {
		return endpoint
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString(endpoint)
	for _, name := range names {
		vals := append([]string(nil), params[name]...)
		sort.Strings(vals)
		for _, v := range vals {
			sb.WriteByte('&')
			sb.WriteString(name)
			sb.WriteByte('=')
			sb.WriteString(v)
		}
	}
	return sb.String()
}

// Layered reads through a fast local tier before falling back to a shared
// one; writes go to both. A read error on either tier is treated as a miss
// so a degraded Redis never blocks ingestion.
type Layered struct {
	local  BytesCache
	shared BytesCache
}

func NewLayered(local, shared BytesCache) *Layered {
	return &Layered{local: local, shared: shared}
}

func (l *Layered) GetBytes(key string) ([]byte, bool, error) {
	if b, ok, err := l.local.GetBytes(key); err == nil && ok {
		return b, true, nil
	}
	b, ok, err := l.shared.GetBytes(key)
	if err != nil || !ok {
		return nil, false, err
	}
	return b, true, nil
}

func (l *Layered) SetBytes(key string, value []byte, ttl time.Duration) error {
	if err := l.local.SetBytes(key, value, ttl); err != nil {
		return err
	}
	return l.shared.SetBytes(key, value, ttl)
}
