package uw

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrTimeout means the request or its retries ran out of time.
	ErrTimeout = errors.New("uw: request timed out")
	// ErrRateLimited means the provider throttled us and the single
	// post-throttle retry was also rejected.
	ErrRateLimited = errors.New("uw: rate limited")
	// ErrUpstream covers provider-side failures and unexpected statuses.
	ErrUpstream = errors.New("uw: upstream error")
	// ErrMalformed means the provider returned a body we could not decode.
	ErrMalformed = errors.New("uw: malformed response")
)

// RequestError carries the endpoint and status alongside the class sentinel
// so callers can log context while still matching with errors.Is.
type RequestError struct {
	Endpoint string
	Status   int
	Class    error
	Err      error
}

func (e *RequestError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s %s: status %d", e.Class, e.Endpoint, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Class, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("%s %s", e.Class, e.Endpoint)
}

func (e *RequestError) Is(target error) bool { return target == e.Class }

func (e *RequestError) Unwrap() error { return e.Err }

func classifyTransport(err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return ErrTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrUpstream
}
