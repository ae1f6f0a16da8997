package gqltp

import (
	"errors"
	"fmt"
)

var (
	// ErrNoURL indicates a request was issued without a backend URL.
	ErrNoURL = errors.New("gqltp: backend URL not configured")
)

// UpstreamError reports a non-2xx HTTP response from a backend.
type UpstreamError struct {
	Backend string
	Status  int
	Body    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("gqltp: backend %s returned status %d: %s", e.Backend, e.Status, e.Body)
}
