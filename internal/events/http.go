package events

import "time"

// HTTPStart is emitted when a request reaches the gateway endpoint.
type HTTPStart struct {
	Method string
	Path   string
}

// HTTPFinish is emitted after the response has been written. Subscribers
// receive the request context, which carries the request ID.
type HTTPFinish struct {
	Method   string
	Path     string
	Status   int
	Duration time.Duration
}
