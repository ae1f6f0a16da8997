package events

import "time"

// UpstreamCallStart is emitted before sending a GraphQL request to a backend.
// CallID is unique per call so that concurrent calls within one gateway
// request can be told apart.
type UpstreamCallStart struct {
	CallID        string
	Backend       string
	URL           string
	OperationType string
	Batched       bool
	Keys          int
}

// UpstreamCallFinish is emitted after a backend request completes.
// Status is the HTTP status code, or 0 when the transport failed before a
// response was received.
type UpstreamCallFinish struct {
	CallID        string
	Backend       string
	URL           string
	OperationType string
	Batched       bool
	Keys          int
	Status        int
	Err           error
	Duration      time.Duration
}
