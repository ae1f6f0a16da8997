package events

import "time"

// GraphQLStart is emitted before an operation runs against the composite
// schema. The raw query text stays out of the event; the operation identity
// is what subscribers key on.
type GraphQLStart struct {
	OperationName string
	OperationType string
}

// GraphQLFinish is emitted after the operation completes. Errors holds both
// gateway-side failures and errors re-based from backend responses.
type GraphQLFinish struct {
	OperationName string
	OperationType string
	Errors        []error
	Duration      time.Duration
}
