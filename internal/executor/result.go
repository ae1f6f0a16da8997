package executor

// GraphQLError is an error produced while executing an operation. At the
// gateway it covers both local failures and errors re-based from delegated
// backend responses; Extensions carries whatever the backend attached.
type GraphQLError struct {
	Message    string         `json:"message"`
	Path       Path           `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e GraphQLError) Error() string {
	return e.Message
}

// ExecutionResult is the data/errors pair produced by one operation.
type ExecutionResult struct {
	Data   any            `json:"data"`
	Errors []GraphQLError `json:"errors,omitempty"`
}
