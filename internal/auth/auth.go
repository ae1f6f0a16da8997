// Package auth carries caller credentials from the gateway's inbound request
// to outbound backend requests.
package auth

import "context"

// key is the context key for the Authorization header value.
type key struct{}

// WithAuthorization returns a copy of parent carrying the raw Authorization
// header value. An empty value is not stored.
func WithAuthorization(parent context.Context, header string) context.Context {
	if header == "" {
		return parent
	}
	return context.WithValue(parent, key{}, header)
}

// Authorization returns the Authorization header value carried by ctx.
// It returns the value and whether it was present.
func Authorization(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(key{}).(string)
	return v, ok
}
