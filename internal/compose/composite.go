package compose

import (
	"context"

	"github.com/hanpama/graphgate/internal/batch"
	"github.com/hanpama/graphgate/internal/delegate"
	"github.com/hanpama/graphgate/internal/schema"
)

// FieldKey addresses one field of the composite schema.
type FieldKey struct {
	Type  string
	Field string
}

// BatchRoute resolves a stitched field by consolidating sibling lookups into
// one backend call per execution wave.
type BatchRoute struct {
	Resolver *batch.Resolver
	// KeyFields are parent fields the resolver reads. They come from the
	// parent's own backend, so the planner keeps them in the parent
	// selection even when the client never asked for them.
	KeyFields []string
}

// SingleRoute resolves a stitched field with one backend lookup per parent
// object.
type SingleRoute struct {
	Resolver  *delegate.Resolver
	KeyFields []string
}

// LocalResolver computes a composite-only field inside the gateway process.
// The source is the parent record as fetched from its backend; the returned
// value must be JSON-shaped and completes like any delegated result.
type LocalResolver func(ctx context.Context, source any, args map[string]any) (any, error)

// LocalRoute resolves a composite-only field with an in-process function.
type LocalRoute struct {
	Resolve   LocalResolver
	KeyFields []string
}

// Composite is the merged gateway schema plus the routing needed to execute
// it. Built once at startup, read-only afterward.
type Composite struct {
	Schema  *schema.Schema
	Targets map[string]*delegate.Target

	// Roots routes composite root fields to the backend owning them.
	Roots map[FieldKey]*delegate.Resolver
	// Batches, Singles and Locals route composite-only fields attached at
	// composition.
	Batches map[FieldKey]*BatchRoute
	Singles map[FieldKey]*SingleRoute
	Locals  map[FieldKey]*LocalRoute
}

// Stitched reports whether the field is served outside the parent's own
// backend, and if so which parent fields its resolver reads. Delegation
// prunes such fields from outgoing selections and fetches the key fields in
// their place.
func (c *Composite) Stitched(objectType, field string) ([]string, bool) {
	key := FieldKey{Type: objectType, Field: field}
	if r, ok := c.Batches[key]; ok {
		return r.KeyFields, true
	}
	if r, ok := c.Singles[key]; ok {
		return r.KeyFields, true
	}
	if r, ok := c.Locals[key]; ok {
		return r.KeyFields, true
	}
	return nil, false
}
