package compose

import (
	"fmt"

	"github.com/hanpama/graphgate/internal/batch"
	"github.com/hanpama/graphgate/internal/delegate"
	"github.com/hanpama/graphgate/internal/language"
	"github.com/hanpama/graphgate/internal/schema"
)

// Extras declare composite-only surface: types no backend owns, stitched
// fields that join records across backends, and fields computed in-process.
// Collisions here are always fatal, the rename policy applies only to
// backend-vs-backend conflicts.
type Extras struct {
	Types  []*schema.Type
	Batch  []BatchField
	Single []SingleField
	Local  []LocalField
}

// BatchField attaches a stitched field resolved through a backend's
// set-membership lookup. The declarative fields cover the common case of a
// foreign key on the parent joined against a key field on the remote
// records; the func fields override them for anything richer.
type BatchField struct {
	// ObjectType and Name place the field in the composite schema; Type is
	// its composite type reference.
	ObjectType  string
	Name        string
	Type        *schema.TypeRef
	Arguments   []*schema.InputValue
	Description string

	// Backend and BatchField name the set-membership lookup on the
	// backend's query root.
	Backend    string
	BatchField string

	// ParentKey is the parent field carrying the foreign key, ArgName the
	// batch field's list argument, RemoteKey the record field the response
	// is correlated by.
	ParentKey string
	ArgName   string
	RemoteKey string

	// Overrides. Each nil entry is derived from the declarative fields
	// above.
	ExtractKey     func(source any) (any, error)
	SynthesizeArgs func(keys []any) map[string]any
	Correlate      batch.Correlator
	Normalize      batch.Normalizer
	WrapSelection  func(language.SelectionSet) language.SelectionSet

	// KeyFields default to ParentKey; ExtraFields default to RemoteKey.
	KeyFields   []string
	ExtraFields []string
}

// LocalField attaches a field computed inside the gateway process. No
// backend serves it, so it can only be declared programmatically, by code
// embedding the composer.
type LocalField struct {
	ObjectType  string
	Name        string
	Type        *schema.TypeRef
	Arguments   []*schema.InputValue
	Description string

	// Resolve runs once per parent object.
	Resolve LocalResolver

	// KeyFields name the parent fields Resolve reads. They stay in the
	// parent's delegated selection the same way stitch keys do.
	KeyFields []string
}

// SingleField attaches a stitched field resolved with one backend lookup per
// parent object.
type SingleField struct {
	ObjectType  string
	Name        string
	Type        *schema.TypeRef
	Arguments   []*schema.InputValue
	Description string

	// Backend and RemoteField name the lookup on the backend's query root.
	Backend     string
	RemoteField string

	// ParentKey names the parent field whose value becomes the ArgName
	// argument of the remote field. A nil parent value resolves the
	// stitched field to null without a remote call.
	ParentKey string
	ArgName   string

	// Args overrides the declarative argument mapping.
	Args func(source any, args map[string]any) (map[string]any, error)

	KeyFields []string
}

func applyExtras(c *Composite, typeOwner map[string]string, extras *Extras) error {
	for _, t := range extras.Types {
		if c.Schema.GetType(t.Name) != nil {
			return &CollisionError{Kind: "type", Name: t.Name, Backends: claimants(typeOwner[t.Name], "extras")}
		}
		c.Schema.AddType(t)
	}
	for i := range extras.Batch {
		if err := applyBatchField(c, &extras.Batch[i]); err != nil {
			return err
		}
	}
	for i := range extras.Single {
		if err := applySingleField(c, &extras.Single[i]); err != nil {
			return err
		}
	}
	for i := range extras.Local {
		if err := applyLocalField(c, &extras.Local[i]); err != nil {
			return err
		}
	}
	return nil
}

func applyBatchField(c *Composite, spec *BatchField) error {
	target, owner, err := stitchSite(c, spec.ObjectType, spec.Name, spec.Backend)
	if err != nil {
		return err
	}
	remote, err := queryRootField(target, spec.BatchField)
	if err != nil {
		return fmt.Errorf("stitched field %s.%s: %w", spec.ObjectType, spec.Name, err)
	}

	resolver := &batch.Resolver{
		Target:         target,
		BatchField:     spec.BatchField,
		ExtractKey:     spec.ExtractKey,
		SynthesizeArgs: spec.SynthesizeArgs,
		Normalize:      spec.Normalize,
		WrapSelection:  spec.WrapSelection,
		Correlate:      spec.Correlate,
		ExtraFields:    spec.ExtraFields,
	}
	if resolver.ExtractKey == nil {
		if spec.ParentKey == "" {
			return fmt.Errorf("stitched field %s.%s: ParentKey or ExtractKey is required", spec.ObjectType, spec.Name)
		}
		resolver.ExtractKey = readParentField(spec.ParentKey)
	}
	if resolver.SynthesizeArgs == nil {
		if spec.ArgName == "" {
			return fmt.Errorf("stitched field %s.%s: ArgName or SynthesizeArgs is required", spec.ObjectType, spec.Name)
		}
		argName := spec.ArgName
		resolver.SynthesizeArgs = func(keys []any) map[string]any {
			return map[string]any{argName: keys}
		}
	}
	if resolver.Correlate == nil {
		if spec.RemoteKey == "" {
			return fmt.Errorf("stitched field %s.%s: RemoteKey or Correlate is required", spec.ObjectType, spec.Name)
		}
		// A list-typed stitched field is a to-many join, everything else a
		// to-one lookup.
		if schema.IsList(spec.Type) {
			resolver.Correlate = batch.CorrelateGroupsByField(spec.RemoteKey)
		} else {
			resolver.Correlate = batch.CorrelateByField(spec.RemoteKey)
		}
	}
	if len(resolver.ExtraFields) == 0 && spec.RemoteKey != "" {
		resolver.ExtraFields = []string{spec.RemoteKey}
	}
	if resolver.Normalize == nil && resolver.WrapSelection == nil {
		configureShape(resolver, target.Schema, remote)
	}

	field := schema.NewField(spec.Name, spec.Description, spec.Type).SetAsync(true)
	for _, a := range spec.Arguments {
		field.AddArgument(a)
	}
	owner.AddField(field)

	keyFields := spec.KeyFields
	if len(keyFields) == 0 && spec.ParentKey != "" {
		keyFields = []string{spec.ParentKey}
	}
	c.Batches[FieldKey{Type: spec.ObjectType, Field: spec.Name}] = &BatchRoute{Resolver: resolver, KeyFields: keyFields}
	return nil
}

func applySingleField(c *Composite, spec *SingleField) error {
	target, owner, err := stitchSite(c, spec.ObjectType, spec.Name, spec.Backend)
	if err != nil {
		return err
	}
	if _, err := queryRootField(target, spec.RemoteField); err != nil {
		return fmt.Errorf("stitched field %s.%s: %w", spec.ObjectType, spec.Name, err)
	}

	resolver := &delegate.Resolver{
		Target:    target,
		Field:     spec.RemoteField,
		Operation: language.Query,
		Args:      spec.Args,
	}
	if resolver.Args == nil {
		if spec.ParentKey == "" || spec.ArgName == "" {
			return fmt.Errorf("stitched field %s.%s: ParentKey and ArgName (or Args) are required", spec.ObjectType, spec.Name)
		}
		parentKey, argName := spec.ParentKey, spec.ArgName
		resolver.Args = func(source any, _ map[string]any) (map[string]any, error) {
			key, err := readParentField(parentKey)(source)
			if err != nil || key == nil {
				return nil, err
			}
			return map[string]any{argName: key}, nil
		}
	}

	field := schema.NewField(spec.Name, spec.Description, spec.Type).SetAsync(true)
	for _, a := range spec.Arguments {
		field.AddArgument(a)
	}
	owner.AddField(field)

	keyFields := spec.KeyFields
	if len(keyFields) == 0 && spec.ParentKey != "" {
		keyFields = []string{spec.ParentKey}
	}
	c.Singles[FieldKey{Type: spec.ObjectType, Field: spec.Name}] = &SingleRoute{Resolver: resolver, KeyFields: keyFields}
	return nil
}

func applyLocalField(c *Composite, spec *LocalField) error {
	if spec.Resolve == nil {
		return fmt.Errorf("local field %s.%s: Resolve is required", spec.ObjectType, spec.Name)
	}
	owner := c.Schema.GetType(spec.ObjectType)
	if owner == nil {
		return fmt.Errorf("local field %s.%s: composite schema has no type %q", spec.ObjectType, spec.Name, spec.ObjectType)
	}
	if owner.Kind != schema.TypeKindObject && owner.Kind != schema.TypeKindInterface {
		return fmt.Errorf("local field %s.%s: %s is %s, want an object or interface", spec.ObjectType, spec.Name, spec.ObjectType, owner.Kind)
	}
	if owner.GetField(spec.Name) != nil {
		return &CollisionError{Kind: "field", Name: spec.ObjectType + "." + spec.Name}
	}

	field := schema.NewField(spec.Name, spec.Description, spec.Type).SetAsync(true)
	for _, a := range spec.Arguments {
		field.AddArgument(a)
	}
	owner.AddField(field)

	c.Locals[FieldKey{Type: spec.ObjectType, Field: spec.Name}] = &LocalRoute{Resolve: spec.Resolve, KeyFields: spec.KeyFields}
	return nil
}

// stitchSite validates the placement of a stitched field and returns the
// backend target plus the composite type the field lands on.
func stitchSite(c *Composite, objectType, name, backend string) (*delegate.Target, *schema.Type, error) {
	target := c.Targets[backend]
	if target == nil {
		return nil, nil, fmt.Errorf("stitched field %s.%s: unknown backend %q", objectType, name, backend)
	}
	owner := c.Schema.GetType(objectType)
	if owner == nil {
		return nil, nil, fmt.Errorf("stitched field %s.%s: composite schema has no type %q", objectType, name, objectType)
	}
	if owner.Kind != schema.TypeKindObject && owner.Kind != schema.TypeKindInterface {
		return nil, nil, fmt.Errorf("stitched field %s.%s: %s is %s, want an object or interface", objectType, name, objectType, owner.Kind)
	}
	if owner.GetField(name) != nil {
		return nil, nil, &CollisionError{Kind: "field", Name: objectType + "." + name}
	}
	return target, owner, nil
}

// queryRootField resolves the remote lookup field on the backend's query
// root. The lookup must exist: resolving a stitched field later would
// otherwise fail on every request.
func queryRootField(target *delegate.Target, name string) (*schema.Field, error) {
	root := target.Schema.GetQueryType()
	if root == nil {
		return nil, fmt.Errorf("backend %s has no query root", target.Backend)
	}
	f := root.GetField(name)
	if f == nil {
		return nil, fmt.Errorf("backend %s has no query field %q", target.Backend, name)
	}
	return f, nil
}

// configureShape inspects the batch field's return type and, for backends
// exposing a connection rather than a flat list, pairs the request-side wrap
// with the matching response normalization.
func configureShape(r *batch.Resolver, backendSchema *schema.Schema, remote *schema.Field) {
	if schema.IsList(remote.Type) {
		return
	}
	container := backendSchema.GetType(schema.GetNamedType(remote.Type))
	if container == nil || container.Kind != schema.TypeKindObject {
		return
	}
	switch {
	case container.GetField("nodes") != nil:
		r.WrapSelection = batch.SelectViaNodes
		r.Normalize = batch.NormalizeConnection
	case container.GetField("edges") != nil:
		r.WrapSelection = batch.SelectViaEdges
		r.Normalize = batch.NormalizeConnection
	}
}

// readParentField extracts a foreign key from a parent record by field name.
func readParentField(name string) func(any) (any, error) {
	return func(source any) (any, error) {
		record, ok := source.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("parent is %T, want an object carrying the %q field", source, name)
		}
		return record[name], nil
	}
}
