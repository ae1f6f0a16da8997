// Package compose merges independently owned backend schemas into one
// composite schema and wires the routing that sends every composite field
// back to its owner.
//
// Composition happens once at startup, after all backends have been
// introspected. The result is immutable: request execution only reads it.
package compose

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hanpama/graphgate/internal/delegate"
	"github.com/hanpama/graphgate/internal/gqltp"
	"github.com/hanpama/graphgate/internal/language"
	"github.com/hanpama/graphgate/internal/schema"
)

// Subschema is one backend's contribution to the composite schema.
type Subschema struct {
	Backend string
	URL     string
	Schema  *schema.Schema

	// Headers are sent with every delegated request to this backend.
	Headers map[string]string
	// Timeout caps each delegated request. Zero means the transport default.
	Timeout time.Duration
}

// Policy decides what happens when two subschemas claim the same name.
type Policy string

const (
	// PolicyFail rejects the composition on any collision. A silent
	// collision is a correctness bug, so this is the default.
	PolicyFail Policy = "fail"
	// PolicyRename keeps the first claimant's name and renames later ones
	// through the rename hooks.
	PolicyRename Policy = "rename"
)

// Options configure composition.
type Options struct {
	Policy Policy
	// RenameType builds a composite name for a colliding type. The default
	// prefixes the capitalized backend name, e.g. ReviewsProduct.
	RenameType func(backend, name string) string
	// RenameField builds a composite name for a colliding root field. The
	// default prefixes the backend name, e.g. reviews_product.
	RenameField func(backend, name string) string
	// Client is the transport shared by every backend target. Defaults to a
	// fresh gqltp client.
	Client *gqltp.Client
}

// CollisionError reports a name claimed by more than one subschema.
type CollisionError struct {
	Kind     string // "type" or "field"
	Name     string
	Backends []string
}

func (e *CollisionError) Error() string {
	if len(e.Backends) >= 2 {
		return fmt.Sprintf("%s %q is defined by both %s and %s", e.Kind, e.Name, e.Backends[0], e.Backends[1])
	}
	return fmt.Sprintf("%s %q collides with an existing definition", e.Kind, e.Name)
}

// Compose merges the subschemas and attaches the extra composite-only
// surface. Subschema order matters under PolicyRename: the first claimant of
// a name keeps it.
func Compose(subschemas []Subschema, extras *Extras, opts *Options) (*Composite, error) {
	o := normalizedOptions(opts)

	c := &Composite{
		Schema:  schema.NewSchema("").AddBuiltins().SetQueryType("Query"),
		Targets: map[string]*delegate.Target{},
		Roots:   map[FieldKey]*delegate.Resolver{},
		Batches: map[FieldKey]*BatchRoute{},
		Singles: map[FieldKey]*SingleRoute{},
		Locals:  map[FieldKey]*LocalRoute{},
	}
	c.Schema.AddType(schema.NewType("Query", schema.TypeKindObject, ""))

	typeOwner := map[string]string{}
	fieldOwner := map[FieldKey]string{}

	for _, sub := range subschemas {
		if sub.Schema == nil {
			return nil, fmt.Errorf("backend %s has no schema", sub.Backend)
		}
		if _, dup := c.Targets[sub.Backend]; dup {
			return nil, fmt.Errorf("backend %s is configured twice", sub.Backend)
		}
		target := &delegate.Target{
			Backend:         sub.Backend,
			URL:             sub.URL,
			Schema:          sub.Schema,
			Client:          o.Client,
			Headers:         sub.Headers,
			Timeout:         sub.Timeout,
			ToBackendType:   map[string]string{},
			FromBackendType: map[string]string{},
		}
		c.Targets[sub.Backend] = target
		if err := mergeSubschema(c, typeOwner, fieldOwner, sub, target, o); err != nil {
			return nil, err
		}
	}

	if extras != nil {
		if err := applyExtras(c, typeOwner, extras); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// reservedRootName reports whether the name belongs to the composite root
// types. Backend object types with these names always count as collisions,
// even before any backend contributes that root kind.
func reservedRootName(name string) bool {
	return name == "Query" || name == "Mutation" || name == "Subscription"
}

func mergeSubschema(c *Composite, typeOwner map[string]string, fieldOwner map[FieldKey]string, sub Subschema, target *delegate.Target, o Options) error {
	src := sub.Schema

	rootNames := map[string]string{}
	if src.QueryType != "" {
		rootNames[src.QueryType] = "Query"
	}
	if src.MutationType != "" {
		rootNames[src.MutationType] = "Mutation"
	}
	if src.SubscriptionType != "" {
		rootNames[src.SubscriptionType] = "Subscription"
	}

	names := make([]string, 0, len(src.Types))
	for name := range src.Types {
		names = append(names, name)
	}
	sort.Strings(names)

	skip := func(name string) bool {
		if _, isRoot := rootNames[name]; isRoot {
			return true
		}
		return schema.IsBuiltinType(name) || strings.HasPrefix(name, "__")
	}

	// Pass 1: decide the composite name of every backend type, so pass 2 can
	// rewrite forward references within this subschema.
	rename := map[string]string{}
	for backendRoot, compositeRoot := range rootNames {
		rename[backendRoot] = compositeRoot
	}
	for _, name := range names {
		if skip(name) {
			continue
		}
		compositeName := name
		owner, taken := typeOwner[name]
		if taken || reservedRootName(name) {
			if o.Policy != PolicyRename {
				return &CollisionError{Kind: "type", Name: name, Backends: claimants(owner, sub.Backend)}
			}
			compositeName = o.RenameType(sub.Backend, name)
			if _, still := typeOwner[compositeName]; still || reservedRootName(compositeName) || schema.IsBuiltinType(compositeName) {
				return &CollisionError{Kind: "type", Name: compositeName, Backends: claimants(typeOwner[compositeName], sub.Backend)}
			}
		}
		rename[name] = compositeName
		typeOwner[compositeName] = sub.Backend
		if compositeName != name {
			target.ToBackendType[compositeName] = name
			target.FromBackendType[name] = compositeName
		}
	}

	refName := func(name string) string {
		if composite, ok := rename[name]; ok {
			return composite
		}
		return name
	}

	// Pass 2: copy the types under their composite names.
	for _, name := range names {
		if skip(name) {
			continue
		}
		c.Schema.AddType(copyType(src.Types[name], refName))
	}

	// Pass 3: merge root fields and route them back to this backend.
	if err := mergeRootFields(c, fieldOwner, sub, target, o, src.GetQueryType(), "Query", language.Query, refName); err != nil {
		return err
	}
	if mt := src.GetMutationType(); mt != nil {
		if c.Schema.GetType("Mutation") == nil {
			c.Schema.AddType(schema.NewType("Mutation", schema.TypeKindObject, "")).SetMutationType("Mutation")
		}
		if err := mergeRootFields(c, fieldOwner, sub, target, o, mt, "Mutation", language.Mutation, refName); err != nil {
			return err
		}
	}
	// Subscriptions are not federated; a backend's subscription root is
	// dropped from the composite namespace.
	return nil
}

func mergeRootFields(c *Composite, fieldOwner map[FieldKey]string, sub Subschema, target *delegate.Target, o Options, root *schema.Type, compositeRoot string, op language.Operation, refName func(string) string) error {
	if root == nil {
		return nil
	}
	compositeType := c.Schema.GetType(compositeRoot)
	for _, f := range root.Fields {
		name := f.Name
		key := FieldKey{Type: compositeRoot, Field: name}
		if owner, taken := fieldOwner[key]; taken {
			if o.Policy != PolicyRename {
				return &CollisionError{Kind: "field", Name: compositeRoot + "." + name, Backends: claimants(owner, sub.Backend)}
			}
			name = o.RenameField(sub.Backend, f.Name)
			key = FieldKey{Type: compositeRoot, Field: name}
			if other, still := fieldOwner[key]; still {
				return &CollisionError{Kind: "field", Name: compositeRoot + "." + name, Backends: claimants(other, sub.Backend)}
			}
		}
		copied := copyField(f, refName)
		copied.Name = name
		copied.Async = true
		compositeType.AddField(copied)
		fieldOwner[key] = sub.Backend
		c.Roots[key] = &delegate.Resolver{Target: target, Field: f.Name, Operation: op}
	}
	return nil
}

func claimants(owner, claimant string) []string {
	if owner == "" {
		return []string{claimant}
	}
	return []string{owner, claimant}
}

func normalizedOptions(opts *Options) Options {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.Policy == "" {
		o.Policy = PolicyFail
	}
	if o.RenameType == nil {
		o.RenameType = func(backend, name string) string {
			return capitalize(backend) + name
		}
	}
	if o.RenameField == nil {
		o.RenameField = func(backend, name string) string {
			return backend + "_" + name
		}
	}
	if o.Client == nil {
		o.Client = gqltp.New()
	}
	return o
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ----- deep copies with renames applied -----

func copyType(t *schema.Type, refName func(string) string) *schema.Type {
	out := &schema.Type{
		Name:           refName(t.Name),
		Kind:           t.Kind,
		Description:    t.Description,
		SpecifiedByURL: t.SpecifiedByURL,
		OneOf:          t.OneOf,
	}
	for _, f := range t.Fields {
		out.Fields = append(out.Fields, copyField(f, refName))
	}
	for _, name := range t.Interfaces {
		out.Interfaces = append(out.Interfaces, refName(name))
	}
	for _, name := range t.PossibleTypes {
		out.PossibleTypes = append(out.PossibleTypes, refName(name))
	}
	for _, v := range t.EnumValues {
		ev := *v
		out.EnumValues = append(out.EnumValues, &ev)
	}
	for _, in := range t.InputFields {
		out.InputFields = append(out.InputFields, copyInputValue(in, refName))
	}
	return out
}

func copyField(f *schema.Field, refName func(string) string) *schema.Field {
	out := &schema.Field{
		Name:              f.Name,
		Description:       f.Description,
		Type:              copyRef(f.Type, refName),
		IsDeprecated:      f.IsDeprecated,
		DeprecationReason: f.DeprecationReason,
	}
	for _, a := range f.Arguments {
		out.Arguments = append(out.Arguments, copyInputValue(a, refName))
	}
	return out
}

func copyInputValue(v *schema.InputValue, refName func(string) string) *schema.InputValue {
	return &schema.InputValue{
		Name:              v.Name,
		Description:       v.Description,
		Type:              copyRef(v.Type, refName),
		DefaultValue:      v.DefaultValue,
		IsDeprecated:      v.IsDeprecated,
		DeprecationReason: v.DeprecationReason,
	}
}

func copyRef(r *schema.TypeRef, refName func(string) string) *schema.TypeRef {
	if r == nil {
		return nil
	}
	out := &schema.TypeRef{Kind: r.Kind, OfType: copyRef(r.OfType, refName)}
	if r.Named != "" {
		out.Named = refName(r.Named)
	}
	return out
}
