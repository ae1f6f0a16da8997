// Package delegate synthesizes single-field GraphQL operations against a
// backend and unwraps their results. It is the routing layer shared by
// per-key and batched resolution.
package delegate

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/hanpama/graphgate/internal/executor"
	"github.com/hanpama/graphgate/internal/gqltp"
	"github.com/hanpama/graphgate/internal/language"
	"github.com/hanpama/graphgate/internal/schema"
)

// Target is a remote schema handle: one backend's schema bound to the
// transport that reaches it. Targets are built once at composition time and
// shared read-only by every delegator that queries the backend.
type Target struct {
	Backend string
	URL     string
	Schema  *schema.Schema
	Client  *gqltp.Client

	// Headers are sent with every request to this backend. The caller's own
	// Authorization overrides a configured default.
	Headers map[string]string
	// Timeout caps each request to this backend. Zero means the transport
	// default.
	Timeout time.Duration

	// ToBackendType maps gateway type names back to the backend's original
	// names for outgoing type conditions. Empty when no renames apply.
	ToBackendType map[string]string
	// FromBackendType is the inverse mapping, applied to type names arriving
	// from the backend, such as __typename values.
	FromBackendType map[string]string
}

// GatewayTypeName translates a backend type name to its composite name.
func (t *Target) GatewayTypeName(name string) string {
	if composite, ok := t.FromBackendType[name]; ok {
		return composite
	}
	return name
}

// BackendTypeName translates a composite type name to the backend's own name.
func (t *Target) BackendTypeName(name string) string {
	if original, ok := t.ToBackendType[name]; ok {
		return original
	}
	return name
}

// Request carries one synthesized field call to a backend.
type Request struct {
	// Operation is the operation kind of the outgoing document.
	Operation language.Operation
	// Field is the backend root field to call.
	Field string
	// Args are literal arguments for the field, already coerced to Go values.
	Args map[string]any
	// Selection is the caller's sub-selection beneath the field. Nil for
	// leaf fields.
	Selection language.SelectionSet
	// Fragments are the source document's fragment definitions; only the ones
	// the selection references are forwarded.
	Fragments language.FragmentDefinitionList
	// Variables and VariableDefs describe the client operation's variables.
	// Only the subset referenced inside Selection travels with the request.
	Variables    map[string]any
	VariableDefs language.VariableDefinitionList

	// Batched and Keys describe the batch window this request serves, if any.
	Batched bool
	Keys    int
}

// Field synthesizes an operation containing exactly req.Field, executes it
// against the target, and returns the unwrapped field value.
//
// Remote field-level errors under the requested field come back with paths
// relative to it, so the caller can attach them at the proper position in
// the gateway response instead of failing the whole query. A transport
// failure or a malformed response is returned as err.
func Field(ctx context.Context, t *Target, req Request) (any, []executor.GraphQLError, error) {
	doc := synthesize(t, req)
	text := language.PrintQuery(doc)

	usedVars := variablesInUse(doc, req.Variables)

	resp, err := t.Client.Do(ctx, gqltp.Request{
		Backend:       t.Backend,
		URL:           t.URL,
		Query:         text,
		Variables:     usedVars,
		OperationType: string(req.Operation),
		Batched:       req.Batched,
		Keys:          req.Keys,
		Headers:       t.Headers,
		Timeout:       t.Timeout,
	})
	if err != nil {
		return nil, nil, err
	}

	fieldErrs := relativeFieldErrors(resp.Errors, req.Field)

	var value any
	if data, ok := resp.Data.(map[string]any); ok {
		value = data[req.Field]
	}
	return value, fieldErrs, nil
}

// synthesize builds the outgoing document: one operation with one top-level
// field, the rewritten sub-selection, referenced fragments, and variable
// definitions for the variables still in use.
func synthesize(t *Target, req Request) *language.QueryDocument {
	topField := &language.Field{
		Name:         req.Field,
		Arguments:    literalArguments(req.Args),
		SelectionSet: copySelections(req.Selection, t.ToBackendType),
	}

	fragments := usedFragments(topField.SelectionSet, req.Fragments, t.ToBackendType)

	op := &language.OperationDefinition{
		Operation:    req.Operation,
		SelectionSet: language.SelectionSet{topField},
	}

	doc := &language.QueryDocument{
		Operations: language.OperationList{op},
		Fragments:  fragments,
	}

	names := map[string]bool{}
	collectVariableNames(doc, names)
	for _, def := range req.VariableDefs {
		if names[def.Variable] {
			op.VariableDefinitions = append(op.VariableDefinitions, def)
		}
	}
	return doc
}

// copySelections deep-copies a selection set, rewriting type conditions to
// the backend's own type names. The source AST belongs to the client request
// and must not be mutated.
func copySelections(sel language.SelectionSet, rename map[string]string) language.SelectionSet {
	if len(sel) == 0 {
		return nil
	}
	out := make(language.SelectionSet, 0, len(sel))
	for _, s := range sel {
		switch node := s.(type) {
		case *language.Field:
			out = append(out, &language.Field{
				Alias:        node.Alias,
				Name:         node.Name,
				Arguments:    node.Arguments,
				Directives:   node.Directives,
				SelectionSet: copySelections(node.SelectionSet, rename),
			})
		case *language.InlineFragment:
			out = append(out, &language.InlineFragment{
				TypeCondition: backendTypeName(node.TypeCondition, rename),
				Directives:    node.Directives,
				SelectionSet:  copySelections(node.SelectionSet, rename),
			})
		case *language.FragmentSpread:
			out = append(out, &language.FragmentSpread{
				Name:       node.Name,
				Directives: node.Directives,
			})
		}
	}
	return out
}

func backendTypeName(name string, rename map[string]string) string {
	if original, ok := rename[name]; ok {
		return original
	}
	return name
}

// usedFragments returns rewritten copies of the fragment definitions the
// selection references, following nested spreads.
func usedFragments(sel language.SelectionSet, all language.FragmentDefinitionList, rename map[string]string) language.FragmentDefinitionList {
	byName := make(map[string]*language.FragmentDefinition, len(all))
	for _, f := range all {
		byName[f.Name] = f
	}

	var out language.FragmentDefinitionList
	seen := map[string]bool{}

	var visit func(sel language.SelectionSet)
	visit = func(sel language.SelectionSet) {
		for _, s := range sel {
			switch node := s.(type) {
			case *language.Field:
				visit(node.SelectionSet)
			case *language.InlineFragment:
				visit(node.SelectionSet)
			case *language.FragmentSpread:
				if seen[node.Name] {
					continue
				}
				seen[node.Name] = true
				def := byName[node.Name]
				if def == nil {
					continue
				}
				copied := &language.FragmentDefinition{
					Name:          def.Name,
					TypeCondition: backendTypeName(def.TypeCondition, rename),
					Directives:    def.Directives,
					SelectionSet:  copySelections(def.SelectionSet, rename),
				}
				out = append(out, copied)
				visit(copied.SelectionSet)
			}
		}
	}
	visit(sel)
	return out
}

// literalArguments converts coerced Go argument values into AST literals.
// Map keys are emitted in sorted order so synthesized queries are stable.
func literalArguments(args map[string]any) language.ArgumentList {
	if len(args) == 0 {
		return nil
	}
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(language.ArgumentList, 0, len(names))
	for _, name := range names {
		out = append(out, &language.Argument{
			Name:  name,
			Value: valueToAST(args[name]),
		})
	}
	return out
}

func valueToAST(v any) *language.Value {
	switch x := v.(type) {
	case nil:
		return &language.Value{Kind: language.NullValue, Raw: "null"}
	case bool:
		return &language.Value{Kind: language.BooleanValue, Raw: strconv.FormatBool(x)}
	case string:
		return &language.Value{Kind: language.StringValue, Raw: x}
	case schema.RawValue:
		return &language.Value{Kind: language.EnumValue, Raw: string(x)}
	case int:
		return &language.Value{Kind: language.IntValue, Raw: strconv.Itoa(x)}
	case int32:
		return &language.Value{Kind: language.IntValue, Raw: strconv.FormatInt(int64(x), 10)}
	case int64:
		return &language.Value{Kind: language.IntValue, Raw: strconv.FormatInt(x, 10)}
	case float64:
		return &language.Value{Kind: language.FloatValue, Raw: strconv.FormatFloat(x, 'g', -1, 64)}
	case float32:
		return &language.Value{Kind: language.FloatValue, Raw: strconv.FormatFloat(float64(x), 'g', -1, 32)}
	case []any:
		children := make(language.ChildValueList, 0, len(x))
		for _, item := range x {
			children = append(children, &language.ChildValue{Value: valueToAST(item)})
		}
		return &language.Value{Kind: language.ListValue, Children: children}
	case map[string]any:
		names := make([]string, 0, len(x))
		for name := range x {
			names = append(names, name)
		}
		sort.Strings(names)
		children := make(language.ChildValueList, 0, len(names))
		for _, name := range names {
			children = append(children, &language.ChildValue{Name: name, Value: valueToAST(x[name])})
		}
		return &language.Value{Kind: language.ObjectValue, Children: children}
	default:
		return &language.Value{Kind: language.StringValue, Raw: fmt.Sprint(x)}
	}
}

// collectVariableNames walks the document and records every variable
// reference found in arguments and directives.
func collectVariableNames(doc *language.QueryDocument, names map[string]bool) {
	var visitValue func(v *language.Value)
	visitValue = func(v *language.Value) {
		if v == nil {
			return
		}
		if v.Kind == language.Variable {
			names[v.Raw] = true
		}
		for _, c := range v.Children {
			visitValue(c.Value)
		}
	}
	visitDirectives := func(dirs language.DirectiveList) {
		for _, d := range dirs {
			for _, a := range d.Arguments {
				visitValue(a.Value)
			}
		}
	}

	var visitSelections func(sel language.SelectionSet)
	visitSelections = func(sel language.SelectionSet) {
		for _, s := range sel {
			switch node := s.(type) {
			case *language.Field:
				for _, a := range node.Arguments {
					visitValue(a.Value)
				}
				visitDirectives(node.Directives)
				visitSelections(node.SelectionSet)
			case *language.InlineFragment:
				visitDirectives(node.Directives)
				visitSelections(node.SelectionSet)
			case *language.FragmentSpread:
				visitDirectives(node.Directives)
			}
		}
	}

	for _, op := range doc.Operations {
		visitSelections(op.SelectionSet)
	}
	for _, f := range doc.Fragments {
		visitDirectives(f.Directives)
		visitSelections(f.SelectionSet)
	}
}

// variablesInUse filters the client's variable values down to the ones the
// document references.
func variablesInUse(doc *language.QueryDocument, vars map[string]any) map[string]any {
	names := map[string]bool{}
	collectVariableNames(doc, names)
	if len(names) == 0 {
		return nil
	}
	out := make(map[string]any, len(names))
	for name := range names {
		if v, ok := vars[name]; ok {
			out[name] = v
		}
	}
	return out
}

// relativeFieldErrors rebases remote error paths under the requested field.
// Errors without a path stay pathless and apply to the field as a whole.
func relativeFieldErrors(errs []gqltp.Error, field string) []executor.GraphQLError {
	if len(errs) == 0 {
		return nil
	}
	out := make([]executor.GraphQLError, 0, len(errs))
	for _, e := range errs {
		ge := executor.GraphQLError{Message: e.Message, Extensions: e.Extensions}
		if len(e.Path) > 0 {
			if s, ok := e.Path[0].(string); ok && s == field {
				ge.Path = wirePath(e.Path[1:])
			} else {
				ge.Path = wirePath(e.Path)
			}
		}
		out = append(out, ge)
	}
	return out
}

// wirePath converts a JSON-decoded error path to an executor path. JSON
// numbers arrive as float64 and become list indexes.
func wirePath(parts []any) executor.Path {
	if len(parts) == 0 {
		return nil
	}
	p := make(executor.Path, 0, len(parts))
	for _, part := range parts {
		switch v := part.(type) {
		case float64:
			p = append(p, int(v))
		case string:
			p = append(p, v)
		default:
			p = append(p, fmt.Sprint(v))
		}
	}
	return p
}
