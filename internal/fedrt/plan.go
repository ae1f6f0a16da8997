package fedrt

import (
	"github.com/hanpama/graphgate/internal/delegate"
	"github.com/hanpama/graphgate/internal/executor"
	"github.com/hanpama/graphgate/internal/language"
	"github.com/hanpama/graphgate/internal/schema"
)

// planTask rewrites a task's selection into one the target backend can
// answer. Fragment spreads are inlined, fields stitched in from other
// backends are replaced by the key fields their resolvers read, and
// __typename is forced onto abstract positions so the gateway can resolve
// concrete types from the response.
//
// The rewrite stays in composite type names; delegation translates them to
// the backend's own names while synthesizing the outgoing document.
func (r *Runtime) planTask(task executor.AsyncResolveTask, target *delegate.Target) executor.AsyncResolveTask {
	owner := r.composite.Schema.GetType(task.ObjectType)
	if owner == nil {
		return task
	}
	field := owner.GetField(task.Field)
	if field == nil {
		return task
	}
	returnType := schema.GetNamedType(field.Type)

	sel := r.planSelection(task.Selection, returnType, target, task.Fragments)
	if isAbstract(r.composite.Schema.GetType(returnType)) {
		sel = withTypename(sel)
	}
	task.Selection = sel
	task.Fragments = nil
	return task
}

func (r *Runtime) planSelection(sel language.SelectionSet, compositeType string, target *delegate.Target, frags language.FragmentDefinitionList) language.SelectionSet {
	if len(sel) == 0 {
		return nil
	}
	backendType := target.Schema.GetType(target.BackendTypeName(compositeType))

	var out language.SelectionSet
	var keyFields []string
	for _, s := range sel {
		switch node := s.(type) {
		case *language.Field:
			if node.Name == "__typename" {
				out = append(out, node)
				continue
			}
			if keys, stitched := r.composite.Stitched(compositeType, node.Name); stitched {
				// The stitched field resolves through another backend; this
				// one only needs to surface the join keys.
				keyFields = append(keyFields, keys...)
				continue
			}
			var def *schema.Field
			if backendType != nil {
				def = backendType.GetField(node.Name)
			}
			if def == nil {
				continue
			}
			out = append(out, r.planField(node, def, target, frags))
		case *language.FragmentSpread:
			frag := frags.ForName(node.Name)
			if frag == nil {
				continue
			}
			if planned := r.planFragment(frag.TypeCondition, node.Directives, frag.SelectionSet, compositeType, target, frags); planned != nil {
				out = append(out, planned)
			}
		case *language.InlineFragment:
			if planned := r.planFragment(node.TypeCondition, node.Directives, node.SelectionSet, compositeType, target, frags); planned != nil {
				out = append(out, planned)
			}
		}
	}
	for _, key := range keyFields {
		if !selectsPlainField(out, key) {
			out = append(out, &language.Field{Name: key})
		}
	}
	return out
}

func (r *Runtime) planField(node *language.Field, def *schema.Field, target *delegate.Target, frags language.FragmentDefinitionList) *language.Field {
	out := *node
	if len(node.SelectionSet) == 0 {
		return &out
	}
	child := target.Schema.GetType(schema.GetNamedType(def.Type))
	if child == nil {
		return &out
	}
	sub := r.planSelection(node.SelectionSet, target.GatewayTypeName(child.Name), target, frags)
	if isAbstract(child) {
		sub = withTypename(sub)
	}
	out.SelectionSet = sub
	return &out
}

// planFragment inlines a fragment. Fragments conditioned on types the
// backend does not know are dropped whole: their fields can only match
// values owned elsewhere.
func (r *Runtime) planFragment(condition string, directives language.DirectiveList, sel language.SelectionSet, compositeType string, target *delegate.Target, frags language.FragmentDefinitionList) language.Selection {
	context := compositeType
	if condition != "" {
		if target.Schema.GetType(target.BackendTypeName(condition)) == nil {
			return nil
		}
		context = condition
	}
	sub := r.planSelection(sel, context, target, frags)
	if len(sub) == 0 {
		return nil
	}
	return &language.InlineFragment{
		TypeCondition: condition,
		Directives:    directives,
		SelectionSet:  sub,
	}
}

func isAbstract(t *schema.Type) bool {
	return t != nil && (t.Kind == schema.TypeKindInterface || t.Kind == schema.TypeKindUnion)
}

func withTypename(sel language.SelectionSet) language.SelectionSet {
	if len(sel) == 0 || selectsPlainField(sel, "__typename") {
		return sel
	}
	return append(language.SelectionSet{&language.Field{Name: "__typename"}}, sel...)
}

func selectsPlainField(sel language.SelectionSet, name string) bool {
	for _, s := range sel {
		f, ok := s.(*language.Field)
		if !ok {
			continue
		}
		if f.Name == name && (f.Alias == "" || f.Alias == f.Name) && len(f.Arguments) == 0 {
			return true
		}
	}
	return false
}
