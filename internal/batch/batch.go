// Package batch consolidates sibling key lookups into one remote call per
// resolution wave.
//
// The scheduler hands every pending lookup of one (object type, field) pair
// to ResolveWindow in a single call, after the whole wave has registered.
// That call frame is the collection window: keys are gathered in registration
// order, deduplicated for the outgoing query, resolved with one delegated
// call, and correlated back so each caller receives exactly the slot its key
// earned. Nothing about a window survives the call, and nothing is shared
// between client queries.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hanpama/graphgate/internal/delegate"
	"github.com/hanpama/graphgate/internal/eventbus"
	"github.com/hanpama/graphgate/internal/events"
	"github.com/hanpama/graphgate/internal/executor"
	"github.com/hanpama/graphgate/internal/language"
)

// Resolver resolves one relationship through a backend's set-membership
// field. A Resolver is built once at composition time and is safe for
// concurrent use: all per-query state lives in the ResolveWindow call.
type Resolver struct {
	// Target is the backend the batch field lives on.
	Target *delegate.Target
	// BatchField is the backend field accepting a set of keys and returning
	// the matching records. It is distinct from the composite field the
	// client asked for.
	BatchField string
	// Operation is the outgoing operation kind. Empty means query.
	Operation language.Operation

	// ExtractKey derives the batching key from a caller's parent object.
	// Returning a nil key resolves that caller to an empty value without
	// joining the window.
	ExtractKey func(source any) (any, error)
	// SynthesizeArgs builds the batch field's arguments from the distinct
	// key set. The arguments must express set membership, not equality.
	SynthesizeArgs func(keys []any) map[string]any
	// Normalize flattens the batch field's value into correlatable entries.
	// Nil defaults to NormalizeList.
	Normalize Normalizer
	// WrapSelection reshapes the outgoing record selection into the form the
	// batch field returns on the wire, such as nesting it under a
	// connection's nodes. It is the request-side counterpart of Normalize
	// and runs after ExtraFields are added. Nil means the batch field
	// returns the records directly.
	WrapSelection func(records language.SelectionSet) language.SelectionSet
	// Correlate maps normalized entries back to the registered keys.
	Correlate Correlator

	// ExtraFields are backend fields the correlation step reads, typically
	// the key field. They are added to the outgoing selection whenever the
	// client did not ask for them itself.
	ExtraFields []string
}

// registration pins one window participant to its slot in the task list.
type registration struct {
	taskIndex int
	key       any
}

// ResolveWindow closes a collection window: it derives a key for every task,
// issues one batched call for the distinct keys, and correlates the response
// so results[i] answers tasks[i].
//
// Per-task extraction failures stay per-task. Everything after the window
// closes is shared fate: a transport failure, a backend error, or a
// correlation failure on the single batched call fails every registered task
// in the window, because a misattributed record is worse than an error.
func (r *Resolver) ResolveWindow(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	results := make([]executor.AsyncResolveResult, len(tasks))

	ordered := make([]registration, 0, len(tasks))
	distinct := make([]any, 0, len(tasks))
	seen := make(map[string]bool, len(tasks))

	for i, task := range tasks {
		key, err := r.ExtractKey(task.Source)
		if err != nil {
			results[i] = executor.AsyncResolveResult{
				Error: fmt.Errorf("deriving %s.%s batch key: %w", task.ObjectType, task.Field, err),
			}
			continue
		}
		if key == nil {
			// No key to look up: an explicit empty result, not a window member.
			results[i] = executor.AsyncResolveResult{Value: nil}
			continue
		}
		ordered = append(ordered, registration{taskIndex: i, key: key})
		canon := canonicalKey(key)
		if !seen[canon] {
			seen[canon] = true
			distinct = append(distinct, key)
		}
	}

	if len(ordered) == 0 {
		return results
	}

	slots, err := r.flush(ctx, tasks, ordered, distinct)
	if err != nil {
		for _, reg := range ordered {
			results[reg.taskIndex] = executor.AsyncResolveResult{Error: err}
		}
		return results
	}
	for i, reg := range ordered {
		results[reg.taskIndex] = executor.AsyncResolveResult{Value: slots[i]}
	}
	return results
}

// flush issues the single remote call for a closed window and maps the
// response back to one slot per registration.
func (r *Resolver) flush(ctx context.Context, tasks []executor.AsyncResolveTask, ordered []registration, distinct []any) ([]any, error) {
	start := time.Now()
	slots, err := r.callAndCorrelate(ctx, tasks, ordered, distinct)

	eventbus.Publish(ctx, events.BatchWindowFlush{
		Backend:      r.Target.Backend,
		ObjectType:   tasks[ordered[0].taskIndex].ObjectType,
		Field:        tasks[ordered[0].taskIndex].Field,
		Keys:         len(ordered),
		DistinctKeys: len(distinct),
		Err:          err,
		Duration:     time.Since(start),
	})
	return slots, err
}

func (r *Resolver) callAndCorrelate(ctx context.Context, tasks []executor.AsyncResolveTask, ordered []registration, distinct []any) ([]any, error) {
	op := r.Operation
	if op == "" {
		op = language.Query
	}

	first := tasks[ordered[0].taskIndex]
	value, fieldErrs, err := delegate.Field(ctx, r.Target, delegate.Request{
		Operation:    op,
		Field:        r.BatchField,
		Args:         r.SynthesizeArgs(distinct),
		Selection:    r.windowSelection(tasks, ordered),
		Fragments:    first.Fragments,
		Variables:    first.Variables,
		VariableDefs: first.VariableDefinitions,
		Batched:      true,
		Keys:         len(distinct),
	})
	if err != nil {
		return nil, err
	}
	if len(fieldErrs) > 0 {
		// The batched call answers the whole window at once, so a backend
		// error inside it cannot be attributed to single keys.
		return nil, fmt.Errorf("backend %s failed batch field %s: %s", r.Target.Backend, r.BatchField, fieldErrs[0].Message)
	}

	normalize := r.Normalize
	if normalize == nil {
		normalize = NormalizeList
	}
	entries, err := normalize(value)
	if err != nil {
		return nil, r.located(err)
	}

	orderedKeys := make([]any, len(ordered))
	for i, reg := range ordered {
		orderedKeys[i] = reg.key
	}
	slots, err := r.Correlate(entries, orderedKeys, distinct)
	if err != nil {
		return nil, r.located(err)
	}
	if len(slots) != len(ordered) {
		return nil, r.located(&CorrelationError{
			Reason: fmt.Sprintf("correlator produced %d slots for %d registered keys", len(slots), len(ordered)),
		})
	}
	return slots, nil
}

// located stamps the window's backend and field onto correlation errors that
// were raised without that context.
func (r *Resolver) located(err error) error {
	var ce *CorrelationError
	if errors.As(err, &ce) && ce.Backend == "" {
		ce.Backend = r.Target.Backend
		ce.Field = r.BatchField
	}
	return err
}

// windowSelection merges every registered task's sub-selection into one set
// and appends the fields correlation depends on.
func (r *Resolver) windowSelection(tasks []executor.AsyncResolveTask, ordered []registration) language.SelectionSet {
	sets := make([]language.SelectionSet, 0, len(ordered))
	for _, reg := range ordered {
		if sel := tasks[reg.taskIndex].Selection; len(sel) > 0 {
			sets = append(sets, sel)
		}
	}
	merged := mergeSelections(sets...)

	for _, name := range r.ExtraFields {
		if !selectsField(merged, name) {
			merged = append(merged, &language.Field{Name: name})
		}
	}
	if r.WrapSelection != nil {
		merged = r.WrapSelection(merged)
	}
	return merged
}

// mergeSelections folds several selection sets into one, collapsing fields
// that share a response key so the synthesized query stays compact. Inputs
// are never mutated; collapsed fields get fresh nodes.
func mergeSelections(sets ...language.SelectionSet) language.SelectionSet {
	var out language.SelectionSet
	fields := make(map[string]*language.Field)
	spreads := make(map[string]bool)

	for _, set := range sets {
		for _, sel := range set {
			switch node := sel.(type) {
			case *language.Field:
				key := node.Alias
				if key == "" {
					key = node.Name
				}
				if existing, ok := fields[key]; ok && existing.Name == node.Name {
					existing.SelectionSet = mergeSelections(existing.SelectionSet, node.SelectionSet)
					continue
				}
				copied := &language.Field{
					Alias:        node.Alias,
					Name:         node.Name,
					Arguments:    node.Arguments,
					Directives:   node.Directives,
					SelectionSet: node.SelectionSet,
				}
				fields[key] = copied
				out = append(out, copied)
			case *language.FragmentSpread:
				if spreads[node.Name] {
					continue
				}
				spreads[node.Name] = true
				out = append(out, node)
			default:
				out = append(out, sel)
			}
		}
	}
	return out
}

// selectsField reports whether the set already requests the named field under
// its own name. An aliased selection does not count: the correlator reads the
// record by field name, not by alias.
func selectsField(set language.SelectionSet, name string) bool {
	for _, sel := range set {
		if f, ok := sel.(*language.Field); ok && f.Name == name {
			if f.Alias == "" || f.Alias == f.Name {
				return true
			}
		}
	}
	return false
}
