// Package fedrt implements executor.Runtime over a composed gateway schema.
// Async fields delegate to the backend that owns them or run an in-process
// resolver; everything else is a projection out of data those calls already
// fetched.
package fedrt

import (
	"context"
	"fmt"
	"sync"

	"github.com/hanpama/graphgate/internal/batch"
	"github.com/hanpama/graphgate/internal/compose"
	"github.com/hanpama/graphgate/internal/delegate"
	"github.com/hanpama/graphgate/internal/executor"
)

// Runtime routes executor tasks through the composite's delegation tables.
// Invariants and boundaries:
//   - ResolveSync never performs I/O. Backends answer delegated calls with
//     complete subtrees, so child fields are map projections by response key.
//   - BatchResolveAsync groups tasks by (objectType, field). Groups run in
//     parallel; all tasks of a batch-routed group share one backend call.
//   - Mutation root fields run serially in task order, as the operation type
//     requires. Everything else may fan out.
//   - Results preserve input ordering; partial success is supported.
type Runtime struct {
	composite *compose.Composite
	// backendTypeName maps composite type names back to the owner's own
	// name for types renamed during composition. Composite names are
	// globally unique, so entries from all targets merge without conflict.
	backendTypeName map[string]string
}

var _ executor.Runtime = (*Runtime)(nil)

func NewRuntime(c *compose.Composite) *Runtime {
	toBackend := map[string]string{}
	for _, target := range c.Targets {
		for composite, backend := range target.ToBackendType {
			toBackend[composite] = backend
		}
	}
	return &Runtime{composite: c, backendTypeName: toBackend}
}

// ResolveSync projects a field out of the parent value. The parent is the
// decoded JSON of a delegated call, keyed by response key: a backend answers
// an aliased selection under the alias, not the field name.
func (r *Runtime) ResolveSync(ctx context.Context, objectType string, field string, responseKey string, source any, args map[string]any) (any, error) {
	_ = ctx
	_ = args

	if source == nil {
		return nil, nil
	}
	record, ok := source.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("cannot read %s.%s: parent value is %T, want an object", objectType, field, source)
	}
	return record[responseKey], nil
}

// BatchResolveAsync executes delegated calls. All I/O happens here.
func (r *Runtime) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	results := make([]executor.AsyncResolveResult, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	type group struct {
		key  compose.FieldKey
		idxs []int
	}
	groups := []*group{}
	byKey := map[compose.FieldKey]*group{}
	var serial []int

	mutationType := r.composite.Schema.MutationType
	for i, t := range tasks {
		if mutationType != "" && t.ObjectType == mutationType {
			serial = append(serial, i)
			continue
		}
		k := compose.FieldKey{Type: t.ObjectType, Field: t.Field}
		g := byKey[k]
		if g == nil {
			g = &group{key: k}
			byKey[k] = g
			groups = append(groups, g)
		}
		g.idxs = append(g.idxs, i)
	}

	if len(groups) > 1 {
		var wg sync.WaitGroup
		wg.Add(len(groups))
		for _, g := range groups {
			g := g
			go func() {
				defer wg.Done()
				r.runGroup(ctx, g.key, tasks, g.idxs, results)
			}()
		}
		wg.Wait()
	} else {
		for _, g := range groups {
			r.runGroup(ctx, g.key, tasks, g.idxs, results)
		}
	}

	// Mutation root fields, one at a time in document order.
	for _, i := range serial {
		k := compose.FieldKey{Type: tasks[i].ObjectType, Field: tasks[i].Field}
		r.runGroup(ctx, k, tasks, []int{i}, results)
	}
	return results
}

// runGroup resolves one (objectType, field) group and writes results
// in-place. Slots are disjoint across groups, so concurrent writes are safe.
func (r *Runtime) runGroup(ctx context.Context, key compose.FieldKey, tasks []executor.AsyncResolveTask, idxs []int, results []executor.AsyncResolveResult) {
	if route, ok := r.composite.Roots[key]; ok {
		r.runSingleGroup(ctx, route, tasks, idxs, results)
		return
	}
	if route, ok := r.composite.Singles[key]; ok {
		r.runSingleGroup(ctx, route.Resolver, tasks, idxs, results)
		return
	}
	if route, ok := r.composite.Batches[key]; ok {
		r.runBatchGroup(ctx, route.Resolver, tasks, idxs, results)
		return
	}
	if route, ok := r.composite.Locals[key]; ok {
		runLocalGroup(ctx, route.Resolve, tasks, idxs, results)
		return
	}
	// Composition marks a field async only after wiring a route for it, so
	// this is an internal inconsistency rather than a bad query.
	err := fmt.Errorf("no backend serves %s.%s", key.Type, key.Field)
	for _, i := range idxs {
		results[i] = executor.AsyncResolveResult{Error: err}
	}
}

// runLocalGroup computes an in-process field once per task. No backend is
// involved, so there is nothing to plan or delegate.
func runLocalGroup(ctx context.Context, resolve compose.LocalResolver, tasks []executor.AsyncResolveTask, idxs []int, results []executor.AsyncResolveResult) {
	for _, i := range idxs {
		v, err := resolve(ctx, tasks[i].Source, tasks[i].Args)
		results[i] = executor.AsyncResolveResult{Value: v, Error: err}
	}
}

// runSingleGroup fans the group out into one delegated call per task.
func (r *Runtime) runSingleGroup(ctx context.Context, resolver *delegate.Resolver, tasks []executor.AsyncResolveTask, idxs []int, results []executor.AsyncResolveResult) {
	if len(idxs) == 1 {
		i := idxs[0]
		results[i] = resolver.Resolve(ctx, r.planTask(tasks[i], resolver.Target))
		return
	}
	var wg sync.WaitGroup
	wg.Add(len(idxs))
	for _, i := range idxs {
		i := i
		go func() {
			defer wg.Done()
			results[i] = resolver.Resolve(ctx, r.planTask(tasks[i], resolver.Target))
		}()
	}
	wg.Wait()
}

// runBatchGroup turns the whole group into a single key-collection window.
func (r *Runtime) runBatchGroup(ctx context.Context, resolver *batch.Resolver, tasks []executor.AsyncResolveTask, idxs []int, results []executor.AsyncResolveResult) {
	window := make([]executor.AsyncResolveTask, len(idxs))
	for j, i := range idxs {
		window[j] = r.planTask(tasks[i], resolver.Target)
	}
	windowResults := resolver.ResolveWindow(ctx, window)
	for j, i := range idxs {
		results[i] = windowResults[j]
	}
}

// ResolveType maps a value of an abstract type to its concrete composite
// type. Delegated selections on abstract types always fetch __typename, and
// backends report their own names for types renamed during composition.
func (r *Runtime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	record, ok := value.(map[string]any)
	if !ok {
		return "", fmt.Errorf("cannot resolve concrete type of %s: value is %T, want an object", abstractType, value)
	}
	raw, _ := record["__typename"].(string)
	if raw == "" {
		return "", fmt.Errorf("cannot resolve concrete type of %s: value carries no __typename", abstractType)
	}
	abstract := r.composite.Schema.GetType(abstractType)
	if abstract == nil {
		return "", fmt.Errorf("unknown abstract type %s", abstractType)
	}
	for _, name := range abstract.PossibleTypes {
		if name == raw || r.backendTypeName[name] == raw {
			return name, nil
		}
	}
	return "", fmt.Errorf("%s is not a possible type of %s", raw, abstractType)
}

// SerializeLeafValue passes leaf values through verbatim. Backends already
// serialized them to JSON-safe values, and re-encoding would corrupt custom
// scalar representations the gateway knows nothing about.
func (r *Runtime) SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error) {
	return value, nil
}
