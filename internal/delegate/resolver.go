package delegate

import (
	"context"
	"fmt"

	"github.com/hanpama/graphgate/internal/executor"
	"github.com/hanpama/graphgate/internal/language"
)

// Resolver delegates one field lookup per task to a backend root field. It
// carries no per-query state and may serve any number of concurrent tasks.
type Resolver struct {
	Target    *Target
	Field     string
	Operation language.Operation

	// Args derives the remote field's arguments from the caller's parent
	// object and the field's own arguments. Nil means the task's own
	// arguments pass through unchanged. Returning nil args with nil error
	// resolves the task to an empty value without a remote call, for parents
	// that simply lack the reference.
	Args func(source any, args map[string]any) (map[string]any, error)
}

// Resolve executes the task as a single synthesized lookup. Remote
// field-level errors ride back on the result so sibling fields keep their
// values.
func (r *Resolver) Resolve(ctx context.Context, task executor.AsyncResolveTask) executor.AsyncResolveResult {
	op := r.Operation
	if op == "" {
		op = language.Query
	}

	args := task.Args
	if r.Args != nil {
		derived, err := r.Args(task.Source, task.Args)
		if err != nil {
			return executor.AsyncResolveResult{
				Error: fmt.Errorf("deriving %s.%s arguments: %w", task.ObjectType, task.Field, err),
			}
		}
		if derived == nil {
			return executor.AsyncResolveResult{Value: nil}
		}
		args = derived
	}

	value, fieldErrs, err := Field(ctx, r.Target, Request{
		Operation:    op,
		Field:        r.Field,
		Args:         args,
		Selection:    task.Selection,
		Fragments:    task.Fragments,
		Variables:    task.Variables,
		VariableDefs: task.VariableDefinitions,
	})
	if err != nil {
		return executor.AsyncResolveResult{Error: err}
	}
	return executor.AsyncResolveResult{Value: value, FieldErrors: fieldErrs}
}
