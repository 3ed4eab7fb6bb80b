package survivorship

import (
	"context"
	"reflect"

	"github.com/Ramsey-B/fern/pkg/expressions"
)

// CustomResolver evaluates CUSTOM survivorship logic. It returns the surviving
// value, or useDefault to keep the master's value.
type CustomResolver interface {
	Resolve(ctx context.Context, logic, field string, masterValue, duplicateValue any) (value any, useDefault bool, err error)
}

// ExpressionResolver treats custom logic as a JMESPath expression evaluated
// against {"field": ..., "master": ..., "duplicate": ...}. A null result means
// "use default".
type ExpressionResolver struct {
	evaluator *expressions.Evaluator
}

func NewExpressionResolver(evaluator *expressions.Evaluator) *ExpressionResolver {
	if evaluator == nil {
		evaluator = expressions.NewEvaluator()
	}
	return &ExpressionResolver{evaluator: evaluator}
}

// Resolve evaluates logic over JSON-normalized inputs. A result equal to one side
// returns that side's original value so its Go type survives the merge; computed
// results keep their decoded JSON type (numbers become float64).
func (r *ExpressionResolver) Resolve(_ context.Context, logic, field string, masterValue, duplicateValue any) (any, bool, error) {
	master, err := expressions.ToJSONValue(masterValue)
	if err != nil {
		return nil, false, err
	}
	duplicate, err := expressions.ToJSONValue(duplicateValue)
	if err != nil {
		return nil, false, err
	}

	result, err := r.evaluator.Evaluate(logic, map[string]any{
		"field":     field,
		"master":    master,
		"duplicate": duplicate,
	})
	if err != nil {
		return nil, false, err
	}

	switch {
	case result == nil:
		return nil, true, nil
	case reflect.DeepEqual(result, master):
		return masterValue, false, nil
	case reflect.DeepEqual(result, duplicate):
		return duplicateValue, false, nil
	}
	return result, false, nil
}

// Validate reports whether logic is a well-formed expression
func (r *ExpressionResolver) Validate(logic string) error {
	return r.evaluator.Validate(logic)
}

// ResolverFunc adapts a function to CustomResolver
type ResolverFunc func(ctx context.Context, logic, field string, masterValue, duplicateValue any) (any, bool, error)

func (f ResolverFunc) Resolve(ctx context.Context, logic, field string, masterValue, duplicateValue any) (any, bool, error) {
	return f(ctx, logic, field, masterValue, duplicateValue)
}
