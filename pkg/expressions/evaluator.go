// Package expressions evaluates JMESPath expressions. The grammar is query-only,
// so user supplied logic can select and compare values but never run code.
package expressions

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jmespath/go-jmespath"
)

// Evaluator wraps JMESPath expression evaluation with a compiled-expression cache
type Evaluator struct {
	cache map[string]*jmespath.JMESPath
	mu    sync.RWMutex
}

// NewEvaluator creates a new expression evaluator
func NewEvaluator() *Evaluator {
	return &Evaluator{
		cache: make(map[string]*jmespath.JMESPath),
	}
}

// Validate reports whether the expression compiles
func (e *Evaluator) Validate(expression string) error {
	if _, err := e.getOrCompile(expression); err != nil {
		return fmt.Errorf("invalid expression %q: %w", expression, err)
	}
	return nil
}

// Evaluate evaluates a JMESPath expression against data
func (e *Evaluator) Evaluate(expression string, data any) (any, error) {
	compiled, err := e.getOrCompile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expression, err)
	}

	result, err := compiled.Search(data)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %q: %w", expression, err)
	}

	return result, nil
}

// ToJSONValue converts any JSON-serializable value into its generic decoded form,
// so structs and typed maps can be searched. Numbers decode as float64.
func ToJSONValue(data any) (any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode expression input: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode expression input: %w", err)
	}
	return out, nil
}

func (e *Evaluator) getOrCompile(expression string) (*jmespath.JMESPath, error) {
	e.mu.RLock()
	compiled, ok := e.cache[expression]
	e.mu.RUnlock()

	if ok {
		return compiled, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if compiled, ok = e.cache[expression]; ok {
		return compiled, nil
	}

	compiled, err := jmespath.Compile(expression)
	if err != nil {
		return nil, err
	}

	e.cache[expression] = compiled
	return compiled, nil
}

// ClearCache clears the compiled expression cache
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]*jmespath.JMESPath)
}
