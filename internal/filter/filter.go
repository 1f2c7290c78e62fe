// Package filter evaluates per-feed rule expressions against fetched items.
package filter

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/jensmonne/RSS-webhook/internal/core"
)

// Filter is a compiled rule expression. An item is delivered only when the
// rule yields true; false means the item is marked seen without notification.
type Filter struct {
	rule    string
	program *vm.Program
}

// Compile parses a rule expression such as `title.value contains "release"`
// or `description.length > 120`.
func Compile(rule string) (*Filter, error) {
	if rule == "" {
		return nil, fmt.Errorf("filter rule is required")
	}
	program, err := expr.Compile(rule, expr.Env(map[string]interface{}{}))
	if err != nil {
		return nil, fmt.Errorf("compile filter: %w", err)
	}
	return &Filter{rule: rule, program: program}, nil
}

// Rule returns the source expression the filter was compiled from.
func (f *Filter) Rule() string { return f.rule }

// Match evaluates the rule against one item.
func (f *Filter) Match(item core.Item) (bool, error) {
	result, err := expr.Run(f.program, matchEnv(item))
	if err != nil {
		return false, fmt.Errorf("run filter: %w", err)
	}
	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("filter did not return bool")
	}
	return matched, nil
}

func matchEnv(item core.Item) map[string]interface{} {
	return map[string]interface{}{
		"title": map[string]interface{}{
			"value":  item.Title,
			"length": len(item.Title),
		},
		"description": map[string]interface{}{
			"value":  item.Description,
			"length": len(item.Description),
		},
		"author":    item.Author,
		"link":      item.Link,
		"published": item.Published,
	}
}
