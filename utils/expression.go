package utils

import (
	"fmt"
	"sort"
	"strings"

	goeval "github.com/edisonguo/govaluate"
)

// Expression is a boolean filter over a fixed set of variables, such as
// the crawler's path pattern or a profile's asset selector.
type Expression struct {
	Source string
	expr   *goeval.EvaluableExpression
}

// CompileExpression parses src and rejects variables outside valid. An
// empty src yields a nil Expression, which matches everything.
func CompileExpression(src string, valid ...string) (*Expression, error) {
	if len(strings.TrimSpace(src)) == 0 {
		return nil, nil
	}

	expr, err := goeval.NewEvaluableExpression(src)
	if err != nil {
		return nil, err
	}

	validVariables := map[string]struct{}{}
	for _, v := range valid {
		validVariables[v] = struct{}{}
	}
	for _, token := range expr.Tokens() {
		if token.Kind == goeval.VARIABLE {
			varName, ok := token.Value.(string)
			if !ok {
				return nil, fmt.Errorf("variable token '%v' failed to cast string", token.Value)
			}
			if _, found := validVariables[varName]; !found {
				names := append([]string(nil), valid...)
				sort.Strings(names)
				return nil, fmt.Errorf("variable %v is not supported. Valid variables are %v", varName, names)
			}
		}
	}
	return &Expression{Source: src, expr: expr}, nil
}

// Match evaluates the expression. Missing variables evaluate as the
// empty string.
func (e *Expression) Match(params map[string]interface{}) (bool, error) {
	if e == nil {
		return true, nil
	}
	for _, token := range e.expr.Tokens() {
		if token.Kind != goeval.VARIABLE {
			continue
		}
		if name, ok := token.Value.(string); ok {
			if _, found := params[name]; !found {
				params[name] = ""
			}
		}
	}

	result, err := e.expr.Evaluate(params)
	if err != nil {
		return false, fmt.Errorf("expression %q: %v", e.Source, err)
	}
	val, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q: result '%v' is not boolean", e.Source, result)
	}
	return val, nil
}
