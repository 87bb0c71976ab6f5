// Package logfilter selects stream log entries with CEL expressions.
//
// Expressions see four string variables: level (upper-cased), message,
// timestamp and tag (the optional type marker of the frame). Examples:
//
//	level == "ERROR"
//	level in ["WARN", "ERROR"] && message.contains("timeout")
//	timestamp >= "2024-01-01T00:00:00Z"
package logfilter

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/hummingbird-labs/hummingbird/internal/stream"
)

// Filter is a compiled expression. It is safe for concurrent use.
type Filter struct {
	expr string
	prg  cel.Program
}

var env = mustEnv()

func mustEnv() *cel.Env {
	e, err := cel.NewEnv(
		cel.Variable("level", cel.StringType),
		cel.Variable("message", cel.StringType),
		cel.Variable("timestamp", cel.StringType),
		cel.Variable("tag", cel.StringType),
	)
	if err != nil {
		panic(fmt.Sprintf("logfilter: build CEL environment: %v", err))
	}
	return e
}

// Compile parses and type-checks expr. The expression must evaluate to a bool.
// An empty expression yields a nil Filter, which matches everything.
func Compile(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile filter %q: %w", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("compile filter %q: expression must be bool, got %s", expr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("compile filter %q: %w", expr, err)
	}
	return &Filter{expr: expr, prg: prg}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}

// Match reports whether e satisfies the filter. Evaluation errors count as no match.
func (f *Filter) Match(e stream.LogEntry) bool {
	ok, err := f.Eval(e)
	return err == nil && ok
}

// Eval evaluates the filter against e.
func (f *Filter) Eval(e stream.LogEntry) (bool, error) {
	if f == nil {
		return true, nil
	}
	out, _, err := f.prg.Eval(map[string]any{
		"level":     strings.ToUpper(string(e.Level)),
		"message":   e.Message,
		"timestamp": e.Timestamp,
		"tag":       e.Type,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate filter %q: %w", f.expr, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("evaluate filter %q: non-bool result %v", f.expr, out.Value())
	}
	return b, nil
}
