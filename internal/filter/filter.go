package filter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/primlo/nibbana/pkg/entry"
)

// ErrInvalidExpression matches every error Compile returns for a bad
// expression.
var ErrInvalidExpression = errors.New("filter: invalid expression")

// Filter is a compiled CEL predicate over entries. The zero value, and a
// Filter compiled from an empty expression, matches everything.
//
// Variables available to expressions:
//
//	kind                string   entry kind ("log", "event", ...)
//	name                string   event name, empty for other kinds
//	payload             dyn      payload decoded as JSON values
//	superProperties     map      super-properties stamped on the entry
//	userIdentification  string   empty when unset
//	ts_ms               int      occurrence time in unix milliseconds
//	now_ms              int      evaluation time in unix milliseconds
type Filter struct {
	expr string
	prog cel.Program
}

// Compile parses and type-checks expr. The expression must yield a bool.
func Compile(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("kind", cel.StringType),
		cel.Variable("name", cel.StringType),
		cel.Variable("payload", cel.DynType),
		cel.Variable("superProperties", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("userIdentification", cel.StringType),
		cel.Variable("ts_ms", cel.IntType),
		cel.Variable("now_ms", cel.IntType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, fmt.Errorf("%w: %v", ErrInvalidExpression, iss.Err())
	}
	if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
		return Filter{}, fmt.Errorf("%w: yields %s, want bool", ErrInvalidExpression, t)
	}
	prog, err := env.Program(ast)
	if err != nil {
		return Filter{}, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	return Filter{expr: expr, prog: prog}, nil
}

// String returns the source expression.
func (f Filter) String() string { return f.expr }

// Enabled reports whether f has an expression.
func (f Filter) Enabled() bool { return f.prog != nil }

// Match evaluates f against e. Evaluation errors, such as selecting a field
// missing from the payload, count as no match.
func (f Filter) Match(e entry.Entry) bool {
	if f.prog == nil {
		return true
	}
	var user string
	if e.UserIdentification != nil {
		user = *e.UserIdentification
	}
	var ts int64
	if !e.OccurredAt.IsZero() {
		ts = e.OccurredAt.UnixMilli()
	}
	props, _ := asJSON(e.SuperProperties).(map[string]any)
	if props == nil {
		props = map[string]any{}
	}
	out, _, err := f.prog.Eval(map[string]any{
		"kind":               string(e.Kind),
		"name":               e.Name,
		"payload":            asJSON(e.Payload),
		"superProperties":    props,
		"userIdentification": user,
		"ts_ms":              ts,
		"now_ms":             time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// Select returns the entries of in that match, preserving order.
func (f Filter) Select(in []entry.Entry) []entry.Entry {
	if f.prog == nil {
		return in
	}
	out := make([]entry.Entry, 0, len(in))
	for _, e := range in {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// asJSON converts v to the plain maps, slices and scalars it encodes to, so
// structs such as entry.ErrorPayload are addressable by their JSON names.
func asJSON(v any) any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}
