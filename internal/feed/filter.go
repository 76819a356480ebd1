package feed

import (
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// ErrInvalidFilter is returned for filter expressions that do not compile
// to a boolean.
var ErrInvalidFilter = errors.New("invalid filter expression")

// Filter is a compiled CEL predicate over feed rows.
type Filter struct {
	expr    string
	program cel.Program
}

var filterEnv *cel.Env

func init() {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("risk_score", cel.DoubleType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("prediction", cel.IntType),
		cel.Variable("confidence", cel.StringType),
		cel.Variable("deviation_index", cel.DoubleType),
		cel.Variable("flagged", cel.BoolType),
	)
	if err != nil {
		panic(fmt.Sprintf("feed: failed to create CEL environment: %v", err))
	}
	filterEnv = env
}

// CompileFilter compiles expr. An empty expression yields a nil filter that
// keeps every row.
func CompileFilter(expr string) (*Filter, error) {
	if expr == "" {
		return nil, nil
	}

	ast, issues := filterEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("%w: expression must return bool, got %s", ErrInvalidFilter, ast.OutputType())
	}

	program, err := filterEnv.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}

	return &Filter{expr: expr, program: program}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}

// Match reports whether row satisfies the filter. Evaluation errors count as
// no match.
func (f *Filter) Match(row Row) bool {
	if f == nil {
		return true
	}

	out, _, err := f.program.Eval(map[string]any{
		"id":              row.ID,
		"risk_score":      row.RiskScore,
		"amount":          row.Amount,
		"prediction":      int64(row.Transaction.Prediction),
		"confidence":      row.Confidence.String(),
		"deviation_index": row.Transaction.Deviation(),
		"flagged":         row.Flagged,
	})
	if err != nil {
		return false
	}

	b, ok := out.(types.Bool)
	return ok && bool(b)
}

// Apply returns the rows that match, keeping their order and IDs.
func (f *Filter) Apply(rows []Row) []Row {
	if f == nil {
		return rows
	}
	kept := make([]Row, 0, len(rows))
	for _, r := range rows {
		if f.Match(r) {
			kept = append(kept, r)
		}
	}
	return kept
}
