package qualifier

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/jdziat/simple-external-tasks/pkg/core"
)

// Mode selects how the resolved value is compared against the literals.
type Mode int

const (
	// Equals matches when the value equals any literal.
	Equals Mode = iota
	// NotEquals matches when the value differs from every literal.
	NotEquals
)

func (m Mode) String() string {
	if m == NotEquals {
		return "!="
	}
	return "="
}

// nullLiteral stands for numeric zero in a literal list.
const nullLiteral = "null"

// Predicate is a parsed qualifier expression. A nil *Predicate matches
// every task.
type Predicate struct {
	Expression string
	Path       []string
	Mode       Mode
	Literals   []string
}

// Parse builds a Predicate from an expression of the form path=v1,v2 or
// path!=v1,v2. An empty expression yields (nil, nil).
func Parse(expression string) (*Predicate, error) {
	expr := strings.TrimSpace(expression)
	if expr == "" {
		return nil, nil
	}

	mode := Equals
	path, values, found := strings.Cut(expr, "!=")
	if found {
		mode = NotEquals
	} else {
		path, values, found = strings.Cut(expr, "=")
		if !found {
			return nil, &core.QualifierParseError{Expression: expression, Reason: "missing '=' or '!='"}
		}
	}

	path = strings.TrimSpace(path)
	if path == "" {
		return nil, &core.QualifierParseError{Expression: expression, Reason: "empty variable path"}
	}
	segments := strings.Split(path, ".")
	for _, seg := range segments {
		if seg == "" {
			return nil, &core.QualifierParseError{Expression: expression, Reason: "empty path segment"}
		}
	}

	var literals []string
	for _, v := range strings.Split(values, ",") {
		if v = strings.TrimSpace(v); v == "" {
			return nil, &core.QualifierParseError{Expression: expression, Reason: "empty value"}
		}
		literals = append(literals, v)
	}

	return &Predicate{
		Expression: expression,
		Path:       segments,
		Mode:       mode,
		Literals:   literals,
	}, nil
}

// MustParse is like Parse but degrades a malformed expression to the
// always-matching nil predicate, logging the failure.
func MustParse(expression string, logger *slog.Logger) *Predicate {
	p, err := Parse(expression)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("error building qualifier, tasks will be dispatched unconditionally",
			"qualifier", expression, "error", err)
		return nil
	}
	return p
}

// Evaluate reports whether the task variables satisfy the predicate.
// It returns true together with a *core.QualifierEvalError when evaluation
// itself fails, so callers can log and proceed.
func (p *Predicate) Evaluate(vars core.Variables) (matched bool, err error) {
	if p == nil {
		return true, nil
	}
	defer func() {
		if r := recover(); r != nil {
			matched = true
			err = &core.QualifierEvalError{Expression: p.Expression, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	wants := make([]int64, 0, len(p.Literals))
	for _, lit := range p.Literals {
		want, err := parseLiteral(lit)
		if err != nil {
			return true, &core.QualifierEvalError{Expression: p.Expression, Err: err}
		}
		wants = append(wants, want)
	}

	value := p.resolve(vars)
	for _, want := range wants {
		if value == want {
			return p.Mode == Equals, nil
		}
	}
	return p.Mode == NotEquals, nil
}

// Matches is Evaluate with evaluation errors treated as a match.
func (p *Predicate) Matches(vars core.Variables) bool {
	ok, _ := p.Evaluate(vars)
	return ok
}

func (p *Predicate) String() string {
	if p == nil {
		return ""
	}
	return strings.Join(p.Path, ".") + p.Mode.String() + strings.Join(p.Literals, ",")
}

// resolve walks the variable path and coerces the result to an integer.
// Absent and non-numeric values coerce to 0.
func (p *Predicate) resolve(vars core.Variables) int64 {
	return toInt64(vars.Lookup(strings.Join(p.Path, ".")))
}

func parseLiteral(lit string) (int64, error) {
	if lit == nullLiteral {
		return 0, nil
	}
	n, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("literal %q is not an integer", lit)
	}
	return n, nil
}

func toInt64(v any) int64 {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return floatToInt64(float64(x))
	case float64:
		return floatToInt64(x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return floatToInt64(f)
		}
		return 0
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func floatToInt64(f float64) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int64(f)
}
