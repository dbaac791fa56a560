// Package filter turns structured where-objects into predicates.
//
// A where-object maps a field name (optionally a dotted path into nested JSON)
// to either a literal, meaning equality, or an operator object using
// $gt, $gte, $lt, $lte, $ne and $in. Field names that fail validation and
// operators that are not recognised are dropped rather than reported, so a
// filter can never inject SQL and never fails a request on its own.
//
// Two evaluators share the parsed form: a Translator that pushes conditions
// down into SQL against a JSON column, and Match, which evaluates the same
// conditions against an in-memory object (used for edge metadata).
package filter

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Operator is a comparison applied to one field
type Operator string

const (
	OpEQ  Operator = "="
	OpNE  Operator = "!="
	OpGT  Operator = ">"
	OpGTE Operator = ">="
	OpLT  Operator = "<"
	OpLTE Operator = "<="
	OpIN  Operator = "IN"
)

var operatorKeys = map[string]Operator{
	"$gt":  OpGT,
	"$gte": OpGTE,
	"$lt":  OpLT,
	"$lte": OpLTE,
	"$ne":  OpNE,
	"$in":  OpIN,
}

var fieldPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)*$`)

// ValidField reports whether name is a safe field name or dotted path
func ValidField(name string) bool {
	return fieldPattern.MatchString(name)
}

// Condition is a single parsed predicate
type Condition struct {
	Field string
	Op    Operator
	Value any
}

// JSON is an array operand of an equality test, held as compact JSON text
type JSON string

// Parse converts a where-object into conditions, ordered by field name.
// Invalid field names and unknown operators are skipped. An array literal
// compares equal only to an identical array; arrays under range operators
// are skipped.
func Parse(where map[string]any) []Condition {
	if len(where) == 0 {
		return nil
	}

	fields := make([]string, 0, len(where))
	for field := range where {
		if ValidField(field) {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)

	var conds []Condition
	for _, field := range fields {
		raw := where[field]
		ops, isObject := raw.(map[string]any)
		if !isObject {
			if v, ok := literal(raw); ok {
				conds = append(conds, Condition{Field: field, Op: OpEQ, Value: v})
			}
			continue
		}

		keys := make([]string, 0, len(ops))
		for k := range ops {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			op, known := operatorKeys[key]
			if !known {
				continue
			}
			if op == OpIN {
				conds = append(conds, Condition{Field: field, Op: OpIN, Value: normalizeList(ops[key])})
				continue
			}
			if op == OpNE {
				if v, ok := literal(ops[key]); ok {
					conds = append(conds, Condition{Field: field, Op: op, Value: v})
				}
				continue
			}
			if v, ok := normalize(ops[key]); ok {
				conds = append(conds, Condition{Field: field, Op: op, Value: v})
			}
		}
	}
	return conds
}

// normalize maps a JSON literal to the form SQLite's JSON functions produce.
// Booleans become 1/0.
func normalize(v any) (any, bool) {
	switch val := v.(type) {
	case nil:
		return nil, true
	case bool:
		if val {
			return int64(1), true
		}
		return int64(0), true
	case string:
		return val, true
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return int64(val), true
	case int64:
		return val, true
	case int32:
		return int64(val), true
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, true
		}
		if f, err := val.Float64(); err == nil {
			return f, true
		}
		return val.String(), true
	default:
		return nil, false
	}
}

// literal normalizes an operand of $eq or $ne, encoding arrays as JSON
func literal(v any) (any, bool) {
	switch v.(type) {
	case []any, []string:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		return JSON(b), true
	}
	return normalize(v)
}

func normalizeList(v any) []any {
	var items []any
	switch list := v.(type) {
	case []any:
		items = list
	case []string:
		for _, s := range list {
			items = append(items, s)
		}
	default:
		return []any{}
	}

	out := make([]any, 0, len(items))
	for _, item := range items {
		if n, ok := normalize(item); ok && n != nil {
			out = append(out, n)
		}
	}
	return out
}

// Translator renders conditions as a SQL predicate. Alternate storage
// engines supply their own implementation.
type Translator interface {
	// Translate returns a predicate joined with AND (empty when conds is
	// empty) and its positional arguments.
	Translate(conds []Condition) (string, []any)
	// OrderExpr returns the ordering expression for field, or false if the
	// field is not orderable.
	OrderExpr(field string) (string, bool)
}

// JSONPath translates conditions into json_extract predicates over a TEXT
// column holding a JSON object.
type JSONPath struct {
	Column string
}

// Translate implements Translator
func (j JSONPath) Translate(conds []Condition) (string, []any) {
	var clauses []string
	var args []any

	for _, c := range conds {
		if !ValidField(c.Field) {
			continue
		}
		expr := j.extract(c.Field)

		switch c.Op {
		case OpEQ, OpNE:
			if c.Value == nil {
				if c.Op == OpEQ {
					clauses = append(clauses, expr+" IS NULL")
				} else {
					clauses = append(clauses, expr+" IS NOT NULL")
				}
				continue
			}
			if doc, ok := c.Value.(JSON); ok {
				clauses = append(clauses, fmt.Sprintf("%s %s json(?)", expr, c.Op))
				args = append(args, string(doc))
				continue
			}
			clauses = append(clauses, fmt.Sprintf("%s %s ?", expr, c.Op))
			args = append(args, c.Value)
		case OpGT, OpGTE, OpLT, OpLTE:
			if c.Value == nil {
				continue
			}
			clauses = append(clauses, fmt.Sprintf("%s %s ?", expr, c.Op))
			args = append(args, c.Value)
		case OpIN:
			values, _ := c.Value.([]any)
			if len(values) == 0 {
				clauses = append(clauses, "0")
				continue
			}
			placeholders := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")
			clauses = append(clauses, fmt.Sprintf("%s IN (%s)", expr, placeholders))
			args = append(args, values...)
		}
	}

	return strings.Join(clauses, " AND "), args
}

// OrderExpr implements Translator
func (j JSONPath) OrderExpr(field string) (string, bool) {
	if !ValidField(field) {
		return "", false
	}
	return j.extract(field), true
}

// extract is only called with validated field names, so the path literal
// cannot carry quotes.
func (j JSONPath) extract(field string) string {
	return fmt.Sprintf("json_extract(%s, '$.%s')", j.Column, field)
}
