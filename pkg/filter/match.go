package filter

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Match evaluates conditions against an in-memory JSON object. Every
// condition must hold. A missing field fails every operator except $ne.
func Match(conds []Condition, obj map[string]any) bool {
	for _, c := range conds {
		if !matchOne(c, obj) {
			return false
		}
	}
	return true
}

func matchOne(c Condition, obj map[string]any) bool {
	raw, exists := Lookup(obj, c.Field)
	if !exists {
		return c.Op == OpNE && c.Value != nil
	}
	if want, ok := c.Value.(JSON); ok {
		got, err := json.Marshal(raw)
		same := err == nil && JSON(got) == want
		return (c.Op == OpEQ && same) || (c.Op == OpNE && !same)
	}
	val, ok := normalize(raw)
	if !ok {
		return c.Op == OpNE
	}

	switch c.Op {
	case OpEQ:
		return equal(val, c.Value)
	case OpNE:
		return !equal(val, c.Value)
	case OpIN:
		values, _ := c.Value.([]any)
		for _, v := range values {
			if equal(val, v) {
				return true
			}
		}
		return false
	case OpGT, OpGTE, OpLT, OpLTE:
		if val == nil || c.Value == nil {
			return false
		}
		cmp, ok := compare(val, c.Value)
		if !ok {
			return false
		}
		switch c.Op {
		case OpGT:
			return cmp > 0
		case OpGTE:
			return cmp >= 0
		case OpLT:
			return cmp < 0
		default:
			return cmp <= 0
		}
	}
	return false
}

// Lookup resolves a dotted path inside obj
func Lookup(obj map[string]any, path string) (any, bool) {
	var cur any = obj
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	cmp, ok := compare(a, b)
	return ok && cmp == 0
}

// compare orders two normalized values. Numbers compare numerically, strings
// lexically; mixed kinds are not comparable.
func compare(a, b any) (int, bool) {
	af, aNum := toFloat64(a)
	bf, bNum := toFloat64(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}

	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		return strings.Compare(as, bs), true
	}
	if aNum || bNum {
		return 0, false
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b)), true
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	}
	return 0, false
}
