package docstore

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/wasilibs/go-re2"
)

// ErrInvalidFilter is returned when a filter document cannot be compiled.
var ErrInvalidFilter = errors.New("invalid filter")

// Matcher reports whether a document satisfies a compiled filter.
type Matcher interface {
	Match(doc Document) bool
}

type matchFunc func(doc Document) bool

func (f matchFunc) Match(doc Document) bool { return f(doc) }

// MatchAll matches every document.
var MatchAll Matcher = matchFunc(func(Document) bool { return true })

// Compile turns a filter document into a Matcher.
//
// Supported syntax: {field: value} equality, {field: {$op: arg}} with
// $eq $ne $gt $gte $lt $lte $in $nin $exists $regex (+ $options "i"), and
// top-level $and / $or arrays. Field names may be dotted paths.
func Compile(filter map[string]any) (Matcher, error) {
	if len(filter) == 0 {
		return MatchAll, nil
	}

	var parts []Matcher
	for key, cond := range filter {
		switch key {
		case "$and", "$or":
			m, err := compileLogical(key, cond)
			if err != nil {
				return nil, err
			}
			parts = append(parts, m)
		default:
			if strings.HasPrefix(key, "$") {
				return nil, fmt.Errorf("%w: unknown top-level operator %s", ErrInvalidFilter, key)
			}
			if key == "" {
				return nil, fmt.Errorf("%w: empty field name", ErrInvalidFilter)
			}
			m, err := compileField(key, cond)
			if err != nil {
				return nil, err
			}
			parts = append(parts, m)
		}
	}
	return allOf(parts), nil
}

func allOf(parts []Matcher) Matcher {
	return matchFunc(func(doc Document) bool {
		for _, p := range parts {
			if !p.Match(doc) {
				return false
			}
		}
		return true
	})
}

func compileLogical(op string, cond any) (Matcher, error) {
	items, ok := cond.([]any)
	if !ok || len(items) == 0 {
		return nil, fmt.Errorf("%w: %s expects a non-empty array", ErrInvalidFilter, op)
	}

	subs := make([]Matcher, 0, len(items))
	for _, item := range items {
		sub, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s elements must be objects", ErrInvalidFilter, op)
		}
		m, err := Compile(sub)
		if err != nil {
			return nil, err
		}
		subs = append(subs, m)
	}

	if op == "$and" {
		return allOf(subs), nil
	}
	return matchFunc(func(doc Document) bool {
		for _, s := range subs {
			if s.Match(doc) {
				return true
			}
		}
		return false
	}), nil
}

func isOperatorObject(cond any) (map[string]any, bool) {
	m, ok := cond.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func compileField(path string, cond any) (Matcher, error) {
	ops, ok := isOperatorObject(cond)
	if !ok {
		return matchFunc(func(doc Document) bool {
			v, found := Lookup(doc, path)
			return found && equalsOrContains(v, cond)
		}), nil
	}

	var preds []func(v any, found bool) bool
	for op, arg := range ops {
		pred, err := compileOperator(op, arg, ops)
		if err != nil {
			return nil, err
		}
		if pred != nil {
			preds = append(preds, pred)
		}
	}

	return matchFunc(func(doc Document) bool {
		v, found := Lookup(doc, path)
		for _, p := range preds {
			if !p(v, found) {
				return false
			}
		}
		return true
	}), nil
}

func compileOperator(op string, arg any, siblings map[string]any) (func(v any, found bool) bool, error) {
	switch op {
	case "$eq":
		return func(v any, found bool) bool { return found && equalsOrContains(v, arg) }, nil
	case "$ne":
		return func(v any, found bool) bool { return !found || !equalsOrContains(v, arg) }, nil
	case "$gt", "$gte", "$lt", "$lte":
		if arg == nil {
			return nil, fmt.Errorf("%w: %s requires a value", ErrInvalidFilter, op)
		}
		return func(v any, found bool) bool {
			if !found {
				return false
			}
			c, ok := compareValues(v, arg)
			if !ok {
				return false
			}
			switch op {
			case "$gt":
				return c > 0
			case "$gte":
				return c >= 0
			case "$lt":
				return c < 0
			default:
				return c <= 0
			}
		}, nil
	case "$in", "$nin":
		list, ok := arg.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects an array", ErrInvalidFilter, op)
		}
		in := func(v any) bool {
			for _, item := range list {
				if equalsOrContains(v, item) {
					return true
				}
			}
			return false
		}
		if op == "$in" {
			return func(v any, found bool) bool { return found && in(v) }, nil
		}
		return func(v any, found bool) bool { return !found || !in(v) }, nil
	case "$exists":
		want, ok := arg.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: $exists expects a boolean", ErrInvalidFilter)
		}
		return func(_ any, found bool) bool { return found == want }, nil
	case "$regex":
		pattern, ok := arg.(string)
		if !ok {
			return nil, fmt.Errorf("%w: $regex expects a string", ErrInvalidFilter)
		}
		if opts, ok := siblings["$options"].(string); ok && strings.Contains(opts, "i") {
			pattern = "(?i)" + pattern
		}
		re, err := re2.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: bad $regex: %v", ErrInvalidFilter, err)
		}
		return func(v any, found bool) bool {
			s, ok := v.(string)
			return found && ok && re.MatchString(s)
		}, nil
	case "$options":
		if _, ok := arg.(string); !ok {
			return nil, fmt.Errorf("%w: $options expects a string", ErrInvalidFilter)
		}
		if _, ok := siblings["$regex"]; !ok {
			return nil, fmt.Errorf("%w: $options without $regex", ErrInvalidFilter)
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unknown operator %s", ErrInvalidFilter, op)
	}
}

// Lookup resolves a dotted path inside doc.
func Lookup(doc Document, path string) (any, bool) {
	var cur any = map[string]any(doc)
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

func equalsOrContains(v, want any) bool {
	if valuesEqual(v, want) {
		return true
	}
	if arr, ok := v.([]any); ok {
		for _, item := range arr {
			if valuesEqual(item, want) {
				return true
			}
		}
	}
	return false
}

func valuesEqual(a, b any) bool {
	if fa, ok := ToFloat(a); ok {
		if fb, ok := ToFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// ToFloat converts JSON-ish numeric values to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

// compareValues orders two numbers or two strings. ok is false for any other
// combination.
func compareValues(a, b any) (int, bool) {
	if fa, ok := ToFloat(a); ok {
		fb, ok := ToFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	sa, ok := a.(string)
	if !ok {
		return 0, false
	}
	sb, ok := b.(string)
	if !ok {
		return 0, false
	}
	return strings.Compare(sa, sb), true
}
