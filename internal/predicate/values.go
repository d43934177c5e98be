package predicate

import (
	"fmt"
	"strings"
)

// lookup resolves a possibly dotted identifier against nested maps.
func lookup(bindings map[string]any, path string) (any, bool) {
	if v, ok := bindings[path]; ok {
		return v, true
	}
	current := any(bindings)
	for _, part := range strings.Split(path, ".") {
		switch v := current.(type) {
		case map[string]any:
			val, ok := v[part]
			if !ok {
				return nil, false
			}
			current = val
		case map[string]string:
			val, ok := v[part]
			if !ok {
				return nil, false
			}
			current = val
		default:
			return nil, false
		}
	}
	return current, true
}

// valuesEqual compares two values for equality.
func valuesEqual(a, b any) bool {
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return av == bv
		}
	case bool:
		if bv, ok := b.(bool); ok {
			return av == bv
		}
	case nil:
		return b == nil
	}
	if af, ok := toFloat64(a); ok {
		if bf, ok := toFloat64(b); ok {
			return af == bf
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// compareNumeric compares two numeric values.
func compareNumeric(a, b any, cmp func(float64, float64) bool) (bool, error) {
	av, ok := toFloat64(a)
	if !ok {
		return false, fmt.Errorf("%w: cannot convert %v to number", ErrType, a)
	}
	bv, ok := toFloat64(b)
	if !ok {
		return false, fmt.Errorf("%w: cannot convert %v to number", ErrType, b)
	}
	return cmp(av, bv), nil
}

// toFloat64 converts a value to float64.
func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	default:
		return 0, false
	}
}

// asList normalizes list-like values. Strings are not lists.
func asList(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// valueIn checks if a value is in a list.
func valueIn(fieldValue, listValue any) (bool, error) {
	list, ok := asList(listValue)
	if !ok {
		return false, fmt.Errorf("%w: right operand of 'in' is %T, not a list", ErrType, listValue)
	}
	for _, item := range list {
		if valuesEqual(fieldValue, item) {
			return true, nil
		}
	}
	return false, nil
}

// valueContains tests list membership, or substring containment for strings.
func valueContains(container, search any) (bool, error) {
	if list, ok := asList(container); ok {
		return valueIn(search, list)
	}
	str, ok := container.(string)
	if !ok {
		return false, fmt.Errorf("%w: 'contains' needs a list or string, got %T", ErrType, container)
	}
	needle, ok := search.(string)
	if !ok {
		return false, fmt.Errorf("%w: cannot search a string for %T", ErrType, search)
	}
	return strings.Contains(str, needle), nil
}
