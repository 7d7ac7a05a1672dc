package observation

import (
	"fmt"
	"strconv"
	"strings"
)

// Normalize converts arbitrary caller input into a canonical Set for the
// given module. Unrecognised keys are silently dropped, and values that
// cannot be coerced to the vocabulary kind for their key are dropped as well.
// It returns an error only when the module code itself is unknown, since no
// vocabulary means nothing meaningful can be normalised.
func Normalize(raw map[string]interface{}, moduleCode string) (*Set, error) {
	module := CanonicalModule(moduleCode)
	if module == "" {
		return nil, fmt.Errorf("unknown module code %q", moduleCode)
	}

	vocab := vocabularies[module]
	values := make(map[string]Value, len(raw))

	for rawKey, rawVal := range raw {
		key := canonicalKey(module, rawKey)
		if key == "" {
			continue
		}
		v, ok := coerce(rawVal, vocab[key])
		if !ok {
			continue
		}
		values[key] = v
	}

	return &Set{ModuleCode: module, values: values}, nil
}

// coerce converts a loosely typed input value into the kind the vocabulary
// expects for its key.
func coerce(raw interface{}, kind Kind) (Value, bool) {
	switch kind {
	case KindNumber:
		return coerceNumber(raw)
	case KindBool:
		return coerceBool(raw)
	case KindString:
		return coerceString(raw)
	case KindStringSet:
		return coerceStringSet(raw)
	}
	return Value{}, false
}

func coerceNumber(raw interface{}) (Value, bool) {
	switch v := raw.(type) {
	case float64:
		return NumberValue(v), true
	case float32:
		return NumberValue(float64(v)), true
	case int:
		return NumberValue(float64(v)), true
	case int64:
		return NumberValue(float64(v)), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return Value{}, false
		}
		return NumberValue(n), true
	}
	return Value{}, false
}

func coerceBool(raw interface{}) (Value, bool) {
	switch v := raw.(type) {
	case bool:
		return BoolValue(v), true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "yes", "true", "y", "1", "positive":
			return BoolValue(true), true
		case "no", "false", "n", "0", "negative":
			return BoolValue(false), true
		}
		return Value{}, false
	case float64:
		return BoolValue(v != 0), true
	case int:
		return BoolValue(v != 0), true
	}
	return Value{}, false
}

func coerceString(raw interface{}) (Value, bool) {
	switch v := raw.(type) {
	case string:
		return StringValue(strings.TrimSpace(v)), true
	case float64:
		return StringValue(strconv.FormatFloat(v, 'f', -1, 64)), true
	case bool:
		return StringValue(strconv.FormatBool(v)), true
	}
	return Value{}, false
}

func coerceStringSet(raw interface{}) (Value, bool) {
	switch v := raw.(type) {
	case []string:
		return SetValue(append([]string(nil), v...)), true
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return Value{}, false
			}
			out = append(out, s)
		}
		return SetValue(out), true
	case string:
		// Single value or comma-separated list from a form field.
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return SetValue(nil), true
		}
		parts := strings.Split(trimmed, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return SetValue(out), true
	}
	return Value{}, false
}
