package executor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/comfyendpoints/runtime/internal/domain"
)

// typeError reports as OUTPUT_TYPE_ERROR:<detail>.
type typeError struct {
	detail string
}

func (e *typeError) Error() string { return "OUTPUT_TYPE_ERROR:" + e.detail }

var trueStrings = map[string]bool{"1": true, "true": true, "yes": true, "on": true}
var falseStrings = map[string]bool{"0": true, "false": true, "no": true, "off": true}

// coerceScalar converts a raw engine output value into the declared
// contract field type.
func coerceScalar(t domain.FieldType, raw any) (any, error) {
	switch t {
	case domain.TypeString:
		if s, ok := raw.(string); ok {
			return s, nil
		}
		return fmt.Sprint(raw), nil

	case domain.TypeInteger:
		if _, ok := raw.(bool); ok {
			return nil, &typeError{"cannot_coerce_to_integer"}
		}
		switch v := raw.(type) {
		case float64:
			return int64(v), nil
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return nil, &typeError{"cannot_coerce_to_integer"}
			}
			return n, nil
		default:
			return nil, &typeError{"cannot_coerce_to_integer"}
		}

	case domain.TypeNumber:
		if _, ok := raw.(bool); ok {
			return nil, &typeError{"cannot_coerce_to_number"}
		}
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, &typeError{"cannot_coerce_to_number"}
			}
			return f, nil
		default:
			return nil, &typeError{"cannot_coerce_to_number"}
		}

	case domain.TypeBoolean:
		if b, ok := raw.(bool); ok {
			return b, nil
		}
		if s, ok := raw.(string); ok {
			lower := strings.ToLower(strings.TrimSpace(s))
			if trueStrings[lower] {
				return true, nil
			}
			if falseStrings[lower] {
				return false, nil
			}
		}
		return nil, &typeError{"cannot_coerce_to_boolean"}

	case domain.TypeObject:
		if m, ok := raw.(map[string]any); ok {
			return m, nil
		}
		return nil, &typeError{"cannot_coerce_to_object"}

	case domain.TypeArray:
		if a, ok := raw.([]any); ok {
			return a, nil
		}
		return nil, &typeError{"cannot_coerce_to_array"}
	}
	return nil, &typeError{"unknown_scalar_type:" + string(t)}
}
