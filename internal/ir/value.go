package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface over the option value types.
// Only StringValue, IntValue, BoolValue, ListValue and MapValue implement it.
// There is no float type: floats break canonical hashing.
type Value interface {
	optionValue()
}

// StringValue is a string option value.
type StringValue string

// IntValue is an integer option value. Always int64.
type IntValue int64

// BoolValue is a boolean option value.
type BoolValue bool

// ListValue is an ordered list of values.
type ListValue []Value

// MapValue maps string keys to values. Use SortedKeys for deterministic iteration.
type MapValue map[string]Value

func (StringValue) optionValue() {}
func (IntValue) optionValue()    {}
func (BoolValue) optionValue()   {}
func (ListValue) optionValue()   {}
func (MapValue) optionValue()    {}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
// CRITICAL: byte-wise string order differs for characters outside the BMP.
func (m MapValue) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}

// MarshalJSON emits canonical JSON so MapValue can be embedded in JSON output.
func (m MapValue) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(m)
}

// UnmarshalJSON decodes a JSON object, rejecting floats and nulls.
func (m *MapValue) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalValue(data)
	if err != nil {
		return err
	}
	obj, ok := v.(MapValue)
	if !ok {
		return fmt.Errorf("expected JSON object, got %T", v)
	}
	*m = obj
	return nil
}

// UnmarshalValue decodes JSON into a Value with strict validation:
// null and non-integer numbers are rejected.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return ToValue(raw)
}

// ToValue converts decoded JSON, YAML or Go literals into a Value.
func ToValue(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a valid option value")
	case Value:
		return val, nil
	case string:
		return StringValue(val), nil
	case bool:
		return BoolValue(val), nil
	case int:
		return IntValue(val), nil
	case int64:
		return IntValue(val), nil
	case uint64:
		if val > 1<<63-1 {
			return nil, fmt.Errorf("integer out of int64 range: %d", val)
		}
		return IntValue(val), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			return nil, fmt.Errorf("floats are not valid option values: %s", s)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", s)
		}
		return IntValue(n), nil
	case float64, float32:
		return nil, fmt.Errorf("floats are not valid option values: %v", val)
	case []any:
		list := make(ListValue, len(val))
		for i, elem := range val {
			converted, err := ToValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			list[i] = converted
		}
		return list, nil
	case map[string]any:
		obj := make(MapValue, len(val))
		for k, elem := range val {
			converted, err := ToValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = converted
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported option value type: %T", v)
	}
}
