package core

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueType names a broker variable type.
type ValueType string

const (
	TypeNull    ValueType = "Null"
	TypeString  ValueType = "String"
	TypeBoolean ValueType = "Boolean"
	TypeShort   ValueType = "Short"
	TypeInteger ValueType = "Integer"
	TypeLong    ValueType = "Long"
	TypeDouble  ValueType = "Double"
	TypeBytes   ValueType = "Bytes"
	TypeJSON    ValueType = "Json"
	TypeObject  ValueType = "Object"
)

// JSONDataFormat is the serialization format of Object values that are
// decoded into maps and slices.
const JSONDataFormat = "application/json"

// TypedValue is a variable value paired with its broker type.
type TypedValue struct {
	Type  ValueType
	Value any
	// Transient marks a value the broker must not persist beyond the
	// current task. Only meaningful for Json values.
	Transient bool
}

// NullValue returns an explicit null value.
func NullValue() TypedValue { return TypedValue{Type: TypeNull} }

// StringValue returns a String value.
func StringValue(s string) TypedValue { return TypedValue{Type: TypeString, Value: s} }

// LongValue returns a Long value.
func LongValue(n int64) TypedValue { return TypedValue{Type: TypeLong, Value: n} }

// BytesValue returns a Bytes value.
func BytesValue(b []byte) TypedValue { return TypedValue{Type: TypeBytes, Value: b} }

// JSONValue returns a Json value holding already encoded JSON text.
func JSONValue(text string, transient bool) TypedValue {
	return TypedValue{Type: TypeJSON, Value: text, Transient: transient}
}

// ValueOf infers a TypedValue for a plain Go value. Maps, slices and
// structs become Object values serialized as JSON.
func ValueOf(v any) TypedValue {
	switch x := v.(type) {
	case nil:
		return NullValue()
	case TypedValue:
		return x
	case string:
		return StringValue(x)
	case []byte:
		return BytesValue(x)
	case bool:
		return TypedValue{Type: TypeBoolean, Value: x}
	case int:
		return LongValue(int64(x))
	case int8:
		return TypedValue{Type: TypeShort, Value: int64(x)}
	case int16:
		return TypedValue{Type: TypeShort, Value: int64(x)}
	case int32:
		return TypedValue{Type: TypeInteger, Value: int64(x)}
	case int64:
		return LongValue(x)
	case uint8:
		return TypedValue{Type: TypeShort, Value: int64(x)}
	case uint16:
		return TypedValue{Type: TypeInteger, Value: int64(x)}
	case uint32:
		return LongValue(int64(x))
	case float32:
		return TypedValue{Type: TypeDouble, Value: float64(x)}
	case float64:
		return TypedValue{Type: TypeDouble, Value: x}
	default:
		return TypedValue{Type: TypeObject, Value: x}
	}
}

// WireValue is the JSON representation of a variable on the broker REST API.
type WireValue struct {
	Type      string          `json:"type"`
	Value     json.RawMessage `json:"value"`
	ValueInfo map[string]any  `json:"valueInfo,omitempty"`
}

// Wire encodes the value into its REST representation.
func (v TypedValue) Wire() (WireValue, error) {
	if v.Type == "" || v.Type == TypeNull || v.Value == nil {
		return WireValue{Type: string(TypeNull), Value: json.RawMessage("null")}, nil
	}

	w := WireValue{Type: string(v.Type)}
	var payload any = v.Value

	switch v.Type {
	case TypeBytes:
		b, ok := v.Value.([]byte)
		if !ok {
			return WireValue{}, fmt.Errorf("tasks: Bytes value holds %T", v.Value)
		}
		payload = base64.StdEncoding.EncodeToString(b)
	case TypeJSON:
		if v.Transient {
			w.ValueInfo = map[string]any{"transient": true}
		}
	case TypeObject:
		if _, isText := v.Value.(string); !isText {
			encoded, err := json.Marshal(v.Value)
			if err != nil {
				return WireValue{}, fmt.Errorf("tasks: encode Object value: %w", err)
			}
			payload = string(encoded)
		}
		w.ValueInfo = map[string]any{
			"objectTypeName":          "java.util.LinkedHashMap",
			"serializationDataFormat": JSONDataFormat,
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return WireValue{}, fmt.Errorf("tasks: encode %s value: %w", v.Type, err)
	}
	w.Value = raw
	return w, nil
}

// Decode converts the wire value into its in-memory form.
func (w WireValue) Decode() (any, error) {
	if len(w.Value) == 0 || bytes.Equal(bytes.TrimSpace(w.Value), []byte("null")) {
		return nil, nil
	}

	switch ValueType(w.Type) {
	case TypeNull:
		return nil, nil
	case TypeString, TypeJSON:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			// Json values may arrive inline rather than as text.
			if ValueType(w.Type) == TypeJSON {
				return string(w.Value), nil
			}
			return nil, fmt.Errorf("tasks: decode %s value: %w", w.Type, err)
		}
		return s, nil
	case TypeBoolean:
		var b bool
		if err := json.Unmarshal(w.Value, &b); err != nil {
			return nil, fmt.Errorf("tasks: decode Boolean value: %w", err)
		}
		return b, nil
	case TypeShort, TypeInteger, TypeLong:
		n, err := strconv.ParseInt(string(bytes.TrimSpace(w.Value)), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tasks: decode %s value: %w", w.Type, err)
		}
		return n, nil
	case TypeDouble:
		var f float64
		if err := json.Unmarshal(w.Value, &f); err != nil {
			return nil, fmt.Errorf("tasks: decode Double value: %w", err)
		}
		return f, nil
	case TypeBytes:
		var encoded string
		if err := json.Unmarshal(w.Value, &encoded); err != nil {
			return nil, fmt.Errorf("tasks: decode Bytes value: %w", err)
		}
		b, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("tasks: decode Bytes value: %w", err)
		}
		return b, nil
	case TypeObject:
		var text string
		if err := json.Unmarshal(w.Value, &text); err != nil {
			return nil, fmt.Errorf("tasks: decode Object value: %w", err)
		}
		if format, _ := w.ValueInfo["serializationDataFormat"].(string); format != JSONDataFormat {
			return text, nil
		}
		var decoded any
		if err := json.Unmarshal([]byte(text), &decoded); err != nil {
			return nil, fmt.Errorf("tasks: decode Object value: %w", err)
		}
		return decoded, nil
	default:
		var decoded any
		if err := json.Unmarshal(w.Value, &decoded); err != nil {
			return nil, fmt.Errorf("tasks: decode %s value: %w", w.Type, err)
		}
		return decoded, nil
	}
}

// DecodeVariables converts a wire variable map into a task variable bag.
func DecodeVariables(wire map[string]WireValue) (Variables, error) {
	vars := make(Variables, len(wire))
	for name, w := range wire {
		val, err := w.Decode()
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		vars[name] = val
	}
	return vars, nil
}

// EncodeVariables converts output variables into their wire form.
func EncodeVariables(vars OutputVariables) (map[string]WireValue, error) {
	wire := make(map[string]WireValue, len(vars))
	for name, v := range vars {
		w, err := v.Wire()
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		wire[name] = w
	}
	return wire, nil
}
