package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedValue_Wire(t *testing.T) {
	tests := []struct {
		name      string
		value     TypedValue
		wantType  string
		wantValue string
		wantInfo  map[string]any
	}{
		{"null", NullValue(), "Null", "null", nil},
		{"zero value", TypedValue{}, "Null", "null", nil},
		{"string", StringValue("hello"), "String", `"hello"`, nil},
		{"long", LongValue(42), "Long", "42", nil},
		{"bytes", BytesValue([]byte("Hello")), "Bytes", `"SGVsbG8="`, nil},
		{"json transient", JSONValue(`{"id":1}`, true), "Json", `"{\"id\":1}"`, map[string]any{"transient": true}},
		{"json persistent", JSONValue(`[1,2]`, false), "Json", `"[1,2]"`, nil},
		{"boolean", ValueOf(true), "Boolean", "true", nil},
		{"double", ValueOf(1.5), "Double", "1.5", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := tt.value.Wire()
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, w.Type)
			assert.JSONEq(t, tt.wantValue, string(w.Value))
			assert.Equal(t, tt.wantInfo, w.ValueInfo)
		})
	}
}

func TestTypedValue_Wire_BytesTypeMismatch(t *testing.T) {
	_, err := TypedValue{Type: TypeBytes, Value: "not bytes"}.Wire()
	assert.Error(t, err)
}

func TestTypedValue_Wire_Object(t *testing.T) {
	w, err := ValueOf(map[string]any{"code": 7}).Wire()
	require.NoError(t, err)

	assert.Equal(t, "Object", w.Type)
	assert.Equal(t, JSONDataFormat, w.ValueInfo["serializationDataFormat"])

	decoded, err := w.Decode()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"code": float64(7)}, decoded)
}

func TestWireValue_Decode(t *testing.T) {
	tests := []struct {
		name string
		wire string
		want any
	}{
		{"null", `{"type":"Null","value":null}`, nil},
		{"missing value", `{"type":"String"}`, nil},
		{"string", `{"type":"String","value":"abc"}`, "abc"},
		{"boolean", `{"type":"Boolean","value":true}`, true},
		{"integer", `{"type":"Integer","value":12}`, int64(12)},
		{"long", `{"type":"Long","value":9007199254740993}`, int64(9007199254740993)},
		{"short", `{"type":"Short","value":-3}`, int64(-3)},
		{"double", `{"type":"Double","value":2.5}`, 2.5},
		{"bytes", `{"type":"Bytes","value":"SGVsbG8="}`, []byte("Hello")},
		{"json text", `{"type":"Json","value":"{\"id\":1}"}`, `{"id":1}`},
		{"json inline", `{"type":"Json","value":{"id":1}}`, `{"id":1}`},
		{"object json", `{"type":"Object","value":"{\"a\":{\"b\":2}}","valueInfo":{"serializationDataFormat":"application/json"}}`, map[string]any{"a": map[string]any{"b": float64(2)}}},
		{"object other format", `{"type":"Object","value":"rO0AB","valueInfo":{"serializationDataFormat":"application/x-java-serialized-object"}}`, "rO0AB"},
		{"unknown type", `{"type":"Date","value":"2024-01-01T00:00:00"}`, "2024-01-01T00:00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w WireValue
			require.NoError(t, json.Unmarshal([]byte(tt.wire), &w))
			got, err := w.Decode()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWireValue_Decode_Errors(t *testing.T) {
	for _, raw := range []string{
		`{"type":"Long","value":"abc"}`,
		`{"type":"Bytes","value":"!!!"}`,
		`{"type":"Boolean","value":"yes"}`,
	} {
		var w WireValue
		require.NoError(t, json.Unmarshal([]byte(raw), &w))
		_, err := w.Decode()
		assert.Error(t, err, raw)
	}
}

func TestEncodeDecodeVariables(t *testing.T) {
	out := OutputVariables{
		"name":  StringValue("widget"),
		"count": LongValue(3),
		"blob":  BytesValue([]byte{0x01, 0x02}),
		"none":  NullValue(),
	}

	wire, err := EncodeVariables(out)
	require.NoError(t, err)

	raw, err := json.Marshal(wire)
	require.NoError(t, err)

	var back map[string]WireValue
	require.NoError(t, json.Unmarshal(raw, &back))

	vars, err := DecodeVariables(back)
	require.NoError(t, err)
	assert.Equal(t, Variables{
		"name":  "widget",
		"count": int64(3),
		"blob":  []byte{0x01, 0x02},
		"none":  nil,
	}, vars)
}

func TestDecodeVariables_NamesFailingVariable(t *testing.T) {
	_, err := DecodeVariables(map[string]WireValue{
		"bad": {Type: "Long", Value: json.RawMessage(`"x"`)},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"bad"`)
}
