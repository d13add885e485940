package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quote struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

func TestJSON_RoundTrip(t *testing.T) {
	c := NewJSON()

	data, err := c.Encode(quote{ID: 1, Status: "open"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"status":"open"}`, string(data))

	var back quote
	require.NoError(t, c.Decode(data, &back))
	assert.Equal(t, quote{ID: 1, Status: "open"}, back)
}

func TestJSON_DecodeIntoMap(t *testing.T) {
	var m map[string]any
	require.NoError(t, NewJSON().Decode([]byte(`{"a":[1,"x"]}`), &m))
	assert.Equal(t, map[string]any{"a": []any{float64(1), "x"}}, m)
}

func TestJSON_DisallowUnknownFields(t *testing.T) {
	c := &JSON{DisallowUnknownFields: true}

	var q quote
	err := c.Decode([]byte(`{"id":1,"extra":true}`), &q)
	assert.Error(t, err)

	err = NewJSON().Decode([]byte(`{"id":1,"extra":true}`), &q)
	assert.NoError(t, err)
}

func TestJSON_Errors(t *testing.T) {
	c := NewJSON()

	_, err := c.Encode(make(chan int))
	assert.Error(t, err)

	var q quote
	assert.Error(t, c.Decode([]byte(`{not json`), &q))
}
