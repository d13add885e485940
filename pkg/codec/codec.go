// Package codec provides the encode/decode service used for object payloads.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSON implements core.Codec with encoding/json.
type JSON struct {
	// DisallowUnknownFields rejects payloads carrying fields the target
	// type does not declare.
	DisallowUnknownFields bool
}

// NewJSON returns a lenient JSON codec.
func NewJSON() *JSON {
	return &JSON{}
}

// Encode marshals v to JSON.
func (c *JSON) Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: encode %T: %w", v, err)
	}
	return data, nil
}

// Decode unmarshals data into target, which must be a non-nil pointer.
func (c *JSON) Decode(data []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if c.DisallowUnknownFields {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("codec: decode into %T: %w", target, err)
	}
	return nil
}
