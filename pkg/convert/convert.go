// Package convert turns loosely typed task variables into handler arguments.
package convert

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"strconv"

	"github.com/jdziat/simple-external-tasks/pkg/codec"
	"github.com/jdziat/simple-external-tasks/pkg/core"
)

var mapType = core.TypeOf[map[string]any]()

// Converter applies ArgumentSpec parsing rules.
type Converter struct {
	codec  core.Codec
	logger *slog.Logger
}

// New creates a Converter. A nil codec uses JSON; a nil logger uses slog.Default().
func New(c core.Codec, logger *slog.Logger) *Converter {
	if c == nil {
		c = codec.NewJSON()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{codec: c, logger: logger}
}

// ConvertAll resolves every argument from the variable bag, preserving
// declaration order. Object decode failures yield nil for that argument;
// any other conversion failure aborts with a *core.ConversionError.
func (c *Converter) ConvertAll(specs []core.ArgumentSpec, vars core.Variables) ([]any, error) {
	args := make([]any, 0, len(specs))
	for _, spec := range specs {
		raw, present := vars.Get(spec.Name)
		c.logger.Debug("converting argument", "argument", spec.Name, "rule", spec.Rule.String(), "present", present)

		val, err := c.Convert(spec, raw)
		if err != nil {
			return nil, err
		}
		args = append(args, val)
	}
	return args, nil
}

// Convert applies spec's rule to one raw value. A nil raw value converts to nil.
func (c *Converter) Convert(spec core.ArgumentSpec, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}

	switch spec.Rule {
	case core.RuleBytesToString:
		switch v := raw.(type) {
		case []byte:
			return string(v), nil
		case string:
			return v, nil
		}
		return nil, mismatch(spec, raw, "bytes")

	case core.RuleBase64ToString, core.RuleBase64ToBytes:
		text, ok := asText(raw)
		if !ok {
			return nil, mismatch(spec, raw, "base64 text")
		}
		decoded, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return nil, &core.ConversionError{Argument: spec.Name, Rule: spec.Rule, Err: err}
		}
		if spec.Rule == core.RuleBase64ToBytes {
			return decoded, nil
		}
		return string(decoded), nil

	case core.RuleStringToPojo, core.RuleBytesToPojo:
		return c.decodeObject(spec, raw), nil

	case core.RuleNumberToString:
		return formatNumber(raw), nil

	case core.RuleDefault:
		if n, ok := widen(raw); ok {
			c.logger.Warn("no conversion declared for numeric argument, assuming int64",
				"argument", spec.Name, "type", fmt.Sprintf("%T", raw))
			return n, nil
		}
		c.logger.Debug("argument has no conversion, passing through", "argument", spec.Name)
		return raw, nil
	}

	return nil, &core.ConversionError{Argument: spec.Name, Rule: spec.Rule, Err: core.ErrUnknownParsingRule}
}

// decodeObject decodes a string or byte payload into spec.Target. Failures
// are logged and yield nil.
func (c *Converter) decodeObject(spec core.ArgumentSpec, raw any) any {
	target := spec.Target
	if target == nil {
		c.logger.Warn("no target type declared for argument, assuming map",
			"argument", spec.Name, "rule", spec.Rule.String())
		target = mapType
	}

	var payload []byte
	switch v := raw.(type) {
	case []byte:
		payload = v
	case string:
		payload = []byte(v)
	default:
		// Object variables arrive already decoded; normalise them through the codec.
		encoded, err := c.codec.Encode(v)
		if err != nil {
			c.logger.Warn("error while converting argument to object",
				"argument", spec.Name, "rule", spec.Rule.String(), "error", err)
			return nil
		}
		payload = encoded
	}

	ptr := reflect.New(target)
	if err := c.codec.Decode(payload, ptr.Interface()); err != nil {
		c.logger.Warn("error while converting argument to object",
			"argument", spec.Name, "rule", spec.Rule.String(), "target", target.String(), "error", err)
		return nil
	}
	return ptr.Elem().Interface()
}

func asText(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	}
	return "", false
}

func mismatch(spec core.ArgumentSpec, raw any, want string) error {
	return &core.ConversionError{
		Argument: spec.Name,
		Rule:     spec.Rule,
		Err:      fmt.Errorf("expected %s, got %T", want, raw),
	}
}

// widen converts any numeric value to int64, truncating fractions.
func widen(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case float32:
		return truncate(float64(v)), true
	case float64:
		return truncate(v), true
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		if f, err := v.Float64(); err == nil {
			return truncate(f), true
		}
	}
	return 0, false
}

func truncate(f float64) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int64(f)
}

func formatNumber(raw any) string {
	switch v := raw.(type) {
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case uint64:
		return strconv.FormatUint(v, 10)
	case string:
		return v
	}
	if n, ok := widen(raw); ok {
		return strconv.FormatInt(n, 10)
	}
	return fmt.Sprint(raw)
}
