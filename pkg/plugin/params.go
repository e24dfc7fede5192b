package plugin

import (
	"bytes"
	"encoding/json"
	"math"

	blerrors "github.com/blospray-dev/blospray/internal/errors"
)

// decodeObject parses a JSON object. Empty input is an empty object.
func decodeObject(raw []byte) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, blerrors.New("B304").Wrap(err)
	}
	if m == nil {
		return nil, blerrors.New("B304").WithDetail("got null")
	}
	return m, nil
}

// Validate checks decoded values against the schema. Values the schema does
// not mention are ignored.
func Validate(schema []Parameter, values map[string]any) error {
	for _, p := range schema {
		v, ok := values[p.Name]
		if !ok {
			if p.Optional() {
				continue
			}
			return blerrors.New("B301").WithDetailf("%q (%s)", p.Name, p.Description)
		}
		length := max(p.Length, 1)
		if length == 1 {
			if !matches(p.Type, v) {
				return blerrors.New("B302").WithDetailf("%q must be %s, got %s", p.Name, p.Type, jsonType(v))
			}
			continue
		}
		list, ok := v.([]any)
		if !ok {
			return blerrors.New("B303").WithDetailf("%q must be an array of %d %s values", p.Name, length, p.Type)
		}
		if len(list) != length {
			return blerrors.New("B303").WithDetailf("%q has %d values, want %d", p.Name, len(list), length)
		}
		for i, item := range list {
			if !matches(p.Type, item) {
				return blerrors.New("B302").WithDetailf("%q[%d] must be %s, got %s", p.Name, i, p.Type, jsonType(item))
			}
		}
	}
	return nil
}

func matches(t ParamType, v any) bool {
	switch t {
	case ParamInt:
		f, ok := v.(float64)
		return ok && f == math.Trunc(f)
	case ParamFloat:
		_, ok := v.(float64)
		return ok
	case ParamString:
		_, ok := v.(string)
		return ok
	case ParamUser:
		return true
	}
	return false
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return "unknown"
}
