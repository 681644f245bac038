// Package normalize extracts canonical fields from the loosely-specified
// JSON payloads returned by the payment relay, the WhatsApp session
// service and the n8n workflow webhooks. Every function is pure and
// total: malformed input yields a zero value, never a panic.
package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DecodeMap decodes raw JSON into a generic map, tolerating null and
// values that do not round-trip through any (kept as raw strings).
func DecodeMap(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err == nil {
		return out, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	out = make(map[string]any, len(fields))
	for key, val := range fields {
		var anyVal any
		if err := json.Unmarshal(val, &anyVal); err == nil {
			out[key] = anyVal
		} else {
			out[key] = string(val)
		}
	}
	return out, nil
}

// DecodeSlice decodes raw JSON into a slice of generic maps.
func DecodeSlice(raw json.RawMessage) ([]map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var out []map[string]any
	if err := json.Unmarshal(raw, &out); err == nil {
		return out, nil
	}
	var single map[string]any
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, err
	}
	return []map[string]any{single}, nil
}

// Unwrap reduces the upstream's envelope variants to a single object:
// a one-element array is replaced by its first element, then common
// container keys are descended one level.
func Unwrap(value any) map[string]any {
	switch v := value.(type) {
	case map[string]any:
		return v
	case []any:
		if len(v) == 0 {
			return nil
		}
		return Unwrap(v[0])
	default:
		return nil
	}
}

// UnwrapData returns the nested payload object when the upstream wraps
// its body under data/payload/result, otherwise the object itself.
func UnwrapData(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	for _, key := range []string{"data", "payload", "result"} {
		if nested := Unwrap(payload[key]); nested != nil {
			return nested
		}
	}
	return payload
}

// FirstString returns the first non-empty string among the candidate
// keys, trimming whitespace and stringifying numbers.
func FirstString(data map[string]any, keys ...string) string {
	for _, key := range keys {
		if val, ok := data[key]; ok {
			if str := ToString(val); str != "" {
				return str
			}
		}
	}
	return ""
}

// FirstFloat returns the first non-zero numeric value among the
// candidate keys, parsing numeric strings.
func FirstFloat(data map[string]any, keys ...string) float64 {
	for _, key := range keys {
		if val, ok := data[key]; ok {
			if f := toFloat(val); f != 0 {
				return f
			}
		}
	}
	return 0
}

// FirstBool reports whether any candidate key holds an explicit true.
func FirstBool(data map[string]any, keys ...string) bool {
	for _, key := range keys {
		if val, ok := data[key]; ok {
			if b, ok := val.(bool); ok && b {
				return true
			}
		}
	}
	return false
}

// Nested returns the first candidate key whose value is an object.
func Nested(data map[string]any, keys ...string) map[string]any {
	for _, key := range keys {
		if val, ok := data[key]; ok {
			if nested, ok := val.(map[string]any); ok {
				return nested
			}
		}
	}
	return nil
}

// AgentID coerces the heterogeneous agent identifier shapes (string,
// number, or an object carrying agentId/agent_id/id) to a trimmed string.
func AgentID(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	case map[string]any:
		for _, key := range []string{"agentId", "agent_id", "id"} {
			if id := AgentID(v[key]); id != "" {
				return id
			}
		}
		return ""
	default:
		return ""
	}
}

// ToString coerces scalar JSON values to a trimmed string. Zero numbers
// and unsupported types yield the empty string.
func ToString(val any) string {
	switch v := val.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == 0 {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		if v == 0 {
			return ""
		}
		return strconv.Itoa(v)
	case int64:
		if v == 0 {
			return ""
		}
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return ""
	}
}

func toFloat(val any) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err == nil {
			return parsed
		}
		return 0
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err == nil {
			return parsed
		}
		return 0
	default:
		return 0
	}
}
