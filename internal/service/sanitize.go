package service

import (
	"encoding/json"

	"github.com/microcosm-cc/bluemonday"
)

// payloadPolicy strips dangerous HTML from user-supplied payload text
// while keeping basic formatting. UGCPolicy allows links, lists and
// emphasis, which is what ad descriptions legitimately use.
var payloadPolicy = bluemonday.UGCPolicy()

// sanitizePayload walks an opaque JSON payload and sanitizes every string
// leaf. The payload structure itself is vertical-specific and untouched.
// A payload that does not parse is stored as-is; it was validated at the
// transport boundary.
func sanitizePayload(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return raw
	}
	cleaned, err := json.Marshal(sanitizeValue(value))
	if err != nil {
		return raw
	}
	return cleaned
}

func sanitizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return payloadPolicy.Sanitize(v)
	case map[string]interface{}:
		for key, inner := range v {
			v[key] = sanitizeValue(inner)
		}
		return v
	case []interface{}:
		for i, inner := range v {
			v[i] = sanitizeValue(inner)
		}
		return v
	default:
		return v
	}
}
