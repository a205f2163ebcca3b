package envelope

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ReplyMeta carries optional bookkeeping the server attaches to plaintext
// results. HistoryUsed is nil when the server said nothing either way.
type ReplyMeta struct {
	HistoryUsed *bool
	HistoryLen  int
}

// ExtractText reduces any known result payload shape to a display string.
//
// The decoder ladder, in priority order:
//  1. nil yields "".
//  2. A JSON-looking string is parsed and the result re-extracted; a string
//     that fails to parse is returned trimmed.
//  3. Any other string is returned trimmed.
//  4. An object prefers "message", then "result", then recurses into a
//     nested "encrypted" string; failing those, the first string-valued
//     field (keys visited in sorted order) wins, and as a last resort the
//     whole object is re-serialized.
//  5. Anything else is stringified.
//
// Each recursive call strictly narrows the input type, so the ladder
// terminates.
func ExtractText(payload any) string {
	switch v := payload.(type) {
	case nil:
		return ""

	case string:
		trimmed := strings.TrimSpace(v)
		if looksLikeJSON(trimmed) {
			var parsed any
			if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
				return ExtractText(parsed)
			}
		}
		return trimmed

	case json.RawMessage:
		return ExtractText(string(v))

	case map[string]any:
		if s, ok := v["message"].(string); ok {
			return s
		}
		if s, ok := v["result"].(string); ok {
			return s
		}
		if s, ok := v["encrypted"].(string); ok {
			return ExtractText(s)
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s, ok := v[k].(string); ok {
				return s
			}
		}
		if encoded, err := json.Marshal(v); err == nil {
			return string(encoded)
		}
		return fmt.Sprintf("%v", v)

	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				return s
			}
		}
		if encoded, err := json.Marshal(v); err == nil {
			return string(encoded)
		}
		return fmt.Sprintf("%v", v)

	default:
		return fmt.Sprintf("%v", v)
	}
}

// ExtractMeta reads the history flags a plaintext result object may carry.
func ExtractMeta(payload any) ReplyMeta {
	obj, ok := payload.(map[string]any)
	if !ok {
		return ReplyMeta{}
	}

	var meta ReplyMeta
	if raw, present := obj["history_used"]; present {
		used := truthy(raw)
		meta.HistoryUsed = &used
	}
	if raw, present := obj["history_len"]; present {
		if n, ok := raw.(float64); ok {
			meta.HistoryLen = int(n)
		}
	}
	return meta
}

// looksLikeJSON reports whether a trimmed string is plausibly a JSON
// document worth a parse attempt.
func looksLikeJSON(s string) bool {
	if len(s) == 0 {
		return false
	}
	if s[0] != '{' && s[0] != '[' {
		return false
	}
	return strings.ContainsAny(s, `":`)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != "" && t != "false" && t != "0"
	default:
		return v != nil
	}
}
