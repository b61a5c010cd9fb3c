package executor

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"

	"github.com/etools-app/sandbox/internal/protocol"
)

// maxSanitizeDepth bounds the walk so cyclic plugin objects cannot hang the
// unit.
const maxSanitizeDepth = 32

// sanitizeValue deep-copies v into plain serializable data. Callable values
// and anything else that cannot cross the boundary are dropped; the second
// return reports whether the value survived.
func sanitizeValue(v any, depth int) (any, bool) {
	if v == nil {
		return nil, true
	}
	if depth > maxSanitizeDepth {
		return nil, false
	}

	switch val := v.(type) {
	case string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return val, true
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if clean, ok := sanitizeValue(item, depth+1); ok {
				out[k] = clean
			}
		}
		return out, true
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			if clean, ok := sanitizeValue(item, depth+1); ok {
				out = append(out, clean)
			}
		}
		return out, true
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Ptr:
		return nil, false
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return v, true
	default:
		return nil, false
	}
}

// sanitizeArgs cleans the host-supplied argument list for the inline-code
// variant.
func sanitizeArgs(args []any) []any {
	clean, _ := sanitizeValue(args, 0)
	out, ok := clean.([]any)
	if !ok {
		return []any{}
	}
	return out
}

// toSearchResults converts an exported entrypoint value into wire results.
// A single object is accepted as a one-element array; anything else must be
// an array of result objects.
func toSearchResults(exported any) ([]protocol.PluginSearchResult, error) {
	if exported == nil {
		return []protocol.PluginSearchResult{}, nil
	}

	var items []any
	switch v := exported.(type) {
	case []any:
		items = v
	case map[string]any:
		items = []any{v}
	default:
		return nil, fmt.Errorf("search entrypoint must return a result array, got %T", exported)
	}

	results := make([]protocol.PluginSearchResult, 0, len(items))
	for i, item := range items {
		raw, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("result %d is not an object", i)
		}
		clean, _ := sanitizeValue(raw, 0)
		obj := clean.(map[string]any)

		result, err := toSearchResult(obj)
		if err != nil {
			return nil, fmt.Errorf("result %d: %w", i, err)
		}
		results = append(results, result)
	}
	return results, nil
}

func toSearchResult(obj map[string]any) (protocol.PluginSearchResult, error) {
	title, _ := obj["title"].(string)
	if title == "" {
		return protocol.PluginSearchResult{}, fmt.Errorf("missing title")
	}

	id, _ := obj["id"].(string)
	if id == "" {
		id = uuid.New().String()
	}

	result := protocol.PluginSearchResult{
		ID:    id,
		Title: title,
	}
	result.Description, _ = obj["description"].(string)
	result.Icon, _ = obj["icon"].(string)
	result.Score = toFloat(obj["score"])

	action, err := toActionData(obj["actionData"])
	if err != nil {
		return protocol.PluginSearchResult{}, err
	}
	result.ActionData = action
	return result, nil
}

func toActionData(v any) (protocol.ActionData, error) {
	if v == nil {
		return protocol.ActionData{Type: protocol.ActionNone}, nil
	}
	raw, ok := v.(map[string]any)
	if !ok {
		return protocol.ActionData{}, fmt.Errorf("actionData must be an object")
	}

	tag, _ := raw["type"].(string)
	if tag == "" {
		tag = protocol.ActionNone
	}
	if !protocol.ValidActionType(tag) {
		return protocol.ActionData{}, fmt.Errorf("unrecognized action type %q", tag)
	}

	payload := make(map[string]any, len(raw))
	for k, item := range raw {
		if k == "type" {
			continue
		}
		payload[k] = item
	}
	if len(payload) == 0 {
		payload = nil
	}
	return protocol.ActionData{Type: tag, Payload: payload}, nil
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}
