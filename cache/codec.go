package cache

const referenceMarker = "__ref"

// encodeFields replaces Reference values with {"__ref": key} so records can
// be serialized as plain JSON.
func encodeFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for field, value := range fields {
		out[field] = encodeValue(value)
	}
	return out
}

func encodeValue(value any) any {
	switch typed := value.(type) {
	case Reference:
		return map[string]any{referenceMarker: typed.Key}
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = encodeValue(item)
		}
		return out
	default:
		return typed
	}
}

func decodeFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for field, value := range fields {
		out[field] = decodeValue(value)
	}
	return out
}

func decodeValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		if key, ok := typed[referenceMarker].(string); ok && len(typed) == 1 {
			return Reference{Key: key}
		}
		return typed
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = decodeValue(item)
		}
		return out
	default:
		return typed
	}
}
