package storage

import (
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// toQdrantPayload normalizes Go values the qdrant client cannot convert on its own.
func toQdrantPayload(payload map[string]any) (map[string]*qdrant.Value, error) {
	normalized := make(map[string]any, len(payload))
	for k, v := range payload {
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", ErrInvalidPayload, k, err)
		}
		normalized[k] = nv
	}
	return qdrant.TryValueMap(normalized)
}

func normalizeValue(v any) (any, error) {
	switch val := v.(type) {
	case nil, bool, string, int64, float64:
		return val, nil
	case int:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		return int64(val), nil
	case float32:
		return float64(val), nil
	case time.Time:
		return val.UTC().Format(time.RFC3339), nil
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			nv, err := normalizeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			nv, err := normalizeValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = nv
		}
		return out, nil
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, s := range val {
			out[k] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported type %T", v)
}

// fromQdrantPayload converts a stored payload back to plain Go values.
// Integers come back as int64 and lists as []any.
func fromQdrantPayload(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = fromQdrantValue(v)
	}
	return out
}

func fromQdrantValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_ListValue:
		items := kind.ListValue.GetValues()
		list := make([]any, len(items))
		for i, item := range items {
			list[i] = fromQdrantValue(item)
		}
		return list
	case *qdrant.Value_StructValue:
		return fromQdrantPayload(kind.StructValue.GetFields())
	}
	return nil
}
