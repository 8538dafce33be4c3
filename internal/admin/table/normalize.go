package table

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"ticketline/internal/domain"
)

// listKeys are the envelope fields some endpoints wrap their collections in.
var listKeys = []string{"items", "content", "data"}

// DecodeList reads a JSON collection. Anything that is not an array, or an object
// wrapping one under a known key, decodes to an empty list. Non-object elements are
// skipped.
func DecodeList(data []byte) []domain.Record {
	if !gjson.ValidBytes(data) {
		return []domain.Record{}
	}
	root := gjson.ParseBytes(data)
	if root.IsObject() {
		found := false
		for _, key := range listKeys {
			if inner := root.Get(key); inner.IsArray() {
				root = inner
				found = true
				break
			}
		}
		if !found {
			return []domain.Record{}
		}
	}
	if !root.IsArray() {
		return []domain.Record{}
	}
	items := root.Array()
	out := make([]domain.Record, 0, len(items))
	for _, item := range items {
		if !item.IsObject() {
			continue
		}
		if m, ok := item.Value().(map[string]any); ok {
			out = append(out, domain.Record(m))
		}
	}
	return out
}

// Normalize coerces whatever a fetch function produced into a record list.
func Normalize(v any) []domain.Record {
	switch x := v.(type) {
	case nil:
		return []domain.Record{}
	case []domain.Record:
		return x
	case []map[string]any:
		out := make([]domain.Record, 0, len(x))
		for _, m := range x {
			out = append(out, domain.Record(m))
		}
		return out
	case []any:
		out := make([]domain.Record, 0, len(x))
		for _, item := range x {
			switch m := item.(type) {
			case map[string]any:
				out = append(out, domain.Record(m))
			case domain.Record:
				out = append(out, m)
			}
		}
		return out
	case json.RawMessage:
		return DecodeList(x)
	case []byte:
		return DecodeList(x)
	case string:
		return DecodeList([]byte(x))
	default:
		return []domain.Record{}
	}
}
