package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// MergeFields applies an Update field map to a stored JSON value and returns
// the merged document. A current value that is missing or not an object is
// replaced by a fresh object.
func MergeFields(current json.RawMessage, fields map[string]any) (json.RawMessage, error) {
	doc := map[string]any{}
	if len(current) > 0 {
		var existing any
		if err := json.Unmarshal(current, &existing); err != nil {
			return nil, fmt.Errorf("decode current value: %w", err)
		}
		if m, ok := existing.(map[string]any); ok {
			doc = m
		}
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		parts := strings.Split(strings.Trim(name, "/"), "/")
		for _, p := range parts {
			if err := ValidateKey(p); err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
		}

		value, err := normalize(fields[name])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}

		node := doc
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p].(map[string]any)
			if !ok {
				if value == nil {
					node = nil
					break
				}
				child = map[string]any{}
				node[p] = child
			}
			node = child
		}
		if node == nil {
			continue
		}

		last := parts[len(parts)-1]
		if value == nil {
			delete(node, last)
		} else {
			node[last] = value
		}
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode merged value: %w", err)
	}
	return out, nil
}

// normalize turns an arbitrary Go value into its generic JSON form so
// structs merge the same way maps do.
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EncodeValue marshals a value for storage. A nil result means the value
// encodes to JSON null, which stores treat as a delete.
func EncodeValue(value any) (json.RawMessage, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	if string(raw) == "null" {
		return nil, nil
	}
	return raw, nil
}
