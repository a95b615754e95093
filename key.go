package recdex

import (
	"fmt"
	"strconv"
)

// KeyOf normalizes a store key. Accepted forms are integer IDs, their
// decimal string form, and records themselves.
func KeyOf(key any) (int64, error) {
	switch k := key.(type) {
	case int64:
		return k, nil
	case int:
		return int64(k), nil
	case int32:
		return int64(k), nil
	case uint:
		return int64(k), nil
	case uint32:
		return int64(k), nil
	case uint64:
		return int64(k), nil
	case float64:
		// JSON-decoded IDs arrive as floats.
		if k == float64(int64(k)) {
			return int64(k), nil
		}
		return 0, fmt.Errorf("key %v is not an integer", k)
	case string:
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("key %q is not a record id", k)
		}
		return id, nil
	case *Record:
		if k == nil {
			return 0, fmt.Errorf("nil record key")
		}
		return k.ID, nil
	case Record:
		return k.ID, nil
	case nil:
		return 0, fmt.Errorf("nil key")
	}
	return 0, fmt.Errorf("unsupported key type %T", key)
}

// Keys normalizes a key list, deduplicating while preserving first-seen
// order. An empty input yields an empty output.
func Keys(keys []any) ([]int64, error) {
	out := make([]int64, 0, len(keys))
	seen := make(map[int64]struct{}, len(keys))
	for _, k := range keys {
		id, err := KeyOf(k)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
