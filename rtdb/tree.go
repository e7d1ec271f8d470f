package rtdb

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// A tree is the canonical form of a stored value: map[string]interface{} for
// objects, float64, string or bool for leaves. Arrays are stored as objects
// with integer keys, and nil or empty objects are never stored. Trees are
// never modified in place once built, so drivers may share them freely.

// Normalize converts v to its canonical tree form by way of its JSON
// encoding.
func Normalize(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encode value")
	}
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "decode value")
	}
	return compact(raw)
}

func compact(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, child := range t {
			if err := ValidateKey(k); err != nil {
				return nil, err
			}
			c, err := compact(child)
			if err != nil {
				return nil, err
			}
			if c != nil {
				out[k] = c
			}
		}
		if len(out) == 0 {
			return nil, nil
		}
		return out, nil
	case []interface{}:
		out := make(map[string]interface{}, len(t))
		for i, child := range t {
			c, err := compact(child)
			if err != nil {
				return nil, err
			}
			if c != nil {
				out[strconv.Itoa(i)] = c
			}
		}
		if len(out) == 0 {
			return nil, nil
		}
		return out, nil
	default:
		return v, nil
	}
}

// Lookup returns the subtree found at segs, or nil.
func Lookup(tree interface{}, segs []string) interface{} {
	for _, seg := range segs {
		m, ok := tree.(map[string]interface{})
		if !ok {
			return nil
		}
		tree = m[seg]
	}
	return tree
}

// SetAt returns a copy of tree with value placed at segs. Objects along the
// path are copied; everything else is shared. A nil value removes the
// location, and ancestors left empty are removed with it.
func SetAt(tree interface{}, segs []string, value interface{}) interface{} {
	if len(segs) == 0 {
		return value
	}
	m, _ := tree.(map[string]interface{})
	out := make(map[string]interface{}, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	if child := SetAt(out[segs[0]], segs[1:], value); child != nil {
		out[segs[0]] = child
	} else {
		delete(out, segs[0])
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Export converts a tree to the value handed to callers: objects whose keys
// are dense non-negative integers become arrays.
func Export(tree interface{}) interface{} {
	m, ok := tree.(map[string]interface{})
	if !ok {
		return tree
	}
	if arr, ok := asArray(m); ok {
		return arr
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = Export(v)
	}
	return out
}

// asArray follows the usual realtime database rule: all keys are integers,
// and more than half of the indexes up to the largest key are present.
func asArray(m map[string]interface{}) ([]interface{}, bool) {
	max := -1
	for k := range m {
		i, ok := arrayIndex(k)
		if !ok {
			return nil, false
		}
		if i > max {
			max = i
		}
	}
	if max < 0 || len(m)*2 <= max {
		return nil, false
	}
	arr := make([]interface{}, max+1)
	for k, v := range m {
		i, _ := arrayIndex(k)
		arr[i] = Export(v)
	}
	return arr, true
}

func arrayIndex(k string) (int, bool) {
	if k == "" || (len(k) > 1 && k[0] == '0') {
		return 0, false
	}
	i, err := strconv.Atoi(k)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// Keys returns the child keys of tree in key order.
func Keys(tree interface{}) []string {
	m, ok := tree.(map[string]interface{})
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return CompareKeys(keys[i], keys[j]) < 0
	})
	return keys
}
