package rtdb

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Order selects what children of a query are sorted by.
type Order int

// Query orderings.
const (
	ByKey Order = iota
	ByValue
	ByChild
)

func (o Order) String() string {
	switch o {
	case ByValue:
		return "$value"
	case ByChild:
		return "child"
	default:
		return "$key"
	}
}

// Params describes the ordering, range and limits of a query. The zero value
// selects everything in key order.
type Params struct {
	OrderBy Order
	// Child is the path, relative to each child, used with ByChild.
	Child string

	Start, End       interface{}
	HasStart, HasEnd bool

	LimitFirst int
	LimitLast  int
}

// IsZero reports whether p selects every child in key order.
func (p Params) IsZero() bool {
	return p == Params{}
}

// CompareKeys orders keys the way the database does: keys that look like
// 32-bit integers come first in numeric order, then all other keys in
// lexicographic order.
func CompareKeys(a, b string) int {
	ai, aInt := intKey(a)
	bi, bInt := intKey(b)
	switch {
	case aInt && bInt:
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	case aInt:
		return -1
	case bInt:
		return 1
	}
	return strings.Compare(a, b)
}

func intKey(k string) (int64, bool) {
	if k == "" || k == "-" {
		return 0, false
	}
	digits := strings.TrimPrefix(k, "-")
	if len(digits) > 1 && digits[0] == '0' {
		return 0, false
	}
	if k == "-0" {
		return 0, false
	}
	i, err := strconv.ParseInt(k, 10, 32)
	if err != nil {
		return 0, false
	}
	return i, true
}

// typeRank gives null < false < true < numbers < strings < objects.
func typeRank(v interface{}) int {
	switch t := v.(type) {
	case nil:
		return 0
	case bool:
		if t {
			return 2
		}
		return 1
	case float64, float32, int, int32, int64, uint, uint32, uint64:
		return 3
	case string:
		return 4
	default:
		return 5
	}
}

func toFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	}
	return math.NaN()
}

// CompareValues orders leaf values by type, then within the type.
func CompareValues(a, b interface{}) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case 3:
		fa, fb := toFloat(a), toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
	case 4:
		return strings.Compare(a.(string), b.(string))
	}
	return 0
}

type entry struct {
	key   string
	order interface{}
}

// apply filters and orders the children of tree according to p. It returns
// the selected subtree and the order of its keys. Leaves are returned as-is.
func apply(tree interface{}, p Params) (interface{}, []string) {
	m, ok := tree.(map[string]interface{})
	if !ok {
		return tree, nil
	}
	var childSegs []string
	if p.OrderBy == ByChild {
		childSegs, _ = SplitPath(p.Child)
	}
	entries := make([]entry, 0, len(m))
	for k, v := range m {
		e := entry{key: k}
		switch p.OrderBy {
		case ByValue:
			e.order = v
		case ByChild:
			e.order = Lookup(v, childSegs)
		}
		entries = append(entries, e)
	}
	less := func(i, j int) bool {
		if p.OrderBy != ByKey {
			if c := CompareValues(entries[i].order, entries[j].order); c != 0 {
				return c < 0
			}
		}
		return CompareKeys(entries[i].key, entries[j].key) < 0
	}
	sort.Slice(entries, less)

	filtered := entries[:0]
	for _, e := range entries {
		if p.HasStart && p.compare(e, p.Start) < 0 {
			continue
		}
		if p.HasEnd && p.compare(e, p.End) > 0 {
			continue
		}
		filtered = append(filtered, e)
	}
	if p.LimitFirst > 0 && len(filtered) > p.LimitFirst {
		filtered = filtered[:p.LimitFirst]
	}
	if p.LimitLast > 0 && len(filtered) > p.LimitLast {
		filtered = filtered[len(filtered)-p.LimitLast:]
	}

	if len(filtered) == 0 {
		return nil, nil
	}
	out := make(map[string]interface{}, len(filtered))
	keys := make([]string, len(filtered))
	for i, e := range filtered {
		out[e.key] = m[e.key]
		keys[i] = e.key
	}
	return out, keys
}

// KeyBound returns a range bound as the key it stands for when children are
// ordered by key. Numbers become their shortest decimal form.
func KeyBound(bound interface{}) string {
	if s, ok := bound.(string); ok {
		return s
	}
	return strconv.FormatFloat(toFloat(bound), 'f', -1, 64)
}

// compare compares the ordering value of e against a range bound.
func (p Params) compare(e entry, bound interface{}) int {
	if p.OrderBy == ByKey {
		return CompareKeys(e.key, KeyBound(bound))
	}
	return CompareValues(e.order, bound)
}
