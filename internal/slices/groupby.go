// Package slices provides generic grouping and flattening helpers; the
// aggregator uses GroupAndOrderBy to split a step's samples by
// operation name. Built on golang.org/x/exp/slices and
// golang.org/x/exp/constraints.
package slices

import (
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/slices"
)

// GroupBy partitions data into groups sharing the same key, in no
// particular group order.
func GroupBy[K comparable, E any, S ~[]E](data S, f func(E) K) [][]E {
	return groupby(data, f, false)
}

// GroupByStable is GroupBy but groups appear in order of each group's
// first element's appearance in data.
func GroupByStable[K comparable, E any, S ~[]E](data S, f func(E) K) [][]E {
	return groupby(data, f, true)
}

// GroupAndOrderBy groups by key and then orders the groups by that
// key, ascending. Within a group, elements keep their order in data.
// The aggregator uses this to split samples by operation name; it
// sorts each group by time itself.
func GroupAndOrderBy[K constraints.Ordered, E any, S ~[]E](data S, f func(E) K) [][]E {
	out := GroupBy(data, f)

	slices.SortFunc(out, func(a, b []E) bool {
		return f(a[0]) < f(b[0])
	})

	return out
}

func groupby[K comparable, E any, S ~[]E](data S, f func(E) K, stable bool) (out [][]E) {
	groups := make(map[K]*[]E)
	var order []K

	for _, el := range data {
		key := f(el)
		group, ok := groups[key]
		if !ok {
			group = new([]E)
			groups[key] = group
			if stable {
				order = append(order, key)
			}
		}
		*group = append(*group, el)
	}

	if stable {
		out = make([][]E, len(order))
		for i, key := range order {
			out[i] = *groups[key]
		}
	} else {
		out = make([][]E, len(groups))
		i := 0
		for _, group := range groups {
			out[i] = *group
			i++
		}
	}

	return
}
