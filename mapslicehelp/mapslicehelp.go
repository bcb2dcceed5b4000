// Package mapslicehelp has small generic helpers for slices and insertion ordered maps.
package mapslicehelp

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// LastElement points into the slice at its final element. Nil when there is none.
func LastElement[T any](s []T) *T {
	if n := len(s); n > 0 {
		return &s[n-1]
	}
	return nil
}

// OrderedMapKeys collects the keys of m, oldest insertion first
func OrderedMapKeys[K comparable, V any](m *orderedmap.OrderedMap[K, V]) []K {
	return collect(m, func(p *orderedmap.Pair[K, V]) K { return p.Key })
}

// OrderedMapValues collects the values of m, oldest insertion first
func OrderedMapValues[K comparable, V any](m *orderedmap.OrderedMap[K, V]) []V {
	return collect(m, func(p *orderedmap.Pair[K, V]) V { return p.Value })
}

func collect[K comparable, V, T any](m *orderedmap.OrderedMap[K, V], pick func(*orderedmap.Pair[K, V]) T) []T {
	out := make([]T, 0, m.Len())
	for p := m.Oldest(); p != nil; p = p.Next() {
		out = append(out, pick(p))
	}
	return out
}
