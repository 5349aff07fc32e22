package vectorindex

import (
	"math"
	"sort"
)

// cosineDistance returns 1 - cos(a, b). Zero vectors are maximally distant.
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// rank scores every entry matching filter against q and keeps the k nearest.
func rank(entries []Entry, q []float32, k int, filter Filter) []Match {
	out := make([]Match, 0, len(entries))
	for _, e := range entries {
		if !filter.Matches(e.Metadata) || len(e.Embedding) != len(q) {
			continue
		}
		out = append(out, Match{
			ID:       e.ID,
			Document: e.Document,
			Metadata: e.Metadata,
			Distance: cosineDistance(q, e.Embedding),
		})
	}
	return topK(out, k)
}

// topK orders matches by distance, then id, and truncates to k.
func topK(ms []Match, k int) []Match {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].Distance != ms[j].Distance {
			return ms[i].Distance < ms[j].Distance
		}
		return ms[i].ID < ms[j].ID
	})
	if k < len(ms) {
		ms = ms[:k]
	}
	return ms
}
