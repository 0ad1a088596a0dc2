package features

import "math"

// The helpers below implement group-and-broadcast: one pass builds key -> aggregate,
// a second pass writes the aggregate back to every row of the group. Groups are
// visited in row order so floating-point sums are reproducible.

func groupSum[K comparable](keys []K, values []float64) []float64 {
	sums := make(map[K]float64)
	for i, k := range keys {
		sums[k] += values[i]
	}
	out := make([]float64, len(keys))
	for i, k := range keys {
		out[i] = sums[k]
	}
	return out
}

func groupCount[K comparable](keys []K) []float64 {
	counts := make(map[K]int)
	for _, k := range keys {
		counts[k]++
	}
	out := make([]float64, len(keys))
	for i, k := range keys {
		out[i] = float64(counts[k])
	}
	return out
}

func groupMean[K comparable](keys []K, values []float64) []float64 {
	type acc struct {
		sum float64
		n   int
	}
	accs := make(map[K]*acc)
	for i, k := range keys {
		a, ok := accs[k]
		if !ok {
			a = &acc{}
			accs[k] = a
		}
		a.sum += values[i]
		a.n++
	}
	out := make([]float64, len(keys))
	for i, k := range keys {
		a := accs[k]
		out[i] = a.sum / float64(a.n)
	}
	return out
}

// groupStd returns the sample standard deviation (n-1 denominator). Groups of one
// row yield NaN, which callers replace.
func groupStd[K comparable](keys []K, values []float64) []float64 {
	means := groupMean(keys, values)
	type acc struct {
		ss float64
		n  int
	}
	accs := make(map[K]*acc)
	for i, k := range keys {
		a, ok := accs[k]
		if !ok {
			a = &acc{}
			accs[k] = a
		}
		d := values[i] - means[i]
		a.ss += d * d
		a.n++
	}
	out := make([]float64, len(keys))
	for i, k := range keys {
		a := accs[k]
		if a.n < 2 {
			out[i] = math.NaN()
			continue
		}
		out[i] = math.Sqrt(a.ss / float64(a.n-1))
	}
	return out
}

// groupNunique counts distinct non-empty values per group.
func groupNunique[K comparable](keys []K, values []string) []float64 {
	seen := make(map[K]map[string]struct{})
	for i, k := range keys {
		set, ok := seen[k]
		if !ok {
			set = make(map[string]struct{})
			seen[k] = set
		}
		if values[i] != "" {
			set[values[i]] = struct{}{}
		}
	}
	out := make([]float64, len(keys))
	for i, k := range keys {
		out[i] = float64(len(seen[k]))
	}
	return out
}

// groupEntropy computes the smoothed base-2 Shannon entropy of the non-empty value
// distribution per group.
func groupEntropy[K comparable](keys []K, values []string) []float64 {
	type dist struct {
		counts map[string]int
		order  []string
		total  int
	}
	dists := make(map[K]*dist)
	for i, k := range keys {
		d, ok := dists[k]
		if !ok {
			d = &dist{counts: make(map[string]int)}
			dists[k] = d
		}
		v := values[i]
		if v == "" {
			continue
		}
		if _, seen := d.counts[v]; !seen {
			d.order = append(d.order, v)
		}
		d.counts[v]++
		d.total++
	}

	entropies := make(map[K]float64, len(dists))
	for k, d := range dists {
		var h float64
		for _, v := range d.order {
			p := float64(d.counts[v]) / float64(d.total)
			h -= p * math.Log2(p+EntropySmoothing)
		}
		entropies[k] = h
	}

	out := make([]float64, len(keys))
	for i, k := range keys {
		out[i] = entropies[k]
	}
	return out
}
