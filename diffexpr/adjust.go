package diffexpr

import (
	"fmt"
	"math"
	"sort"
)

// AdjustMethod names a multiple-testing correction.
type AdjustMethod string

const (
	AdjustNone AdjustMethod = "none"
	AdjustBH   AdjustMethod = "BH"
)

// ParseAdjustMethod accepts "none", "" (none), "BH" and "fdr".
func ParseAdjustMethod(s string) (AdjustMethod, error) {
	switch s {
	case "", "none":
		return AdjustNone, nil
	case "BH", "bh", "fdr":
		return AdjustBH, nil
	}
	return "", fmt.Errorf("unknown p-value adjustment %q", s)
}

// AdjustPValues returns adjusted p-values in the order of p. NaN inputs stay
// NaN and do not count toward the number of tests.
func AdjustPValues(p []float64, method AdjustMethod) []float64 {
	out := append([]float64(nil), p...)
	if method != AdjustBH {
		return out
	}

	idx := make([]int, 0, len(p))
	for i, v := range p {
		if !math.IsNaN(v) {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return p[idx[a]] < p[idx[b]] })

	n := float64(len(idx))
	running := 1.0
	for k := len(idx) - 1; k >= 0; k-- {
		i := idx[k]
		adj := p[i] * n / float64(k+1)
		if adj < running {
			running = adj
		}
		out[i] = running
	}

	return out
}
