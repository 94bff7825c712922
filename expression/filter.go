package expression

import (
	"fmt"
	"strings"
)

// FeaturePredicate selects features to keep.
type FeaturePredicate func(Feature) bool

// DefaultMaturePrefix marks mature miRNA entries in miRBase accessions.
const DefaultMaturePrefix = "MIMAT"

// MatureMirna keeps features whose accession starts with prefix. Features
// without an accession are judged by their probe ID.
func MatureMirna(prefix string) FeaturePredicate {
	return func(f Feature) bool {
		acc := f.Accession
		if acc == "" {
			acc = f.ID
		}
		return strings.HasPrefix(acc, prefix)
	}
}

// FilterFeatures returns a dataset narrowed to the features matching pred. The
// sample set is unchanged.
func FilterFeatures(d *Dataset, pred FeaturePredicate) *Dataset {
	idx := make([]int, 0, len(d.Features))
	for i, f := range d.Features {
		if pred(f) {
			idx = append(idx, i)
		}
	}
	return d.SubsetFeatures(idx)
}

// DropIncompleteSamples keeps samples whose group is one of groups.
func DropIncompleteSamples(d *Dataset, groups []string) *Dataset {
	keep := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		keep[g] = struct{}{}
	}

	idx := make([]int, 0, len(d.Samples))
	for j, s := range d.Samples {
		if _, ok := keep[s.Group]; ok {
			idx = append(idx, j)
		}
	}
	return d.SubsetSamples(idx)
}

// GroupTitles returns a dataset whose sample titles are rewritten to show
// group membership: <group>_<n>, numbering samples within each group in their
// original order. The original title is kept as the "original_title"
// attribute.
func GroupTitles(d *Dataset) *Dataset {
	out := d.SubsetSamples(allIndices(len(d.Samples)))

	counts := make(map[string]int)
	for j, s := range out.Samples {
		counts[s.Group]++
		attrs := make(map[string]string, len(s.Attributes)+1)
		for k, v := range s.Attributes {
			attrs[k] = v
		}
		attrs["original_title"] = s.Title
		s.Attributes = attrs
		s.Title = fmt.Sprintf("%s_%d", s.Group, counts[s.Group])
		out.Samples[j] = s
	}

	return out
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
