// Package diffexpr fits a per-feature linear model over a group design and
// moderates the residual variances with an empirical Bayes prior shared
// across all features (Smyth 2004), yielding moderated t-statistics.
package diffexpr

import (
	"fmt"

	"github.com/carbocation/mirnade"
	"gonum.org/v1/gonum/mat"
)

// Design is a samples x groups indicator matrix. Column j is 1 for samples in
// Groups[j] and 0 otherwise.
type Design struct {
	Groups []string
	X      *mat.Dense
}

// NewDesign builds the indicator matrix for labels. Columns follow the order
// of groups, which is configuration rather than label sort order. Every label
// must be one of groups, and at least two groups must be represented.
func NewDesign(labels, groups []string) (*Design, error) {
	col := make(map[string]int, len(groups))
	for j, g := range groups {
		if _, exists := col[g]; exists {
			return nil, fmt.Errorf("group %q listed twice", g)
		}
		col[g] = j
	}

	present := make(map[string]struct{})
	for _, l := range labels {
		if _, ok := col[l]; !ok {
			return nil, fmt.Errorf("sample label %q is not one of the design groups %v", l, groups)
		}
		present[l] = struct{}{}
	}
	if len(present) < 2 || len(groups) < 2 {
		return nil, fmt.Errorf("%w: found %d of groups %v among %d samples", mirnade.ErrInsufficientGroups, len(present), groups, len(labels))
	}
	if len(present) < len(groups) {
		return nil, fmt.Errorf("%w: groups %v requested but only %d present", mirnade.ErrDegenerateDesign, groups, len(present))
	}

	x := mat.NewDense(len(labels), len(groups), nil)
	for i, l := range labels {
		x.Set(i, col[l], 1)
	}

	return &Design{Groups: append([]string(nil), groups...), X: x}, nil
}

// Contrast is a linear combination of design coefficients.
type Contrast struct {
	Name    string
	Weights []float64
}

// Contrast returns comparison - reference, so a positive estimate means the
// comparison group is higher.
func (d *Design) Contrast(comparison, reference string) (Contrast, error) {
	w := make([]float64, len(d.Groups))
	found := 0
	for j, g := range d.Groups {
		switch g {
		case comparison:
			w[j] = 1
			found++
		case reference:
			w[j] = -1
			found++
		}
	}
	if found != 2 || comparison == reference {
		return Contrast{}, fmt.Errorf("contrast %s-%s does not name two design groups %v", comparison, reference, d.Groups)
	}

	return Contrast{Name: comparison + "-" + reference, Weights: w}, nil
}
