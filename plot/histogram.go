package plot

import (
	"fmt"
	"io"
	"math"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/carbocation/mirnade/diffexpr"
)

// PValueHistogram prints a terminal histogram of raw p-values. A flat
// distribution with a spike near zero is the healthy shape.
func PValueHistogram(w io.Writer, rows []diffexpr.Row) error {
	pvals := make([]float64, 0, len(rows))
	for _, r := range rows {
		if !math.IsNaN(r.PValue) {
			pvals = append(pvals, r.PValue)
		}
	}
	if len(pvals) == 0 {
		return fmt.Errorf("no p-values to plot")
	}

	hist := histogram.Hist(20, pvals)

	return histogram.Fprint(w, hist, histogram.Linear(50))
}
