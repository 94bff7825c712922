// Package report prints the summary tables of a run and writes its result
// tables as TSV files.
package report

import (
	"fmt"
	"io"

	"github.com/carbocation/mirnade/diffexpr"
	"github.com/carbocation/mirnade/enrich"
	"github.com/carbocation/mirnade/mirtarget"
)

const (
	DefaultTopN  = 5
	DefaultAlpha = 0.05
)

// ORA pairs over-representation rows with their collection.
type ORA struct {
	Collection string
	Rows       []enrich.ORAStat
}

// Report gathers everything a run produced.
type Report struct {
	Accession string
	DE        *diffexpr.Result
	Validated *mirtarget.Annotation
	Predicted *mirtarget.Annotation
	Join      mirtarget.JoinStrategy

	Enrichment []*enrich.Result
	ORA        []ORA
}

// TopRow is one line of the up or down table.
type TopRow struct {
	Mirna  string  `csv:"mirna"`
	Target string  `csv:"target"`
	LogFC  float64 `csv:"logFC"`
	PValue float64 `csv:"P.Value"`
}

// Top returns the first n rows with the target chosen by the join strategy.
// Validated targets are preferred; predicted ones fill in miRNAs without a
// validated target.
func (r *Report) Top(rows []diffexpr.Row, n int) []TopRow {
	if n <= 0 {
		n = DefaultTopN
	}
	if n > len(rows) {
		n = len(rows)
	}
	rows = rows[:n]

	mirnas := make([]string, len(rows))
	for i, row := range rows {
		mirnas[i] = row.Label()
	}

	targets := make([]string, len(rows))
	for _, ann := range []*mirtarget.Annotation{r.Validated, r.Predicted} {
		if ann == nil {
			continue
		}
		for i, t := range ann.FirstTargets(mirnas, r.Join) {
			if targets[i] == "" {
				targets[i] = t
			}
		}
	}

	out := make([]TopRow, len(rows))
	for i, row := range rows {
		out[i] = TopRow{Mirna: mirnas[i], Target: targets[i], LogFC: row.LogFC, PValue: row.PValue}
	}
	return out
}

// Print writes the up and down tables and the enrichment summary to w.
func (r *Report) Print(w io.Writer, topN int, alpha float64) {
	if alpha <= 0 {
		alpha = DefaultAlpha
	}

	if r.DE != nil {
		fmt.Fprintf(w, "%s %s: %d features, %d significant (%d up, %d down)\n",
			r.Accession, r.DE.Contrast, len(r.DE.All), len(r.DE.Significant), len(r.DE.Up), len(r.DE.Down))

		for _, part := range []struct {
			name string
			rows []diffexpr.Row
		}{
			{"Up-regulated", r.DE.Up},
			{"Down-regulated", r.DE.Down},
		} {
			fmt.Fprintf(w, "\n%s\n", part.name)
			printTop(w, r.Top(part.rows, topN))
		}
	}

	if len(r.Enrichment) > 0 || len(r.ORA) > 0 {
		fmt.Fprintf(w, "\nEnrichment (q <= %g)\n", alpha)
		fmt.Fprintf(w, "collection\ttested\tskipped\tgreater\tless\tcombined\n")
		for _, res := range r.Enrichment {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n", res.Collection, len(res.Combined), len(res.Skipped),
				enrich.Significant(res.Greater, alpha), enrich.Significant(res.Less, alpha), enrich.Significant(res.Combined, alpha))
		}

		for _, o := range r.ORA {
			n := 0
			for _, row := range o.Rows {
				if row.QValue <= alpha {
					n++
				}
			}
			fmt.Fprintf(w, "%s: %d of %d sets over-represented among target genes\n", o.Collection, n, len(o.Rows))
		}
	}
}

func printTop(w io.Writer, rows []TopRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "(none)")
		return
	}
	fmt.Fprintf(w, "mirna\ttarget\tlogFC\tP.Value\n")
	for _, row := range rows {
		target := row.Target
		if target == "" {
			target = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%.3f\t%.3g\n", row.Mirna, target, row.LogFC, row.PValue)
	}
}
