// Package plot renders the diagnostic figures of a differential expression
// run. Nothing downstream reads them.
package plot

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/carbocation/mirnade/diffexpr"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

var (
	colorUp      = drawing.Color{R: 214, G: 39, B: 40, A: 255}
	colorDown    = drawing.Color{R: 31, G: 119, B: 180, A: 255}
	colorNeutral = drawing.Color{R: 160, G: 160, B: 160, A: 200}
)

// VolcanoOptions controls Volcano. Zero values select defaults.
type VolcanoOptions struct {
	// Threshold on the adjusted p-value that marks a feature significant.
	Threshold float64

	// Labels is the number of top features annotated with their miRNA ID.
	Labels int

	Title  string
	Width  int
	Height int
}

func (o VolcanoOptions) withDefaults() VolcanoOptions {
	if o.Threshold <= 0 {
		o.Threshold = diffexpr.DefaultPValue
	}
	if o.Labels < 0 {
		o.Labels = 0
	} else if o.Labels == 0 {
		o.Labels = 10
	}
	if o.Width <= 0 {
		o.Width = 1024
	}
	if o.Height <= 0 {
		o.Height = 768
	}
	return o
}

// NegLog10 is -log10(p), finite even when p underflowed to zero.
func NegLog10(p float64) float64 {
	if p < math.SmallestNonzeroFloat64 {
		p = math.SmallestNonzeroFloat64
	}
	return -math.Log10(p)
}

// Volcano plots logFC against -log10(p) for every fitted feature and writes a
// PNG to w. Significant features are red when higher in the comparison group
// and blue when lower.
func Volcano(w io.Writer, rows []diffexpr.Row, opts VolcanoOptions) error {
	if len(rows) == 0 {
		return fmt.Errorf("no features to plot")
	}
	opts = opts.withDefaults()

	type points struct {
		name  string
		color drawing.Color
		x, y  []float64
	}
	up := &points{name: "Up", color: colorUp}
	down := &points{name: "Down", color: colorDown}
	other := &points{name: "Not significant", color: colorNeutral}

	for _, r := range rows {
		dst := other
		if r.AdjPValue <= opts.Threshold {
			switch {
			case r.LogFC > 0:
				dst = up
			case r.LogFC < 0:
				dst = down
			}
		}
		dst.x = append(dst.x, r.LogFC)
		dst.y = append(dst.y, NegLog10(r.PValue))
	}

	var series []chart.Series
	for _, p := range []*points{other, down, up} {
		if len(p.x) == 0 {
			continue
		}
		series = append(series, chart.ContinuousSeries{
			Name: fmt.Sprintf("%s (%d)", p.name, len(p.x)),
			Style: chart.Style{
				StrokeWidth: chart.Disabled,
				DotWidth:    3,
				DotColor:    p.color,
			},
			XValues: p.x,
			YValues: p.y,
		})
	}

	if labels := topLabels(rows, opts.Labels); len(labels) > 0 {
		series = append(series, chart.AnnotationSeries{Annotations: labels})
	}

	graph := chart.Chart{
		Title:  opts.Title,
		Width:  opts.Width,
		Height: opts.Height,
		XAxis: chart.XAxis{
			Name: "logFC",
		},
		YAxis: chart.YAxis{
			Name: "-log10(p)",
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return graph.Render(chart.PNG, w)
}

// topLabels annotates the n smallest p-values. Rows from diffexpr.Run are
// already sorted, but callers may pass any order.
func topLabels(rows []diffexpr.Row, n int) []chart.Value2 {
	sorted := append([]diffexpr.Row(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].PValue < sorted[j].PValue })

	if n > len(sorted) {
		n = len(sorted)
	}

	out := make([]chart.Value2, 0, n)
	for _, r := range sorted[:n] {
		out = append(out, chart.Value2{XValue: r.LogFC, YValue: NegLog10(r.PValue), Label: r.Label()})
	}
	return out
}
