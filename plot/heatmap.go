package plot

import (
	"fmt"
	"io"
	"math"

	"github.com/carbocation/mirnade/cluster"
	"github.com/carbocation/mirnade/expression"
	"github.com/carbocation/runningvariance"
	"github.com/fogleman/gg"
	"gonum.org/v1/gonum/mat"
)

// Colors used for sample dendrogram branches, by cluster number.
var clusterPalette = [][3]float64{
	{0.84, 0.15, 0.16},
	{0.12, 0.47, 0.71},
	{0.17, 0.63, 0.17},
	{1.00, 0.50, 0.05},
	{0.58, 0.40, 0.74},
	{0.55, 0.34, 0.29},
}

// HeatmapOptions controls Heatmap. Zero values select defaults.
type HeatmapOptions struct {
	Title string

	// CellSize is the side of one heatmap cell in pixels.
	CellSize float64

	// Clusters is the number of sample clusters whose dendrogram branches
	// are colored.
	Clusters int

	// Limit clips z-scores to [-Limit, Limit] for coloring.
	Limit float64
}

func (o HeatmapOptions) withDefaults() HeatmapOptions {
	if o.CellSize <= 0 {
		o.CellSize = 16
	}
	if o.Clusters <= 0 {
		o.Clusters = 2
	}
	if o.Limit <= 0 {
		o.Limit = 2.5
	}
	return o
}

// Standardize z-scores each column of m. Missing values stay NaN and a
// column with no variance becomes all zero.
func Standardize(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)

	for j := 0; j < c; j++ {
		rs := runningvariance.NewRunningStat()
		for i := 0; i < r; i++ {
			if v := m.At(i, j); !math.IsNaN(v) {
				rs.Push(v)
			}
		}

		mean, sd := rs.Mean(), rs.StandardDeviation()
		for i := 0; i < r; i++ {
			v := m.At(i, j)
			switch {
			case math.IsNaN(v):
				out.Set(i, j, math.NaN())
			case sd == 0 || math.IsNaN(sd):
				out.Set(i, j, 0)
			default:
				out.Set(i, j, (v-mean)/sd)
			}
		}
	}

	return out
}

// Heatmap draws m (samples x features) as a clustered heatmap PNG. Features
// are standardized, both axes are reordered by average-linkage clustering on
// correlation distance, and dendrograms are drawn to the left (samples) and
// on top (features).
func Heatmap(w io.Writer, m *expression.Matrix, opts HeatmapOptions) error {
	nRows, nCols := m.Dims()
	if nRows < 2 || nCols < 2 {
		return fmt.Errorf("heatmap needs at least 2 samples and 2 features, got %dx%d", nRows, nCols)
	}
	opts = opts.withDefaults()
	if opts.Clusters > nRows {
		opts.Clusters = nRows
	}

	z := Standardize(m.Values)

	rowTree, err := cluster.Rows(z)
	if err != nil {
		return err
	}
	colTree, err := cluster.Columns(z)
	if err != nil {
		return err
	}
	membership, err := rowTree.Cut(opts.Clusters)
	if err != nil {
		return err
	}

	cell := opts.CellSize
	dendro := 80.0
	pad := 10.0
	titleH := 0.0
	if opts.Title != "" {
		titleH = 30
	}

	measure := gg.NewContext(1, 1)
	rowLabelW := maxWidth(measure, m.Rows)
	colLabelW := maxWidth(measure, m.Cols)
	legendH := 40.0

	gridX := pad + dendro + pad
	gridY := pad + titleH + dendro + pad
	gridW := cell * float64(nCols)
	gridH := cell * float64(nRows)

	width := int(math.Ceil(gridX + gridW + pad + rowLabelW + pad))
	height := int(math.Ceil(gridY + gridH + pad + colLabelW + pad + legendH + pad))

	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	if opts.Title != "" {
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(opts.Title, float64(width)/2, pad+titleH/2, 0.5, 0.5)
	}

	for gi, i := range rowTree.Order {
		for gj, j := range colTree.Order {
			r, g, b := divergingColor(z.At(i, j), opts.Limit)
			dc.SetRGB(r, g, b)
			dc.DrawRectangle(gridX+float64(gj)*cell, gridY+float64(gi)*cell, cell, cell)
			dc.Fill()
		}
	}

	dc.SetRGB(0, 0, 0)
	for gi, i := range rowTree.Order {
		dc.DrawStringAnchored(m.Rows[i], gridX+gridW+pad, gridY+(float64(gi)+0.5)*cell, 0, 0.5)
	}
	for gj, j := range colTree.Order {
		x, y := gridX+(float64(gj)+0.5)*cell, gridY+gridH+pad
		dc.Push()
		dc.RotateAbout(gg.Radians(90), x, y)
		dc.DrawStringAnchored(m.Cols[j], x, y, 0, 0.5)
		dc.Pop()
	}

	drawDendrogram(dc, rowTree, membership, dendrogramFrame{
		origin: pad, base: gridX - pad/2, start: gridY, step: cell, vertical: false,
	})
	drawDendrogram(dc, colTree, nil, dendrogramFrame{
		origin: pad + titleH, base: gridY - pad/2, start: gridX, step: cell, vertical: true,
	})

	drawLegend(dc, gridX, gridY+gridH+pad+colLabelW+pad, math.Min(gridW, 200), 12, opts.Limit)

	return dc.EncodePNG(w)
}

func maxWidth(dc *gg.Context, labels []string) float64 {
	out := 0.0
	for _, l := range labels {
		if w, _ := dc.MeasureString(l); w > out {
			out = w
		}
	}
	return out
}

// divergingColor maps v onto blue (-limit), white (0), red (+limit). Missing
// values are grey.
func divergingColor(v, limit float64) (r, g, b float64) {
	if math.IsNaN(v) {
		return 0.8, 0.8, 0.8
	}
	f := math.Max(-1, math.Min(1, v/limit))
	if f < 0 {
		return 1 + f, 1 + f, 1
	}
	return 1, 1 - f, 1 - f
}

func drawLegend(dc *gg.Context, x, y, w, h, limit float64) {
	const steps = 50
	for s := 0; s < steps; s++ {
		v := -limit + 2*limit*float64(s)/float64(steps-1)
		r, g, b := divergingColor(v, limit)
		dc.SetRGB(r, g, b)
		dc.DrawRectangle(x+w*float64(s)/steps, y, w/steps+0.5, h)
		dc.Fill()
	}

	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(fmt.Sprintf("%.1f", -limit), x, y+h+2, 0, 1)
	dc.DrawStringAnchored("0", x+w/2, y+h+2, 0.5, 1)
	dc.DrawStringAnchored(fmt.Sprintf("%.1f", limit), x+w, y+h+2, 1, 1)
}

// dendrogramFrame places a dendrogram beside the grid. Leaves sit at base,
// the root at origin; leaf k is centered at start+(k+0.5)*step along the
// other axis.
type dendrogramFrame struct {
	origin   float64
	base     float64
	start    float64
	step     float64
	vertical bool
}

func (f dendrogramFrame) point(pos, depth float64) (x, y float64) {
	if f.vertical {
		return pos, depth
	}
	return depth, pos
}

func drawDendrogram(dc *gg.Context, t *cluster.Tree, membership []int, f dendrogramFrame) {
	if len(t.Merges) == 0 {
		return
	}

	maxH := t.Merges[len(t.Merges)-1].Height
	if maxH <= 0 {
		maxH = 1
	}

	nodes := t.N + len(t.Merges)
	pos := make([]float64, nodes)
	depth := make([]float64, nodes)
	color := make([]int, nodes)

	for k, leaf := range t.Order {
		pos[leaf] = f.start + (float64(k)+0.5)*f.step
		depth[leaf] = f.base
		color[leaf] = -1
		if membership != nil {
			color[leaf] = membership[leaf]
		}
	}

	dc.SetLineWidth(1)
	for i, m := range t.Merges {
		node := t.N + i
		pos[node] = (pos[m.Left] + pos[m.Right]) / 2
		depth[node] = f.base - (f.base-f.origin)*math.Min(1, m.Height/maxH)
		color[node] = -1
		if color[m.Left] == color[m.Right] {
			color[node] = color[m.Left]
		}

		for _, child := range []int{m.Left, m.Right} {
			setBranchColor(dc, color[child])
			x1, y1 := f.point(pos[child], depth[child])
			x2, y2 := f.point(pos[child], depth[node])
			dc.DrawLine(x1, y1, x2, y2)
			dc.Stroke()
		}
		setBranchColor(dc, color[node])
		x1, y1 := f.point(pos[m.Left], depth[node])
		x2, y2 := f.point(pos[m.Right], depth[node])
		dc.DrawLine(x1, y1, x2, y2)
		dc.Stroke()
	}
}

func setBranchColor(dc *gg.Context, c int) {
	if c < 0 {
		dc.SetRGB(0.2, 0.2, 0.2)
		return
	}
	p := clusterPalette[c%len(clusterPalette)]
	dc.SetRGB(p[0], p[1], p[2])
}
