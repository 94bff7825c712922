// Package enrich tests whether gene sets shift up or down between two groups
// of samples, and whether target genes are over-represented in a set.
package enrich

import (
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/carbocation/mirnade"
	"github.com/carbocation/mirnade/diffexpr"
	"github.com/carbocation/mirnade/expression"
	"github.com/carbocation/mirnade/geneset"
	"github.com/tokenme/probab/dst"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// CompareMode selects how sample columns are compared with the reference.
type CompareMode string

const (
	// CompareUnpaired compares every sample column with every reference
	// column.
	CompareUnpaired CompareMode = "unpaired"

	// CompareOneOnGroup compares every sample column with the reference mean.
	CompareOneOnGroup CompareMode = "1ongroup"

	// CompareAsGroup compares the sample mean with the reference mean.
	CompareAsGroup CompareMode = "as.group"
)

// ParseCompareMode accepts "unpaired" (or ""), "1ongroup" and "as.group".
func ParseCompareMode(s string) (CompareMode, error) {
	switch c := CompareMode(s); c {
	case CompareUnpaired, CompareOneOnGroup, CompareAsGroup:
		return c, nil
	case "":
		return CompareUnpaired, nil
	}
	return "", fmt.Errorf("unknown compare mode %q", s)
}

const (
	DefaultMinSize = 2
	DefaultMaxSize = 500
)

// Config selects the column groups and the gene set size bounds.
type Config struct {
	ReferencePrefix string      `json:"reference_prefix" yaml:"reference_prefix"`
	SamplePrefix    string      `json:"sample_prefix" yaml:"sample_prefix"`
	Compare         CompareMode `json:"compare" yaml:"compare"`
	MinSize         int         `json:"min_size" yaml:"min_size"`
	MaxSize         int         `json:"max_size" yaml:"max_size"`
}

// SetStat summarizes one gene set in one direction.
type SetStat struct {
	Set      string  `csv:"set"`
	Size     int     `csv:"set.size"`
	StatMean float64 `csv:"stat.mean"`
	PGeomean float64 `csv:"p.geomean"`
	PValue   float64 `csv:"p.val"`
	QValue   float64 `csv:"q.val"`

	// Per comparison, parallel to Result.Comparisons.
	Stats   []float64 `csv:"-"`
	PValues []float64 `csv:"-"`
}

// Result holds the enrichment of one collection.
type Result struct {
	Collection  string
	Comparisons []string

	Greater  []SetStat
	Less     []SetStat
	Combined []SetStat

	// Skipped names sets with too few (or too many) genes in the matrix.
	Skipped []string
}

// Significant counts rows with q at or below alpha.
func Significant(rows []SetStat, alpha float64) int {
	n := 0
	for _, r := range rows {
		if r.QValue <= alpha {
			n++
		}
	}
	return n
}

// Run tests every set of coll against m, a genes x samples matrix whose
// columns are assigned to the reference or sample group by name prefix.
func Run(m *expression.Matrix, coll *geneset.Collection, cfg Config) (*Result, error) {
	if cfg.MinSize < DefaultMinSize {
		cfg.MinSize = DefaultMinSize
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.Compare == "" {
		cfg.Compare = CompareUnpaired
	}

	ref := m.ColumnsWithPrefix(cfg.ReferencePrefix)
	samp := m.ColumnsWithPrefix(cfg.SamplePrefix)
	if len(ref) == 0 || len(samp) == 0 {
		return nil, fmt.Errorf("%w: %d reference columns with prefix %q and %d sample columns with prefix %q",
			mirnade.ErrEmptyGroup, len(ref), cfg.ReferencePrefix, len(samp), cfg.SamplePrefix)
	}

	names, comparisons, err := compare(m, ref, samp, cfg)
	if err != nil {
		return nil, err
	}

	rowIndex := m.RowIndex()
	res := &Result{Collection: coll.Name, Comparisons: names}

	type tested struct {
		set   string
		genes []int
	}
	var sets []tested
	for _, s := range coll.Sets {
		var idx []int
		for _, g := range s.Genes {
			if i, ok := rowIndex[g]; ok {
				idx = append(idx, i)
			}
		}
		if len(idx) < cfg.MinSize || len(idx) > cfg.MaxSize {
			res.Skipped = append(res.Skipped, s.Name)
			continue
		}
		sets = append(sets, tested{set: s.Name, genes: idx})
	}
	if len(res.Skipped) > 0 {
		log.Printf("%s: skipped %d of %d gene sets outside the size bounds [%d, %d]\n",
			coll.Name, len(res.Skipped), len(coll.Sets), cfg.MinSize, cfg.MaxSize)
	}

	for _, s := range sets {
		greater := SetStat{Set: s.set, Size: len(s.genes)}
		less := SetStat{Set: s.set, Size: len(s.genes)}
		for _, x := range comparisons {
			t, pg, pl := setTest(x, s.genes)
			greater.Stats = append(greater.Stats, t)
			greater.PValues = append(greater.PValues, pg)
			less.Stats = append(less.Stats, t)
			less.PValues = append(less.PValues, pl)
		}
		summarize(&greater)
		summarize(&less)

		res.Greater = append(res.Greater, greater)
		res.Less = append(res.Less, less)

		combined := SetStat{
			Set:      s.set,
			Size:     len(s.genes),
			StatMean: greater.StatMean,
			PGeomean: math.Min(1, 2*math.Min(greater.PGeomean, less.PGeomean)),
			PValue:   math.Min(1, 2*math.Min(greater.PValue, less.PValue)),
			Stats:    greater.Stats,
		}
		res.Combined = append(res.Combined, combined)
	}

	for _, table := range [][]SetStat{res.Greater, res.Less, res.Combined} {
		finish(table)
	}

	return res, nil
}

// compare returns one per-gene difference vector per comparison.
func compare(m *expression.Matrix, ref, samp []int, cfg Config) ([]string, [][]float64, error) {
	nGenes, _ := m.Dims()

	refMean := make([]float64, nGenes)
	for g := range refMean {
		refMean[g] = meanOf(m, g, ref)
	}

	switch cfg.Compare {
	case CompareUnpaired:
		names := make([]string, 0, len(samp)*len(ref))
		out := make([][]float64, 0, len(samp)*len(ref))
		for _, j := range samp {
			for _, k := range ref {
				x := make([]float64, nGenes)
				for g := range x {
					x[g] = m.Values.At(g, j) - m.Values.At(g, k)
				}
				names = append(names, m.Cols[j]+"-"+m.Cols[k])
				out = append(out, x)
			}
		}
		return names, out, nil

	case CompareOneOnGroup:
		names := make([]string, 0, len(samp))
		out := make([][]float64, 0, len(samp))
		for _, j := range samp {
			x := make([]float64, nGenes)
			for g := range x {
				x[g] = m.Values.At(g, j) - refMean[g]
			}
			names = append(names, m.Cols[j])
			out = append(out, x)
		}
		return names, out, nil

	case CompareAsGroup:
		x := make([]float64, nGenes)
		for g := range x {
			x[g] = meanOf(m, g, samp) - refMean[g]
		}
		return []string{cfg.SamplePrefix}, [][]float64{x}, nil
	}

	return nil, nil, fmt.Errorf("unknown compare mode %q", cfg.Compare)
}

// meanOf averages the non-missing values of row g over cols.
func meanOf(m *expression.Matrix, g int, cols []int) float64 {
	sum, n := 0.0, 0
	for _, j := range cols {
		if v := m.Values.At(g, j); !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// setTest compares the mean of the set's genes with the mean of all genes,
// scaled by the standard error of a random set of the same size.
func setTest(x []float64, genes []int) (t, pGreater, pLess float64) {
	all := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			all = append(all, v)
		}
	}
	meanAll, sdAll := stat.MeanStdDev(all, nil)

	set := make([]float64, 0, len(genes))
	for _, g := range genes {
		if v := x[g]; !math.IsNaN(v) {
			set = append(set, v)
		}
	}
	n := float64(len(set))
	if n < 2 || sdAll == 0 {
		return math.NaN(), math.NaN(), math.NaN()
	}

	t = (stat.Mean(set, nil) - meanAll) / (sdAll / math.Sqrt(n))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: n - 1}

	return t, dist.Survival(t), dist.CDF(t)
}

// summarize fills the mean statistic, geometric mean p and Fisher's combined
// p across comparisons.
func summarize(s *SetStat) {
	var stats, logs []float64
	for i, p := range s.PValues {
		if math.IsNaN(p) {
			continue
		}
		stats = append(stats, s.Stats[i])
		logs = append(logs, math.Log(math.Max(p, math.SmallestNonzeroFloat64)))
	}
	if len(logs) == 0 {
		s.StatMean, s.PGeomean, s.PValue = math.NaN(), math.NaN(), math.NaN()
		return
	}

	s.StatMean = stat.Mean(stats, nil)
	s.PGeomean = math.Exp(stat.Mean(logs, nil))

	chi := 0.0
	for _, l := range logs {
		chi -= 2 * l
	}
	s.PValue = chiSquareTail(chi, int64(2*len(logs)))
}

// chiSquareTail is P(X >= x) for X ~ chi-square with df degrees of freedom.
// It is NaN if the CDF cannot be evaluated.
func chiSquareTail(x float64, df int64) (p float64) {
	p = math.NaN()
	defer func() { recover() }()

	p = 1.0 - dst.ChiSquareCDF(df)(x)

	return
}

// finish adds BH q values and sorts by p.
func finish(rows []SetStat) {
	p := make([]float64, len(rows))
	for i, r := range rows {
		p[i] = r.PValue
	}
	q := diffexpr.AdjustPValues(p, diffexpr.AdjustBH)
	for i := range rows {
		rows[i].QValue = q[i]
	}

	sort.SliceStable(rows, func(a, b int) bool {
		pa, pb := rows[a].PValue, rows[b].PValue
		if math.IsNaN(pb) {
			return !math.IsNaN(pa)
		}
		return pa < pb
	})
}
