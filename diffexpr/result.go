package diffexpr

import (
	"fmt"
	"log"
	"sort"

	"github.com/carbocation/mirnade/expression"
)

// DefaultPValue is the significance threshold used when none is configured.
const DefaultPValue = 0.05

// Config selects the comparison. Reference and Comparison are explicit so the
// sign of the fold change never depends on label sort order: positive logFC
// means higher in Comparison.
type Config struct {
	Reference  string       `json:"reference" yaml:"reference"`
	Comparison string       `json:"comparison" yaml:"comparison"`
	PValue     float64      `json:"p_value" yaml:"p_value"`
	Adjust     AdjustMethod `json:"adjust" yaml:"adjust"`
}

// Row is one feature of the result table.
type Row struct {
	Rank      int     `csv:"rank"`
	FeatureID string  `csv:"feature_id"`
	MirnaID   string  `csv:"mirna_id"`
	LogFC     float64 `csv:"logFC"`
	AveExpr   float64 `csv:"AveExpr"`
	T         float64 `csv:"t"`
	PValue    float64 `csv:"P.Value"`
	AdjPValue float64 `csv:"adj.P.Val"`
}

// Label is the miRNA ID, or the probe ID for unannotated features.
func (r Row) Label() string {
	if r.MirnaID != "" {
		return r.MirnaID
	}
	return r.FeatureID
}

// Result is the outcome of one differential expression run.
type Result struct {
	Contrast string
	Prior    Prior
	DFTotal  float64

	// All holds every fitted feature sorted by ascending p-value.
	All []Row

	// Significant holds the rows of All at or below the threshold.
	Significant []Row

	// Up and Down split Significant by the sign of LogFC. Rows with a logFC
	// of exactly zero belong to neither.
	Up   []Row
	Down []Row

	// Excluded counts features not fit because of missing values.
	Excluded int
}

// Run fits the two-group model on ds and ranks its features.
func Run(ds *expression.Dataset, cfg Config) (*Result, error) {
	if cfg.Reference == "" || cfg.Comparison == "" {
		return nil, fmt.Errorf("both a reference and a comparison group are required")
	}
	if cfg.PValue <= 0 {
		cfg.PValue = DefaultPValue
	}
	if cfg.Adjust == "" {
		cfg.Adjust = AdjustNone
	}

	groups := []string{cfg.Reference, cfg.Comparison}
	ds = expression.DropIncompleteSamples(ds, groups)

	labels := make([]string, len(ds.Samples))
	for j, s := range ds.Samples {
		labels[j] = s.Group
	}

	design, err := NewDesign(labels, groups)
	if err != nil {
		return nil, err
	}

	contrast, err := design.Contrast(cfg.Comparison, cfg.Reference)
	if err != nil {
		return nil, err
	}

	fit, err := LinearModel(ds.Values, design)
	if err != nil {
		return nil, err
	}

	cf, err := fit.Contrast(contrast)
	if err != nil {
		return nil, err
	}

	mod := EBayes(cf)

	res := &Result{
		Contrast: contrast.Name,
		Prior:    mod.Prior,
		DFTotal:  mod.DFTotal,
		All:      make([]Row, 0, len(ds.Features)),
	}

	for i, f := range ds.Features {
		if !mod.Included[i] {
			res.Excluded++
			continue
		}
		res.All = append(res.All, Row{
			FeatureID: f.ID,
			MirnaID:   f.MirnaID,
			LogFC:     mod.Estimate[i],
			AveExpr:   mod.Amean[i],
			T:         mod.T[i],
			PValue:    mod.P[i],
		})
	}
	if res.Excluded > 0 {
		log.Printf("Excluded %d features with missing values from the model\n", res.Excluded)
	}

	sort.SliceStable(res.All, func(a, b int) bool { return res.All[a].PValue < res.All[b].PValue })

	pvals := make([]float64, len(res.All))
	for i, r := range res.All {
		pvals[i] = r.PValue
	}
	adjusted := AdjustPValues(pvals, cfg.Adjust)

	for i := range res.All {
		res.All[i].Rank = i + 1
		res.All[i].AdjPValue = adjusted[i]
		if adjusted[i] <= cfg.PValue {
			res.Significant = append(res.Significant, res.All[i])
		}
	}

	res.Up, res.Down = Partition(res.Significant)

	log.Printf("%s: %d of %d features at p <= %g (%d up, %d down; prior df %.3g)\n",
		res.Contrast, len(res.Significant), len(res.All), cfg.PValue, len(res.Up), len(res.Down), mod.Prior.D0)

	return res, nil
}

// Partition splits rows by the sign of LogFC, preserving order. Rows with a
// zero (or NaN) logFC are in neither part.
func Partition(rows []Row) (up, down []Row) {
	for _, r := range rows {
		switch {
		case r.LogFC > 0:
			up = append(up, r)
		case r.LogFC < 0:
			down = append(down, r)
		}
	}
	return up, down
}
