// Package expression holds the in-memory expression data passed between
// pipeline stages: a features-by-samples matrix with per-feature and
// per-sample annotation.
package expression

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Feature is one microarray probe.
type Feature struct {
	ID          string
	Accession   string
	MirnaID     string
	TargetGenes string
	Attributes  map[string]string
}

// Label is the most human-readable identifier of the feature.
func (f Feature) Label() string {
	if f.MirnaID != "" {
		return f.MirnaID
	}
	return f.ID
}

// Sample is one hybridized specimen.
type Sample struct {
	ID         string
	Title      string
	Group      string
	Attributes map[string]string
}

// Dataset is a features x samples expression matrix with its annotation. It is
// treated as read-only once built: narrowing operations return new datasets.
type Dataset struct {
	Accession string
	Platform  string
	Title     string
	Submitted time.Time

	Features []Feature
	Samples  []Sample
	Values   *mat.Dense
}

// Validate checks that the matrix dimensions match the annotation tables.
func (d *Dataset) Validate() error {
	if d.Values == nil {
		if len(d.Features) == 0 && len(d.Samples) == 0 {
			return nil
		}
		return fmt.Errorf("dataset %s has %d features and %d samples but no values", d.Accession, len(d.Features), len(d.Samples))
	}

	r, c := d.Values.Dims()
	if r != len(d.Features) {
		return fmt.Errorf("dataset %s: %d matrix rows but %d features", d.Accession, r, len(d.Features))
	}
	if c != len(d.Samples) {
		return fmt.Errorf("dataset %s: %d matrix columns but %d samples", d.Accession, c, len(d.Samples))
	}

	return nil
}

// Dims returns the number of features and samples.
func (d *Dataset) Dims() (features, samples int) {
	return len(d.Features), len(d.Samples)
}

// Groups returns the distinct sample groups in order of first appearance.
func (d *Dataset) Groups() []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, s := range d.Samples {
		if _, exists := seen[s.Group]; exists {
			continue
		}
		seen[s.Group] = struct{}{}
		out = append(out, s.Group)
	}
	return out
}

// Row returns a copy of the values for feature i.
func (d *Dataset) Row(i int) []float64 {
	return mat.Row(nil, i, d.Values)
}

// SampleTitles returns the sample titles, falling back to the sample ID.
func (d *Dataset) SampleTitles() []string {
	out := make([]string, len(d.Samples))
	for i, s := range d.Samples {
		out[i] = s.Title
		if out[i] == "" {
			out[i] = s.ID
		}
	}
	return out
}

// FeatureLabels returns Feature.Label for every feature.
func (d *Dataset) FeatureLabels() []string {
	out := make([]string, len(d.Features))
	for i, f := range d.Features {
		out[i] = f.Label()
	}
	return out
}

// SubsetFeatures returns a new dataset holding only the features at the given
// indices, in that order.
func (d *Dataset) SubsetFeatures(idx []int) *Dataset {
	out := d.shallow()
	out.Features = make([]Feature, len(idx))
	_, nCols := d.Dims()
	if len(idx) == 0 || nCols == 0 {
		out.Values = nil
	} else {
		out.Values = mat.NewDense(len(idx), nCols, nil)
	}
	for i, k := range idx {
		out.Features[i] = d.Features[k]
		if out.Values != nil {
			out.Values.SetRow(i, mat.Row(nil, k, d.Values))
		}
	}
	out.Samples = append([]Sample(nil), d.Samples...)
	return out
}

// SubsetSamples returns a new dataset holding only the samples at the given
// indices, in that order.
func (d *Dataset) SubsetSamples(idx []int) *Dataset {
	out := d.shallow()
	out.Samples = make([]Sample, len(idx))
	nRows, _ := d.Dims()
	if len(idx) == 0 || nRows == 0 {
		out.Values = nil
	} else {
		out.Values = mat.NewDense(nRows, len(idx), nil)
	}
	for j, k := range idx {
		out.Samples[j] = d.Samples[k]
		if out.Values != nil {
			out.Values.SetCol(j, mat.Col(nil, k, d.Values))
		}
	}
	out.Features = append([]Feature(nil), d.Features...)
	return out
}

// ToMatrix converts the dataset into a samples x features matrix labelled by
// sample title and feature label, the orientation used for heatmaps.
func (d *Dataset) ToMatrix() *Matrix {
	m := &Matrix{
		Rows: d.SampleTitles(),
		Cols: d.FeatureLabels(),
	}
	if d.Values != nil {
		t := mat.DenseCopyOf(d.Values.T())
		m.Values = t
	}
	return m
}

func (d *Dataset) shallow() *Dataset {
	return &Dataset{
		Accession: d.Accession,
		Platform:  d.Platform,
		Title:     d.Title,
		Submitted: d.Submitted,
	}
}
