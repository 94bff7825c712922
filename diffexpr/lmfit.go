package diffexpr

import (
	"fmt"
	"math"

	"github.com/carbocation/mirnade"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Fit holds per-feature ordinary least squares estimates.
type Fit struct {
	Design *Design

	// Coefficients[i] are the group coefficients of feature i.
	Coefficients [][]float64
	Sigma2       []float64
	Amean        []float64

	// Included is false for features with missing values, which are not fit.
	Included []bool

	// DF is the residual degrees of freedom, shared by all included features.
	DF float64

	// Unscaled is (X'X)^-1.
	Unscaled *mat.Dense
}

// LinearModel fits expression ~ design for every feature (row of values).
func LinearModel(values *mat.Dense, d *Design) (*Fit, error) {
	if values == nil {
		return nil, fmt.Errorf("%w: no expression values", mirnade.ErrDegenerateDesign)
	}
	nFeatures, nSamples := values.Dims()
	n, p := d.X.Dims()
	if n != nSamples {
		return nil, fmt.Errorf("design has %d rows but there are %d samples", n, nSamples)
	}

	df := n - p
	if df < 1 {
		return nil, fmt.Errorf("%w: %d samples for %d coefficients leaves no residual degrees of freedom", mirnade.ErrDegenerateDesign, n, p)
	}

	var xtx mat.Dense
	xtx.Mul(d.X.T(), d.X)

	var unscaled mat.Dense
	if err := unscaled.Inverse(&xtx); err != nil {
		return nil, fmt.Errorf("%w: %v", mirnade.ErrDegenerateDesign, err)
	}

	// proj maps a sample vector onto the coefficients: (X'X)^-1 X'
	var proj mat.Dense
	proj.Mul(&unscaled, d.X.T())

	fit := &Fit{
		Design:       d,
		Coefficients: make([][]float64, nFeatures),
		Sigma2:       make([]float64, nFeatures),
		Amean:        make([]float64, nFeatures),
		Included:     make([]bool, nFeatures),
		DF:           float64(df),
		Unscaled:     &unscaled,
	}

	y := mat.NewVecDense(nSamples, nil)
	var beta, fitted mat.VecDense
	for i := 0; i < nFeatures; i++ {
		row := mat.Row(nil, i, values)
		if hasNaN(row) {
			continue
		}
		y.CopyVec(mat.NewVecDense(nSamples, row))

		beta.MulVec(&proj, y)
		fitted.MulVec(d.X, &beta)

		rss := 0.0
		for k := 0; k < nSamples; k++ {
			r := y.AtVec(k) - fitted.AtVec(k)
			rss += r * r
		}

		coef := make([]float64, p)
		for j := range coef {
			coef[j] = beta.AtVec(j)
		}

		fit.Coefficients[i] = coef
		fit.Sigma2[i] = rss / float64(df)
		fit.Amean[i] = stat.Mean(row, nil)
		fit.Included[i] = true
	}

	return fit, nil
}

// ContrastFit is a Fit projected onto one contrast.
type ContrastFit struct {
	Contrast Contrast
	Estimate []float64
	Sigma2   []float64
	Amean    []float64
	Included []bool
	DF       float64

	// StdevUnscaled is sqrt(c' (X'X)^-1 c).
	StdevUnscaled float64
}

// Contrast projects the fit onto c.
func (f *Fit) Contrast(c Contrast) (*ContrastFit, error) {
	p := len(f.Design.Groups)
	if len(c.Weights) != p {
		return nil, fmt.Errorf("contrast has %d weights for %d coefficients", len(c.Weights), p)
	}

	w := mat.NewVecDense(p, append([]float64(nil), c.Weights...))
	var uw mat.VecDense
	uw.MulVec(f.Unscaled, w)
	variance := mat.Dot(w, &uw)

	out := &ContrastFit{
		Contrast:      c,
		Estimate:      make([]float64, len(f.Coefficients)),
		Sigma2:        f.Sigma2,
		Amean:         f.Amean,
		Included:      f.Included,
		DF:            f.DF,
		StdevUnscaled: math.Sqrt(variance),
	}
	for i, coef := range f.Coefficients {
		if !f.Included[i] {
			out.Estimate[i] = math.NaN()
			continue
		}
		for j, v := range coef {
			out.Estimate[i] += c.Weights[j] * v
		}
	}

	return out, nil
}

func hasNaN(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
