package diffexpr

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Prior holds the scaled inverse chi-square prior on the feature variances.
type Prior struct {
	// D0 is the prior degrees of freedom; +Inf when the observed variances
	// are no more dispersed than sampling error alone would make them.
	D0 float64

	// S02 is the prior variance.
	S02 float64
}

// Moderated holds empirical Bayes moderated statistics per feature.
type Moderated struct {
	*ContrastFit
	Prior   Prior
	S2Post  []float64
	T       []float64
	P       []float64
	DFTotal float64
}

// EBayes moderates the contrast fit. Features whose residual variance is zero
// or not finite are excluded from the prior estimate but still receive
// moderated statistics.
func EBayes(cf *ContrastFit) *Moderated {
	usable := make([]float64, 0, len(cf.Sigma2))
	for i, s2 := range cf.Sigma2 {
		if cf.Included[i] && s2 > 0 && !math.IsInf(s2, 0) && !math.IsNaN(s2) {
			usable = append(usable, s2)
		}
	}

	prior := fitFDist(usable, cf.DF)

	nIncluded := 0
	for _, inc := range cf.Included {
		if inc {
			nIncluded++
		}
	}

	// Moderated df cannot exceed the df pooled over all features.
	dfTotal := cf.DF + prior.D0
	if pooled := cf.DF * float64(nIncluded); dfTotal > pooled {
		dfTotal = pooled
	}

	out := &Moderated{
		ContrastFit: cf,
		Prior:       prior,
		S2Post:      make([]float64, len(cf.Sigma2)),
		T:           make([]float64, len(cf.Sigma2)),
		P:           make([]float64, len(cf.Sigma2)),
		DFTotal:     dfTotal,
	}

	for i, s2 := range cf.Sigma2 {
		if !cf.Included[i] {
			out.S2Post[i], out.T[i], out.P[i] = math.NaN(), math.NaN(), math.NaN()
			continue
		}

		switch {
		case math.IsInf(prior.D0, 1):
			out.S2Post[i] = prior.S02
		default:
			out.S2Post[i] = (prior.D0*prior.S02 + cf.DF*s2) / (prior.D0 + cf.DF)
		}

		se := math.Sqrt(out.S2Post[i]) * cf.StdevUnscaled
		out.T[i] = tStatistic(cf.Estimate[i], se)
		out.P[i] = twoSidedP(out.T[i], dfTotal)
	}

	return out
}

// fitFDist estimates the prior from log sample variances by matching the
// first two moments of log(s2), whose expectation and variance under the
// model are known in terms of digamma and trigamma.
func fitFDist(s2 []float64, df float64) Prior {
	switch len(s2) {
	case 0:
		return Prior{D0: 0, S02: 0}
	case 1:
		return Prior{D0: 0, S02: s2[0]}
	}

	half := df / 2
	e := make([]float64, len(s2))
	for i, v := range s2 {
		e[i] = math.Log(v) - digammaOf(half) + math.Log(half)
	}

	emean, evar := stat.MeanVariance(e, nil)
	evar -= trigammaOf(half)

	if evar > 0 {
		d0 := 2 * trigammaInverse(evar)
		return Prior{
			D0:  d0,
			S02: math.Exp(emean + digammaOf(d0/2) - math.Log(d0/2)),
		}
	}

	return Prior{D0: math.Inf(1), S02: math.Exp(emean)}
}

func tStatistic(estimate, se float64) float64 {
	switch {
	case se > 0:
		return estimate / se
	case estimate == 0:
		return 0
	}
	return math.Copysign(math.Inf(1), estimate)
}

func twoSidedP(t, df float64) float64 {
	if math.IsNaN(t) {
		return math.NaN()
	}
	if math.IsInf(t, 0) {
		return 0
	}

	var cdf float64
	if math.IsInf(df, 1) || df <= 0 {
		cdf = distuv.UnitNormal.CDF(-math.Abs(t))
	} else {
		cdf = distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.CDF(-math.Abs(t))
	}

	return math.Min(1, 2*cdf)
}
