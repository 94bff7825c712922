package diffexpr

import (
	"math"

	"github.com/BenLubar/memoize"
	"gonum.org/v1/gonum/mathext"
)

// All features share the same residual df, so the prior fit evaluates these
// at the same handful of arguments over and over.
var memoizedTrigamma = memoize.Memoize(trigamma)
var memoizedDigamma = memoize.Memoize(mathext.Digamma)

func digammaOf(x float64) float64 {
	return memoizedDigamma.(func(float64) float64)(x)
}

func trigammaOf(x float64) float64 {
	return memoizedTrigamma.(func(float64) float64)(x)
}

// trigamma is the second derivative of log Gamma, by upward recurrence to
// x >= 6 followed by the asymptotic expansion.
func trigamma(x float64) float64 {
	if x <= 0 && x == math.Floor(x) {
		return math.Inf(1)
	}

	acc := 0.0
	for x < 6 {
		acc += 1 / (x * x)
		x++
	}

	x2 := 1 / (x * x)
	series := 1/x + x2/2 + x2/x*(1.0/6-x2*(1.0/30-x2*(1.0/42-x2/30)))

	return acc + series
}

// tetragamma is the third derivative of log Gamma.
func tetragamma(x float64) float64 {
	acc := 0.0
	for x < 6 {
		acc -= 2 / (x * x * x)
		x++
	}

	x2 := 1 / (x * x)
	series := -x2 - x2/x - x2*x2*(0.5-x2*(1.0/6-x2*(1.0/6-x2*3.0/10)))

	return acc + series
}

// trigammaInverse solves trigamma(y) = x for y by Newton iteration on 1/y,
// which is close to linear in x.
func trigammaInverse(x float64) float64 {
	switch {
	case math.IsNaN(x):
		return math.NaN()
	case x > 1e7:
		return 1 / math.Sqrt(x)
	case x < 1e-6:
		return 1 / x
	}

	y := 0.5 + 1/x
	for i := 0; i < 50; i++ {
		tri := trigamma(y)
		dif := tri * (1 - tri/x) / tetragamma(y)
		y += dif
		if -dif/y < 1e-8 {
			break
		}
	}

	return y
}
