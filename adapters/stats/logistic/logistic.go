package logistic

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	DefaultMaxIterations = 20

	// singularDeterminant stops Newton-Raphson when the 2x2 system is near singular
	singularDeterminant = 1e-10
	convergenceDelta    = 1e-6
	logSmoothing        = 1e-10
)

// StopReason records why the iteration ended
type StopReason string

const (
	StopConverged StopReason = "converged"
	StopSingular  StopReason = "singular_hessian"
	StopMaxIter   StopReason = "max_iterations"
	StopEmpty     StopReason = "empty_input"
)

// Fit is the outcome of a single-predictor logistic regression
type Fit struct {
	Beta0         float64
	Beta1         float64
	LogLikelihood float64
	Iterations    int
	Stop          StopReason
}

// OddsRatio is exp(beta1)
func (f Fit) OddsRatio() float64 {
	return math.Exp(f.Beta1)
}

// AIC with two free parameters
func (f Fit) AIC() float64 {
	return 2*2 - 2*f.LogLikelihood
}

// Fitter fits P(y=1|x) = sigmoid(b0 + b1*x) by Newton-Raphson
type Fitter struct {
	MaxIterations int
}

// NewFitter creates a fitter; non-positive iteration budgets use the default
func NewFitter(maxIterations int) *Fitter {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Fitter{MaxIterations: maxIterations}
}

// Fit never fails: on singularity or an exhausted budget it returns the
// parameters reached so far. x and y must have equal length.
func (f *Fitter) Fit(x, y []float64) Fit {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	if n == 0 {
		return Fit{Stop: StopEmpty}
	}

	var b0, b1 float64
	result := Fit{Stop: StopMaxIter}

	for iter := 0; iter < f.MaxIterations; iter++ {
		var g0, g1, h00, h01, h11 float64
		for i := 0; i < n; i++ {
			p := sigmoid(b0 + b1*x[i])
			r := y[i] - p
			w := p * (1 - p)
			g0 += r
			g1 += r * x[i]
			h00 += w
			h01 += w * x[i]
			h11 += w * x[i] * x[i]
		}

		det := h00*h11 - h01*h01
		if math.Abs(det) < singularDeterminant {
			result.Stop = StopSingular
			break
		}

		// (X'WX)^-1 * gradient, closed form for 2x2
		d0 := (h11*g0 - h01*g1) / det
		d1 := (h00*g1 - h01*g0) / det
		b0 += d0
		b1 += d1
		result.Iterations = iter + 1

		if math.Abs(d0) < convergenceDelta && math.Abs(d1) < convergenceDelta {
			result.Stop = StopConverged
			break
		}
	}

	result.Beta0 = b0
	result.Beta1 = b1
	result.LogLikelihood = LogLikelihood(x[:n], y[:n], b0, b1)
	return result
}

// LogLikelihood is the smoothed Bernoulli log-likelihood of (b0, b1)
func LogLikelihood(x, y []float64, b0, b1 float64) float64 {
	ll := 0.0
	for i := range x {
		p := sigmoid(b0 + b1*x[i])
		ll += y[i]*math.Log(p+logSmoothing) + (1-y[i])*math.Log(1-p+logSmoothing)
	}
	return ll
}

// NullLogLikelihood is the log-likelihood of the intercept-only model
func NullLogLikelihood(y []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	rate := stat.Mean(y, nil)
	ll := 0.0
	for _, v := range y {
		ll += v*math.Log(rate+logSmoothing) + (1-v)*math.Log(1-rate+logSmoothing)
	}
	return ll
}

// LikelihoodRatioP is the chi-square(1) p-value of the fitted model against the null model
func LikelihoodRatioP(fitLL, nullLL float64) float64 {
	lr := 2 * (fitLL - nullLL)
	if lr <= 0 || math.IsNaN(lr) {
		return 1
	}
	return distuv.ChiSquared{K: 1}.Survival(lr)
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
