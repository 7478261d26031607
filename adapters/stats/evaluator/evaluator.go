package evaluator

import (
	"time"

	"combolift/adapters/stats/logistic"
	"combolift/domain/combo"

	"gonum.org/v1/gonum/stat"
)

// Evaluator scores combinations against one population.
// Everything it holds is read-only after construction, so a single
// Evaluator is safe to share between search workers.
type Evaluator struct {
	pop         *combo.Population
	fitter      *logistic.Fitter
	y           []float64
	overallRate float64
	nullLL      float64
	now         func() time.Time
}

// New prepares the outcome vector and population-wide rates once per run
func New(pop *combo.Population, maxIterations int) *Evaluator {
	y := pop.Outcomes()
	overall := 0.0
	if len(y) > 0 {
		overall = stat.Mean(y, nil)
	}
	return &Evaluator{
		pop:         pop,
		fitter:      logistic.NewFitter(maxIterations),
		y:           y,
		overallRate: overall,
		nullLL:      logistic.NullLogLikelihood(y),
		now:         time.Now,
	}
}

// OverallConversionRate is mean(y) over the whole population
func (e *Evaluator) OverallConversionRate() float64 {
	return e.overallRate
}

// confusion counts use the raw both-exposed indicator as the predicted label
type confusion struct {
	tp, fp, tn, fn int
}

func (c confusion) precision() float64 {
	if c.tp+c.fp == 0 {
		return 0
	}
	return float64(c.tp) / float64(c.tp+c.fp)
}

func (c confusion) recall() float64 {
	if c.tp+c.fn == 0 {
		return 0
	}
	return float64(c.tp) / float64(c.tp+c.fn)
}

// Evaluate fits and scores one combination. None of it can fail;
// every ratio with an empty denominator is reported as 0.
func (e *Evaluator) Evaluate(c combo.Combination) combo.CombinationResult {
	users := e.pop.Users()
	x := make([]float64, len(users))

	var cm confusion
	var views1, views2, outcomes int
	for i, u := range users {
		exposed := u.ExposedToBoth(c)
		converted := e.y[i] == 1
		if exposed {
			x[i] = 1
			views1 += u.Exposures[c.A]
			views2 += u.Exposures[c.B]
			outcomes += u.OutcomeTotal
		}
		switch {
		case exposed && converted:
			cm.tp++
		case exposed && !converted:
			cm.fp++
		case !exposed && converted:
			cm.fn++
		default:
			cm.tn++
		}
	}

	fit := e.fitter.Fit(x, e.y)

	exposedTotal := cm.tp + cm.fp
	groupRate := 0.0
	if exposedTotal > 0 {
		groupRate = float64(cm.tp) / float64(exposedTotal)
	}
	lift := 0.0
	if e.overallRate > 0 {
		lift = groupRate / e.overallRate
	}

	return combo.CombinationResult{
		Combination:           c,
		Beta0:                 fit.Beta0,
		Beta1:                 fit.Beta1,
		Iterations:            fit.Iterations,
		LogLikelihood:         fit.LogLikelihood,
		AIC:                   fit.AIC(),
		OddsRatio:             fit.OddsRatio(),
		LikelihoodRatioP:      logistic.LikelihoodRatioP(fit.LogLikelihood, e.nullLL),
		Precision:             cm.precision(),
		Recall:                cm.recall(),
		Lift:                  lift,
		UsersWithExposure:     exposedTotal,
		ConversionRateInGroup: groupRate,
		OverallConversionRate: e.overallRate,
		TotalConversions:      cm.tp,
		TotalViews1:           views1,
		TotalViews2:           views2,
		TotalOutcomes:         outcomes,
		AnalyzedAt:            e.now().UTC(),
	}
}
