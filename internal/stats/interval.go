package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Z95 is the two-sided critical value for 95% confidence.
const Z95 = 1.96

// ZScore returns the two-sided critical value for a confidence level.
//   - 0.90 -> 1.645
//   - 0.95 -> 1.96
//   - 0.99 -> 2.576
func ZScore(confidence float64) float64 {
	if confidence <= 0 || confidence >= 1 {
		return Z95
	}
	return distuv.UnitNormal.Quantile(1 - (1-confidence)/2)
}

// Rate returns successes / trials, or 0 with no trials.
func Rate(successes, trials int64) float64 {
	if trials <= 0 {
		return 0
	}
	return float64(successes) / float64(trials)
}

// ProportionCI is the normal-approximation interval for a proportion,
// clamped to [0, 1].
func ProportionCI(successes, trials int64, z float64) (lower, upper float64) {
	if trials <= 0 {
		return 0, 0
	}
	p := Rate(successes, trials)
	margin := z * math.Sqrt(p*(1-p)/float64(trials))
	return clamp01(p - margin), clamp01(p + margin)
}

// WilsonInterval calculates the Wilson score interval for a binomial
// proportion. It behaves better than ProportionCI on small samples.
func WilsonInterval(successes, trials int64, z float64) (lower, upper float64) {
	if trials <= 0 {
		return 0, 0
	}
	p := Rate(successes, trials)
	n := float64(trials)

	denominator := 1 + z*z/n
	center := (p + z*z/(2*n)) / denominator
	spread := (z / denominator) * math.Sqrt(p*(1-p)/n+z*z/(4*n*n))

	return clamp01(center - spread), clamp01(center + spread)
}

// Lift returns the relative change of the variant rate over the baseline
// rate in percent, or 0 when the baseline is 0.
func Lift(baselineRate, variantRate float64) float64 {
	if baselineRate == 0 {
		return 0
	}
	return (variantRate - baselineRate) / baselineRate * 100
}

// LiftCI is the interval for Lift, in percent. The difference of the two
// proportions gets a normal-approximation interval which is then scaled by
// the baseline rate.
func LiftCI(baseSuccess, baseTrials, varSuccess, varTrials int64, z float64) (lower, upper float64) {
	if baseTrials <= 0 || varTrials <= 0 {
		return 0, 0
	}
	p1 := Rate(baseSuccess, baseTrials)
	p2 := Rate(varSuccess, varTrials)
	if p1 == 0 {
		return 0, 0
	}
	se := math.Sqrt(p1*(1-p1)/float64(baseTrials) + p2*(1-p2)/float64(varTrials))
	diff := p2 - p1
	return (diff - z*se) / p1 * 100, (diff + z*se) / p1 * 100
}

// UpliftCI is the interval used for content-element uplift, with standard
// error sqrt(1/nWith + 1/nWithout).
func UpliftCI(uplift float64, nWith, nWithout int64, z float64) (lower, upper float64) {
	if nWith <= 0 || nWithout <= 0 {
		return uplift, uplift
	}
	se := math.Sqrt(1/float64(nWith) + 1/float64(nWithout))
	return uplift - z*se, uplift + z*se
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
