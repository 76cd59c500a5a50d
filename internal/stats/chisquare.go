// Package stats holds the statistical routines shared by pattern analysis
// and experiment results. Every significance test in the engine goes through
// ChiSquareTest so the offline and live paths cannot drift apart.
package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Alpha is the significance threshold used throughout.
const Alpha = 0.05

// ContingencyTable builds the 2x2 success/failure table for two groups.
// Failures are clamped at zero when successes exceed trials.
func ContingencyTable(successA, trialsA, successB, trialsB int64) [2][2]float64 {
	return [2][2]float64{
		{float64(successA), float64(nonNegative(trialsA - successA))},
		{float64(successB), float64(nonNegative(trialsB - successB))},
	}
}

// ChiSquare2x2 returns Pearson's chi-square statistic for a 2x2 table,
// without continuity correction. A table with an empty row or column has
// no defined statistic and yields 0.
func ChiSquare2x2(table [2][2]float64) float64 {
	var rows, cols [2]float64
	var total float64
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			rows[i] += table[i][j]
			cols[j] += table[i][j]
			total += table[i][j]
		}
	}
	if total == 0 {
		return 0
	}

	var chi2 float64
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			expected := rows[i] * cols[j] / total
			if expected == 0 {
				return 0
			}
			d := table[i][j] - expected
			chi2 += d * d / expected
		}
	}
	return chi2
}

// PValueDF1 returns the upper-tail probability of a chi-square statistic
// with one degree of freedom.
func PValueDF1(chi2 float64) float64 {
	return pValue(chi2, 1)
}

// ChiSquareTest runs the chi-square test of independence on a 2x2 table.
func ChiSquareTest(table [2][2]float64) (chi2, p float64) {
	chi2 = ChiSquare2x2(table)
	return chi2, PValueDF1(chi2)
}

// GoodnessOfFit tests observed counts against a uniform expectation and
// returns the statistic and its p-value with len(observed)-1 degrees of
// freedom.
func GoodnessOfFit(observed []int64) (chi2, p float64) {
	if len(observed) < 2 {
		return 0, 1
	}
	var total int64
	for _, o := range observed {
		total += o
	}
	if total == 0 {
		return 0, 1
	}
	expected := float64(total) / float64(len(observed))
	for _, o := range observed {
		d := float64(o) - expected
		chi2 += d * d / expected
	}
	return chi2, pValue(chi2, float64(len(observed)-1))
}

func pValue(chi2, df float64) float64 {
	if chi2 <= 0 || math.IsNaN(chi2) {
		return 1
	}
	return distuv.ChiSquared{K: df}.Survival(chi2)
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
