package stats

import "math"

const (
	// ConfidenceThreshold is the percentage above which a result is declared
	// significant.
	ConfidenceThreshold = 95.0

	// liftFloor keeps the lift denominator away from zero when the control
	// rate is zero.
	liftFloor = 0.001
)

// ZTest runs a pooled two-proportion z-test. Returns the z statistic and the
// two-tailed confidence percentage (0-100). Confidence comes from the
// standard normal CDF; zero samples or a degenerate pooled proportion yield
// z=0, confidence=0.
func ZTest(convA, nA, convB, nB int) (z, confidence float64) {
	if nA == 0 || nB == 0 {
		return 0, 0
	}

	pA := float64(convA) / float64(nA)
	pB := float64(convB) / float64(nB)

	pooled := float64(convA+convB) / float64(nA+nB)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(nA) + 1/float64(nB)))
	if se == 0 {
		return 0, 0
	}

	z = (pA - pB) / se
	pValue := 2 * (1 - NormalCDF(math.Abs(z)))
	confidence = (1 - pValue) * 100
	if confidence < 0 {
		confidence = 0
	}
	return z, confidence
}

// Lift is the relative change of rateB over rateA, as a percentage.
func Lift(rateA, rateB float64) float64 {
	return (rateB - rateA) / math.Max(rateA, liftFloor) * 100
}
