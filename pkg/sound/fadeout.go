package sound

import (
	"math"
	"time"
)

// FadesOut reports whether the loudness of the last seconds of the track
// decreases steadily, using a linear regression over the RMS envelope.
func (t *Track) FadesOut() bool {
	const (
		rmsWindow = 250 * time.Millisecond
		tail      = 3 * time.Second
		threshold = -0.002
	)
	rms := t.RMS(rmsWindow)
	n := int(tail / rmsWindow)
	if len(rms) < n {
		return false
	}
	y := rms[len(rms)-n:]
	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i)
	}
	slope, _ := linearRegression(x, y)
	return slope < threshold
}

func linearRegression(x, y []float64) (slope, intercept float64) {
	if len(x) != len(y) || len(x) < 2 {
		return math.NaN(), math.NaN()
	}
	var sumX, sumY, sumXY, sumXX float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumXX += x[i] * x[i]
	}
	n := float64(len(x))
	slope = (n*sumXY - sumX*sumY) / (n*sumXX - sumX*sumX)
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}
