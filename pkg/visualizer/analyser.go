package visualizer

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	// FFTSize is the analysis window size in samples.
	FFTSize = 256

	smoothingTimeConstant = 0.8
	minDecibels           = -100.0
	maxDecibels           = -30.0
)

// Analyser is a pass-through node that keeps the most recent samples and
// turns them into byte frequency magnitudes.
type Analyser struct {
	lck      sync.Mutex
	fftSize  int
	fft      *fourier.FFT
	ring     []float64
	next     int
	smoothed []float64
	seq      []float64
	coeffs   []complex128
	closed   bool
}

func NewAnalyser(fftSize int) *Analyser {
	if fftSize <= 0 || fftSize%2 != 0 {
		fftSize = FFTSize
	}
	return &Analyser{
		fftSize:  fftSize,
		fft:      fourier.NewFFT(fftSize),
		ring:     make([]float64, fftSize),
		smoothed: make([]float64, fftSize/2),
		seq:      make([]float64, fftSize),
		coeffs:   make([]complex128, fftSize/2+1),
	}
}

// FrequencyBinCount is half the analysis window size.
func (a *Analyser) FrequencyBinCount() int {
	return a.fftSize / 2
}

// Process records the frame and returns it untouched.
func (a *Analyser) Process(frame []float64) []float64 {
	a.lck.Lock()
	defer a.lck.Unlock()
	if a.closed {
		return frame
	}
	for _, v := range frame {
		a.ring[a.next] = v
		a.next = (a.next + 1) % a.fftSize
	}
	return frame
}

// ByteFrequencyData fills dst with the current magnitudes scaled to 0-255
// and returns the number of bins written.
func (a *Analyser) ByteFrequencyData(dst []byte) int {
	a.lck.Lock()
	defer a.lck.Unlock()

	n := len(dst)
	if bins := a.fftSize / 2; n > bins {
		n = bins
	}
	if a.closed {
		for i := 0; i < n; i++ {
			dst[i] = 0
		}
		return n
	}

	// Oldest sample first
	for i := 0; i < a.fftSize; i++ {
		a.seq[i] = a.ring[(a.next+i)%a.fftSize]
	}
	window.Blackman(a.seq)
	a.coeffs = a.fft.Coefficients(a.coeffs, a.seq)

	scale := 1.0 / float64(a.fftSize)
	for k := range a.smoothed {
		mag := cmplx.Abs(a.coeffs[k]) * scale
		a.smoothed[k] = smoothingTimeConstant*a.smoothed[k] + (1-smoothingTimeConstant)*mag
	}
	for i := 0; i < n; i++ {
		dst[i] = toByte(a.smoothed[i])
	}
	return n
}

func toByte(mag float64) byte {
	if mag <= 0 {
		return 0
	}
	db := 20 * math.Log10(mag)
	v := 255 * (db - minDecibels) / (maxDecibels - minDecibels)
	switch {
	case v <= 0 || math.IsNaN(v):
		return 0
	case v >= 255:
		return 255
	default:
		return byte(v)
	}
}

// Close releases the analyser. A closed analyser reports silence.
func (a *Analyser) Close() {
	a.lck.Lock()
	defer a.lck.Unlock()
	a.closed = true
}
