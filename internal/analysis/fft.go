package analysis

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Spectrum returns the one-sided amplitude spectrum of values sampled
// every dt seconds, with the mean removed. freqs are in hertz.
func Spectrum(values []float64, dt float64) (freqs, amplitude []float64) {
	n := len(values)
	if n < 2 || dt <= 0 {
		return nil, nil
	}
	mean := stat.Mean(values, nil)
	seq := make([]float64, n)
	for i, v := range values {
		seq[i] = v - mean
	}

	fft := fourier.NewFFT(n)
	coeff := fft.Coefficients(nil, seq)
	freqs = make([]float64, len(coeff))
	amplitude = make([]float64, len(coeff))
	for i, c := range coeff {
		freqs[i] = fft.Freq(i) / dt
		amplitude[i] = cmplx.Abs(c) / float64(n)
	}
	return freqs, amplitude
}

// Dominant is the strongest non-zero frequency and its amplitude.
func Dominant(values []float64, dt float64) (freq, amplitude float64) {
	freqs, amp := Spectrum(values, dt)
	if len(amp) < 2 {
		return 0, 0
	}
	k := floats.MaxIdx(amp[1:]) + 1
	return freqs[k], amp[k]
}

// Chatter is the fraction of spectral power above cutoff hertz, in [0, 1].
// A constant trace has none.
func Chatter(values []float64, dt, cutoff float64) float64 {
	freqs, amp := Spectrum(values, dt)
	total, high := 0.0, 0.0
	for i := 1; i < len(amp); i++ {
		p := amp[i] * amp[i]
		total += p
		if freqs[i] > cutoff {
			high += p
		}
	}
	if total < 1e-18 || math.IsNaN(total) {
		return 0
	}
	return high / total
}
