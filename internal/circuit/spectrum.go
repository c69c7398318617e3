package circuit

import (
	"fmt"
	"math"
	"math/cmplx"
)

// LogSpace returns a descending log-spaced frequency axis from maxF to minF
// with perDecade points per decade, both ends included.
func LogSpace(minF, maxF float64, perDecade int) ([]float64, error) {
	if !(minF > 0) || !(maxF >= minF) || perDecade < 1 {
		return nil, fmt.Errorf("circuit: invalid frequency range %g..%g (%d/decade)", minF, maxF, perDecade)
	}
	if minF == maxF {
		return []float64{maxF}, nil
	}
	hi, lo := math.Log10(maxF), math.Log10(minF)
	n := int(math.Round((hi-lo)*float64(perDecade))) + 1
	if n < 2 {
		n = 2
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = math.Pow(10, hi-float64(i)*step)
	}
	out[0], out[n-1] = maxF, minF
	return out, nil
}

// Residuals returns the relative residuals (data - model) / |data| split into
// real and imaginary parts.
func Residuals(data, model []complex128) ([]float64, []float64, error) {
	if len(data) != len(model) {
		return nil, nil, fmt.Errorf("circuit: residuals need equal lengths (%d != %d)", len(data), len(model))
	}
	re := make([]float64, len(data))
	im := make([]float64, len(data))
	for i := range data {
		mag := cmplx.Abs(data[i])
		if mag == 0 {
			continue
		}
		d := data[i] - model[i]
		re[i] = real(d) / mag
		im[i] = imag(d) / mag
	}
	return re, im, nil
}

// Split separates complex values into real and imaginary arrays.
func Split(z []complex128) ([]float64, []float64) {
	re := make([]float64, len(z))
	im := make([]float64, len(z))
	for i, v := range z {
		re[i], im[i] = real(v), imag(v)
	}
	return re, im
}

// Join combines real and imaginary arrays into complex values.
func Join(re, im []float64) []complex128 {
	out := make([]complex128, len(re))
	for i := range re {
		out[i] = complex(re[i], im[i])
	}
	return out
}
