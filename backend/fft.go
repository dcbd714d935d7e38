package backend

import (
	"fmt"
	"math"
)

// fft is an in-place radix-2 Cooley-Tukey transform. len(data) must be a
// power of two.
func fft(data []complex128) {
	n := len(data)
	if n <= 1 {
		return
	}

	for i, j := 0, 0; i < n; i++ {
		if j > i {
			data[i], data[j] = data[j], data[i]
		}
		bit := n >> 1
		for j&bit != 0 {
			j ^= bit
			bit >>= 1
		}
		j ^= bit
	}

	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		step := 2 * math.Pi / float64(size)
		for i := 0; i < n; i += size {
			for j := 0; j < half; j++ {
				u := data[i+j]
				v := data[i+j+half] * complex(math.Cos(float64(j)*step), -math.Sin(float64(j)*step))
				data[i+j] = u + v
				data[i+j+half] = u - v
			}
		}
	}
}

func validFFTLength(n int) bool {
	return n >= 256 && n <= 16384 && n&(n-1) == 0
}

func validWaveLength(n int) bool {
	return n >= 128 && n <= 16384 && n&(n-1) == 0
}

// magnitudeSpectrum returns n/2 normalized magnitude bins of the Hann
// windowed mono signal.
func magnitudeSpectrum(mono []float64, n int) ([]float32, error) {
	if !validFFTLength(n) {
		return nil, fmt.Errorf("%w: fft %d", ErrInvalidDataLength, n)
	}
	data := make([]complex128, n)
	offset := n - len(mono)
	for i := range data {
		if i < offset {
			continue
		}
		w := 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
		data[i] = complex(mono[i-offset]*w, 0)
	}
	fft(data)

	bins := make([]float32, n/2)
	for i := range bins {
		re, im := real(data[i]), imag(data[i])
		bins[i] = float32(math.Sqrt(re*re+im*im) * 2 / float64(n))
	}
	return bins, nil
}
