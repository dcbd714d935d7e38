package backend

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Resampler converts interleaved PCM between sample rates with linear
// interpolation. It keeps the last frame of the previous block so that
// consecutive calls produce a continuous signal; use one Resampler per stream.
type Resampler struct {
	inputRate  uint32
	outputRate uint32
	channels   int
	last       []int16
	// position is the fractional read position relative to the start of the
	// next input block; -1 <= position < 0 addresses the carried last frame.
	position float64
}

// ResamplerConfig holds configuration for creating a resampler.
type ResamplerConfig struct {
	InputRate  uint32
	OutputRate uint32
	Channels   int
}

// NewResampler creates a resampler for the given conversion.
func NewResampler(config ResamplerConfig) (*Resampler, error) {
	if config.InputRate == 0 || config.OutputRate == 0 {
		return nil, fmt.Errorf("invalid sample rates: input=%d, output=%d", config.InputRate, config.OutputRate)
	}
	if config.Channels < 1 || config.Channels > 2 {
		return nil, fmt.Errorf("unsupported channel count: %d (must be 1 or 2)", config.Channels)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewResampler",
		"input_rate":  config.InputRate,
		"output_rate": config.OutputRate,
		"channels":    config.Channels,
	}).Debug("Creating resampler")

	return &Resampler{
		inputRate:  config.InputRate,
		outputRate: config.OutputRate,
		channels:   config.Channels,
		last:       make([]int16, config.Channels),
	}, nil
}

// Resample converts one block of interleaved samples.
func (r *Resampler) Resample(input []int16) ([]int16, error) {
	if len(input)%r.channels != 0 {
		return nil, fmt.Errorf("input length %d not aligned to %d channels", len(input), r.channels)
	}
	if len(input) == 0 {
		return nil, nil
	}
	if r.inputRate == r.outputRate {
		out := make([]int16, len(input))
		copy(out, input)
		copy(r.last, input[len(input)-r.channels:])
		return out, nil
	}

	ratio := float64(r.inputRate) / float64(r.outputRate)
	frames := len(input) / r.channels
	output := make([]int16, 0, int(float64(frames)/ratio+1)*r.channels)

	for r.position+1 < float64(frames) {
		idx := int(r.position+1) - 1 // floor for positions >= -1
		frac := r.position - float64(idx)
		for ch := 0; ch < r.channels; ch++ {
			a := r.sampleAt(input, idx, ch)
			b := r.sampleAt(input, idx+1, ch)
			output = append(output, int16(float64(a)+(float64(b)-float64(a))*frac))
		}
		r.position += ratio
	}

	r.position -= float64(frames)
	copy(r.last, input[len(input)-r.channels:])
	return output, nil
}

func (r *Resampler) sampleAt(input []int16, frame, ch int) int16 {
	if frame < 0 {
		return r.last[ch]
	}
	return input[frame*r.channels+ch]
}

// InputRate returns the configured input sample rate.
func (r *Resampler) InputRate() uint32 {
	return r.inputRate
}

// OutputRate returns the configured output sample rate.
func (r *Resampler) OutputRate() uint32 {
	return r.outputRate
}

// Reset clears the carried interpolation state.
func (r *Resampler) Reset() {
	for i := range r.last {
		r.last[i] = 0
	}
	r.position = 0
}
