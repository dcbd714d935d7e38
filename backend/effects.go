package backend

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Effect processes interleaved PCM in place.
//
// Effects are applied by a PushStream in slot order while the stream is
// being drained; they are never shared between streams.
type Effect interface {
	// Process applies the effect and returns the processed samples, which
	// may alias the input.
	Process(samples []int16) ([]int16, error)
	// Name returns a human-readable name for the effect.
	Name() string
	Close() error
}

// NewEffect builds the default effect for slot in the given format.
func NewEffect(slot EffectSlot, format Format) (Effect, error) {
	if !slot.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidEffectSlot, slot)
	}
	if format.SampleRate == 0 || format.Channels < 1 {
		return nil, fmt.Errorf("%w: format %+v", ErrInvalidAttribute, format)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewEffect",
		"slot":        slot.String(),
		"sample_rate": format.SampleRate,
		"channels":    format.Channels,
	}).Debug("Creating stream effect")

	switch slot {
	case FXChorus:
		return newDelayEffect("chorus", format, 15, 5, 1.1, 0.0, 0.5), nil
	case FXCompressor:
		return NewCompressorEffect(), nil
	case FXDistortion:
		return NewDistortionEffect(4.0, 0.5)
	case FXEcho:
		return newDelayEffect("echo", format, 250, 0, 0, 0.4, 0.5), nil
	case FXFlanger:
		return newDelayEffect("flanger", format, 2, 2, 0.25, 0.5, 0.5), nil
	case FXGargle:
		return newGargleEffect(format, 20), nil
	case FXI3DL2Reverb:
		return newReverbEffect("i3dl2reverb", format, []float64{29.7, 37.1, 41.1, 43.7}, 0.84, 0.35), nil
	case FXParamEQ:
		return newPeakingEQ(format, 1000, 1.0, 6.0), nil
	default:
		return newReverbEffect("reverb", format, []float64{25.3, 26.9, 28.9, 30.7}, 0.7, 0.3), nil
	}
}

func clip16(v float64) int16 {
	if v > 32767.0 {
		return 32767
	}
	if v < -32768.0 {
		return -32768
	}
	return int16(v)
}

// DistortionEffect drives the signal into a hard clipper.
type DistortionEffect struct {
	drive   float64
	ceiling float64
}

// NewDistortionEffect creates a distortion with the given drive (linear gain
// before clipping, 1.0 to 16.0) and ceiling (clip level as a fraction of
// full scale).
func NewDistortionEffect(drive, ceiling float64) (*DistortionEffect, error) {
	if drive < 1.0 || drive > 16.0 {
		return nil, fmt.Errorf("drive out of range (1.0-16.0): %f", drive)
	}
	if ceiling <= 0 || ceiling > 1.0 {
		return nil, fmt.Errorf("ceiling out of range (0.0-1.0]: %f", ceiling)
	}
	return &DistortionEffect{drive: drive, ceiling: ceiling}, nil
}

// Process implements Effect.
func (d *DistortionEffect) Process(samples []int16) ([]int16, error) {
	limit := d.ceiling * 32767.0
	for i, s := range samples {
		v := float64(s) * d.drive
		if v > limit {
			v = limit
		} else if v < -limit {
			v = -limit
		}
		samples[i] = clip16(v / d.ceiling)
	}
	return samples, nil
}

// Name implements Effect.
func (d *DistortionEffect) Name() string { return fmt.Sprintf("Distortion(%.1f)", d.drive) }

// Close implements Effect.
func (d *DistortionEffect) Close() error { return nil }

// CompressorEffect evens out the level of speech by steering a gain
// toward a target peak level. Fast attack, slow release.
type CompressorEffect struct {
	targetLevel float64
	currentGain float64
	peakLevel   float64
	attackRate  float64
	releaseRate float64
	minGain     float64
	maxGain     float64
}

// NewCompressorEffect creates a compressor with voice-oriented defaults.
func NewCompressorEffect() *CompressorEffect {
	return &CompressorEffect{
		targetLevel: 0.3,
		currentGain: 1.0,
		attackRate:  0.001,
		releaseRate: 0.0001,
		minGain:     0.1,
		maxGain:     4.0,
	}
}

// Process implements Effect.
func (c *CompressorEffect) Process(samples []int16) ([]int16, error) {
	if len(samples) == 0 {
		return samples, nil
	}

	var peak float64
	for _, s := range samples {
		if v := math.Abs(float64(s) / 32768.0); v > peak {
			peak = v
		}
	}
	if peak > c.peakLevel {
		c.peakLevel += (peak - c.peakLevel) * 0.1
	} else {
		c.peakLevel += (peak - c.peakLevel) * 0.01
	}

	desired := c.maxGain
	if c.peakLevel > 0.001 {
		desired = c.targetLevel / c.peakLevel
	}
	desired = math.Max(c.minGain, math.Min(c.maxGain, desired))

	if desired > c.currentGain {
		c.currentGain = math.Min(desired, c.currentGain+c.attackRate*float64(len(samples)))
	} else {
		c.currentGain = math.Max(desired, c.currentGain-c.releaseRate*float64(len(samples)))
	}

	for i, s := range samples {
		samples[i] = clip16(float64(s) * c.currentGain)
	}
	return samples, nil
}

// Gain returns the gain currently applied.
func (c *CompressorEffect) Gain() float64 { return c.currentGain }

// Name implements Effect.
func (c *CompressorEffect) Name() string { return fmt.Sprintf("Compressor(%.2f)", c.currentGain) }

// Close implements Effect.
func (c *CompressorEffect) Close() error { return nil }

// delayEffect is a modulated feedback delay line; chorus, echo and flanger
// are parameterizations of it. The line stores interleaved samples so one
// delay serves every channel.
type delayEffect struct {
	name     string
	channels int
	buf      []float64
	pos      int
	base     float64 // frames
	depth    float64 // frames
	lfoStep  float64
	lfoPhase float64
	feedback float64
	mix      float64
}

func newDelayEffect(name string, format Format, delayMs, depthMs, lfoHz, feedback, mix float64) *delayEffect {
	framesPerMs := float64(format.SampleRate) / 1000.0
	maxFrames := int((delayMs+depthMs)*framesPerMs) + 2
	return &delayEffect{
		name:     name,
		channels: format.Channels,
		buf:      make([]float64, maxFrames*format.Channels),
		base:     delayMs * framesPerMs,
		depth:    depthMs * framesPerMs,
		lfoStep:  2 * math.Pi * lfoHz / float64(format.SampleRate),
		feedback: feedback,
		mix:      mix,
	}
}

func (d *delayEffect) Process(samples []int16) ([]int16, error) {
	n := len(d.buf)
	for i := 0; i+d.channels <= len(samples); i += d.channels {
		delay := d.base + d.depth*(0.5+0.5*math.Sin(d.lfoPhase))
		d.lfoPhase += d.lfoStep
		whole := int(delay)
		frac := delay - float64(whole)
		for ch := 0; ch < d.channels; ch++ {
			r0 := ((d.pos-(whole*d.channels)+ch)%n + n) % n
			r1 := ((r0-d.channels)%n + n) % n
			delayed := d.buf[r0]*(1-frac) + d.buf[r1]*frac
			dry := float64(samples[i+ch])
			d.buf[(d.pos+ch)%n] = dry + delayed*d.feedback
			samples[i+ch] = clip16(dry*(1-d.mix) + delayed*d.mix)
		}
		d.pos = (d.pos + d.channels) % n
	}
	return samples, nil
}

func (d *delayEffect) Name() string { return d.name }

func (d *delayEffect) Close() error { return nil }

// reverbEffect sums parallel feedback combs.
type reverbEffect struct {
	name  string
	combs []*delayEffect
	mix   float64
	wet   []int16
}

func newReverbEffect(name string, format Format, delaysMs []float64, feedback, mix float64) *reverbEffect {
	r := &reverbEffect{name: name, mix: mix}
	for _, ms := range delaysMs {
		r.combs = append(r.combs, newDelayEffect(name, format, ms, 0, 0, feedback, 1.0))
	}
	return r
}

func (r *reverbEffect) Process(samples []int16) ([]int16, error) {
	if cap(r.wet) < len(samples) {
		r.wet = make([]int16, len(samples))
	}
	acc := make([]float64, len(samples))
	for _, c := range r.combs {
		wet := r.wet[:len(samples)]
		copy(wet, samples)
		if _, err := c.Process(wet); err != nil {
			return nil, err
		}
		for i, v := range wet {
			acc[i] += float64(v)
		}
	}
	scale := 1.0 / float64(len(r.combs))
	for i, s := range samples {
		samples[i] = clip16(float64(s)*(1-r.mix) + acc[i]*scale*r.mix)
	}
	return samples, nil
}

func (r *reverbEffect) Name() string { return r.name }

func (r *reverbEffect) Close() error { return nil }

// gargleEffect modulates amplitude with a triangle wave.
type gargleEffect struct {
	channels int
	period   int // frames
	phase    int
}

func newGargleEffect(format Format, rateHz int) *gargleEffect {
	period := int(format.SampleRate) / rateHz
	if period < 2 {
		period = 2
	}
	return &gargleEffect{channels: format.Channels, period: period}
}

func (g *gargleEffect) Process(samples []int16) ([]int16, error) {
	half := g.period / 2
	for i := 0; i+g.channels <= len(samples); i += g.channels {
		tri := float64(g.phase) / float64(half)
		if g.phase >= half {
			tri = 2.0 - tri
		}
		for ch := 0; ch < g.channels; ch++ {
			samples[i+ch] = clip16(float64(samples[i+ch]) * tri)
		}
		g.phase = (g.phase + 1) % g.period
	}
	return samples, nil
}

func (g *gargleEffect) Name() string { return "gargle" }

func (g *gargleEffect) Close() error { return nil }

// peakingEQ is a single RBJ peaking biquad per channel.
type peakingEQ struct {
	channels           int
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     []float64
}

func newPeakingEQ(format Format, centerHz, q, gainDB float64) *peakingEQ {
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * centerHz / float64(format.SampleRate)
	alpha := math.Sin(w0) / (2 * q)
	a0 := 1 + alpha/a
	return &peakingEQ{
		channels: format.Channels,
		b0:       (1 + alpha*a) / a0,
		b1:       -2 * math.Cos(w0) / a0,
		b2:       (1 - alpha*a) / a0,
		a1:       -2 * math.Cos(w0) / a0,
		a2:       (1 - alpha/a) / a0,
		x1:       make([]float64, format.Channels),
		x2:       make([]float64, format.Channels),
		y1:       make([]float64, format.Channels),
		y2:       make([]float64, format.Channels),
	}
}

func (p *peakingEQ) Process(samples []int16) ([]int16, error) {
	for i := range samples {
		ch := i % p.channels
		x := float64(samples[i])
		y := p.b0*x + p.b1*p.x1[ch] + p.b2*p.x2[ch] - p.a1*p.y1[ch] - p.a2*p.y2[ch]
		p.x2[ch], p.x1[ch] = p.x1[ch], x
		p.y2[ch], p.y1[ch] = p.y1[ch], y
		samples[i] = clip16(y)
	}
	return samples, nil
}

func (p *peakingEQ) Name() string { return "parameq" }

func (p *peakingEQ) Close() error { return nil }
