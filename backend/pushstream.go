package backend

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// historyFrames is how much played audio is retained for FFT, wave and
// level queries.
const historyFrames = 16384

type fxInstance struct {
	slot   EffectSlot
	effect Effect
}

// PushStream is a push-mode output queue with BASS-style attributes.
//
// Producers call Push; the output device drains the queue through Read,
// which applies playback speed, effects, volume and pan. All methods are
// safe for concurrent use.
type PushStream struct {
	mu      sync.Mutex
	format  Format
	queue   []int16
	playing bool
	closed  bool

	attrs     map[Attribute]float32
	resampler *Resampler

	// played and pushed are byte counts of 16-bit PCM.
	played int64
	pushed int64

	fx     map[FXHandle]fxInstance
	nextFX FXHandle

	history  []int16
	histPos  int
	histFull bool
}

// NewPushStream creates a stopped stream in the given format.
func NewPushStream(format Format) *PushStream {
	return &PushStream{
		format: format,
		attrs: map[Attribute]float32{
			AttribVolume:     1.0,
			AttribPan:        0,
			AttribFreq:       float32(format.SampleRate),
			AttribTempo:      0,
			AttribTempoPitch: 0,
			AttribTempoFreq:  float32(format.SampleRate),
		},
		fx:      make(map[FXHandle]fxInstance),
		nextFX:  1,
		history: make([]int16, historyFrames*format.Channels),
	}
}

// Format returns the stream format.
func (s *PushStream) Format() Format {
	return s.format
}

// Push implements PlaybackStream.
func (s *PushStream) Push(pcm []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.queue = append(s.queue, pcm...)
	s.pushed += int64(len(pcm)) * 2
	return nil
}

// Play implements PlaybackStream.
func (s *PushStream) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.playing = true
	return nil
}

// Pause implements PlaybackStream.
func (s *PushStream) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.playing = false
	return nil
}

// Playing reports whether the stream is being drained.
func (s *PushStream) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Close implements PlaybackStream. It is idempotent.
func (s *PushStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.playing = false
	s.queue = nil
	for h, inst := range s.fx {
		_ = inst.effect.Close()
		delete(s.fx, h)
	}
	return nil
}

// Queued returns a copy of the samples waiting to be played.
func (s *PushStream) Queued() []int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int16, len(s.queue))
	copy(out, s.queue)
	return out
}

// Attribute implements PlaybackStream.
func (s *PushStream) Attribute(attr Attribute) (float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attrs[attr]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrInvalidAttribute, attr)
	}
	return v, nil
}

// SetAttribute implements PlaybackStream.
func (s *PushStream) SetAttribute(attr Attribute, value float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	if _, ok := s.attrs[attr]; !ok {
		return fmt.Errorf("%w: %d", ErrInvalidAttribute, attr)
	}

	switch attr {
	case AttribVolume:
		if value < 0 {
			return fmt.Errorf("%w: volume %f", ErrInvalidAttribute, value)
		}
	case AttribPan:
		if value < -1 || value > 1 {
			return fmt.Errorf("%w: pan %f", ErrInvalidAttribute, value)
		}
	case AttribFreq:
		if value < 100 || value > 200000 {
			return fmt.Errorf("%w: freq %f", ErrInvalidAttribute, value)
		}
		if uint32(value) != s.format.SampleRate {
			r, err := NewResampler(ResamplerConfig{
				InputRate:  uint32(value),
				OutputRate: s.format.SampleRate,
				Channels:   s.format.Channels,
			})
			if err != nil {
				return err
			}
			s.resampler = r
		} else {
			s.resampler = nil
		}
	}

	s.attrs[attr] = value
	return nil
}

// Position implements PlaybackStream.
func (s *PushStream) Position() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.played, nil
}

// SetPosition skips queued audio up to pos. Already played audio cannot be
// revisited; positions beyond the pushed data are clamped.
func (s *PushStream) SetPosition(pos int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	if pos < s.played {
		return fmt.Errorf("%w: %d < %d", ErrNotSeekable, pos, s.played)
	}
	if pos > s.pushed {
		pos = s.pushed
	}
	align := int64(s.format.Channels) * 2
	skip := int((pos - s.played) / align * int64(s.format.Channels))
	s.queue = s.queue[skip:]
	s.played += int64(skip) * 2
	return nil
}

// Length implements PlaybackStream.
func (s *PushStream) Length() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushed, nil
}

// BytesToSeconds implements PlaybackStream.
func (s *PushStream) BytesToSeconds(n int64) float64 {
	return float64(n) / float64(s.format.BytesPerSecond())
}

// SecondsToBytes implements PlaybackStream. The result is frame aligned.
func (s *PushStream) SecondsToBytes(sec float64) int64 {
	align := int64(s.format.Channels) * 2
	n := int64(sec * float64(s.format.BytesPerSecond()))
	return n / align * align
}

// SetFX implements PlaybackStream.
func (s *PushStream) SetFX(slot EffectSlot, priority int) (FXHandle, error) {
	effect, err := NewEffect(slot, s.format)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = effect.Close()
		return 0, ErrStreamClosed
	}
	h := s.nextFX
	s.nextFX++
	s.fx[h] = fxInstance{slot: slot, effect: effect}

	logrus.WithFields(logrus.Fields{
		"function": "PushStream.SetFX",
		"slot":     slot.String(),
		"handle":   h,
		"priority": priority,
	}).Debug("Effect applied to stream")

	return h, nil
}

// RemoveFX implements PlaybackStream.
func (s *PushStream) RemoveFX(h FXHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.fx[h]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownEffect, h)
	}
	delete(s.fx, h)
	return inst.effect.Close()
}

// ActiveFX returns the slots that currently have an effect applied.
func (s *PushStream) ActiveFX() []EffectSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	slots := make([]EffectSlot, 0, len(s.fx))
	for _, inst := range s.fx {
		slots = append(slots, inst.slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	return slots
}

// Read drains up to len(out) interleaved samples into out and returns how
// many were produced. The rest of out is zeroed. A paused or closed stream
// produces silence.
func (s *PushStream) Read(out []int16) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := s.format.Channels
	want := len(out) / ch * ch
	produced := 0

	if s.playing && !s.closed && want > 0 && len(s.queue) > 0 {
		block := s.takeLocked(want)
		block = s.applyFXLocked(block)
		produced = copy(out[:want], block)
		s.mixLocked(out[:produced])
		s.recordLocked(out[:produced])
	}

	for i := produced; i < len(out); i++ {
		out[i] = 0
	}
	return produced
}

// takeLocked removes enough queued samples to produce want output samples
// at the current playback frequency.
func (s *PushStream) takeLocked(want int) []int16 {
	ch := s.format.Channels
	need := want
	if s.resampler != nil {
		freq := float64(s.attrs[AttribFreq])
		frames := int(float64(want/ch)*freq/float64(s.format.SampleRate) + 0.5)
		if frames < 1 {
			frames = 1
		}
		need = frames * ch
	}
	if need > len(s.queue) {
		need = len(s.queue) / ch * ch
	}

	block := make([]int16, need)
	copy(block, s.queue[:need])
	s.queue = s.queue[need:]
	s.played += int64(need) * 2

	if s.resampler != nil {
		resampled, err := s.resampler.Resample(block)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "PushStream.takeLocked",
				"error":    err.Error(),
			}).Warn("Resampling failed, playing at native rate")
			return block
		}
		return resampled
	}
	return block
}

func (s *PushStream) applyFXLocked(block []int16) []int16 {
	if len(s.fx) == 0 {
		return block
	}
	handles := make([]FXHandle, 0, len(s.fx))
	for h := range s.fx {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool {
		return s.fx[handles[i]].slot < s.fx[handles[j]].slot
	})
	for _, h := range handles {
		processed, err := s.fx[h].effect.Process(block)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "PushStream.applyFXLocked",
				"effect":   s.fx[h].effect.Name(),
				"error":    err.Error(),
			}).Warn("Effect processing failed, skipping")
			continue
		}
		block = processed
	}
	return block
}

func (s *PushStream) mixLocked(block []int16) {
	vol := float64(s.attrs[AttribVolume])
	left, right := vol, vol
	if s.format.Channels == 2 {
		pan := float64(s.attrs[AttribPan])
		if pan > 0 {
			left *= 1 - pan
		} else {
			right *= 1 + pan
		}
	}
	for i := range block {
		g := left
		if s.format.Channels == 2 && i%2 == 1 {
			g = right
		}
		block[i] = clip16(float64(block[i]) * g)
	}
}

func (s *PushStream) recordLocked(block []int16) {
	for _, v := range block {
		s.history[s.histPos] = v
		s.histPos++
		if s.histPos == len(s.history) {
			s.histPos = 0
			s.histFull = true
		}
	}
}

// recentLocked returns the last n interleaved samples of played audio,
// oldest first. Fewer are returned if less audio has been played.
func (s *PushStream) recentLocked(n int) []int16 {
	avail := s.histPos
	if s.histFull {
		avail = len(s.history)
	}
	if n > avail {
		n = avail
	}
	out := make([]int16, n)
	start := s.histPos - n
	for i := 0; i < n; i++ {
		idx := start + i
		if idx < 0 {
			idx += len(s.history)
		}
		out[i] = s.history[idx]
	}
	return out
}

// FFT implements PlaybackStream.
func (s *PushStream) FFT(n int) ([]float32, error) {
	if !validFFTLength(n) {
		return nil, fmt.Errorf("%w: fft %d", ErrInvalidDataLength, n)
	}
	s.mu.Lock()
	ch := s.format.Channels
	recent := s.recentLocked(n * ch)
	s.mu.Unlock()

	mono := make([]float64, len(recent)/ch)
	for i := range mono {
		var sum float64
		for c := 0; c < ch; c++ {
			sum += float64(recent[i*ch+c])
		}
		mono[i] = sum / float64(ch) / 32768.0
	}
	return magnitudeSpectrum(mono, n)
}

// Wave implements PlaybackStream.
func (s *PushStream) Wave(n int) ([]float32, error) {
	if !validWaveLength(n) {
		return nil, fmt.Errorf("%w: wave %d", ErrInvalidDataLength, n)
	}
	s.mu.Lock()
	recent := s.recentLocked(n)
	s.mu.Unlock()

	out := make([]float32, n)
	offset := n - len(recent)
	for i, v := range recent {
		out[offset+i] = float32(v) / 32768.0
	}
	return out, nil
}

// Level implements PlaybackStream using the last 20ms of played audio.
func (s *PushStream) Level() uint32 {
	s.mu.Lock()
	ch := s.format.Channels
	recent := s.recentLocked(s.format.FrameSize() * ch)
	s.mu.Unlock()

	var left, right uint32
	for i, v := range recent {
		a := int32(v)
		if a < 0 {
			a = -a
		}
		if ch == 2 && i%2 == 1 {
			right = max(right, uint32(a))
		} else {
			left = max(left, uint32(a))
		}
	}
	if ch == 1 {
		right = left
	}
	return left | right<<16
}
