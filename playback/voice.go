// Package playback decodes remote voice and plays it through one output
// stream per voice source.
//
// A Voice owns its decoder and stream exclusively. Its mutex is never held
// while a notification is raised, so handlers may query or modify the voice
// they were raised for.
package playback

import (
	"sync"

	"github.com/opd-ai/gamevoice/backend"
	"github.com/opd-ai/gamevoice/events"
	"github.com/opd-ai/gamevoice/limits"
	"github.com/sirupsen/logrus"
)

const (
	reasonPaused  = "paused"
	reasonResumed = "resumed"
)

// VolumeSource supplies the two user volume settings. Both are read by
// value on every Tick.
type VolumeSource interface {
	VoiceVolume() float32
	MasterVolume() float32
}

// Options describes the source a Voice plays.
type Options struct {
	// IsLocal marks the local player's own voice, which is muted unless
	// DebugLocalPlayback is set. It can be changed later with SetLocal.
	IsLocal            bool
	DebugLocalPlayback bool
	// Name is used in log messages only.
	Name string
}

type fxSlot struct {
	enabled bool
	handle  backend.FXHandle
}

// Voice is the playback session of one voice source.
type Voice struct {
	mu sync.Mutex

	source   uint32
	format   backend.Format
	settings VolumeSource
	notifier events.Notifier
	opts     Options

	stream  backend.PlaybackStream
	decoder backend.Decoder
	pcm     []int16

	voiceActive bool
	paused      bool
	local       bool

	volume      float32
	volumeScale float32

	speed       float32
	defaultFreq float32

	fxSampleRate float32
	fxTempo      float32
	fxPitch      float32

	pan        float32
	panEnabled bool

	fx [backend.NumEffectSlots]fxSlot
}

// New opens an output stream and a decoder in format, which is the format
// negotiated by the local capture session. Failures are logged: without a
// stream every stream accessor reports failure, without a decoder incoming
// frames are dropped.
func New(source uint32, format backend.Format, b backend.Backend, settings VolumeSource, notifier events.Notifier, opts Options) *Voice {
	if notifier == nil {
		notifier = events.Nop
	}
	v := &Voice{
		source:       source,
		format:       format,
		settings:     settings,
		notifier:     notifier,
		opts:         opts,
		pcm:          make([]int16, limits.MaxFrameSamples),
		volume:       1.0,
		speed:        1.0,
		defaultFreq:  float32(format.SampleRate),
		fxSampleRate: float32(format.SampleRate),
		panEnabled:   true,
	}
	v.volumeScale = v.readScale()
	v.local = opts.IsLocal

	stream, err := b.OpenPlayback(format)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "playback.New",
			"source":      source,
			"name":        opts.Name,
			"sample_rate": format.SampleRate,
			"channels":    format.Channels,
			"error":       err.Error(),
		}).Error("Failed to open playback stream")
	} else {
		v.stream = stream
		if freq, err := stream.Attribute(backend.AttribFreq); err == nil {
			v.defaultFreq = freq
		}
		v.applyVolumeLocked()
		if err := stream.Play(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "playback.New",
				"source":   source,
				"error":    err.Error(),
			}).Warn("Failed to start playback stream")
		}
	}

	decoder, err := b.NewDecoder(format)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "playback.New",
			"source":      source,
			"name":        opts.Name,
			"sample_rate": format.SampleRate,
			"channels":    format.Channels,
			"error":       err.Error(),
		}).Error("Failed to create decoder, voice data will be dropped")
	} else {
		v.decoder = decoder
	}

	logrus.WithFields(logrus.Fields{
		"function":    "playback.New",
		"source":      source,
		"name":        opts.Name,
		"sample_rate": format.SampleRate,
		"channels":    format.Channels,
		"volume":      v.effectiveVolumeLocked(),
		"local":       v.local,
	}).Info("Voice playback created")

	return v
}

func (v *Voice) muted() bool {
	return v.local && !v.opts.DebugLocalPlayback
}

// effectiveVolumeLocked is the volume applied to the stream.
func (v *Voice) effectiveVolumeLocked() float32 {
	if v.muted() {
		return 0
	}
	return v.volume * v.volumeScale
}

func (v *Voice) readScale() float32 {
	if v.settings == nil {
		return 1.0
	}
	return v.settings.VoiceVolume() * v.settings.MasterVolume()
}

func (v *Voice) applyVolumeLocked() {
	if v.stream == nil {
		return
	}
	volume := v.effectiveVolumeLocked()
	if err := v.stream.SetAttribute(backend.AttribVolume, volume); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Voice.applyVolume",
			"source":   v.source,
			"volume":   volume,
			"error":    err.Error(),
		}).Warn("Failed to apply volume")
	}
}

// Close releases the stream and the decoder. It is idempotent.
func (v *Voice) Close() {
	v.mu.Lock()
	stream := v.stream
	decoder := v.decoder
	v.stream = nil
	v.decoder = nil
	v.mu.Unlock()

	if stream != nil {
		_ = stream.Close()
	}
	if decoder != nil {
		_ = decoder.Close()
	}
}

// Source returns the id of the voice source.
func (v *Voice) Source() uint32 {
	return v.source
}

// Tick picks up changes to the volume settings.
func (v *Voice) Tick() {
	scale := v.readScale()

	v.mu.Lock()
	defer v.mu.Unlock()
	if scale == v.volumeScale {
		return
	}
	v.volumeScale = scale
	v.applyVolumeLocked()
}

// SetLocal marks whether the source is the local player. The local
// player's own voice is silent unless debug playback is enabled.
func (v *Voice) SetLocal(local bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.local == local {
		return
	}
	v.local = local
	v.applyVolumeLocked()
}

// IsLocal reports whether the source is the local player.
func (v *Voice) IsLocal() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.local
}

// DecodeAndEnqueue decodes one encoded frame and queues it for playback.
// The frame is dropped when the voice-start notification is cancelled or
// no decoder is available.
func (v *Voice) DecodeAndEnqueue(data []byte) {
	if !v.SetVoiceActive(true) {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.decoder == nil {
		return
	}

	n, err := v.decoder.Decode(data, v.pcm)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Voice.DecodeAndEnqueue",
			"source":   v.source,
			"size":     len(data),
			"error":    err.Error(),
		}).Debug("Failed to decode voice frame")
		return
	}
	if v.stream == nil {
		return
	}
	if err := v.stream.Push(v.pcm[:n*v.format.Channels]); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Voice.DecodeAndEnqueue",
			"source":   v.source,
			"error":    err.Error(),
		}).Debug("Failed to queue decoded samples")
	}
}

// SetVoiceActive raises the per-player voice-start or voice-stop
// notification on each edge and returns the resulting state. A cancelled
// voice-start leaves the voice inactive.
func (v *Voice) SetVoiceActive(active bool) bool {
	v.mu.Lock()
	if v.voiceActive == active {
		v.mu.Unlock()
		return active
	}
	v.mu.Unlock()

	if active {
		if !v.notifier.Raise(events.PlayerVoiceStart, v.source) {
			return false
		}
	} else {
		v.notifier.Raise(events.PlayerVoiceStop, v.source)
	}

	v.mu.Lock()
	v.voiceActive = active
	v.mu.Unlock()
	return active
}

// VoiceActive reports whether the source is currently speaking.
func (v *Voice) VoiceActive() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.voiceActive
}

// PlayPosition returns the stream position in seconds.
func (v *Voice) PlayPosition() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stream == nil {
		return 0
	}
	pos, err := v.stream.Position()
	if err != nil {
		return 0
	}
	return v.stream.BytesToSeconds(pos)
}

// SetPlayPosition seeks to seconds, clamped to the queued data.
func (v *Voice) SetPlayPosition(seconds float64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stream == nil {
		return false
	}

	length, err := v.stream.Length()
	if err != nil {
		return false
	}
	pos := v.stream.SecondsToBytes(seconds)
	if pos > length-1 {
		pos = length - 1
	}
	if pos < 0 {
		pos = 0
	}

	if err := v.stream.SetPosition(pos); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Voice.SetPlayPosition",
			"source":   v.source,
			"position": pos,
			"error":    err.Error(),
		}).Debug("Seek rejected")
		return false
	}
	return true
}

// Length returns the amount of audio queued so far in seconds.
func (v *Voice) Length() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stream == nil {
		return 0
	}
	length, err := v.stream.Length()
	if err != nil {
		return 0
	}
	return v.stream.BytesToSeconds(length)
}

// Volume returns the per-source volume, before the settings scale.
func (v *Voice) Volume() float32 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.volume
}

// SetVolume sets the per-source volume. The local player's own voice stays
// silent unless debug playback is enabled.
func (v *Voice) SetVolume(volume float32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.volume = volume
	v.applyVolumeLocked()
}

// PlaybackSpeed returns the speed multiplier.
func (v *Voice) PlaybackSpeed() float32 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.speed
}

// SetPlaybackSpeed plays the stream at speed times its default frequency.
func (v *Voice) SetPlaybackSpeed(speed float32) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.speed = speed
	if v.stream == nil {
		return false
	}
	if err := v.stream.SetAttribute(backend.AttribFreq, speed*v.defaultFreq); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Voice.SetPlaybackSpeed",
			"source":   v.source,
			"speed":    speed,
			"error":    err.Error(),
		}).Debug("Playback speed rejected")
		return false
	}
	return true
}

// ApplyFXModifications sets the tempo-stage sample rate, tempo and pitch.
// Only values that differ from the current ones reach the stream. Reversed
// playback is not supported for voice.
func (v *Voice) ApplyFXModifications(sampleRate, tempo, pitch float32, reversed bool) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stream == nil {
		v.fxSampleRate, v.fxTempo, v.fxPitch = sampleRate, tempo, pitch
		return false
	}

	ok := true
	apply := func(attr backend.Attribute, current *float32, value float32) {
		if value == *current {
			return
		}
		if err := v.stream.SetAttribute(attr, value); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "Voice.ApplyFXModifications",
				"source":    v.source,
				"attribute": attr.String(),
				"value":     value,
				"error":     err.Error(),
			}).Debug("Attribute rejected")
			ok = false
			return
		}
		*current = value
	}
	apply(backend.AttribTempo, &v.fxTempo, tempo)
	apply(backend.AttribTempoPitch, &v.fxPitch, pitch)
	apply(backend.AttribTempoFreq, &v.fxSampleRate, sampleRate)
	return ok
}

// FXModifications returns the values last applied by ApplyFXModifications.
// ok is false when there is no stream.
func (v *Voice) FXModifications() (sampleRate, tempo, pitch float32, reversed, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stream == nil {
		return 0, 0, 0, false, false
	}
	return v.fxSampleRate, v.fxTempo, v.fxPitch, false, true
}

// Pan returns the stream pan in [-1, 1].
func (v *Voice) Pan() (float32, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stream == nil {
		return 0, false
	}
	pan, err := v.stream.Attribute(backend.AttribPan)
	if err != nil {
		return 0, false
	}
	return pan, true
}

// SetPan sets the pan. While panning is disabled the value is kept and
// applied when it is enabled again.
func (v *Voice) SetPan(pan float32) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stream == nil {
		return false
	}
	if pan < -1 || pan > 1 {
		return false
	}
	v.pan = pan
	if !v.panEnabled {
		return true
	}
	return v.stream.SetAttribute(backend.AttribPan, pan) == nil
}

// PanEnabled reports whether the pan setting is applied.
func (v *Voice) PanEnabled() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.panEnabled
}

// SetPanEnabled toggles panning; disabled panning centers the voice.
func (v *Voice) SetPanEnabled(enabled bool) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stream == nil {
		return false
	}
	v.panEnabled = enabled
	pan := float32(0)
	if enabled {
		pan = v.pan
	}
	return v.stream.SetAttribute(backend.AttribPan, pan) == nil
}

// SetFXEffect enables or disables the effect in slot and reconciles the
// stream with the enabled set. It returns false for an unknown slot.
func (v *Voice) SetFXEffect(slot backend.EffectSlot, enable bool) bool {
	if !slot.Valid() {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fx[slot].enabled = enable
	if v.stream != nil {
		v.reconcileFXLocked()
	}
	return true
}

// FXEffectEnabled reports whether slot is enabled.
func (v *Voice) FXEffectEnabled(slot backend.EffectSlot) bool {
	if !slot.Valid() {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fx[slot].enabled
}

// reconcileFXLocked applies effects that are enabled but have no handle
// and removes those that have a handle but are no longer enabled. A failed
// apply is remembered as InvalidFXHandle so it is not retried until the
// slot is toggled.
func (v *Voice) reconcileFXLocked() {
	for i := range v.fx {
		slot := backend.EffectSlot(i)
		fx := &v.fx[i]
		switch {
		case fx.enabled && fx.handle == 0:
			h, err := v.stream.SetFX(slot, 0)
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Voice.reconcileFX",
					"source":   v.source,
					"slot":     slot.String(),
					"error":    err.Error(),
				}).Warn("Failed to apply effect")
				h = backend.InvalidFXHandle
			}
			fx.handle = h
		case !fx.enabled && fx.handle != 0:
			if fx.handle != backend.InvalidFXHandle {
				if err := v.stream.RemoveFX(fx.handle); err != nil {
					logrus.WithFields(logrus.Fields{
						"function": "Voice.reconcileFX",
						"source":   v.source,
						"slot":     slot.String(),
						"error":    err.Error(),
					}).Debug("Failed to remove effect")
				}
			}
			fx.handle = 0
		}
	}
}

// Paused reports whether playback is paused.
func (v *Voice) Paused() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.paused
}

// SetPaused pauses or resumes the stream, raising the pause or resume
// notification when the state changes.
func (v *Voice) SetPaused(paused bool) {
	v.mu.Lock()
	changed := v.paused != paused
	v.mu.Unlock()

	if changed {
		if paused {
			v.notifier.Raise(events.PlayerVoicePause, v.source, reasonPaused)
		} else {
			v.notifier.Raise(events.PlayerVoiceResumed, v.source, reasonResumed)
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.paused = paused
	if v.stream == nil {
		return
	}
	var err error
	if paused {
		err = v.stream.Pause()
	} else {
		err = v.stream.Play()
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Voice.SetPaused",
			"source":   v.source,
			"paused":   paused,
			"error":    err.Error(),
		}).Debug("Failed to change stream state")
	}
}

// FFTData returns length/2 magnitude bins of the recently played audio, or
// nil for an unsupported length.
func (v *Voice) FFTData(length int) []float32 {
	v.mu.Lock()
	stream := v.stream
	v.mu.Unlock()
	if stream == nil {
		return nil
	}
	data, err := stream.FFT(length)
	if err != nil {
		return nil
	}
	return data
}

// WaveData returns the last length played samples, or nil for an
// unsupported length.
func (v *Voice) WaveData(length int) []float32 {
	v.mu.Lock()
	stream := v.stream
	v.mu.Unlock()
	if stream == nil {
		return nil
	}
	data, err := stream.Wave(length)
	if err != nil {
		return nil
	}
	return data
}

// LevelData returns the packed left/right peak level of the stream.
func (v *Voice) LevelData() uint32 {
	v.mu.Lock()
	stream := v.stream
	v.mu.Unlock()
	if stream == nil {
		return 0
	}
	return stream.Level()
}

// SoundBPM is always zero: beat detection does not apply to voice.
func (v *Voice) SoundBPM() float32 {
	return 0
}
