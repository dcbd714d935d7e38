package playback

import (
	"encoding/binary"
	"testing"

	"github.com/opd-ai/gamevoice/backend"
	"github.com/opd-ai/gamevoice/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type volumes struct {
	voice  float32
	master float32
}

func (v *volumes) VoiceVolume() float32  { return v.voice }
func (v *volumes) MasterVolume() float32 { return v.master }

// countingStream records SetFX/RemoveFX calls and can refuse effects.
type countingStream struct {
	*backend.PushStream
	failFX  bool
	setFX   int
	removed int
}

func (s *countingStream) SetFX(slot backend.EffectSlot, priority int) (backend.FXHandle, error) {
	s.setFX++
	if s.failFX {
		return 0, backend.ErrInvalidEffectSlot
	}
	return s.PushStream.SetFX(slot, priority)
}

func (s *countingStream) RemoveFX(h backend.FXHandle) error {
	s.removed++
	return s.PushStream.RemoveFX(h)
}

type countingBackend struct {
	*backend.MemoryBackend
	stream *countingStream
	failFX bool
}

func (b *countingBackend) OpenPlayback(format backend.Format) (backend.PlaybackStream, error) {
	b.stream = &countingStream{PushStream: backend.NewPushStream(format), failFX: b.failFX}
	return b.stream, nil
}

type failingDecoders struct{ backend.PCMCodecs }

func (failingDecoders) NewDecoder(backend.Format) (backend.Decoder, error) {
	return nil, backend.ErrCodecInit
}

var monoFormat = backend.Format{SampleRate: 16000, Channels: 1}

func newMemory(t *testing.T, codecs backend.Codecs) *backend.MemoryBackend {
	t.Helper()
	b := backend.NewMemoryBackend(codecs)
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Shutdown() })
	return b
}

func newVoice(t *testing.T, settings VolumeSource, notifier events.Notifier, opts Options) (*Voice, *backend.PushStream) {
	t.Helper()
	b := newMemory(t, nil)
	v := New(7, monoFormat, b, settings, notifier, opts)
	t.Cleanup(v.Close)
	require.Len(t, b.Playbacks(), 1)
	return v, b.Playbacks()[0]
}

func pcmFrame(n int, value int16) []byte {
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(value))
	}
	return out
}

func volumeOf(t *testing.T, s backend.PlaybackStream) float32 {
	t.Helper()
	vol, err := s.Attribute(backend.AttribVolume)
	require.NoError(t, err)
	return vol
}

func TestNewVoiceAppliesVolumeProduct(t *testing.T) {
	settings := &volumes{voice: 0.5, master: 0.8}
	v, stream := newVoice(t, settings, nil, Options{})

	assert.Equal(t, float32(1.0), v.Volume())
	assert.InDelta(t, 0.4, volumeOf(t, stream), 1e-6)
	assert.True(t, stream.Playing())

	v.SetVolume(0.5)
	assert.InDelta(t, 0.2, volumeOf(t, stream), 1e-6)

	settings.voice = 1.0
	v.Tick()
	assert.InDelta(t, 0.4, volumeOf(t, stream), 1e-6)
	assert.Equal(t, float32(0.5), v.Volume())
}

func TestLocalVoiceMuted(t *testing.T) {
	tests := []struct {
		name  string
		debug bool
		want  float32
	}{
		{"muted", false, 0},
		{"debug_playback", true, 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := &volumes{voice: 1.0, master: 0.9}
			v, stream := newVoice(t, settings, nil, Options{IsLocal: true, DebugLocalPlayback: tt.debug})
			assert.InDelta(t, tt.want, volumeOf(t, stream), 1e-6)

			v.SetVolume(1.0)
			settings.master = 0.5
			v.Tick()
			if tt.debug {
				assert.InDelta(t, 0.5, volumeOf(t, stream), 1e-6)
			} else {
				assert.Zero(t, volumeOf(t, stream))
			}
		})
	}
}

func TestSetLocal(t *testing.T) {
	settings := &volumes{voice: 0.5, master: 1.0}
	v, stream := newVoice(t, settings, nil, Options{})
	assert.InDelta(t, 0.5, volumeOf(t, stream), 1e-6)

	v.SetLocal(true)
	assert.True(t, v.IsLocal())
	assert.Zero(t, volumeOf(t, stream))

	v.SetVolume(0.8)
	settings.voice = 1.0
	v.Tick()
	assert.Zero(t, volumeOf(t, stream))

	v.SetLocal(false)
	assert.InDelta(t, 0.8, volumeOf(t, stream), 1e-6)
}

func TestDecodeAndEnqueue(t *testing.T) {
	bus := events.NewBus()
	starts := 0
	bus.On(events.PlayerVoiceStart, func(source uint32, _ ...interface{}) bool {
		starts++
		assert.Equal(t, uint32(7), source)
		return true
	})
	v, stream := newVoice(t, &volumes{1, 1}, bus, Options{})

	v.DecodeAndEnqueue(pcmFrame(320, 1000))
	v.DecodeAndEnqueue(pcmFrame(320, 2000))

	assert.True(t, v.VoiceActive())
	assert.Equal(t, 1, starts)
	queued := stream.Queued()
	require.Len(t, queued, 640)
	assert.Equal(t, int16(1000), queued[0])
	assert.Equal(t, int16(2000), queued[639])
}

func TestCancelledVoiceStartDropsFrame(t *testing.T) {
	bus := events.NewBus()
	bus.On(events.PlayerVoiceStart, func(uint32, ...interface{}) bool { return false })
	v, stream := newVoice(t, &volumes{1, 1}, bus, Options{})

	v.DecodeAndEnqueue(pcmFrame(320, 1000))

	assert.False(t, v.VoiceActive())
	assert.Empty(t, stream.Queued())
}

func TestVoiceStopRaisedOnce(t *testing.T) {
	bus := events.NewBus()
	stops := 0
	bus.On(events.PlayerVoiceStop, func(uint32, ...interface{}) bool {
		stops++
		return true
	})
	v, _ := newVoice(t, &volumes{1, 1}, bus, Options{})

	assert.False(t, v.SetVoiceActive(false), "already inactive")
	assert.True(t, v.SetVoiceActive(true))
	assert.False(t, v.SetVoiceActive(false))
	assert.False(t, v.SetVoiceActive(false))
	assert.Equal(t, 1, stops)
}

func TestHandlerMayQueryVoice(t *testing.T) {
	bus := events.NewBus()
	var v *Voice
	bus.On(events.PlayerVoiceStart, func(uint32, ...interface{}) bool {
		_ = v.Volume()
		v.SetPaused(false)
		return true
	})
	v, _ = newVoice(t, &volumes{1, 1}, bus, Options{})

	v.DecodeAndEnqueue(pcmFrame(320, 1))
	assert.True(t, v.VoiceActive())
}

func TestDecoderFailureDropsFrames(t *testing.T) {
	b := newMemory(t, failingDecoders{})
	v := New(3, monoFormat, b, &volumes{1, 1}, nil, Options{})
	defer v.Close()

	v.DecodeAndEnqueue(pcmFrame(320, 1000))
	assert.True(t, v.VoiceActive())
	assert.Empty(t, b.Playbacks()[0].Queued())
}

func TestNoStreamAccessors(t *testing.T) {
	b := newMemory(t, nil)
	b.FailPlayback = true
	v := New(3, monoFormat, b, &volumes{1, 1}, nil, Options{})
	defer v.Close()

	v.DecodeAndEnqueue(pcmFrame(320, 1000))
	assert.Zero(t, v.PlayPosition())
	assert.Zero(t, v.Length())
	assert.False(t, v.SetPlayPosition(1))
	_, ok := v.Pan()
	assert.False(t, ok)
	assert.False(t, v.SetPan(0.5))
	_, _, _, _, ok = v.FXModifications()
	assert.False(t, ok)
	assert.Nil(t, v.FFTData(512))
	assert.Nil(t, v.WaveData(512))
	assert.Zero(t, v.LevelData())
	assert.True(t, v.SetFXEffect(backend.FXEcho, true))
	assert.True(t, v.FXEffectEnabled(backend.FXEcho))
}

func TestPlayPosition(t *testing.T) {
	v, stream := newVoice(t, &volumes{1, 1}, nil, Options{})
	for i := 0; i < 50; i++ {
		v.DecodeAndEnqueue(pcmFrame(320, 100))
	}
	assert.InDelta(t, 1.0, v.Length(), 1e-9)

	require.True(t, v.SetPlayPosition(0.5))
	assert.InDelta(t, 0.5, v.PlayPosition(), 1e-9)

	require.True(t, v.SetPlayPosition(10))
	pos, err := stream.Position()
	require.NoError(t, err)
	assert.Equal(t, int64(32000-2), pos, "clamped to the last sample")

	assert.False(t, v.SetPlayPosition(0), "played audio cannot be revisited")
}

func TestPlaybackSpeed(t *testing.T) {
	v, stream := newVoice(t, &volumes{1, 1}, nil, Options{})
	assert.Equal(t, float32(1.0), v.PlaybackSpeed())

	require.True(t, v.SetPlaybackSpeed(1.5))
	freq, err := stream.Attribute(backend.AttribFreq)
	require.NoError(t, err)
	assert.Equal(t, float32(24000), freq)
	assert.Equal(t, float32(1.5), v.PlaybackSpeed())
}

func TestFXModifications(t *testing.T) {
	v, stream := newVoice(t, &volumes{1, 1}, nil, Options{})

	rate, tempo, pitch, reversed, ok := v.FXModifications()
	require.True(t, ok)
	assert.Equal(t, float32(16000), rate)
	assert.Zero(t, tempo)
	assert.Zero(t, pitch)
	assert.False(t, reversed)

	require.True(t, v.ApplyFXModifications(16000, 20, -3, true))
	rate, tempo, pitch, reversed, ok = v.FXModifications()
	require.True(t, ok)
	assert.Equal(t, float32(16000), rate)
	assert.Equal(t, float32(20), tempo)
	assert.Equal(t, float32(-3), pitch)
	assert.False(t, reversed)

	got, err := stream.Attribute(backend.AttribTempoPitch)
	require.NoError(t, err)
	assert.Equal(t, float32(-3), got)
}

func TestFXModificationsOnlyChangedValues(t *testing.T) {
	b := &countingBackend{MemoryBackend: newMemory(t, nil)}
	v := New(1, monoFormat, b, &volumes{1, 1}, nil, Options{})
	defer v.Close()

	require.NoError(t, b.stream.SetAttribute(backend.AttribTempo, 50))
	require.True(t, v.ApplyFXModifications(16000, 0, 2, false))

	tempo, err := b.stream.Attribute(backend.AttribTempo)
	require.NoError(t, err)
	assert.Equal(t, float32(50), tempo, "unchanged tempo is not reapplied")
}

func TestSetFXEffectIdempotent(t *testing.T) {
	b := &countingBackend{MemoryBackend: newMemory(t, nil)}
	v := New(1, monoFormat, b, &volumes{1, 1}, nil, Options{})
	defer v.Close()

	require.True(t, v.SetFXEffect(backend.FXEcho, true))
	require.True(t, v.SetFXEffect(backend.FXEcho, true))
	assert.Equal(t, 1, b.stream.setFX)
	assert.Equal(t, []backend.EffectSlot{backend.FXEcho}, b.stream.ActiveFX())

	require.True(t, v.SetFXEffect(backend.FXEcho, false))
	assert.Empty(t, b.stream.ActiveFX())
	assert.False(t, v.FXEffectEnabled(backend.FXEcho))

	require.True(t, v.SetFXEffect(backend.FXEcho, true))
	assert.Equal(t, 2, b.stream.setFX)
	assert.Equal(t, []backend.EffectSlot{backend.FXEcho}, b.stream.ActiveFX())
}

func TestSetFXEffectFailureRemembered(t *testing.T) {
	b := &countingBackend{MemoryBackend: newMemory(t, nil), failFX: true}
	v := New(1, monoFormat, b, &volumes{1, 1}, nil, Options{})
	defer v.Close()

	require.True(t, v.SetFXEffect(backend.FXReverb, true))
	require.True(t, v.SetFXEffect(backend.FXChorus, false))
	assert.Equal(t, 1, b.stream.setFX, "failed slot is not retried")

	require.True(t, v.SetFXEffect(backend.FXReverb, false))
	assert.Zero(t, b.stream.removed, "invalid handle is never removed")

	require.True(t, v.SetFXEffect(backend.FXReverb, true))
	assert.Equal(t, 2, b.stream.setFX)
}

func TestSetFXEffectInvalidSlot(t *testing.T) {
	v, _ := newVoice(t, &volumes{1, 1}, nil, Options{})
	assert.False(t, v.SetFXEffect(backend.EffectSlot(-1), true))
	assert.False(t, v.SetFXEffect(backend.EffectSlot(backend.NumEffectSlots), true))
	assert.False(t, v.FXEffectEnabled(backend.EffectSlot(backend.NumEffectSlots)))
}

func TestSetPaused(t *testing.T) {
	bus := events.NewBus()
	var reasons []string
	record := func(_ uint32, args ...interface{}) bool {
		require.Len(t, args, 1)
		reasons = append(reasons, args[0].(string))
		return true
	}
	bus.On(events.PlayerVoicePause, record)
	bus.On(events.PlayerVoiceResumed, record)
	v, stream := newVoice(t, &volumes{1, 1}, bus, Options{})

	v.SetPaused(true)
	v.SetPaused(true)
	assert.True(t, v.Paused())
	assert.False(t, stream.Playing())

	v.SetPaused(false)
	assert.False(t, v.Paused())
	assert.True(t, stream.Playing())
	assert.Equal(t, []string{"paused", "resumed"}, reasons)
}

func TestPan(t *testing.T) {
	v, stream := newVoice(t, &volumes{1, 1}, nil, Options{})

	require.True(t, v.SetPan(-0.5))
	pan, ok := v.Pan()
	require.True(t, ok)
	assert.Equal(t, float32(-0.5), pan)
	assert.False(t, v.SetPan(2))

	assert.True(t, v.PanEnabled())
	require.True(t, v.SetPanEnabled(false))
	got, err := stream.Attribute(backend.AttribPan)
	require.NoError(t, err)
	assert.Zero(t, got)

	require.True(t, v.SetPanEnabled(true))
	got, err = stream.Attribute(backend.AttribPan)
	require.NoError(t, err)
	assert.Equal(t, float32(-0.5), got)
}

func TestAnalysis(t *testing.T) {
	v, stream := newVoice(t, &volumes{1, 1}, nil, Options{})
	v.DecodeAndEnqueue(pcmFrame(320, 8000))
	stream.Read(make([]int16, 320))

	assert.Len(t, v.FFTData(512), 256)
	assert.Nil(t, v.FFTData(100))
	assert.Len(t, v.WaveData(128), 128)
	assert.Nil(t, v.WaveData(64))
	assert.NotZero(t, v.LevelData())
	assert.Zero(t, v.SoundBPM())
}

func TestCloseIdempotent(t *testing.T) {
	v, stream := newVoice(t, &volumes{1, 1}, nil, Options{})
	v.Close()
	v.Close()
	assert.ErrorIs(t, stream.Push([]int16{1}), backend.ErrStreamClosed)
	assert.False(t, v.SetPan(0))
}
