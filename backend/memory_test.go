package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackendLifecycle(t *testing.T) {
	b := NewMemoryBackend(nil)
	format := Format{SampleRate: 16000, Channels: 1}

	_, err := b.OpenCapture(format, func([]int16) {})
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = b.OpenPlayback(format)
	assert.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, b.Init())
	assert.True(t, b.Initialized())

	var got []int16
	capture, err := b.OpenCapture(format, func(s []int16) { got = append(got, s...) })
	require.NoError(t, err)
	assert.Equal(t, "memory", capture.DeviceName())

	playback, err := b.OpenPlayback(format)
	require.NoError(t, err)

	require.Len(t, b.Captures(), 1)
	b.Captures()[0].Deliver([]int16{1, 2, 3})
	assert.Equal(t, []int16{1, 2, 3}, got)

	require.NoError(t, b.Shutdown())
	assert.False(t, b.Initialized())
	assert.ErrorIs(t, playback.Push([]int16{1}), ErrStreamClosed)
	assert.Empty(t, b.Captures())
}

func TestMemoryCaptureDropsAfterClose(t *testing.T) {
	b := NewMemoryBackend(nil)
	require.NoError(t, b.Init())

	calls := 0
	capture, err := b.OpenCapture(Format{SampleRate: 16000, Channels: 1}, func([]int16) { calls++ })
	require.NoError(t, err)

	mc := capture.(*MemoryCapture)
	mc.Deliver([]int16{1})
	require.NoError(t, capture.Close())
	assert.True(t, mc.Closed())
	mc.Deliver([]int16{1})
	assert.Equal(t, 1, calls)
}

func TestMemoryBackendFailureToggles(t *testing.T) {
	b := NewMemoryBackend(PCMCodecs{})
	require.NoError(t, b.Init())
	b.FailCapture = true
	b.FailPlayback = true

	format := Format{SampleRate: 16000, Channels: 1}
	_, err := b.OpenCapture(format, nil)
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	_, err = b.OpenPlayback(format)
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestMemoryBackendCodecs(t *testing.T) {
	b := NewMemoryBackend(nil)
	enc, err := b.NewEncoder(Format{SampleRate: 16000, Channels: 1}, AppVoIP)
	require.NoError(t, err)
	assert.IsType(t, &PCMEncoder{}, enc)
}
