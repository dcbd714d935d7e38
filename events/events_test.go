package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusRaiseOrder(t *testing.T) {
	bus := NewBus()
	var order []int
	bus.On(VoiceStop, func(uint32, ...interface{}) bool { order = append(order, 1); return true })
	bus.On(VoiceStop, func(uint32, ...interface{}) bool { order = append(order, 2); return true })

	assert.True(t, bus.Raise(VoiceStop, 7))
	assert.Equal(t, []int{1, 2}, order)
}

func TestBusCancellation(t *testing.T) {
	tests := []struct {
		name string
		sig  Signal
		want bool
	}{
		{"voice_start_cancelled", VoiceStart, false},
		{"player_voice_start_cancelled", PlayerVoiceStart, false},
		{"voice_stop_not_cancellable", VoiceStop, true},
		{"pause_not_cancellable", PlayerVoicePause, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := NewBus()
			calls := 0
			bus.On(tt.sig, func(uint32, ...interface{}) bool { calls++; return false })
			bus.On(tt.sig, func(uint32, ...interface{}) bool { calls++; return true })

			assert.Equal(t, tt.want, bus.Raise(tt.sig, 1))
			assert.Equal(t, 2, calls, "every handler observes the signal")
		})
	}
}

func TestBusPassesArguments(t *testing.T) {
	bus := NewBus()
	var gotSource uint32
	var gotArgs []interface{}
	bus.On(PlayerVoicePause, func(source uint32, args ...interface{}) bool {
		gotSource = source
		gotArgs = args
		return true
	})

	bus.Raise(PlayerVoicePause, 42, "paused")
	assert.Equal(t, uint32(42), gotSource)
	assert.Equal(t, []interface{}{"paused"}, gotArgs)
}

func TestBusClear(t *testing.T) {
	bus := NewBus()
	bus.On(VoiceStart, func(uint32, ...interface{}) bool { return false })
	bus.Clear(VoiceStart)
	assert.True(t, bus.Raise(VoiceStart, 1))
}

func TestBusHandlerMayRegister(t *testing.T) {
	bus := NewBus()
	bus.On(VoiceStart, func(uint32, ...interface{}) bool {
		bus.On(VoiceStop, func(uint32, ...interface{}) bool { return true })
		return true
	})
	assert.True(t, bus.Raise(VoiceStart, 1))
}

func TestSignalNames(t *testing.T) {
	assert.Equal(t, "onClientVoiceStart", VoiceStart.String())
	assert.Equal(t, "onClientPlayerVoiceResumed", PlayerVoiceResumed.String())
	assert.Equal(t, "unknown", Signal(99).String())
	assert.True(t, Nop.Raise(VoiceStart, 0))
}
