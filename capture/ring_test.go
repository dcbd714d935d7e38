package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequence(start, n int) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = int16(start + i)
	}
	return s
}

func drainAll(r *ringBuffer, frameLen int) []int16 {
	scratch := make([]int16, frameLen)
	var out []int16
	for n := r.frames(frameLen); n > 0; n-- {
		out = append(out, r.next(frameLen, scratch)...)
	}
	return out
}

func TestRingBufferWrapAtAnyCursor(t *testing.T) {
	const length = 40
	const frameLen = 8
	for w := 0; w < length; w++ {
		r := newRingBuffer(length)
		r.write, r.read = w, w

		input := sequence(100, 3*frameLen)
		r.put(input)
		require.Equal(t, 3, r.frames(frameLen))
		assert.Equal(t, input, drainAll(r, frameLen), "cursor %d", w)
		assert.Equal(t, r.write, r.read)
	}
}

func TestRingBufferPartialFramesStay(t *testing.T) {
	r := newRingBuffer(32)
	r.put(sequence(1, 10))
	assert.Equal(t, 1, r.frames(8))
	assert.Equal(t, sequence(1, 8), drainAll(r, 8))
	assert.Equal(t, 0, r.frames(8))

	r.put(sequence(11, 6))
	assert.Equal(t, sequence(9, 8), drainAll(r, 8))
}

func TestRingBufferFullIsNotEmpty(t *testing.T) {
	r := newRingBuffer(16)
	r.put(sequence(0, 16))
	assert.Equal(t, r.read, r.write)
	assert.Equal(t, 2, r.frames(8))
	assert.Equal(t, 0, r.resync(), "exactly full is not an overrun")
	assert.Equal(t, sequence(0, 16), drainAll(r, 8))
}

func TestRingBufferOverrunKeepsNewest(t *testing.T) {
	r := newRingBuffer(16)
	r.put(sequence(0, 10))
	r.put(sequence(10, 10))

	assert.Equal(t, 4, r.resync())
	assert.Equal(t, sequence(4, 16), drainAll(r, 8))
}

func TestRingBufferOversizedPut(t *testing.T) {
	r := newRingBuffer(16)
	r.write, r.read = 5, 5
	r.put(sequence(0, 40))

	assert.Equal(t, 24, r.resync())
	assert.Equal(t, sequence(24, 16), drainAll(r, 8))
}

func TestRingBufferReset(t *testing.T) {
	r := newRingBuffer(16)
	r.put(sequence(0, 20))
	r.reset()
	assert.Equal(t, 0, r.frames(1))
	assert.Equal(t, 0, r.resync())
}
