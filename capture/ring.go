package capture

// ringBuffer is the fixed-capacity sample queue between the capture
// callback and the tick. It is not safe for concurrent use; the Recorder
// mutex guards it.
//
// unread disambiguates a full buffer from an empty one when the cursors
// coincide. When the producer laps the consumer, the oldest samples are
// overwritten, unread is clamped to the capacity and overrun is set; the
// consumer then moves the read cursor to the write cursor, which is where
// the oldest surviving sample lives.
type ringBuffer struct {
	buf     []int16
	write   int
	read    int
	unread  int
	overrun bool
	dropped int
}

func newRingBuffer(length int) *ringBuffer {
	return &ringBuffer{buf: make([]int16, length)}
}

func (r *ringBuffer) len() int {
	return len(r.buf)
}

// put copies samples in at the write cursor with wraparound.
func (r *ringBuffer) put(samples []int16) {
	n := len(samples)
	if n == 0 {
		return
	}
	if n > len(r.buf) {
		skip := n - len(r.buf)
		r.write = (r.write + skip) % len(r.buf)
		samples = samples[skip:]
	}

	copied := copy(r.buf[r.write:], samples)
	copy(r.buf, samples[copied:])
	r.write = (r.write + len(samples)) % len(r.buf)

	r.unread += n
	if r.unread > len(r.buf) {
		r.dropped += r.unread - len(r.buf)
		r.unread = len(r.buf)
		r.overrun = true
	}
}

// resync moves the read cursor past overwritten data and returns how many
// samples were lost since the last call.
func (r *ringBuffer) resync() int {
	if !r.overrun {
		return 0
	}
	r.read = r.write
	r.overrun = false
	dropped := r.dropped
	r.dropped = 0
	return dropped
}

// frames returns the number of whole frames of frameLen samples available.
func (r *ringBuffer) frames(frameLen int) int {
	return r.unread / frameLen
}

// next returns the frame at the read cursor and advances it. A frame that
// straddles the end of the buffer is assembled in scratch; otherwise the
// result aliases the buffer and is valid until the next put.
func (r *ringBuffer) next(frameLen int, scratch []int16) []int16 {
	var frame []int16
	if r.read+frameLen > len(r.buf) {
		head := copy(scratch[:frameLen], r.buf[r.read:])
		copy(scratch[head:frameLen], r.buf)
		frame = scratch[:frameLen]
	} else {
		frame = r.buf[r.read : r.read+frameLen]
	}
	r.read = (r.read + frameLen) % len(r.buf)
	r.unread -= frameLen
	return frame
}

// reset discards everything buffered.
func (r *ringBuffer) reset() {
	r.read = r.write
	r.unread = 0
	r.overrun = false
	r.dropped = 0
}
