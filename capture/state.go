package capture

// State is the push-to-talk state of the local player.
type State int

const (
	// AwaitingInput is idle: nothing is captured or sent.
	AwaitingInput State = iota
	// Recording captures and sends frames while push-to-talk is held.
	Recording
	// RecordingLastPacket flushes what is buffered and sends the end
	// marker on the next tick.
	RecordingLastPacket
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case AwaitingInput:
		return "awaiting_input"
	case Recording:
		return "recording"
	case RecordingLastPacket:
		return "recording_last_packet"
	default:
		return "unknown"
	}
}

// RateCodeToSampleRate maps the server-negotiated rate code to a sample
// rate. Unknown codes select wideband.
func RateCodeToSampleRate(code int) uint32 {
	switch code {
	case 0:
		return 8000
	case 1:
		return 12000
	case 2:
		return 16000
	case 3:
		return 24000
	case 4:
		return 48000
	default:
		return 16000
	}
}
