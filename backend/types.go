package backend

// Attribute identifies a tunable property of a playback stream.
type Attribute int

const (
	// AttribVolume is the linear output volume (0 = silent, 1 = unity).
	AttribVolume Attribute = iota
	// AttribPan ranges from -1 (left) to +1 (right).
	AttribPan
	// AttribFreq is the playback sample rate in Hz.
	AttribFreq
	// AttribTempo is the tempo change in percent.
	AttribTempo
	// AttribTempoPitch is the pitch change in semitones.
	AttribTempoPitch
	// AttribTempoFreq is the sample rate used by the tempo stage in Hz.
	AttribTempoFreq
)

// String returns the attribute name.
func (a Attribute) String() string {
	switch a {
	case AttribVolume:
		return "volume"
	case AttribPan:
		return "pan"
	case AttribFreq:
		return "freq"
	case AttribTempo:
		return "tempo"
	case AttribTempoPitch:
		return "tempo_pitch"
	case AttribTempoFreq:
		return "tempo_freq"
	default:
		return "unknown"
	}
}

// EffectSlot enumerates the toggleable effects of a playback stream.
type EffectSlot int

const (
	FXChorus EffectSlot = iota
	FXCompressor
	FXDistortion
	FXEcho
	FXFlanger
	FXGargle
	FXI3DL2Reverb
	FXParamEQ
	FXReverb

	// NumEffectSlots is the number of effect slots.
	NumEffectSlots = 9
)

// Valid reports whether the slot is within the supported range.
func (s EffectSlot) Valid() bool {
	return s >= 0 && s < NumEffectSlots
}

// String returns the effect name.
func (s EffectSlot) String() string {
	switch s {
	case FXChorus:
		return "chorus"
	case FXCompressor:
		return "compressor"
	case FXDistortion:
		return "distortion"
	case FXEcho:
		return "echo"
	case FXFlanger:
		return "flanger"
	case FXGargle:
		return "gargle"
	case FXI3DL2Reverb:
		return "i3dl2reverb"
	case FXParamEQ:
		return "parameq"
	case FXReverb:
		return "reverb"
	default:
		return "invalid"
	}
}

// FXHandle identifies an effect applied to a stream. Zero means no handle.
type FXHandle int32

// InvalidFXHandle marks a slot whose effect could not be applied.
// It is distinct from the zero "no handle" value.
const InvalidFXHandle FXHandle = -1
