package config

import "sync"

// Names of the volume settings read by playback voices.
const (
	CVarVoiceVolume  = "voicevolume"
	CVarMasterVolume = "mastervolume"
)

// CVars is a runtime settings store that can be changed while the client
// runs. It is safe for concurrent use.
type CVars struct {
	mu     sync.RWMutex
	floats map[string]float32
}

// NewCVars seeds a store from cfg. A nil cfg leaves every volume at 1.0.
func NewCVars(cfg *Config) *CVars {
	c := &CVars{floats: map[string]float32{
		CVarVoiceVolume:  1.0,
		CVarMasterVolume: 1.0,
	}}
	if cfg != nil {
		c.floats[CVarVoiceVolume] = cfg.VoiceVolume
		c.floats[CVarMasterVolume] = cfg.MasterVolume
	}
	return c
}

// Float returns the value stored under name, or def if there is none.
func (c *CVars) Float(name string, def float32) float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.floats[name]; ok {
		return v
	}
	return def
}

// SetFloat stores value under name.
func (c *CVars) SetFloat(name string, value float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.floats[name] = value
}

// VoiceVolume returns the voice chat volume.
func (c *CVars) VoiceVolume() float32 {
	return c.Float(CVarVoiceVolume, 1.0)
}

// MasterVolume returns the master volume.
func (c *CVars) MasterVolume() float32 {
	return c.Float(CVarMasterVolume, 1.0)
}
