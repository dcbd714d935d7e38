// Package config loads the voice client settings from the environment.
package config

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/opd-ai/gamevoice/backend"
	"github.com/sethvargo/go-envconfig"
	"github.com/sirupsen/logrus"
)

// EnvPrefix is prepended to every environment key.
const EnvPrefix = "GAMEVOICE_"

// Decoder names accepted by DECODER.
const (
	DecoderOpus = "opus"
	DecoderPure = "pure"
)

// ErrInvalidConfig indicates a setting outside its accepted range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the voice client settings.
type Config struct {
	VoiceVolume        float32       `env:"VOICE_VOLUME, default=1.0"`
	MasterVolume       float32       `env:"MASTER_VOLUME, default=1.0"`
	DebugLocalPlayback bool          `env:"DEBUG_LOCAL_PLAYBACK, default=false"`
	FrameCount         int           `env:"FRAME_COUNT, default=100"`
	RateCode           int           `env:"RATE_CODE, default=2"`
	Complexity         int           `env:"COMPLEXITY, default=8"`
	Bitrate            int           `env:"BITRATE, default=0"`
	SendInterval       time.Duration `env:"SEND_INTERVAL, default=100ms"`
	ListenAddr         string        `env:"LISTEN_ADDR, default=127.0.0.1:22003"`
	PeerAddr           string        `env:"PEER_ADDR"`
	SessionKey         string        `env:"SESSION_KEY"`
	Decoder            string        `env:"DECODER, default=opus"`
	LogLevel           string        `env:"LOG_LEVEL, default=info"`
	LogFile            string        `env:"LOG_FILE"`
}

// NewConfigFromEnv reads the configuration from the process environment.
func NewConfigFromEnv(ctx context.Context) (*Config, error) {
	return NewConfigFromLookuper(ctx, envconfig.OsLookuper())
}

// NewConfigFromLookuper reads the configuration through l. Keys are looked
// up with EnvPrefix.
func NewConfigFromLookuper(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.PrefixLookuper(EnvPrefix, l),
	}); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":    "config.NewConfigFromLookuper",
		"rate_code":   cfg.RateCode,
		"complexity":  cfg.Complexity,
		"bitrate":     cfg.Bitrate,
		"frame_count": cfg.FrameCount,
		"decoder":     cfg.Decoder,
		"listen_addr": cfg.ListenAddr,
		"sealed":      cfg.SessionKey != "",
	}).Debug("Configuration loaded")

	return &cfg, nil
}

// Validate checks value ranges. An unknown rate code is accepted and falls
// back to the default rate when capture starts.
func (c *Config) Validate() error {
	if c.VoiceVolume < 0 || c.MasterVolume < 0 {
		return fmt.Errorf("%w: volumes must not be negative", ErrInvalidConfig)
	}
	if c.FrameCount <= 0 {
		return fmt.Errorf("%w: frame count %d", ErrInvalidConfig, c.FrameCount)
	}
	if c.Complexity < 0 || c.Complexity > 10 {
		return fmt.Errorf("%w: complexity %d", ErrInvalidConfig, c.Complexity)
	}
	if c.Bitrate < 0 {
		return fmt.Errorf("%w: bitrate %d", ErrInvalidConfig, c.Bitrate)
	}
	if c.SendInterval <= 0 {
		return fmt.Errorf("%w: send interval %s", ErrInvalidConfig, c.SendInterval)
	}
	if c.Decoder != DecoderOpus && c.Decoder != DecoderPure {
		return fmt.Errorf("%w: decoder %q", ErrInvalidConfig, c.Decoder)
	}
	if _, err := c.Key(); err != nil {
		return err
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Key decodes SessionKey. It returns nil when no key is configured.
func (c *Config) Key() (*[32]byte, error) {
	if c.SessionKey == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(c.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("%w: session key: %v", ErrInvalidConfig, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%w: session key must be 32 bytes, got %d", ErrInvalidConfig, len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// Level returns the parsed log level, or Info if it cannot be parsed.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// Codecs returns the opus codec set selected by Decoder.
func (c *Config) Codecs() backend.Codecs {
	return backend.OpusCodecs{PureDecoder: c.Decoder == DecoderPure}
}
