package player

import (
	"fmt"
	"strings"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avplayer/decoder"
	"github.com/xaionaro-go/avplayer/framebuffer"
	"github.com/xaionaro-go/avplayer/resampler"
	"github.com/xaionaro-go/avplayer/scaler"
	"github.com/xaionaro-go/avplayer/types"
)

type AudioMode int

const (
	// AudioModeStream converts audio frames on the fly through a bounded
	// pipeline feeding the audio output incrementally.
	AudioModeStream AudioMode = iota

	// AudioModePreload decodes the whole audio track into memory before
	// the playback starts.
	AudioModePreload
)

func (m AudioMode) String() string {
	switch m {
	case AudioModeStream:
		return "stream"
	case AudioModePreload:
		return "preload"
	}
	return fmt.Sprintf("unknown_audio_mode_%d", int(m))
}

func (m AudioMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *AudioMode) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "stream", "":
		*m = AudioModeStream
	case "preload":
		*m = AudioModePreload
	default:
		return fmt.Errorf("unknown audio mode '%s' (expected: stream, preload)", b)
	}
	return nil
}

type PacingMode int

const (
	// PacingModeIndex presents frame slot i at i/frameRate after the clock
	// start, skipping slots that have no frame ready.
	PacingModeIndex PacingMode = iota

	// PacingModeTimestamp presents every frame at its timestamp relative to
	// the first presented frame.
	PacingModeTimestamp
)

func (m PacingMode) String() string {
	switch m {
	case PacingModeIndex:
		return "index"
	case PacingModeTimestamp:
		return "timestamp"
	}
	return fmt.Sprintf("unknown_pacing_mode_%d", int(m))
}

func (m PacingMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *PacingMode) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "index", "":
		*m = PacingModeIndex
	case "timestamp":
		*m = PacingModeTimestamp
	default:
		return fmt.Errorf("unknown pacing mode '%s' (expected: index, timestamp)", b)
	}
	return nil
}

type Config struct {
	// FrameCap is the number of decoded video frames kept ahead.
	FrameCap int `yaml:"frame_cap"`

	// WaitTime is the poll interval of the prefill and of the producer
	// while the frame buffer is full.
	WaitTime time.Duration `yaml:"wait_time"`

	AudioMode       AudioMode              `yaml:"audio_mode"`
	AudioBufferCap  int                    `yaml:"audio_buffer_cap"`
	AudioStartDelay time.Duration          `yaml:"audio_start_delay"`
	AudioBufferHint time.Duration          `yaml:"audio_buffer_hint"`
	SampleFormat    resampler.OutputFormat `yaml:"sample_format"`

	PacingMode        PacingMode       `yaml:"pacing_mode"`
	FrameRateOverride *types.Rational  `yaml:"frame_rate_override,omitempty"`
	PixelFormat       string           `yaml:"pixel_format"`
	OutputResolution  types.Resolution `yaml:"output_resolution,omitempty"`

	// SerializeDecoder guards all decoder calls with a single lock even if
	// the decoder reports to be reentrant.
	SerializeDecoder bool `yaml:"serialize_decoder,omitempty"`

	Decoder decoder.Config `yaml:"decoder,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		FrameCap:        framebuffer.DefaultCapacity,
		WaitTime:        10 * time.Millisecond,
		AudioMode:       AudioModeStream,
		AudioBufferCap:  16,
		AudioStartDelay: 50 * time.Millisecond,
		AudioBufferHint: 500 * time.Millisecond,
		SampleFormat:    resampler.PCMInt16,
		PacingMode:      PacingModeIndex,
		PixelFormat:     "bgr24",
	}
}

func (cfg Config) Validate() error {
	if cfg.FrameCap <= 0 {
		return fmt.Errorf("frame_cap must be positive, got %d", cfg.FrameCap)
	}
	if cfg.WaitTime <= 0 {
		return fmt.Errorf("wait_time must be positive, got %v", cfg.WaitTime)
	}
	if cfg.AudioBufferCap <= 0 {
		return fmt.Errorf("audio_buffer_cap must be positive, got %d", cfg.AudioBufferCap)
	}
	if cfg.AudioStartDelay < 0 || cfg.AudioBufferHint < 0 {
		return fmt.Errorf("audio delays must not be negative")
	}
	if cfg.FrameRateOverride != nil && !cfg.FrameRateOverride.IsValid() {
		return fmt.Errorf("frame rate override %s: %w", *cfg.FrameRateOverride, ErrInvalidFrameRate)
	}
	if _, err := cfg.pixelFormat(); err != nil {
		return err
	}
	if cfg.SampleFormat.BytesPerSample <= 0 {
		return fmt.Errorf("sample_format is not set")
	}
	return nil
}

func (cfg Config) pixelFormat() (astiav.PixelFormat, error) {
	return scaler.PixelFormatFromString(cfg.PixelFormat)
}
