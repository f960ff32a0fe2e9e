// Package decoder defines the decoding capability the player consumes and
// provides an FFmpeg-backed implementation of it.
package decoder

import (
	"context"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avplayer/frame"
	"github.com/xaionaro-go/avplayer/types"
)

// Decoder yields decoded frames of the selected video stream and, if any,
// of the selected audio stream. Both Read methods return io.EOF once the
// respective stream is exhausted.
type Decoder interface {
	fmt.Stringer

	ReadVideoFrame(ctx context.Context) (*frame.Frame, error)
	ReadAudioFrame(ctx context.Context) (*frame.Frame, error)

	VideoInfo() VideoInfo

	// AudioInfo returns nil if the source has no audio stream.
	AudioInfo() *AudioInfo

	// DisableAudio stops decoding the audio stream for good: AudioInfo
	// returns nil afterwards and ReadAudioFrame returns io.EOF.
	DisableAudio(ctx context.Context)

	// IsReentrant reports whether ReadVideoFrame and ReadAudioFrame may be
	// called concurrently.
	IsReentrant() bool

	Close(ctx context.Context) error
}

type VideoInfo struct {
	StreamIndex int
	CodecName   string
	PixelFormat astiav.PixelFormat
	Resolution  types.Resolution
	FrameRate   types.Rational
	TimeBase    astiav.Rational
}

func (i VideoInfo) String() string {
	return fmt.Sprintf("video#%d(%s %s %s @ %s fps)", i.StreamIndex, i.CodecName, i.PixelFormat, i.Resolution, i.FrameRate)
}

type AudioInfo struct {
	StreamIndex   int
	CodecName     string
	SampleFormat  astiav.SampleFormat
	SampleRate    int
	ChannelLayout astiav.ChannelLayout
	Channels      int
	TimeBase      astiav.Rational
}

func (i AudioInfo) String() string {
	return fmt.Sprintf("audio#%d(%s %s %dHz %dch)", i.StreamIndex, i.CodecName, i.SampleFormat, i.SampleRate, i.Channels)
}
