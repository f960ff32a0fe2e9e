// serialize.go implements a decoder wrapper that serializes every call.

package decoder

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/avplayer/frame"
	"github.com/xaionaro-go/xsync"
)

// Serialized guards every call of a non-reentrant Decoder with one mutex.
type Serialized struct {
	Decoder Decoder
	locker  xsync.Mutex
}

var _ Decoder = (*Serialized)(nil)

// Serialize returns d itself if it is reentrant and wraps it otherwise.
func Serialize(d Decoder) Decoder {
	if d.IsReentrant() {
		return d
	}
	return &Serialized{Decoder: d}
}

func (s *Serialized) String() string {
	return fmt.Sprintf("Serialized(%s)", s.Decoder)
}

func (s *Serialized) ReadVideoFrame(ctx context.Context) (*frame.Frame, error) {
	return xsync.DoA1R2(xsync.WithNoLogging(ctx, true), &s.locker, s.Decoder.ReadVideoFrame, ctx)
}

func (s *Serialized) ReadAudioFrame(ctx context.Context) (*frame.Frame, error) {
	return xsync.DoA1R2(xsync.WithNoLogging(ctx, true), &s.locker, s.Decoder.ReadAudioFrame, ctx)
}

func (s *Serialized) VideoInfo() VideoInfo {
	return s.Decoder.VideoInfo()
}

func (s *Serialized) AudioInfo() *AudioInfo {
	return s.Decoder.AudioInfo()
}

func (s *Serialized) DisableAudio(ctx context.Context) {
	s.locker.Do(ctx, func() { s.Decoder.DisableAudio(ctx) })
}

func (s *Serialized) IsReentrant() bool {
	return true
}

func (s *Serialized) Close(ctx context.Context) error {
	return xsync.DoA1R1(ctx, &s.locker, s.Decoder.Close, ctx)
}
