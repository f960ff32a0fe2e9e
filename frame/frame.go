// Package frame defines the decoded frame handed from a decoder to the
// playback pipeline.
package frame

import (
	"fmt"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avplayer/avconv"
	"go.uber.org/atomic"
)

// Frame is a decoded audio or video frame. It is owned by exactly one
// stage at a time and must be released exactly once by its last owner.
type Frame struct {
	*astiav.Frame
	MediaType   astiav.MediaType
	StreamIndex int
	TimeBase    astiav.Rational

	// Seq is the decode order of the frame within its stream, starting at 0.
	Seq uint64

	released atomic.Bool
}

func New(
	f *astiav.Frame,
	mediaType astiav.MediaType,
	streamIndex int,
	timeBase astiav.Rational,
	seq uint64,
) *Frame {
	return &Frame{
		Frame:       f,
		MediaType:   mediaType,
		StreamIndex: streamIndex,
		TimeBase:    timeBase,
		Seq:         seq,
	}
}

func (f *Frame) String() string {
	return fmt.Sprintf("Frame(%s#%d, seq:%d)", f.MediaType, f.StreamIndex, f.Seq)
}

// PTS returns the presentation timestamp or avconv.NoDuration if unknown.
func (f *Frame) PTS() time.Duration {
	if f.Frame == nil {
		return avconv.NoDuration
	}
	return avconv.Duration(f.Frame.Pts(), f.TimeBase)
}

// Release returns the native frame to the Pool. Only the first call has an
// effect; it reports whether this call was that first one.
func (f *Frame) Release() bool {
	if f == nil || !f.released.CompareAndSwap(false, true) {
		return false
	}
	if f.Frame != nil {
		Pool.Put(f.Frame)
		f.Frame = nil
	}
	return true
}

func (f *Frame) IsReleased() bool {
	return f.released.Load()
}
