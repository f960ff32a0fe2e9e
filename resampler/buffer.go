// buffer.go implements pooled blocks of interleaved PCM.

package resampler

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/avplayer/pool"
	"go.uber.org/atomic"
)

var bytesPool = pool.NewBytes()

// Buffer is a block of interleaved PCM samples. The owner must call
// Release exactly once when the bytes are no longer needed.
type Buffer struct {
	Data           []byte
	Samples        int
	SampleRate     int
	Channels       int
	BytesPerSample int

	released atomic.Bool
}

func newBuffer(samples, sampleRate, channels, bytesPerSample int) *Buffer {
	return &Buffer{
		Data:           bytesPool.Get(samples * channels * bytesPerSample),
		Samples:        samples,
		SampleRate:     sampleRate,
		Channels:       channels,
		BytesPerSample: bytesPerSample,
	}
}

// NewBuffer wraps already interleaved PCM bytes.
func NewBuffer(data []byte, sampleRate, channels, bytesPerSample int) *Buffer {
	frameSize := channels * bytesPerSample
	samples := 0
	if frameSize > 0 {
		samples = len(data) / frameSize
	}
	return &Buffer{
		Data:           data,
		Samples:        samples,
		SampleRate:     sampleRate,
		Channels:       channels,
		BytesPerSample: bytesPerSample,
	}
}

func (b *Buffer) String() string {
	return fmt.Sprintf("PCM(%d samples, %dHz, %dch, %dB)", b.Samples, b.SampleRate, b.Channels, b.BytesPerSample)
}

// Size is Samples*Channels*BytesPerSample.
func (b *Buffer) Size() int {
	return b.Samples * b.Channels * b.BytesPerSample
}

// Release returns the bytes to the pool. Repeated calls are reported and ignored.
func (b *Buffer) Release(ctx context.Context) {
	if !b.released.CompareAndSwap(false, true) {
		logger.Errorf(ctx, "%s is released twice", b)
		return
	}
	bytesPool.Put(b.Data)
	b.Data = nil
}
