// Package audiooutput defines the sink the player feeds interleaved PCM
// into, plus a sink that discards everything.
package audiooutput

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xaionaro-go/avplayer/resampler"
)

type PCMFormat struct {
	SampleRate int
	Channels   int
	Format     resampler.OutputFormat
}

func (f PCMFormat) String() string {
	return fmt.Sprintf("%s %dHz %dch", f.Format, f.SampleRate, f.Channels)
}

// BytesPerSecond is the data rate of the format.
func (f PCMFormat) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.Format.BytesPerSample
}

// BytesFor returns the size of d worth of audio, rounded down to whole
// sample frames.
func (f PCMFormat) BytesFor(d time.Duration) int {
	frameSize := f.Channels * f.Format.BytesPerSample
	if frameSize <= 0 {
		return 0
	}
	samples := int64(d) * int64(f.SampleRate) / int64(time.Second)
	return int(samples) * frameSize
}

func (f PCMFormat) Validate() error {
	switch {
	case f.SampleRate <= 0:
		return fmt.Errorf("invalid sample rate %d", f.SampleRate)
	case f.Channels <= 0:
		return fmt.Errorf("invalid channel count %d", f.Channels)
	case f.Format.BytesPerSample <= 0:
		return fmt.Errorf("invalid sample format %s", f.Format)
	}
	return nil
}

// Source is a loaded, not yet started, audio track.
type Source interface {
	PCMFormat() PCMFormat
}

// Output consumes PCM. Load is called once per session, then Play once.
// Play must not block for the duration of the playback.
type Output interface {
	Load(ctx context.Context, r io.Reader, format PCMFormat) (Source, error)
	Play(ctx context.Context, src Source, startDelay, bufferHint time.Duration) error

	// Close stops the playback. Calls after the first one are no-ops.
	Close(ctx context.Context) error
}

// ReaderSource is the Source of outputs that consume a plain reader.
type ReaderSource struct {
	io.Reader
	Format PCMFormat
}

func (s *ReaderSource) PCMFormat() PCMFormat {
	return s.Format
}

// CloseReader unblocks a producer that writes into a pipe this reader
// belongs to.
func CloseReader(r io.Reader) {
	if c, ok := r.(io.Closer); ok {
		_ = c.Close()
	}
}
