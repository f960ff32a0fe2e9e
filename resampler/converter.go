// Package resampler converts decoded audio frames into interleaved PCM of
// a chosen sample format. The sample rate and the channel layout are kept
// as they are: only the sample representation changes.
package resampler

import (
	"context"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avplayer/frame"
	"github.com/xaionaro-go/avplayer/helpers/closuresignaler"
	"github.com/xaionaro-go/avplayer/internal"
	"github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/avplayer/types"
)

var ErrConversionInit = types.ErrConversionInit

type inputFormat struct {
	SampleFormat  astiav.SampleFormat
	SampleRate    int
	ChannelLayout astiav.ChannelLayout
}

func (f inputFormat) String() string {
	return fmt.Sprintf("%s %dHz %s", f.SampleFormat, f.SampleRate, f.ChannelLayout)
}

func (f inputFormat) Equal(other inputFormat) bool {
	return f.SampleFormat == other.SampleFormat &&
		f.SampleRate == other.SampleRate &&
		f.ChannelLayout.Equal(other.ChannelLayout)
}

// SampleConverter owns one resample context for the lifetime of a stream.
// It is not safe for concurrent use.
type SampleConverter struct {
	*closuresignaler.ClosureSignaler
	Format OutputFormat

	swrCtx      *astiav.SoftwareResampleContext
	inputFormat *inputFormat
	converted   bool
}

func New(
	ctx context.Context,
	out OutputFormat,
) (_ret *SampleConverter, _err error) {
	logger.Tracef(ctx, "New: %s", out)
	defer func() { logger.Tracef(ctx, "/New: %s: %v", out, _err) }()

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &SampleConverter{
		ClosureSignaler: closuresignaler.New(),
		Format:          out,
	}, nil
}

func (c *SampleConverter) String() string {
	if c.inputFormat == nil {
		return fmt.Sprintf("SampleConverter(? -> %s)", c.Format)
	}
	return fmt.Sprintf("SampleConverter(%s -> %s)", c.inputFormat, c.Format)
}

func (c *SampleConverter) init(ctx context.Context) error {
	if c.swrCtx != nil {
		return nil
	}
	swrCtx := astiav.AllocSoftwareResampleContext()
	if swrCtx == nil {
		return fmt.Errorf("cannot alloc SoftwareResampleContext: %w", ErrConversionInit)
	}
	internal.SetFinalizerFree(ctx, swrCtx)
	c.swrCtx = swrCtx
	return nil
}

// Convert returns a new Buffer of exactly
// in.NbSamples() * channels * Format.BytesPerSample bytes.
func (c *SampleConverter) Convert(
	ctx context.Context,
	in *astiav.Frame,
) (_ret *Buffer, _err error) {
	logger.Tracef(ctx, "Convert")
	defer func() { logger.Tracef(ctx, "/Convert: %v", _err) }()

	if c.IsClosed() {
		return nil, fmt.Errorf("the sample converter is closed")
	}
	if in == nil {
		return nil, fmt.Errorf("nil frame")
	}
	channels := in.ChannelLayout().Channels()
	if channels <= 0 || in.NbSamples() <= 0 {
		return nil, fmt.Errorf("invalid frame parameters: channels=%d nbSamples=%d", channels, in.NbSamples())
	}

	inFmt := inputFormat{
		SampleFormat:  in.SampleFormat(),
		SampleRate:    in.SampleRate(),
		ChannelLayout: in.ChannelLayout(),
	}
	if c.inputFormat == nil {
		c.inputFormat = &inFmt
	} else if !c.inputFormat.Equal(inFmt) {
		return nil, fmt.Errorf("input frame format changed: %s -> %s", c.inputFormat, inFmt)
	}

	if err := c.init(ctx); err != nil {
		return nil, err
	}

	out := frame.Pool.Get()
	defer frame.Pool.Put(out)
	out.SetNbSamples(in.NbSamples())
	out.SetChannelLayout(in.ChannelLayout())
	out.SetSampleFormat(c.Format.SampleFormat)
	out.SetSampleRate(in.SampleRate())
	if err := out.AllocBuffer(0); err != nil {
		return nil, fmt.Errorf("cannot alloc buffer for the converted frame: %w", err)
	}

	if err := c.swrCtx.ConvertFrame(in, out); err != nil {
		if !c.converted {
			// the first ConvertFrame configures the context for the format pair
			return nil, fmt.Errorf("cannot configure resampling %s -> %s: %w (%w)", inFmt, c.Format, ErrConversionInit, err)
		}
		return nil, fmt.Errorf("cannot convert frame: %w", err)
	}
	c.converted = true

	buf := newBuffer(out.NbSamples(), in.SampleRate(), channels, c.Format.BytesPerSample)
	if _, err := out.SamplesCopyToBuffer(buf.Data, 1); err != nil {
		buf.Release(ctx)
		return nil, fmt.Errorf("unable to copy samples to buffer: %w", err)
	}
	return buf, nil
}

// Close releases the resample context.
func (c *SampleConverter) Close(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Close")
	defer func() { logger.Debugf(ctx, "/Close: %v", _err) }()
	if !c.ClosureSignaler.Close(ctx) {
		return nil
	}
	if c.swrCtx != nil {
		internal.ClearFinalizer(c.swrCtx)
		c.swrCtx.Free()
		c.swrCtx = nil
	}
	return nil
}

// ConvertTo converts a single frame with a throwaway context.
func ConvertTo(
	ctx context.Context,
	in *astiav.Frame,
	out OutputFormat,
) (*Buffer, error) {
	c, err := New(ctx, out)
	if err != nil {
		return nil, err
	}
	defer c.Close(ctx)
	return c.Convert(ctx, in)
}
