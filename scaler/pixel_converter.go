// Package scaler converts decoded video frames into a packed pixel format
// and resolution, writing straight into caller-owned memory.
package scaler

import (
	"context"
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avplayer/frame"
	"github.com/xaionaro-go/avplayer/helpers/closuresignaler"
	"github.com/xaionaro-go/avplayer/internal"
	"github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/avplayer/types"
)

var (
	ErrConversionInit = types.ErrConversionInit
	ErrNotConfigured  = errors.New("the pixel converter is not configured")
)

// PixelConverter is configured once per stream and then reused for every
// frame. It performs no locking: callers serialize access to the
// destination memory themselves.
type PixelConverter struct {
	*closuresignaler.ClosureSignaler

	swsCtx   *astiav.SoftwareScaleContext
	dstFrame *astiav.Frame

	srcPixFmt astiav.PixelFormat
	srcRes    types.Resolution
	dstPixFmt astiav.PixelFormat
	dstRes    types.Resolution
	imageSize int
	flags     []astiav.SoftwareScaleContextFlag
}

func NewPixelConverter(
	flags ...astiav.SoftwareScaleContextFlag,
) *PixelConverter {
	if len(flags) == 0 {
		flags = []astiav.SoftwareScaleContextFlag{astiav.SoftwareScaleContextFlagBilinear}
	}
	return &PixelConverter{
		ClosureSignaler: closuresignaler.New(),
		flags:           flags,
	}
}

func (c *PixelConverter) String() string {
	if !c.IsConfigured() {
		return "PixelConverter(unconfigured)"
	}
	return fmt.Sprintf(
		"PixelConverter(%s:%s -> %s:%s)",
		c.srcRes, c.srcPixFmt, c.dstRes, c.dstPixFmt,
	)
}

func (c *PixelConverter) IsConfigured() bool {
	return c.swsCtx != nil
}

// Configure establishes the scaling context. The formats and resolutions
// are constant for the lifetime of a stream, so it may be called only once.
func (c *PixelConverter) Configure(
	ctx context.Context,
	srcPixFmt astiav.PixelFormat,
	srcRes types.Resolution,
	dstPixFmt astiav.PixelFormat,
	dstRes types.Resolution,
) (_err error) {
	logger.Debugf(ctx, "Configure(%s:%s -> %s:%s)", srcRes, srcPixFmt, dstRes, dstPixFmt)
	defer func() { logger.Debugf(ctx, "/Configure(%s:%s -> %s:%s): %v", srcRes, srcPixFmt, dstRes, dstPixFmt, _err) }()

	if c.IsClosed() {
		return fmt.Errorf("the pixel converter is closed")
	}
	if c.IsConfigured() {
		return fmt.Errorf("the pixel converter is already configured: %s", c)
	}
	if srcRes.IsZero() || dstRes.IsZero() {
		return fmt.Errorf("invalid resolution %s -> %s: %w", srcRes, dstRes, ErrConversionInit)
	}
	bpp := BytesPerPixel(dstPixFmt)
	if bpp == 0 {
		return fmt.Errorf("destination pixel format %s is not a packed presentation format: %w", dstPixFmt, ErrConversionInit)
	}

	swsCtx, err := astiav.CreateSoftwareScaleContext(
		int(srcRes.Width),
		int(srcRes.Height),
		srcPixFmt,
		int(dstRes.Width),
		int(dstRes.Height),
		dstPixFmt,
		astiav.NewSoftwareScaleContextFlags(c.flags...),
	)
	if err != nil {
		return fmt.Errorf("unable to create a software scale context: %w (%w)", ErrConversionInit, err)
	}
	internal.SetFinalizerFree(ctx, swsCtx)

	dstFrame := frame.Pool.Get()
	dstFrame.SetWidth(int(dstRes.Width))
	dstFrame.SetHeight(int(dstRes.Height))
	dstFrame.SetPixelFormat(dstPixFmt)
	if err := dstFrame.AllocBuffer(1); err != nil {
		frame.Pool.Put(dstFrame)
		internal.ClearFinalizer(swsCtx)
		swsCtx.Free()
		return fmt.Errorf("unable to allocate the destination frame: %w (%w)", ErrConversionInit, err)
	}

	c.swsCtx = swsCtx
	c.dstFrame = dstFrame
	c.srcPixFmt, c.srcRes = srcPixFmt, srcRes
	c.dstPixFmt, c.dstRes = dstPixFmt, dstRes
	c.imageSize = int(dstRes.Width) * int(dstRes.Height) * bpp
	return nil
}

// ImageSize is the number of bytes Convert writes: width*height*bytesPerPixel.
func (c *PixelConverter) ImageSize() int {
	return c.imageSize
}

func (c *PixelConverter) SourceResolution() types.Resolution {
	return c.srcRes
}

func (c *PixelConverter) SourcePixelFormat() astiav.PixelFormat {
	return c.srcPixFmt
}

func (c *PixelConverter) DestinationResolution() types.Resolution {
	return c.dstRes
}

func (c *PixelConverter) DestinationPixelFormat() astiav.PixelFormat {
	return c.dstPixFmt
}

// Convert scales src and writes the packed image (no row padding) into dst.
func (c *PixelConverter) Convert(
	ctx context.Context,
	src *astiav.Frame,
	dst []byte,
) (_err error) {
	logger.Tracef(ctx, "Convert")
	defer func() { logger.Tracef(ctx, "/Convert: %v", _err) }()

	switch {
	case c.IsClosed():
		return fmt.Errorf("the pixel converter is closed")
	case !c.IsConfigured():
		return ErrNotConfigured
	case src == nil:
		return fmt.Errorf("nil frame")
	case len(dst) < c.imageSize:
		return fmt.Errorf("the destination buffer is too small: %d < %d", len(dst), c.imageSize)
	}

	if err := c.swsCtx.ScaleFrame(src, c.dstFrame); err != nil {
		return fmt.Errorf("unable to scale a frame: %w", err)
	}
	if _, err := c.dstFrame.ImageCopyToBuffer(dst[:c.imageSize], 1); err != nil {
		return fmt.Errorf("unable to copy the image into the destination: %w", err)
	}
	return nil
}

// Close releases the scaling context.
func (c *PixelConverter) Close(ctx context.Context) error {
	logger.Debugf(ctx, "Close")
	defer logger.Debugf(ctx, "/Close")
	if !c.ClosureSignaler.Close(ctx) {
		return nil
	}
	if c.swsCtx != nil {
		internal.ClearFinalizer(c.swsCtx)
		c.swsCtx.Free()
		c.swsCtx = nil
	}
	if c.dstFrame != nil {
		frame.Pool.Put(c.dstFrame)
		c.dstFrame = nil
	}
	return nil
}
