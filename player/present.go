package player

import (
	"context"
	"fmt"
	"image"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avplayer/frame"
	"github.com/xaionaro-go/avplayer/surface"
)

// PixelConverter writes a decoded frame into caller-owned pixel memory.
type PixelConverter interface {
	Convert(ctx context.Context, src *astiav.Frame, dst []byte) error
}

// presentFunc writes a frame to the presentation surface.
type presentFunc func(ctx context.Context, f *frame.Frame) error

func newPresenter(
	surf surface.Surface,
	conv PixelConverter,
) presentFunc {
	return func(ctx context.Context, f *frame.Frame) error {
		return present(ctx, surf, conv, f)
	}
}

// present holds the surface exclusively for the duration of the
// conversion; it is released even if the conversion fails.
func present(
	ctx context.Context,
	surf surface.Surface,
	conv PixelConverter,
	f *frame.Frame,
) (_err error) {
	buf, err := surf.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("unable to acquire the surface: %w", err)
	}
	var dirty image.Rectangle
	defer func() { surf.Release(ctx, dirty) }()

	if err := conv.Convert(ctx, f.Frame, buf); err != nil {
		return fmt.Errorf("unable to convert %s: %w", f, err)
	}
	dirty = surf.Resolution().Rect()
	return nil
}
