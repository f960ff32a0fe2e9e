// Package surface defines the presentation surface the player writes
// converted video frames into.
package surface

import (
	"context"
	"image"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avplayer/types"
)

// Surface exposes writable pixel memory of
// Resolution().Width*Resolution().Height*bytesPerPixel(PixelFormat()) bytes.
//
// Acquire grants exclusive access until the matching Release.
type Surface interface {
	Resolution() types.Resolution
	PixelFormat() astiav.PixelFormat
	Acquire(ctx context.Context) ([]byte, error)
	Release(ctx context.Context, dirty image.Rectangle)
	Close(ctx context.Context) error
}

// Factory creates a surface for a stream once its format is known.
type Factory func(
	ctx context.Context,
	resolution types.Resolution,
	pixelFormat astiav.PixelFormat,
) (Surface, error)
