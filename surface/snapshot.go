// snapshot.go implements images and snapshots of packed pixel buffers.

package surface

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"
	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avplayer/types"
	"github.com/xaionaro-go/xsync"
)

// ToImage interprets a packed pixel buffer as an image.
func ToImage(
	buf []byte,
	resolution types.Resolution,
	pixelFormat astiav.PixelFormat,
) (image.Image, error) {
	w, h := int(resolution.Width), int(resolution.Height)
	rect := resolution.Rect()
	if pixelFormat == astiav.PixelFormatGray8 {
		if len(buf) < w*h {
			return nil, fmt.Errorf("the buffer is too short: %d < %d", len(buf), w*h)
		}
		img := image.NewGray(rect)
		copy(img.Pix, buf[:w*h])
		return img, nil
	}

	var pick func(px []byte) color.NRGBA
	bpp := 0
	switch pixelFormat {
	case astiav.PixelFormatRgb24:
		bpp, pick = 3, func(px []byte) color.NRGBA { return color.NRGBA{px[0], px[1], px[2], 0xff} }
	case astiav.PixelFormatBgr24:
		bpp, pick = 3, func(px []byte) color.NRGBA { return color.NRGBA{px[2], px[1], px[0], 0xff} }
	case astiav.PixelFormatRgba:
		bpp, pick = 4, func(px []byte) color.NRGBA { return color.NRGBA{px[0], px[1], px[2], px[3]} }
	case astiav.PixelFormatBgra:
		bpp, pick = 4, func(px []byte) color.NRGBA { return color.NRGBA{px[2], px[1], px[0], px[3]} }
	case astiav.PixelFormatArgb:
		bpp, pick = 4, func(px []byte) color.NRGBA { return color.NRGBA{px[1], px[2], px[3], px[0]} }
	case astiav.PixelFormatAbgr:
		bpp, pick = 4, func(px []byte) color.NRGBA { return color.NRGBA{px[3], px[2], px[1], px[0]} }
	default:
		return nil, fmt.Errorf("pixel format %s is not supported", pixelFormat)
	}
	if len(buf) < w*h*bpp {
		return nil, fmt.Errorf("the buffer is too short: %d < %d", len(buf), w*h*bpp)
	}

	img := image.NewNRGBA(rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := (y*w + x) * bpp
			img.SetNRGBA(x, y, pick(buf[off:off+bpp]))
		}
	}
	return img, nil
}

// Snapshot returns a copy of the current content as an image.
func (s *Memory) Snapshot(ctx context.Context) (image.Image, error) {
	return xsync.DoR2(ctx, &s.locker, func() (image.Image, error) {
		return ToImage(s.buffer, s.resolution, s.pixelFormat)
	})
}

// SaveSnapshot writes the current content to a PNG or JPEG file (chosen by
// the extension), downscaled to maxWidth if it is positive and smaller
// than the surface.
func (s *Memory) SaveSnapshot(
	ctx context.Context,
	path string,
	maxWidth int,
) error {
	img, err := s.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("unable to take a snapshot: %w", err)
	}
	if maxWidth > 0 && maxWidth < img.Bounds().Dx() {
		b := img.Bounds()
		h := b.Dy() * maxWidth / b.Dx()
		if h < 1 {
			h = 1
		}
		img = transform.Resize(img, maxWidth, h, transform.Linear)
	}

	var encoder imgio.Encoder
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		encoder = imgio.JPEGEncoder(90)
	case ".png", "":
		encoder = imgio.PNGEncoder()
	default:
		return fmt.Errorf("unsupported snapshot file extension in '%s'", path)
	}
	if err := imgio.Save(path, img, encoder); err != nil {
		return fmt.Errorf("unable to save the snapshot to '%s': %w", path, err)
	}
	return nil
}
