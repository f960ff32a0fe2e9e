//go:build with_cv
// +build with_cv

// Package cvwindow shows presented frames in an OpenCV window.
package cvwindow

import (
	"context"
	"fmt"
	"image"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/avplayer/surface"
	"github.com/xaionaro-go/avplayer/types"
	"gocv.io/x/gocv"
)

type Window struct {
	*surface.Memory
	Window  *gocv.Window
	matType gocv.MatType
}

var _ surface.Surface = (*Window)(nil)

func New(
	ctx context.Context,
	title string,
	resolution types.Resolution,
	pixelFormat astiav.PixelFormat,
) (*Window, error) {
	var matType gocv.MatType
	switch pixelFormat {
	case astiav.PixelFormatBgr24:
		matType = gocv.MatTypeCV8UC3
	case astiav.PixelFormatBgra:
		matType = gocv.MatTypeCV8UC4
	case astiav.PixelFormatGray8:
		matType = gocv.MatTypeCV8UC1
	default:
		return nil, fmt.Errorf("OpenCV windows support only bgr24, bgra and gray pixel formats, but %s was requested", pixelFormat)
	}

	mem, err := surface.NewMemory(resolution, pixelFormat)
	if err != nil {
		return nil, err
	}
	w := &Window{
		Memory:  mem,
		Window:  gocv.NewWindow(title),
		matType: matType,
	}
	w.Window.ResizeWindow(int(resolution.Width), int(resolution.Height))
	mem.OnRelease = w.show
	return w, nil
}

// NewFactory returns a surface.Factory that opens a window per stream.
func NewFactory(title string) surface.Factory {
	return func(
		ctx context.Context,
		resolution types.Resolution,
		pixelFormat astiav.PixelFormat,
	) (surface.Surface, error) {
		return New(ctx, title, resolution, pixelFormat)
	}
}

func (w *Window) show(
	ctx context.Context,
	buf []byte,
	_ image.Rectangle,
) {
	res := w.Resolution()
	mat, err := gocv.NewMatFromBytes(int(res.Height), int(res.Width), w.matType, buf)
	if err != nil {
		logger.Errorf(ctx, "unable to wrap the frame into a Mat: %v", err)
		return
	}
	defer mat.Close()
	w.Window.IMShow(mat)
	w.Window.WaitKey(1)
}

func (w *Window) Close(ctx context.Context) error {
	if !w.Memory.ClosureSignaler.Close(ctx) {
		return nil
	}
	return w.Window.Close()
}
