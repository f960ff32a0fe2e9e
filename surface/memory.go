package surface

import (
	"context"
	"fmt"
	"image"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avplayer/helpers/closuresignaler"
	"github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/avplayer/scaler"
	"github.com/xaionaro-go/avplayer/types"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"
)

// Memory is a surface backed by a plain byte slice.
type Memory struct {
	*closuresignaler.ClosureSignaler

	resolution    types.Resolution
	pixelFormat   astiav.PixelFormat
	bytesPerPixel int

	locker   xsync.Mutex
	buffer   []byte
	acquired bool
	dirty    image.Rectangle

	// Writes counts the Release calls with a non-empty dirty region.
	Writes atomic.Uint64

	// OnRelease is called with the surface still held exclusively.
	OnRelease func(ctx context.Context, buf []byte, dirty image.Rectangle)
}

var _ Surface = (*Memory)(nil)

func NewMemory(
	resolution types.Resolution,
	pixelFormat astiav.PixelFormat,
) (*Memory, error) {
	bpp := scaler.BytesPerPixel(pixelFormat)
	if bpp == 0 {
		return nil, fmt.Errorf("pixel format %s is not supported by the memory surface", pixelFormat)
	}
	if resolution.IsZero() {
		return nil, fmt.Errorf("invalid resolution %s", resolution)
	}
	return &Memory{
		ClosureSignaler: closuresignaler.New(),
		resolution:      resolution,
		pixelFormat:     pixelFormat,
		bytesPerPixel:   bpp,
		buffer:          make([]byte, int(resolution.Width)*int(resolution.Height)*bpp),
	}, nil
}

// MemoryFactory is a Factory producing Memory surfaces.
func MemoryFactory(
	_ context.Context,
	resolution types.Resolution,
	pixelFormat astiav.PixelFormat,
) (Surface, error) {
	return NewMemory(resolution, pixelFormat)
}

func (s *Memory) String() string {
	return fmt.Sprintf("Memory(%s %s)", s.resolution, s.pixelFormat)
}

func (s *Memory) Resolution() types.Resolution {
	return s.resolution
}

func (s *Memory) PixelFormat() astiav.PixelFormat {
	return s.pixelFormat
}

func (s *Memory) Acquire(ctx context.Context) ([]byte, error) {
	if s.IsClosed() {
		return nil, fmt.Errorf("the surface is closed")
	}
	s.locker.ManualLock(ctx)
	if s.acquired {
		s.locker.ManualUnlock(ctx)
		return nil, fmt.Errorf("internal error: the surface is already acquired")
	}
	s.acquired = true
	return s.buffer, nil
}

func (s *Memory) Release(ctx context.Context, dirty image.Rectangle) {
	if !s.acquired {
		logger.Errorf(ctx, "Release is called on a surface that is not acquired")
		return
	}
	defer s.locker.ManualUnlock(ctx)
	s.acquired = false
	dirty = dirty.Intersect(s.resolution.Rect())
	if dirty.Empty() {
		return
	}
	s.dirty = s.dirty.Union(dirty)
	s.Writes.Inc()
	if s.OnRelease != nil {
		s.OnRelease(ctx, s.buffer, dirty)
	}
}

// TakeDirty returns the region written since the previous call and
// resets it.
func (s *Memory) TakeDirty(ctx context.Context) image.Rectangle {
	return xsync.DoR1(ctx, &s.locker, func() image.Rectangle {
		r := s.dirty
		s.dirty = image.Rectangle{}
		return r
	})
}

// Bytes returns a copy of the current content.
func (s *Memory) Bytes(ctx context.Context) []byte {
	return xsync.DoR1(ctx, &s.locker, func() []byte {
		return append([]byte(nil), s.buffer...)
	})
}

func (s *Memory) Close(ctx context.Context) error {
	s.ClosureSignaler.Close(ctx)
	return nil
}
