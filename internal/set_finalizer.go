package internal

import (
	"context"
	"runtime"

	"github.com/xaionaro-go/avplayer/logger"
)

// SetFinalizerFree makes the GC call Free on a native resource that
// nobody released explicitly.
func SetFinalizerFree[T interface{ Free() }](
	ctx context.Context,
	freer T,
) {
	runtime.SetFinalizer(freer, func(freer T) {
		logger.Debugf(ctx, "freeing %T by finalizer", freer)
		freer.Free()
	})
}

// ClearFinalizer is used once a resource was freed explicitly.
func ClearFinalizer[T any](obj T) {
	runtime.SetFinalizer(obj, nil)
}
