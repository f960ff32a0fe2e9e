package internal

import (
	"context"

	"github.com/xaionaro-go/avplayer/logger"
)

// Assert panics (through the logger, so the message is not lost) if mustBeTrue is false.
func Assert(
	ctx context.Context,
	mustBeTrue bool,
	extraArgs ...any,
) {
	if mustBeTrue {
		return
	}
	logger.Panic(ctx, "assertion failed", extraArgs)
}
