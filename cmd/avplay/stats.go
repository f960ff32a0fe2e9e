// stats.go implements the periodic logging of the playback statistics.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/xaionaro-go/avplayer/logger"
)

// logStats logs stats every interval until ctx is cancelled.
func logStats(ctx context.Context, interval time.Duration, stats fmt.Stringer) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			logger.Infof(ctx, "%s", stats)
		}
	}
}
