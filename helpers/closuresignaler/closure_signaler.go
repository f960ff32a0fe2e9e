// Package closuresignaler provides a close-once signal that can be both
// polled and waited on.
package closuresignaler

import (
	"context"
	"sync"

	"github.com/xaionaro-go/avplayer/logger"
)

type ClosureSignaler struct {
	closeOnce sync.Once
	c         chan struct{}
}

func New() *ClosureSignaler {
	return &ClosureSignaler{
		c: make(chan struct{}),
	}
}

func (c *ClosureSignaler) CloseChan() <-chan struct{} {
	return c.c
}

// Close signals the closure. It returns true only for the call that
// actually closed the signaler.
func (c *ClosureSignaler) Close(ctx context.Context) bool {
	closed := false
	c.closeOnce.Do(func() {
		logger.Tracef(ctx, "closing %p", c)
		close(c.c)
		closed = true
	})
	return closed
}

func (c *ClosureSignaler) IsClosed() bool {
	select {
	case <-c.c:
		return true
	default:
		return false
	}
}
