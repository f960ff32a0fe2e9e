// producer.go implements the decode loop that fills the frame buffer.

package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/xaionaro-go/avplayer/decoder"
	"github.com/xaionaro-go/avplayer/frame"
	"github.com/xaionaro-go/avplayer/framebuffer"
	"github.com/xaionaro-go/avplayer/helpers/closuresignaler"
	"github.com/xaionaro-go/avplayer/internal"
	"github.com/xaionaro-go/avplayer/logger"
	"go.uber.org/atomic"
)

type producerState int32

const (
	producerStateFilling producerState = iota
	producerStateWaiting
	producerStateEnded
)

func (s producerState) String() string {
	switch s {
	case producerStateFilling:
		return "filling"
	case producerStateWaiting:
		return "waiting"
	case producerStateEnded:
		return "ended"
	}
	return fmt.Sprintf("unknown_producer_state_%d", int32(s))
}

// producer decodes video frames ahead into the frame buffer and raises the
// end-of-stream signal once the decoder has no more frames.
type producer struct {
	decoder     decoder.Decoder
	queue       *framebuffer.Queue[*frame.Frame]
	endOfStream *closuresignaler.ClosureSignaler
	waitTime    time.Duration
	stats       *Stats

	state atomic.Int32
}

func (p *producer) State() producerState {
	return producerState(p.state.Load())
}

func (p *producer) setState(ctx context.Context, s producerState) {
	old := producerState(p.state.Swap(int32(s)))
	if old != s {
		logger.Tracef(ctx, "producer state: %s -> %s", old, s)
	}
}

func (p *producer) Run(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "producer.Run")
	defer func() { logger.Debugf(ctx, "/producer.Run: %v", _err) }()

	waitTimer := time.NewTimer(p.waitTime)
	defer waitTimer.Stop()
	for {
		if p.queue.IsFull() {
			p.setState(ctx, producerStateWaiting)
			waitTimer.Reset(p.waitTime)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-waitTimer.C:
			}
			continue
		}
		p.setState(ctx, producerStateFilling)

		f, err := p.decoder.ReadVideoFrame(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			p.setState(ctx, producerStateEnded)
			p.endOfStream.Close(ctx)
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return fmt.Errorf("unable to decode a video frame: %w", err)
		}
		p.stats.FramesDecoded.Inc()

		if err := p.queue.Enqueue(ctx, f); err != nil {
			f.Release()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("unable to enqueue %s: %w", f, err)
		}
		internal.Assert(ctx, p.queue.Count() <= p.queue.Cap(), p.queue)
	}
}
