// pacing.go implements the presentation schedule of the playback loop.

package player

import (
	"context"
	"fmt"
	"time"

	"github.com/xaionaro-go/avplayer/avconv"
	"github.com/xaionaro-go/avplayer/frame"
	"github.com/xaionaro-go/avplayer/logger"
)

// runPacing is the consumer: it waits for the prefill, starts the clock
// once and presents the buffered frames in queue order.
func (s *session) runPacing(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "runPacing")
	defer func() { logger.Debugf(ctx, "/runPacing: %v", _err) }()

	prefillStartedAt := time.Now()
	if err := s.queue.WaitFull(ctx, s.waitTime, s.endOfStream.CloseChan()); err != nil {
		return fmt.Errorf("unable to prefill the frame buffer: %w", err)
	}
	clockStart := time.Now()
	s.stats.PrefillDuration.Store(clockStart.Sub(prefillStartedAt))
	s.stats.ClockStartedAt.Store(clockStart)
	logger.Debugf(ctx, "the clock is started after a prefill of %d frames", s.queue.Count())

	switch s.pacingMode {
	case PacingModeIndex:
		return s.paceByIndex(ctx, clockStart)
	case PacingModeTimestamp:
		return s.paceByTimestamp(ctx, clockStart)
	default:
		return fmt.Errorf("unknown pacing mode: %s", s.pacingMode)
	}
}

// isDrained reports whether no frame will ever be presented anymore.
func (s *session) isDrained() bool {
	return s.endOfStream.IsClosed() && s.queue.Count() == 0
}

func (s *session) paceByIndex(
	ctx context.Context,
	clockStart time.Time,
) error {
	for i := int64(0); ; i++ {
		if s.isDrained() {
			return nil
		}
		drained, err := s.sleepUntil(ctx, clockStart.Add(s.frameRate.FrameOffset(i)), true)
		if err != nil {
			return err
		}
		if drained {
			return nil
		}

		f, ok := s.queue.TryDequeue()
		if !ok {
			if !s.endOfStream.IsClosed() {
				s.stats.FramesSkipped.Inc()
				logger.Debugf(ctx, "skipping slot #%d: no frame is ready", i)
				continue
			}
			// the producer could have enqueued its last frame right
			// before signaling the end of the stream
			if f, ok = s.queue.TryDequeue(); !ok {
				return nil
			}
		}
		if err := s.presentAndDispose(ctx, f); err != nil {
			return err
		}
	}
}

func (s *session) paceByTimestamp(
	ctx context.Context,
	clockStart time.Time,
) error {
	firstPTS := avconv.NoDuration
	for i := int64(0); ; i++ {
		f, err := s.waitFrame(ctx)
		if err != nil {
			return err
		}
		if f == nil {
			return nil
		}

		offset := s.frameRate.FrameOffset(i)
		if pts := f.PTS(); pts != avconv.NoDuration {
			if firstPTS == avconv.NoDuration {
				firstPTS = pts
			}
			offset = max(pts-firstPTS, 0)
		}
		if time.Since(clockStart) > offset+s.frameRate.FrameDuration() {
			s.stats.FramesLate.Inc()
			logger.Debugf(ctx, "%s is late by %v", f, time.Since(clockStart)-offset)
		}
		if _, err := s.sleepUntil(ctx, clockStart.Add(offset), false); err != nil {
			f.Release()
			return err
		}
		if err := s.presentAndDispose(ctx, f); err != nil {
			return err
		}
	}
}

// waitFrame polls the frame buffer; it returns nil if the stream is over.
func (s *session) waitFrame(ctx context.Context) (*frame.Frame, error) {
	t := time.NewTicker(s.waitTime)
	defer t.Stop()
	for {
		if f, ok := s.queue.TryDequeue(); ok {
			return f, nil
		}
		if s.isDrained() {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.endOfStream.CloseChan():
			if f, ok := s.queue.TryDequeue(); ok {
				return f, nil
			}
			return nil, nil
		case <-t.C:
		}
	}
}

// sleepUntil suspends until deadline. If watchDrain is set, it returns
// early with true once the stream is over and the buffer is empty.
func (s *session) sleepUntil(
	ctx context.Context,
	deadline time.Time,
	watchDrain bool,
) (bool, error) {
	d := time.Until(deadline)
	if d <= 0 {
		return false, ctx.Err()
	}
	var endOfStream <-chan struct{}
	if watchDrain {
		endOfStream = s.endOfStream.CloseChan()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-t.C:
			return false, nil
		case <-endOfStream:
			if s.queue.Count() == 0 {
				return true, nil
			}
			endOfStream = nil
		}
	}
}

// presentAndDispose presents f, starts the audio on the first presented
// frame and releases f.
func (s *session) presentAndDispose(
	ctx context.Context,
	f *frame.Frame,
) error {
	defer f.Release()
	logger.Tracef(ctx, "presenting %s", f)
	if err := s.present(ctx, f); err != nil {
		return fmt.Errorf("unable to present %s: %w", f, err)
	}
	if s.stats.FramesPresented.Inc() != 1 {
		return nil
	}
	s.stats.FirstPresentedAt.Store(time.Now())
	if s.audio == nil {
		return nil
	}
	return s.audio.start(ctx)
}
