package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xaionaro-go/avplayer/audiooutput"
	"github.com/xaionaro-go/avplayer/decoder"
	"github.com/xaionaro-go/avplayer/frame"
	"github.com/xaionaro-go/avplayer/framebuffer"
	"github.com/xaionaro-go/avplayer/helpers/closuresignaler"
	"github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/avplayer/types"
	"golang.org/x/sync/errgroup"
)

// session is a single run of the playback pipeline.
type session struct {
	decoder     decoder.Decoder
	queue       *framebuffer.Queue[*frame.Frame]
	endOfStream *closuresignaler.ClosureSignaler
	producer    *producer
	audio       *audioStage
	output      audiooutput.Output
	present     presentFunc
	frameRate   types.Rational
	pacingMode  PacingMode
	waitTime    time.Duration
	stats       *Stats

	closeOnce sync.Once
}

type sessionParams struct {
	Config          Config
	Decoder         decoder.Decoder
	FrameRate       types.Rational
	Present         presentFunc
	Output          audiooutput.Output
	SampleConverter SampleConverter
	Stats           *Stats
}

func newSession(p sessionParams) (*session, error) {
	if !p.FrameRate.IsValid() {
		return nil, fmt.Errorf("frame rate %s: %w", p.FrameRate, ErrInvalidFrameRate)
	}
	cfg := p.Config
	s := &session{
		decoder:     p.Decoder,
		queue:       framebuffer.New[*frame.Frame](cfg.FrameCap),
		endOfStream: closuresignaler.New(),
		output:      p.Output,
		present:     p.Present,
		frameRate:   p.FrameRate,
		pacingMode:  cfg.PacingMode,
		waitTime:    cfg.WaitTime,
		stats:       p.Stats,
	}
	s.producer = &producer{
		decoder:     s.decoder,
		queue:       s.queue,
		endOfStream: s.endOfStream,
		waitTime:    cfg.WaitTime,
		stats:       s.stats,
	}
	if p.Output != nil && p.SampleConverter != nil && p.Decoder.AudioInfo() != nil {
		s.audio = &audioStage{
			mode:         cfg.AudioMode,
			decoder:      s.decoder,
			converter:    p.SampleConverter,
			outputFormat: cfg.SampleFormat,
			output:       p.Output,
			stats:        s.stats,
			startDelay:   cfg.AudioStartDelay,
			bufferHint:   cfg.AudioBufferHint,
			bufferCap:    cfg.AudioBufferCap,
			stopped:      closuresignaler.New(),
		}
	}
	return s, nil
}

// run blocks until the end of the stream is presented, an error occurs or
// ctx is cancelled. All the resources of the session are released on return.
func (s *session) run(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "session.run")
	defer func() { logger.Debugf(ctx, "/session.run: %v", _err) }()
	defer s.close(ctx)

	ctx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.producer.Run(gctx)
	})

	if s.audio != nil {
		var err error
		switch s.audio.mode {
		case AudioModePreload:
			err = s.audio.preload(gctx)
		default:
			err = s.audio.prepareStream(gctx)
		}
		if err != nil {
			cancelFn()
			_ = g.Wait()
			return fmt.Errorf("unable to prepare the audio: %w", err)
		}
		if s.audio.isStreaming() {
			g.Go(func() error {
				return s.audio.runProducer(gctx)
			})
			g.Go(func() error {
				return s.audio.runWriter(gctx)
			})
		}
	}

	g.Go(func() error {
		defer s.stopAudio(gctx)
		err := s.runPacing(gctx)
		s.stats.EndedAt.Store(time.Now())
		return err
	})
	return g.Wait()
}

func (s *session) stopAudio(ctx context.Context) {
	if s.audio != nil {
		s.audio.stop(ctx)
	}
}

// close releases the queued frames, the audio pipeline and the audio
// output, once.
func (s *session) close(ctx context.Context) {
	s.closeOnce.Do(func() {
		logger.Debugf(ctx, "closing the session")
		s.stopAudio(ctx)
		if err := s.queue.Close(ctx); err != nil {
			logger.Errorf(ctx, "unable to close the frame buffer: %v", err)
		}
		if s.audio != nil {
			s.audio.release(ctx)
		}
		if s.output != nil {
			if err := s.output.Close(ctx); err != nil {
				logger.Errorf(ctx, "unable to close the audio output: %v", err)
			}
		}
		logger.Debugf(ctx, "frame buffer: %s", &s.queue.Metrics)
	})
}
