package player

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avplayer/audiooutput"
	"github.com/xaionaro-go/avplayer/decoder"
	"github.com/xaionaro-go/avplayer/frame"
	"github.com/xaionaro-go/avplayer/helpers/closuresignaler"
	"github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/avplayer/resampler"
	"go.uber.org/atomic"
)

var errAudioStopped = errors.New("the audio playback is stopped")

// SampleConverter turns a decoded audio frame into interleaved PCM.
type SampleConverter interface {
	Convert(ctx context.Context, f *astiav.Frame) (*resampler.Buffer, error)
	Close(ctx context.Context) error
}

// audioStage decodes the audio track, converts it to PCM and feeds the
// audio output. The output is started once, by the pacing loop.
type audioStage struct {
	mode         AudioMode
	decoder      decoder.Decoder
	converter    SampleConverter
	outputFormat resampler.OutputFormat
	output       audiooutput.Output
	stats        *Stats
	startDelay   time.Duration
	bufferHint   time.Duration
	bufferCap    int

	stopped *closuresignaler.ClosureSignaler
	started atomic.Bool

	format audiooutput.PCMFormat
	source audiooutput.Source

	// stream mode only:
	first      *resampler.Buffer
	buffers    chan *resampler.Buffer
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
}

func (a *audioStage) String() string {
	return fmt.Sprintf("audio(%s, %s)", a.mode, a.format)
}

// convert consumes f.
func (a *audioStage) convert(
	ctx context.Context,
	f *frame.Frame,
) (*resampler.Buffer, error) {
	defer f.Release()
	buf, err := a.converter.Convert(ctx, f.Frame)
	if err != nil {
		return nil, fmt.Errorf("unable to convert audio frame %s: %w", f, err)
	}

	format := audiooutput.PCMFormat{
		SampleRate: buf.SampleRate,
		Channels:   buf.Channels,
		Format:     a.outputFormat,
	}
	if a.format.SampleRate == 0 {
		a.format = format
		logger.Debugf(ctx, "audio format: %s", format)
	} else if format != a.format {
		buf.Release(ctx)
		return nil, fmt.Errorf("the audio format changed from %s to %s", a.format, format)
	}

	a.stats.AudioFrames.Inc()
	a.stats.AudioBytes.Add(uint64(len(buf.Data)))
	return buf, nil
}

// preload decodes the whole audio track into one buffer and loads it into
// the output.
func (a *audioStage) preload(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "preload")
	defer func() { logger.Debugf(ctx, "/preload: %v", _err) }()

	var all bytes.Buffer
	for {
		f, err := a.decoder.ReadAudioFrame(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("unable to decode an audio frame: %w", err)
		}
		buf, err := a.convert(ctx, f)
		if err != nil {
			return err
		}
		all.Write(buf.Data)
		buf.Release(ctx)
	}
	if a.format.SampleRate == 0 {
		logger.Warnf(ctx, "the audio stream contains no frames")
		return nil
	}

	src, err := a.output.Load(ctx, bytes.NewReader(all.Bytes()), a.format)
	if err != nil {
		return fmt.Errorf("unable to load %d bytes of audio into the output: %w", all.Len(), err)
	}
	a.source = src
	return nil
}

// prepareStream decodes the first audio frame to learn the format and
// loads a pipe into the output; runProducer and runWriter then feed it.
func (a *audioStage) prepareStream(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "prepareStream")
	defer func() { logger.Debugf(ctx, "/prepareStream: %v", _err) }()

	f, err := a.decoder.ReadAudioFrame(ctx)
	if errors.Is(err, io.EOF) {
		logger.Warnf(ctx, "the audio stream contains no frames")
		return nil
	}
	if err != nil {
		return fmt.Errorf("unable to decode the first audio frame: %w", err)
	}
	buf, err := a.convert(ctx, f)
	if err != nil {
		return err
	}

	pr, pw := io.Pipe()
	src, err := a.output.Load(ctx, pr, a.format)
	if err != nil {
		buf.Release(ctx)
		return fmt.Errorf("unable to load the audio stream into the output: %w", err)
	}
	a.first = buf
	a.pipeReader, a.pipeWriter = pr, pw
	a.buffers = make(chan *resampler.Buffer, a.bufferCap)
	a.source = src
	return nil
}

func (a *audioStage) isStreaming() bool {
	return a.buffers != nil
}

func (a *audioStage) send(
	ctx context.Context,
	buf *resampler.Buffer,
) error {
	select {
	case <-ctx.Done():
		buf.Release(ctx)
		return ctx.Err()
	case <-a.stopped.CloseChan():
		buf.Release(ctx)
		return errAudioStopped
	case a.buffers <- buf:
		return nil
	}
}

// runProducer decodes and converts audio frames into the bounded buffer
// channel until the end of the stream.
func (a *audioStage) runProducer(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "audio runProducer")
	defer func() { logger.Debugf(ctx, "/audio runProducer: %v", _err) }()
	defer close(a.buffers)
	defer func() {
		if errors.Is(_err, errAudioStopped) {
			_err = nil
		}
	}()

	first := a.first
	a.first = nil
	if err := a.send(ctx, first); err != nil {
		return err
	}
	for {
		if a.stopped.IsClosed() {
			return nil
		}
		f, err := a.decoder.ReadAudioFrame(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return fmt.Errorf("unable to decode an audio frame: %w", err)
		}
		buf, err := a.convert(ctx, f)
		if err != nil {
			return err
		}
		if err := a.send(ctx, buf); err != nil {
			return err
		}
	}
}

// runWriter pushes the converted buffers into the pipe read by the output,
// releasing each buffer once written.
func (a *audioStage) runWriter(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "audio runWriter")
	defer func() { logger.Debugf(ctx, "/audio runWriter: %v", _err) }()
	defer a.pipeWriter.Close()

	var writeErr error
	for buf := range a.buffers {
		if writeErr == nil {
			_, writeErr = a.pipeWriter.Write(buf.Data)
		}
		buf.Release(ctx)
	}
	if writeErr != nil && !a.stopped.IsClosed() && !errors.Is(writeErr, io.ErrClosedPipe) {
		return fmt.Errorf("unable to write audio into the output: %w", writeErr)
	}
	return nil
}

// start is a no-op after the first call.
func (a *audioStage) start(ctx context.Context) error {
	if a.source == nil || !a.started.CompareAndSwap(false, true) {
		return nil
	}
	logger.Debugf(ctx, "starting the audio playback: %s", a)
	if err := a.output.Play(ctx, a.source, a.startDelay, a.bufferHint); err != nil {
		return fmt.Errorf("unable to start the audio playback: %w", err)
	}
	a.stats.AudioStartedAt.Store(time.Now())
	return nil
}

// stop stops the playback and makes the streaming goroutines finish.
func (a *audioStage) stop(ctx context.Context) {
	if !a.stopped.Close(ctx) {
		return
	}
	logger.Debugf(ctx, "stopping the audio playback")
	if a.pipeReader != nil {
		a.pipeReader.CloseWithError(errAudioStopped)
	}
}

// release frees what the streaming goroutines did not consume; it must be
// called after they have finished.
func (a *audioStage) release(ctx context.Context) {
	if a.first != nil {
		a.first.Release(ctx)
		a.first = nil
	}
	if err := a.converter.Close(ctx); err != nil {
		logger.Errorf(ctx, "unable to close the sample converter: %v", err)
	}
}
