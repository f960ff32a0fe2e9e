package player

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avplayer/audiooutput"
	"github.com/xaionaro-go/avplayer/decoder"
	"github.com/xaionaro-go/avplayer/frame"
	"github.com/xaionaro-go/avplayer/types"
	"go.uber.org/atomic"
)

var (
	testVideoResolution = types.Resolution{Width: 16, Height: 16}
	testVideoTimeBase   = astiav.NewRational(1, 1000)
	testAudioTimeBase   = astiav.NewRational(1, 8000)
)

const (
	testAudioSampleRate = 8000
	testAudioSamples    = 80
)

func newVideoFrame(t *testing.T, seq int, withImage bool) *frame.Frame {
	f := frame.Pool.Get()
	f.SetPts(int64(seq) * 20)
	if withImage {
		f.SetWidth(int(testVideoResolution.Width))
		f.SetHeight(int(testVideoResolution.Height))
		f.SetPixelFormat(astiav.PixelFormatYuv420P)
		require.NoError(t, f.AllocBuffer(1))
		require.NoError(t, f.ImageFillBlack())
	}
	return frame.New(f, astiav.MediaTypeVideo, 0, testVideoTimeBase, uint64(seq))
}

func newAudioFrame(t *testing.T, seq int) *frame.Frame {
	f := frame.Pool.Get()
	f.SetSampleFormat(astiav.SampleFormatS16)
	f.SetSampleRate(testAudioSampleRate)
	f.SetChannelLayout(astiav.ChannelLayoutMono)
	f.SetNbSamples(testAudioSamples)
	f.SetPts(int64(seq) * testAudioSamples)
	require.NoError(t, f.AllocBuffer(0))
	require.NoError(t, f.SamplesFillSilence())
	return frame.New(f, astiav.MediaTypeAudio, 1, testAudioTimeBase, uint64(seq))
}

// fakeDecoder yields a scripted number of frames.
type fakeDecoder struct {
	t *testing.T

	VideoFrames int // negative means infinite
	AudioFrames int
	WithImages  bool
	FrameRate   types.Rational
	PixelFormat astiav.PixelFormat

	// VideoDelay is applied before returning the video frame (or io.EOF)
	// of the given sequence number.
	VideoDelay func(seq int) time.Duration

	// VideoErrAt makes the decoder fail at this sequence number (if positive).
	VideoErrAt int

	locker     sync.Mutex
	nextVideo  int
	nextAudio  int
	produced   []*frame.Frame
	EndedAt    time.Time
	CloseCount atomic.Int32
	NoAudio    atomic.Bool
	ReadsInFly atomic.Int32
	Overlapped atomic.Bool
	reentrant  bool
}

var _ decoder.Decoder = (*fakeDecoder)(nil)

func newFakeDecoder(t *testing.T, videoFrames, audioFrames int) *fakeDecoder {
	return &fakeDecoder{
		t:           t,
		VideoFrames: videoFrames,
		AudioFrames: audioFrames,
		FrameRate:   types.Rational{Num: 100, Den: 1},
		PixelFormat: astiav.PixelFormatYuv420P,
	}
}

func (d *fakeDecoder) String() string { return "fakeDecoder" }

func (d *fakeDecoder) enter() func() {
	if d.ReadsInFly.Inc() > 1 {
		d.Overlapped.Store(true)
	}
	return func() { d.ReadsInFly.Dec() }
}

func (d *fakeDecoder) ReadVideoFrame(ctx context.Context) (*frame.Frame, error) {
	defer d.enter()()

	d.locker.Lock()
	seq := d.nextVideo
	d.locker.Unlock()

	if d.VideoDelay != nil {
		if delay := d.VideoDelay(seq); delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	d.locker.Lock()
	defer d.locker.Unlock()
	if d.VideoErrAt > 0 && seq == d.VideoErrAt {
		return nil, fmt.Errorf("synthetic decode failure at #%d", seq)
	}
	if d.VideoFrames >= 0 && seq >= d.VideoFrames {
		if d.EndedAt.IsZero() {
			d.EndedAt = time.Now()
		}
		return nil, io.EOF
	}
	d.nextVideo++
	f := newVideoFrame(d.t, seq, d.WithImages)
	d.produced = append(d.produced, f)
	return f, nil
}

func (d *fakeDecoder) ReadAudioFrame(ctx context.Context) (*frame.Frame, error) {
	defer d.enter()()

	d.locker.Lock()
	defer d.locker.Unlock()
	if d.NoAudio.Load() || d.nextAudio >= d.AudioFrames {
		return nil, io.EOF
	}
	f := newAudioFrame(d.t, d.nextAudio)
	d.nextAudio++
	d.produced = append(d.produced, f)
	return f, nil
}

func (d *fakeDecoder) VideoInfo() decoder.VideoInfo {
	return decoder.VideoInfo{
		StreamIndex: 0,
		CodecName:   "fake",
		PixelFormat: d.PixelFormat,
		Resolution:  testVideoResolution,
		FrameRate:   d.FrameRate,
		TimeBase:    testVideoTimeBase,
	}
}

func (d *fakeDecoder) AudioInfo() *decoder.AudioInfo {
	if d.AudioFrames <= 0 || d.NoAudio.Load() {
		return nil
	}
	return &decoder.AudioInfo{
		StreamIndex:   1,
		CodecName:     "fake",
		SampleFormat:  astiav.SampleFormatS16,
		SampleRate:    testAudioSampleRate,
		ChannelLayout: astiav.ChannelLayoutMono,
		Channels:      1,
		TimeBase:      testAudioTimeBase,
	}
}

func (d *fakeDecoder) DisableAudio(context.Context) { d.NoAudio.Store(true) }

func (d *fakeDecoder) IsReentrant() bool { return d.reentrant }

func (d *fakeDecoder) Close(context.Context) error {
	d.CloseCount.Inc()
	return nil
}

func (d *fakeDecoder) Decoded() int {
	d.locker.Lock()
	defer d.locker.Unlock()
	return d.nextVideo
}

func (d *fakeDecoder) requireAllReleased(t *testing.T) {
	d.locker.Lock()
	defer d.locker.Unlock()
	for _, f := range d.produced {
		require.True(t, f.IsReleased(), "%s is not released", f)
	}
}

// recordingOutput consumes the whole loaded source as fast as possible.
type recordingOutput struct {
	stats *Stats

	locker           sync.Mutex
	source           *audiooutput.ReaderSource
	data             bytes.Buffer
	copyDone         chan struct{}
	LoadCount        atomic.Int32
	PlayCount        atomic.Int32
	CloseCount       atomic.Int32
	PresentedAtPlay  atomic.Uint64
	PlayedStartDelay time.Duration
	PlayedBufferHint time.Duration
}

var _ audiooutput.Output = (*recordingOutput)(nil)

func newRecordingOutput(stats *Stats) *recordingOutput {
	return &recordingOutput{
		stats:    stats,
		copyDone: make(chan struct{}),
	}
}

func (o *recordingOutput) Load(
	_ context.Context,
	r io.Reader,
	format audiooutput.PCMFormat,
) (audiooutput.Source, error) {
	o.LoadCount.Inc()
	o.locker.Lock()
	defer o.locker.Unlock()
	o.source = &audiooutput.ReaderSource{Reader: r, Format: format}
	return o.source, nil
}

func (o *recordingOutput) Play(
	_ context.Context,
	src audiooutput.Source,
	startDelay, bufferHint time.Duration,
) error {
	o.PlayCount.Inc()
	if o.stats != nil {
		o.PresentedAtPlay.Store(o.stats.FramesPresented.Load())
	}
	o.locker.Lock()
	defer o.locker.Unlock()
	o.PlayedStartDelay, o.PlayedBufferHint = startDelay, bufferHint
	go func() {
		defer close(o.copyDone)
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, src.(*audiooutput.ReaderSource))
		o.locker.Lock()
		defer o.locker.Unlock()
		o.data.Write(buf.Bytes())
	}()
	return nil
}

func (o *recordingOutput) Close(context.Context) error {
	o.CloseCount.Inc()
	o.locker.Lock()
	src := o.source
	o.locker.Unlock()
	if src != nil {
		audiooutput.CloseReader(src.Reader)
	}
	if o.PlayCount.Load() > 0 {
		<-o.copyDone
	}
	return nil
}

func (o *recordingOutput) Format() audiooutput.PCMFormat {
	o.locker.Lock()
	defer o.locker.Unlock()
	if o.source == nil {
		return audiooutput.PCMFormat{}
	}
	return o.source.Format
}

func (o *recordingOutput) ReceivedBytes() int {
	o.locker.Lock()
	defer o.locker.Unlock()
	return o.data.Len()
}
