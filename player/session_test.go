package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avplayer/frame"
	"github.com/xaionaro-go/avplayer/resampler"
	"github.com/xaionaro-go/avplayer/types"
)

type presentRecorder struct {
	output *recordingOutput

	locker         sync.Mutex
	seqs           []uint64
	times          []time.Time
	playsAtPresent []int32
}

func (r *presentRecorder) present(_ context.Context, f *frame.Frame) error {
	r.locker.Lock()
	defer r.locker.Unlock()
	r.seqs = append(r.seqs, f.Seq)
	r.times = append(r.times, time.Now())
	if r.output != nil {
		r.playsAtPresent = append(r.playsAtPresent, r.output.PlayCount.Load())
	}
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AudioStartDelay = 0
	return cfg
}

func newTestSession(
	t *testing.T,
	cfg Config,
	dec *fakeDecoder,
	out *recordingOutput,
	rec *presentRecorder,
	stats *Stats,
) *session {
	var sampleConverter SampleConverter
	params := sessionParams{
		Config:    cfg,
		Decoder:   dec,
		FrameRate: dec.FrameRate,
		Present:   rec.present,
		Stats:     stats,
	}
	if out != nil {
		params.Output = out
		c, err := resampler.New(context.Background(), cfg.SampleFormat)
		require.NoError(t, err)
		sampleConverter = c
		params.SampleConverter = sampleConverter
	}
	s, err := newSession(params)
	require.NoError(t, err)
	return s
}

func TestSessionPresentsInDecodeOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dec := newFakeDecoder(t, 30, 0)
	dec.FrameRate = types.Rational{Num: 1000, Den: 1}
	rec := &presentRecorder{}
	var stats Stats
	s := newTestSession(t, testConfig(), dec, nil, rec, &stats)

	require.NoError(t, s.run(ctx))

	require.Equal(t, uint64(30), stats.FramesDecoded.Load())
	require.LessOrEqual(t, stats.FramesPresented.Load(), stats.FramesDecoded.Load())
	require.Equal(t, uint64(len(rec.seqs)), stats.FramesPresented.Load())
	for idx := 1; idx < len(rec.seqs); idx++ {
		require.Less(t, rec.seqs[idx-1], rec.seqs[idx], "frames must be presented in decode order")
	}
	require.LessOrEqual(t, s.queue.Metrics.MaxOccupancy.Load(), int64(testConfig().FrameCap))
	require.Equal(t, producerStateEnded, s.producer.State())
	dec.requireAllReleased(t)
}

func TestSessionPresentationNotBeforeIdealTime(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dec := newFakeDecoder(t, 10, 0)
	dec.FrameRate = types.Rational{Num: 50, Den: 1}
	rec := &presentRecorder{}
	var stats Stats
	s := newTestSession(t, testConfig(), dec, nil, rec, &stats)

	require.NoError(t, s.run(ctx))
	require.Len(t, rec.seqs, 10)
	require.Zero(t, stats.FramesSkipped.Load())

	clockStart := stats.ClockStartedAt.Load()
	for i, ts := range rec.times {
		require.GreaterOrEqual(t, ts.Sub(clockStart), dec.FrameRate.FrameOffset(int64(i)), "frame #%d", i)
	}
	require.GreaterOrEqual(t, stats.PlaybackDuration(), dec.FrameRate.FrameOffset(9))
}

func TestSessionSkipAccounting(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	const stallAt = 4
	dec := newFakeDecoder(t, 6, 0)
	dec.FrameRate = types.Rational{Num: 100, Den: 1}
	dec.VideoDelay = func(seq int) time.Duration {
		if seq == stallAt {
			return 150 * time.Millisecond
		}
		return 0
	}
	rec := &presentRecorder{}
	var stats Stats
	s := newTestSession(t, testConfig(), dec, nil, rec, &stats)

	startedAt := time.Now()
	require.NoError(t, s.run(ctx))
	require.Less(t, time.Since(startedAt), 2*time.Second)

	require.Equal(t, []uint64{0, 1, 2, 3, 4, 5}, rec.seqs)
	require.Equal(t, uint64(6), stats.FramesPresented.Load())
	require.GreaterOrEqual(t, stats.FramesSkipped.Load(), uint64(5))
	dec.requireAllReleased(t)
}

func TestSessionAudioStartsOnFirstPresentedFrame(t *testing.T) {
	for _, mode := range []AudioMode{AudioModeStream, AudioModePreload} {
		mode := mode
		t.Run(mode.String(), func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			const audioFrames = 5
			dec := newFakeDecoder(t, 10, audioFrames)
			var stats Stats
			out := newRecordingOutput(&stats)
			rec := &presentRecorder{output: out}
			cfg := testConfig()
			cfg.AudioMode = mode
			cfg.AudioStartDelay = 7 * time.Millisecond
			s := newTestSession(t, cfg, dec, out, rec, &stats)

			require.NoError(t, s.run(ctx))

			require.Len(t, rec.playsAtPresent, 10)
			require.Equal(t, int32(0), rec.playsAtPresent[0], "the audio must not start before the first frame is presented")
			for _, plays := range rec.playsAtPresent[1:] {
				require.Equal(t, int32(1), plays)
			}
			require.Equal(t, uint64(1), out.PresentedAtPlay.Load())
			require.Equal(t, int32(1), out.LoadCount.Load())
			require.Equal(t, int32(1), out.PlayCount.Load())
			require.Equal(t, int32(1), out.CloseCount.Load())
			require.Equal(t, 7*time.Millisecond, out.PlayedStartDelay)
			require.Equal(t, cfg.AudioBufferHint, out.PlayedBufferHint)

			expectedBytes := audioFrames * testAudioSamples * resampler.PCMInt16.BytesPerSample
			require.Equal(t, uint64(expectedBytes), stats.AudioBytes.Load())
			require.Equal(t, uint64(audioFrames), stats.AudioFrames.Load())
			require.Equal(t, expectedBytes, out.ReceivedBytes())
			require.Equal(t, testAudioSampleRate, out.Format().SampleRate)
			require.Equal(t, 1, out.Format().Channels)
			require.False(t, stats.AudioStartedAt.Load().Before(stats.FirstPresentedAt.Load()))

			s.close(ctx)
			require.Equal(t, int32(1), out.CloseCount.Load(), "the output is released exactly once")
			dec.requireAllReleased(t)
		})
	}
}

func TestSessionTerminatesPromptlyAtEndOfStream(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// one frame per second: waiting for the next slot would take a second
	dec := newFakeDecoder(t, 1, 0)
	dec.FrameRate = types.Rational{Num: 1, Den: 1}
	dec.VideoDelay = func(seq int) time.Duration {
		if seq == 1 {
			return 100 * time.Millisecond
		}
		return 0
	}
	cfg := testConfig()
	cfg.FrameCap = 1
	out := newRecordingOutput(nil)
	rec := &presentRecorder{}
	var stats Stats
	s := newTestSession(t, cfg, dec, out, rec, &stats)

	require.NoError(t, s.run(ctx))
	require.Len(t, rec.seqs, 1)

	dec.locker.Lock()
	endedAt := dec.EndedAt
	dec.locker.Unlock()
	require.False(t, endedAt.IsZero())
	require.Less(t, stats.EndedAt.Load().Sub(endedAt), 500*time.Millisecond)
	require.Equal(t, int32(1), out.CloseCount.Load())
	require.Zero(t, out.PlayCount.Load(), "the source has no audio stream")
}

func TestSessionShortSourcePrefill(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dec := newFakeDecoder(t, 2, 0)
	rec := &presentRecorder{}
	var stats Stats
	s := newTestSession(t, testConfig(), dec, nil, rec, &stats)

	require.NoError(t, s.run(ctx))
	require.Equal(t, []uint64{0, 1}, rec.seqs)
}

func TestSessionEmptySource(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dec := newFakeDecoder(t, 0, 3)
	var stats Stats
	out := newRecordingOutput(&stats)
	rec := &presentRecorder{output: out}
	s := newTestSession(t, testConfig(), dec, out, rec, &stats)

	require.NoError(t, s.run(ctx))
	require.Empty(t, rec.seqs)
	require.Zero(t, out.PlayCount.Load())
	require.Equal(t, int32(1), out.CloseCount.Load())
	dec.requireAllReleased(t)
}

func TestSessionCancel(t *testing.T) {
	t.Parallel()

	dec := newFakeDecoder(t, -1, 1000)
	dec.FrameRate = types.Rational{Num: 10, Den: 1}
	var stats Stats
	out := newRecordingOutput(&stats)
	rec := &presentRecorder{output: out}
	s := newTestSession(t, testConfig(), dec, out, rec, &stats)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	startedAt := time.Now()
	err := s.run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(startedAt), 2*time.Second)

	require.NotEmpty(t, rec.seqs)
	require.Equal(t, int32(1), out.CloseCount.Load())
	require.Zero(t, s.queue.Count())
	dec.requireAllReleased(t)
}

func TestSessionDecodeErrorIsFatal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dec := newFakeDecoder(t, -1, 0)
	dec.VideoErrAt = 6
	out := newRecordingOutput(nil)
	rec := &presentRecorder{}
	var stats Stats
	s := newTestSession(t, testConfig(), dec, out, rec, &stats)

	err := s.run(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "synthetic decode failure")
	require.Equal(t, int32(1), out.CloseCount.Load())
	dec.requireAllReleased(t)
}

func TestSessionPresentErrorIsFatal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	errPresent := errors.New("surface is gone")
	dec := newFakeDecoder(t, 10, 0)
	var stats Stats
	s, err := newSession(sessionParams{
		Config:    testConfig(),
		Decoder:   dec,
		FrameRate: dec.FrameRate,
		Present: func(ctx context.Context, f *frame.Frame) error {
			if f.Seq == 2 {
				return errPresent
			}
			return nil
		},
		Stats: &stats,
	})
	require.NoError(t, err)

	require.ErrorIs(t, s.run(ctx), errPresent)
	require.Equal(t, uint64(2), stats.FramesPresented.Load())
	dec.requireAllReleased(t)
}

func TestSessionTimestampPacing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// the nominal rate claims 1000fps, but the timestamps are 20ms apart
	dec := newFakeDecoder(t, 6, 0)
	dec.FrameRate = types.Rational{Num: 1000, Den: 1}
	cfg := testConfig()
	cfg.PacingMode = PacingModeTimestamp
	rec := &presentRecorder{}
	var stats Stats
	s := newTestSession(t, cfg, dec, nil, rec, &stats)

	require.NoError(t, s.run(ctx))
	require.Equal(t, []uint64{0, 1, 2, 3, 4, 5}, rec.seqs)
	clockStart := stats.ClockStartedAt.Load()
	for i, ts := range rec.times {
		require.GreaterOrEqual(t, ts.Sub(clockStart), time.Duration(i)*20*time.Millisecond, "frame #%d", i)
	}
	require.Zero(t, stats.FramesSkipped.Load())
}

func TestSessionSerializedDecoderCalls(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dec := newFakeDecoder(t, 20, 200)
	dec.FrameRate = types.Rational{Num: 500, Den: 1}
	p, err := New(testConfig())
	require.NoError(t, err)
	require.NoError(t, p.AttachDecoder(ctx, dec))

	var stats Stats
	out := newRecordingOutput(&stats)
	rec := &presentRecorder{output: out}
	s, err := newSession(sessionParams{
		Config:          p.Config,
		Decoder:         p.Decoder(),
		FrameRate:       p.FrameRate(),
		Present:         rec.present,
		Output:          out,
		SampleConverter: mustNewSampleConverter(t),
		Stats:           &stats,
	})
	require.NoError(t, err)
	require.NoError(t, s.run(ctx))
	require.False(t, dec.Overlapped.Load(), "a non-reentrant decoder must never be entered concurrently")
}

func TestNewSessionRejectsInvalidFrameRate(t *testing.T) {
	t.Parallel()

	_, err := newSession(sessionParams{
		Config:    testConfig(),
		Decoder:   newFakeDecoder(t, 1, 0),
		FrameRate: types.Rational{Num: 0, Den: 1},
	})
	require.ErrorIs(t, err, ErrInvalidFrameRate)
}

func mustNewSampleConverter(t *testing.T) SampleConverter {
	c, err := resampler.New(context.Background(), resampler.PCMInt16)
	require.NoError(t, err)
	return c
}
