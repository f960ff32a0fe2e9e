package wavfile

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avplayer/audiooutput"
	"github.com/xaionaro-go/avplayer/resampler"
)

func TestWAVFileRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	const (
		sampleRate = 8000
		channels   = 2
		samples    = 1000
	)
	pcm := make([]byte, samples*channels*2)
	for i := 0; i < samples*channels; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(i-1000)))
	}

	path := filepath.Join(t.TempDir(), "out.wav")
	out := New(path)
	format := audiooutput.PCMFormat{SampleRate: sampleRate, Channels: channels, Format: resampler.PCMInt16}
	src, err := out.Load(ctx, bytes.NewReader(pcm), format)
	require.NoError(t, err)
	require.NoError(t, out.Play(ctx, src, 50*time.Millisecond, 30*time.Millisecond))
	require.Error(t, out.Play(ctx, src, 0, 0))
	require.NoError(t, out.Wait(ctx))
	require.NoError(t, out.Close(ctx))
	require.NoError(t, out.Close(ctx))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	dec := wav.NewDecoder(file)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	require.Equal(t, sampleRate, int(dec.SampleRate))
	require.Equal(t, channels, int(dec.NumChans))
	require.Equal(t, 16, int(dec.BitDepth))
	require.Len(t, buf.Data, samples*channels)
	for i, v := range buf.Data {
		require.Equal(t, i-1000, v, "sample %d", i)
	}
}

func readWAV(t *testing.T, path string) []int {
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	dec := wav.NewDecoder(file)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	return buf.Data
}

func TestWAVFileCloseDrainsPreloadedSource(t *testing.T) {
	t.Parallel()

	const samples = 8000
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(i%100)))
	}

	path := filepath.Join(t.TempDir(), "out.wav")
	out := New(path)
	ctx, cancel := context.WithCancel(context.Background())
	format := audiooutput.PCMFormat{SampleRate: 8000, Channels: 1, Format: resampler.PCMInt16}
	src, err := out.Load(ctx, bytes.NewReader(pcm), format)
	require.NoError(t, err)
	require.NoError(t, out.Play(ctx, src, 0, time.Millisecond))

	// the playback ends before the audio does
	cancel()
	require.NoError(t, out.Close(context.Background()))

	data := readWAV(t, path)
	require.Len(t, data, samples)
	require.Equal(t, 99, data[samples-1])
}

func TestWAVFileCloseStopsStream(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "out.wav")
	out := New(path)
	pr, pw := io.Pipe()
	format := audiooutput.PCMFormat{SampleRate: 8000, Channels: 1, Format: resampler.PCMInt16}
	src, err := out.Load(ctx, pr, format)
	require.NoError(t, err)
	require.NoError(t, out.Play(ctx, src, 0, time.Millisecond))

	_, err = pw.Write(make([]byte, 32))
	require.NoError(t, err)
	require.NoError(t, out.Close(ctx))

	_, err = pw.Write(make([]byte, 32))
	require.ErrorIs(t, err, io.ErrClosedPipe)
	require.Len(t, readWAV(t, path), 16)
}

func TestWAVFileRejectsFloat(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	out := New(filepath.Join(t.TempDir(), "out.wav"))
	_, err := out.Load(ctx, bytes.NewReader(nil), audiooutput.PCMFormat{SampleRate: 8000, Channels: 1, Format: resampler.PCMFloat32})
	require.Error(t, err)
	require.NoError(t, out.Close(ctx))
}
