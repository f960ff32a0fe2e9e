// Package wavfile writes the played audio into a WAV file.
package wavfile

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/xaionaro-go/avplayer/audiooutput"
	"github.com/xaionaro-go/avplayer/helpers/closuresignaler"
	"github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/avplayer/resampler"
	"github.com/xaionaro-go/observability"
)

// wavFormatPCM is the WAVE_FORMAT_PCM format tag.
const wavFormatPCM = 1

type File struct {
	*closuresignaler.ClosureSignaler
	Path string

	locker  sync.Mutex
	source  *audiooutput.ReaderSource
	file    *os.File
	encoder *wav.Encoder
	started bool
	done    chan struct{}
	err     error
}

var _ audiooutput.Output = (*File)(nil)

func New(path string) *File {
	return &File{
		ClosureSignaler: closuresignaler.New(),
		Path:            path,
		done:            make(chan struct{}),
	}
}

func (f *File) String() string {
	return fmt.Sprintf("WAVFile(%s)", f.Path)
}

func (f *File) Load(
	ctx context.Context,
	r io.Reader,
	format audiooutput.PCMFormat,
) (_ audiooutput.Source, _err error) {
	logger.Debugf(ctx, "Load(%s)", format)
	defer func() { logger.Debugf(ctx, "/Load(%s): %v", format, _err) }()

	if err := format.Validate(); err != nil {
		return nil, err
	}
	switch format.Format {
	case resampler.PCMInt16, resampler.PCMInt32:
	default:
		return nil, fmt.Errorf("WAV files are written only as integer PCM, got %s", format.Format)
	}

	f.locker.Lock()
	defer f.locker.Unlock()
	if f.source != nil {
		return nil, fmt.Errorf("a source is already loaded")
	}
	file, err := os.Create(f.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to create '%s': %w", f.Path, err)
	}
	f.file = file
	f.encoder = wav.NewEncoder(file, format.SampleRate, format.Format.BitDepth(), format.Channels, wavFormatPCM)
	f.source = &audiooutput.ReaderSource{Reader: r, Format: format}
	return f.source, nil
}

// Play starts copying the source into the file. The file contains the
// audio from the very beginning regardless of startDelay.
func (f *File) Play(
	ctx context.Context,
	src audiooutput.Source,
	startDelay time.Duration,
	bufferHint time.Duration,
) error {
	f.locker.Lock()
	defer f.locker.Unlock()
	if src == nil || src != audiooutput.Source(f.source) {
		return fmt.Errorf("the source was not loaded by this output")
	}
	if f.IsClosed() {
		return fmt.Errorf("the output is closed")
	}

	chunkSize := f.source.Format.BytesFor(bufferHint)
	if chunkSize <= 0 {
		chunkSize = f.source.Format.BytesFor(100 * time.Millisecond)
	}
	if f.started {
		return fmt.Errorf("the playback is already started")
	}
	f.started = true
	// the copy outlives the ctx of the caller: Close drains a finite source
	// and unblocks a streaming one by closing it
	observability.Go(context.WithoutCancel(ctx), func(ctx context.Context) {
		defer close(f.done)
		err := f.copy(ctx, chunkSize)
		if err != nil {
			logger.Errorf(ctx, "unable to write '%s': %v", f.Path, err)
		}
		f.err = err
	})
	return nil
}

func (f *File) copy(
	ctx context.Context,
	chunkSize int,
) error {
	format := f.source.Format
	bps := format.Format.BytesPerSample
	frameSize := bps * format.Channels
	if chunkSize < frameSize {
		chunkSize = frameSize
	}
	chunkSize -= chunkSize % frameSize
	logger.Debugf(ctx, "copying into '%s' by %d bytes", f.Path, chunkSize)

	raw := make([]byte, chunkSize)
	intBuf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: format.Channels,
			SampleRate:  format.SampleRate,
		},
		SourceBitDepth: format.Format.BitDepth(),
	}
	for {
		n, err := io.ReadFull(f.source, raw)
		n -= n % frameSize
		if n > 0 {
			intBuf.Data = decodeSamples(intBuf.Data[:0], raw[:n], bps)
			if werr := f.encoder.Write(intBuf); werr != nil {
				return fmt.Errorf("unable to encode samples: %w", werr)
			}
		}
		switch err {
		case nil:
		case io.EOF, io.ErrUnexpectedEOF, io.ErrClosedPipe:
			return nil
		default:
			return err
		}
	}
}

func decodeSamples(dst []int, raw []byte, bytesPerSample int) []int {
	switch bytesPerSample {
	case 2:
		for i := 0; i+2 <= len(raw); i += 2 {
			dst = append(dst, int(int16(binary.LittleEndian.Uint16(raw[i:]))))
		}
	case 4:
		for i := 0; i+4 <= len(raw); i += 4 {
			dst = append(dst, int(int32(binary.LittleEndian.Uint32(raw[i:]))))
		}
	}
	return dst
}

// Wait blocks until everything loaded has been written or the copy failed.
func (f *File) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.done:
		return f.err
	}
}

// Close finalizes the WAV header. A source that is an io.Closer (a stream)
// is closed and the copying stops; any other source is written till its end.
func (f *File) Close(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Close")
	defer func() { logger.Debugf(ctx, "/Close: %v", _err) }()
	if !f.ClosureSignaler.Close(ctx) {
		return nil
	}
	f.locker.Lock()
	defer f.locker.Unlock()
	if f.source == nil {
		return nil
	}
	audiooutput.CloseReader(f.source.Reader)
	if f.started {
		<-f.done
	}
	if err := f.encoder.Close(); err != nil {
		f.file.Close()
		return fmt.Errorf("unable to finalize '%s': %w", f.Path, err)
	}
	if err := f.file.Close(); err != nil {
		return fmt.Errorf("unable to close '%s': %w", f.Path, err)
	}
	return nil
}
