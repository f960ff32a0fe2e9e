// Package otodevice plays audio on the system sound device through oto.
package otodevice

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hajimehoshi/oto/v2"
	"github.com/xaionaro-go/avplayer/audiooutput"
	"github.com/xaionaro-go/avplayer/helpers/closuresignaler"
	"github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/avplayer/resampler"
	"github.com/xaionaro-go/observability"
)

// oto allows a single context per process.
var (
	contextLocker sync.Mutex
	otoContext    *oto.Context
	otoFormat     audiooutput.PCMFormat
)

// sampleFormat maps the PCM format onto the oto format code.
func sampleFormat(f resampler.OutputFormat) (int, error) {
	switch f {
	case resampler.PCMInt16:
		return oto.FormatSignedInt16LE, nil
	case resampler.PCMFloat32:
		return oto.FormatFloat32LE, nil
	}
	return 0, fmt.Errorf("the sound device accepts only %s and %s, got %s", resampler.PCMInt16, resampler.PCMFloat32, f)
}

func getContext(
	ctx context.Context,
	format audiooutput.PCMFormat,
) (*oto.Context, error) {
	contextLocker.Lock()
	defer contextLocker.Unlock()
	if otoContext != nil {
		if otoFormat != format {
			return nil, fmt.Errorf("the sound device is already opened with format %s, cannot reopen with %s", otoFormat, format)
		}
		return otoContext, nil
	}

	otoSampleFormat, err := sampleFormat(format.Format)
	if err != nil {
		return nil, err
	}
	c, ready, err := oto.NewContext(format.SampleRate, format.Channels, otoSampleFormat)
	if err != nil {
		return nil, fmt.Errorf("unable to open the sound device: %w", err)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-ready:
	}
	logger.Debugf(ctx, "opened the sound device: %s", format)
	otoContext, otoFormat = c, format
	return c, nil
}

type Device struct {
	*closuresignaler.ClosureSignaler

	locker sync.Mutex
	source *source
}

var _ audiooutput.Output = (*Device)(nil)

type source struct {
	audiooutput.ReaderSource
	player oto.Player
}

func New() *Device {
	return &Device{
		ClosureSignaler: closuresignaler.New(),
	}
}

func (d *Device) String() string {
	return "OtoDevice"
}

func (d *Device) Load(
	ctx context.Context,
	r io.Reader,
	format audiooutput.PCMFormat,
) (_ audiooutput.Source, _err error) {
	logger.Debugf(ctx, "Load(%s)", format)
	defer func() { logger.Debugf(ctx, "/Load(%s): %v", format, _err) }()

	if err := format.Validate(); err != nil {
		return nil, err
	}
	if _, err := sampleFormat(format.Format); err != nil {
		return nil, err
	}

	d.locker.Lock()
	defer d.locker.Unlock()
	if d.source != nil {
		return nil, fmt.Errorf("a source is already loaded")
	}

	c, err := getContext(ctx, format)
	if err != nil {
		return nil, err
	}
	d.source = &source{
		ReaderSource: audiooutput.ReaderSource{Reader: r, Format: format},
		player:       c.NewPlayer(r),
	}
	return d.source, nil
}

func (d *Device) Play(
	ctx context.Context,
	src audiooutput.Source,
	startDelay time.Duration,
	bufferHint time.Duration,
) error {
	d.locker.Lock()
	defer d.locker.Unlock()
	if src == nil || src != audiooutput.Source(d.source) {
		return fmt.Errorf("the source was not loaded by this output")
	}
	if d.IsClosed() {
		return fmt.Errorf("the output is closed")
	}

	s := d.source
	if bs, ok := s.player.(interface{ SetBufferSize(int) }); ok && bufferHint > 0 {
		bs.SetBufferSize(s.Format.BytesFor(bufferHint))
	}

	observability.Go(ctx, func(ctx context.Context) {
		select {
		case <-ctx.Done():
			return
		case <-d.CloseChan():
			return
		case <-time.After(startDelay):
		}
		d.locker.Lock()
		defer d.locker.Unlock()
		if d.IsClosed() {
			return
		}
		logger.Debugf(ctx, "starting the audio playback")
		s.player.Play()
	})
	return nil
}

func (d *Device) Close(ctx context.Context) error {
	if !d.ClosureSignaler.Close(ctx) {
		return nil
	}
	d.locker.Lock()
	defer d.locker.Unlock()
	if d.source == nil {
		return nil
	}
	audiooutput.CloseReader(d.source.Reader)
	if err := d.source.player.Close(); err != nil {
		return fmt.Errorf("unable to close the oto player: %w", err)
	}
	return nil
}
