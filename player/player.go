// Package player plays a decoded audio/video source: it decodes video
// frames ahead into a bounded buffer, paces their presentation against a
// clock derived from the frame rate and starts the audio once, at the
// first presented frame.
package player

import (
	"context"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/facebookincubator/go-belt"
	"github.com/xaionaro-go/avplayer/audiooutput"
	"github.com/xaionaro-go/avplayer/decoder"
	"github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/avplayer/resampler"
	"github.com/xaionaro-go/avplayer/scaler"
	"github.com/xaionaro-go/avplayer/surface"
	"github.com/xaionaro-go/avplayer/types"
	"github.com/xaionaro-go/secret"
	"github.com/xaionaro-go/xsync"
)

type state int

const (
	stateNew state = iota
	stateOpened
	stateSurfaceReady
	statePlaying
	statePlayed
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateNew:
		return "new"
	case stateOpened:
		return "opened"
	case stateSurfaceReady:
		return "surface_ready"
	case statePlaying:
		return "playing"
	case statePlayed:
		return "played"
	case stateClosed:
		return "closed"
	}
	return fmt.Sprintf("unknown_state_%d", int(s))
}

// Player goes through Open (or AttachDecoder), CreateSurface, Play and
// Close, in this order. Play can be called only once.
type Player struct {
	Config Config
	Stats  Stats

	locker         xsync.Mutex
	state          state
	decoder        decoder.Decoder
	frameRate      types.Rational
	pixelFormat    astiav.PixelFormat
	surface        surface.Surface
	pixelConverter *scaler.PixelConverter
}

func New(cfg Config) (*Player, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	pixelFormat, err := cfg.pixelFormat()
	if err != nil {
		return nil, err
	}
	return &Player{
		Config:      cfg,
		pixelFormat: pixelFormat,
	}, nil
}

func (p *Player) String() string {
	return fmt.Sprintf("Player(%s)", p.state)
}

// Open opens the source with the FFmpeg decoder. Errors are
// decoder.OpenError.
func (p *Player) Open(
	ctx context.Context,
	url string,
	authKey secret.String,
) (_err error) {
	logger.Debugf(ctx, "Open(ctx, '%s')", url)
	defer func() { logger.Debugf(ctx, "/Open(ctx, '%s'): %v", url, _err) }()

	d, err := decoder.Open(ctx, url, authKey, p.Config.Decoder)
	if err != nil {
		return err
	}
	if err := p.AttachDecoder(ctx, d); err != nil {
		_ = d.Close(ctx)
		return decoder.OpenError{URL: url, Err: err}
	}
	return nil
}

// AttachDecoder makes the player use an already opened decoder; the
// player takes its ownership.
func (p *Player) AttachDecoder(
	ctx context.Context,
	d decoder.Decoder,
) error {
	return xsync.DoA2R1(ctx, &p.locker, p.attachDecoderLocked, ctx, d)
}

func (p *Player) attachDecoderLocked(
	ctx context.Context,
	d decoder.Decoder,
) error {
	if p.state != stateNew {
		return fmt.Errorf("a source is already opened (state: %s)", p.state)
	}

	frameRate := d.VideoInfo().FrameRate
	if p.Config.FrameRateOverride != nil {
		frameRate = *p.Config.FrameRateOverride
	}
	if !frameRate.IsValid() {
		return fmt.Errorf("frame rate %s of %s: %w", frameRate, d.VideoInfo(), ErrInvalidFrameRate)
	}

	if p.Config.SerializeDecoder {
		d = &decoder.Serialized{Decoder: d}
	} else {
		d = decoder.Serialize(d)
	}
	p.decoder = d
	p.frameRate = frameRate
	p.state = stateOpened
	logger.Debugf(ctx, "opened %s: %s at %s fps", d, d.VideoInfo(), frameRate)
	return nil
}

// FrameRate is the ratio the presentation is paced with.
func (p *Player) FrameRate() types.Rational {
	return p.frameRate
}

// Decoder returns nil until a source is opened.
func (p *Player) Decoder() decoder.Decoder {
	return xsync.DoR1(context.Background(), &p.locker, func() decoder.Decoder {
		return p.decoder
	})
}

// CreateSurface creates the presentation surface for the opened stream
// and configures the pixel conversion into it. It fails with
// ErrPrecedingState if no source is opened yet.
func (p *Player) CreateSurface(
	ctx context.Context,
	factory surface.Factory,
) (_ret surface.Surface, _err error) {
	logger.Debugf(ctx, "CreateSurface")
	defer func() { logger.Debugf(ctx, "/CreateSurface: %v", _err) }()
	return xsync.DoA2R2(ctx, &p.locker, p.createSurfaceLocked, ctx, factory)
}

func (p *Player) createSurfaceLocked(
	ctx context.Context,
	factory surface.Factory,
) (_ surface.Surface, _err error) {
	switch p.state {
	case stateOpened:
	case stateNew:
		return nil, fmt.Errorf("no stream is opened: %w", ErrPrecedingState)
	default:
		return nil, fmt.Errorf("the surface cannot be created in state %s", p.state)
	}

	videoInfo := p.decoder.VideoInfo()
	resolution := p.Config.OutputResolution
	if resolution.IsZero() {
		resolution = videoInfo.Resolution
	}

	surf, err := factory(ctx, resolution, p.pixelFormat)
	if err != nil {
		return nil, fmt.Errorf("unable to create a %s %s surface: %w", resolution, p.pixelFormat, err)
	}
	defer func() {
		if _err != nil {
			_ = surf.Close(ctx)
		}
	}()
	if surf.Resolution() != resolution || surf.PixelFormat() != p.pixelFormat {
		return nil, fmt.Errorf("the surface is %s %s, but %s %s was requested", surf.Resolution(), surf.PixelFormat(), resolution, p.pixelFormat)
	}

	conv := scaler.NewPixelConverter()
	if err := conv.Configure(ctx, videoInfo.PixelFormat, videoInfo.Resolution, p.pixelFormat, resolution); err != nil {
		_ = conv.Close(ctx)
		return nil, fmt.Errorf("unable to configure the pixel conversion: %w", err)
	}

	p.surface = surf
	p.pixelConverter = conv
	p.state = stateSurfaceReady
	return surf, nil
}

// Surface returns nil until CreateSurface succeeds.
func (p *Player) Surface() surface.Surface {
	return xsync.DoR1(context.Background(), &p.locker, func() surface.Surface {
		return p.surface
	})
}

// Play plays the stream till its end. The audio is played through out,
// unless out is nil or the source has no audio. out is closed when Play
// returns; so are the decoder and the converters, while the surface stays
// available until Close.
func (p *Player) Play(
	ctx context.Context,
	out audiooutput.Output,
) (_ret *Stats, _err error) {
	logger.Debugf(ctx, "Play")
	defer func() { logger.Debugf(ctx, "/Play: %v", _err) }()

	s, err := xsync.DoA2R2(ctx, &p.locker, p.newSessionLocked, ctx, out)
	if err != nil {
		if out != nil {
			_ = out.Close(ctx)
		}
		return nil, err
	}
	defer func() {
		p.locker.Do(ctx, func() {
			p.releaseLocked(ctx)
		})
		logger.Infof(ctx, "%s", &p.Stats)
	}()

	if err := s.run(belt.WithField(ctx, "source", s.decoder.String())); err != nil {
		return &p.Stats, fmt.Errorf("the playback failed: %w", err)
	}
	return &p.Stats, nil
}

func (p *Player) newSessionLocked(
	ctx context.Context,
	out audiooutput.Output,
) (*session, error) {
	switch p.state {
	case stateSurfaceReady:
	case stateNew, stateOpened:
		return nil, fmt.Errorf("the surface is not created: %w", ErrPrecedingState)
	case statePlaying, statePlayed:
		return nil, ErrAlreadyPlayed
	default:
		return nil, fmt.Errorf("the player is %s", p.state)
	}

	if out == nil && p.decoder.AudioInfo() != nil {
		// nothing reads the audio, so its packets must not pile up
		p.decoder.DisableAudio(ctx)
	}

	var sampleConverter SampleConverter
	if out != nil && p.decoder.AudioInfo() != nil {
		c, err := resampler.New(ctx, p.Config.SampleFormat)
		if err != nil {
			return nil, fmt.Errorf("unable to initialize the sample converter: %w", err)
		}
		sampleConverter = c
	}

	s, err := newSession(sessionParams{
		Config:          p.Config,
		Decoder:         p.decoder,
		FrameRate:       p.frameRate,
		Present:         newPresenter(p.surface, p.pixelConverter),
		Output:          out,
		SampleConverter: sampleConverter,
		Stats:           &p.Stats,
	})
	if err != nil {
		if sampleConverter != nil {
			_ = sampleConverter.Close(ctx)
		}
		return nil, err
	}
	p.state = statePlaying
	return s, nil
}

// releaseLocked frees everything but the surface.
func (p *Player) releaseLocked(ctx context.Context) {
	if p.pixelConverter != nil {
		if err := p.pixelConverter.Close(ctx); err != nil {
			logger.Errorf(ctx, "unable to close the pixel converter: %v", err)
		}
		p.pixelConverter = nil
	}
	if p.decoder != nil {
		if err := p.decoder.Close(ctx); err != nil {
			logger.Errorf(ctx, "unable to close the decoder: %v", err)
		}
		p.decoder = nil
	}
	if p.state == statePlaying {
		p.state = statePlayed
	}
}

func (p *Player) Close(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Close")
	defer func() { logger.Debugf(ctx, "/Close: %v", _err) }()
	return xsync.DoA1R1(ctx, &p.locker, p.closeLocked, ctx)
}

func (p *Player) closeLocked(ctx context.Context) error {
	switch p.state {
	case stateClosed:
		return nil
	case statePlaying:
		return fmt.Errorf("the player is playing, cancel the context of Play first")
	}
	p.releaseLocked(ctx)
	p.state = stateClosed
	if p.surface != nil {
		if err := p.surface.Close(ctx); err != nil {
			return fmt.Errorf("unable to close the surface: %w", err)
		}
	}
	return nil
}
