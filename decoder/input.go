package decoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"reflect"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/davecgh/go-spew/spew"
	"github.com/facebookincubator/go-belt"
	"github.com/go-ng/xatomic"
	"github.com/xaionaro-go/avplayer/frame"
	"github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/avplayer/types"
	avptypes "github.com/xaionaro-go/avplayer/types/astiav"
	"github.com/xaionaro-go/secret"
	"github.com/xaionaro-go/unsafetools"
	"github.com/xaionaro-go/xsync"
)

// Input demuxes and decodes a source with FFmpeg. Its methods are
// internally serialized, so audio and video may be read concurrently.
type Input struct {
	URL string

	locker        xsync.Mutex
	closer        *astikit.Closer
	formatContext *astiav.FormatContext
	video         *streamDecoder
	audio         *streamDecoder
	demuxEnded    bool
	videoInfo     VideoInfo
	audioInfo     *AudioInfo
}

var _ Decoder = (*Input)(nil)

// Open opens the source and the decoders of its first video stream and
// first audio stream. Any failure is returned as an OpenError.
func Open(
	ctx context.Context,
	urlString string,
	authKey secret.String,
	cfg Config,
) (_ret *Input, _err error) {
	logger.Debugf(ctx, "Open(ctx, '%s', %#+v)", urlString, cfg)
	defer func() { logger.Debugf(ctx, "/Open(ctx, '%s', %#+v): %v", urlString, cfg, _err) }()
	defer func() {
		if _err != nil {
			_err = OpenError{URL: urlString, Err: _err}
		}
	}()

	if urlString == "" {
		return nil, fmt.Errorf("the provided URL is empty")
	}
	if urlParsed, err := url.Parse(urlString); err == nil && urlParsed.Scheme != "" {
		logger.Debugf(ctx, "URL: %#+v", urlParsed)
	}

	i := &Input{
		URL:    urlString,
		closer: astikit.NewCloser(),
	}
	defer func() {
		if _err != nil {
			_ = i.closer.Close()
		}
	}()

	var inputFormat *astiav.InputFormat
	inputOptions := cfg.InputOptions
	if formatName, ok := inputOptions.Get("f"); ok {
		inputFormat = astiav.FindInputFormat(formatName)
		if inputFormat == nil {
			return nil, fmt.Errorf("unable to find input format by name '%s'", formatName)
		}
		logger.Debugf(ctx, "using format '%s'", inputFormat.Name())
		var filtered types.DictionaryItems
		for _, opt := range inputOptions {
			if opt.Key != "f" {
				filtered = append(filtered, opt)
			}
		}
		inputOptions = filtered
	}

	i.formatContext = astiav.AllocFormatContext()
	if i.formatContext == nil {
		return nil, fmt.Errorf("unable to allocate a format context")
	}
	i.closer.Add(i.formatContext.Free)

	urlWithSecret := urlString
	if authKey.Get() != "" {
		urlWithSecret += authKey.Get()
	}
	if err := i.formatContext.OpenInput(urlWithSecret, inputFormat, avptypes.DictionaryItemsToAstiav(ctx, inputOptions)); err != nil {
		if authKey.Get() != "" {
			return nil, fmt.Errorf("unable to open input by URL '%s/<HIDDEN>': %w", urlString, err)
		}
		return nil, fmt.Errorf("unable to open input by URL '%s': %w", urlString, err)
	}
	i.closer.Add(i.formatContext.CloseInput)

	if err := i.formatContext.FindStreamInfo(nil); err != nil {
		return nil, fmt.Errorf("unable to get stream info: %w", err)
	}

	for _, stream := range i.formatContext.Streams() {
		logger.Tracef(ctx, "input stream #%d: %#+v", stream.Index(), spew.Sdump(unsafetools.FieldByNameInValue(reflect.ValueOf(stream.CodecParameters()), "c").Elem().Elem().Interface()))
		switch stream.CodecParameters().MediaType() {
		case astiav.MediaTypeVideo:
			if i.video != nil {
				continue
			}
			s, err := newStreamDecoder(ctx, i.closer, stream, avptypes.DictionaryItemsToAstiav(ctx, cfg.DecoderOptions))
			if err != nil {
				return nil, fmt.Errorf("unable to initialize the video decoder: %w", err)
			}
			i.video = s
		case astiav.MediaTypeAudio:
			if i.audio != nil || cfg.DisableAudio {
				continue
			}
			s, err := newStreamDecoder(ctx, i.closer, stream, avptypes.DictionaryItemsToAstiav(ctx, cfg.DecoderOptions))
			if err != nil {
				return nil, fmt.Errorf("unable to initialize the audio decoder: %w", err)
			}
			i.audio = s
		}
	}
	if i.video == nil {
		return nil, fmt.Errorf("no video stream found")
	}

	i.videoInfo = i.buildVideoInfo()
	logger.Debugf(ctx, "%s", i.videoInfo)
	if i.audio != nil {
		info := i.buildAudioInfo()
		xatomic.StorePointer(&i.audioInfo, &info)
		logger.Debugf(ctx, "%s", info)
	}
	return i, nil
}

func (i *Input) buildVideoInfo() VideoInfo {
	s := i.video
	frameRate := i.formatContext.GuessFrameRate(s.stream, nil)
	if frameRate.Num() <= 0 || frameRate.Den() <= 0 {
		frameRate = s.stream.AvgFrameRate()
	}
	return VideoInfo{
		StreamIndex: s.stream.Index(),
		CodecName:   s.codec.Name(),
		PixelFormat: s.codecContext.PixelFormat(),
		Resolution: types.Resolution{
			Width:  uint32(s.codecContext.Width()),
			Height: uint32(s.codecContext.Height()),
		},
		FrameRate: types.RationalFromAstiav(frameRate),
		TimeBase:  s.stream.TimeBase(),
	}
}

func (i *Input) buildAudioInfo() AudioInfo {
	s := i.audio
	layout := s.codecContext.ChannelLayout()
	return AudioInfo{
		StreamIndex:   s.stream.Index(),
		CodecName:     s.codec.Name(),
		SampleFormat:  s.codecContext.SampleFormat(),
		SampleRate:    s.codecContext.SampleRate(),
		ChannelLayout: layout,
		Channels:      layout.Channels(),
		TimeBase:      s.stream.TimeBase(),
	}
}

func (i *Input) String() string {
	return fmt.Sprintf("Input(%s)", i.URL)
}

func (i *Input) VideoInfo() VideoInfo {
	return i.videoInfo
}

func (i *Input) AudioInfo() *AudioInfo {
	return xatomic.LoadPointer(&i.audioInfo)
}

// DisableAudio frees the parked audio packets; the audio packets demuxed
// afterwards are dropped right away.
func (i *Input) DisableAudio(ctx context.Context) {
	logger.Debugf(ctx, "DisableAudio")
	defer func() { logger.Debugf(ctx, "/DisableAudio") }()
	i.locker.Do(ctx, func() {
		if i.audio == nil {
			return
		}
		i.audio.dropPending()
		i.audio = nil
		xatomic.StorePointer(&i.audioInfo, (*AudioInfo)(nil))
	})
}

func (i *Input) IsReentrant() bool {
	return true
}

func (i *Input) ReadVideoFrame(ctx context.Context) (*frame.Frame, error) {
	return xsync.DoA2R2(xsync.WithNoLogging(ctx, true), &i.locker, i.readFrameLocked, ctx, astiav.MediaTypeVideo)
}

func (i *Input) ReadAudioFrame(ctx context.Context) (*frame.Frame, error) {
	return xsync.DoA2R2(xsync.WithNoLogging(ctx, true), &i.locker, i.readFrameLocked, ctx, astiav.MediaTypeAudio)
}

func (i *Input) readFrameLocked(
	ctx context.Context,
	mediaType astiav.MediaType,
) (_ret *frame.Frame, _err error) {
	logger.Tracef(ctx, "readFrameLocked(%s)", mediaType)
	defer func() { logger.Tracef(ctx, "/readFrameLocked(%s): %v %v", mediaType, _ret, _err) }()

	if i.closer == nil {
		return nil, fmt.Errorf("the input is closed")
	}
	var s *streamDecoder
	switch mediaType {
	case astiav.MediaTypeVideo:
		s = i.video
	case astiav.MediaTypeAudio:
		s = i.audio
	}
	if s == nil {
		return nil, io.EOF
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.ended {
			return nil, io.EOF
		}

		f, err := s.receiveFrame(ctx)
		if err != nil {
			return nil, err
		}
		if f != nil {
			return f, nil
		}
		if s.ended {
			return nil, io.EOF
		}

		pkt, err := i.nextPacketLocked(ctx, s)
		if err != nil {
			return nil, err
		}
		if pkt == nil && s.flushed {
			// the decoder is drained but did not report EOF
			s.ended = true
			return nil, io.EOF
		}
		if err := s.sendPacket(ctx, pkt); err != nil {
			return nil, err
		}
	}
}

// nextPacketLocked returns the next packet of the given stream, demuxing
// (and parking packets of the other stream) as needed. A nil packet means
// the demuxer is exhausted.
func (i *Input) nextPacketLocked(
	ctx context.Context,
	s *streamDecoder,
) (*astiav.Packet, error) {
	if pkt := s.popPending(); pkt != nil {
		return pkt, nil
	}
	for !i.demuxEnded {
		pkt := packetPool.Get()
		err := i.formatContext.ReadFrame(pkt)
		switch {
		case err == nil:
		case errors.Is(err, astiav.ErrEof), errors.Is(err, astiav.ErrEio):
			packetPool.Put(pkt)
			logger.Debugf(ctx, "the demuxer reached the end: %v", err)
			i.demuxEnded = true
			continue
		default:
			packetPool.Put(pkt)
			return nil, fmt.Errorf("unable to read a packet: %w", err)
		}

		switch {
		case pkt.StreamIndex() == s.stream.Index():
			return pkt, nil
		case i.video != nil && pkt.StreamIndex() == i.video.stream.Index():
			i.video.pushPending(pkt)
		case i.audio != nil && pkt.StreamIndex() == i.audio.stream.Index():
			i.audio.pushPending(pkt)
		default:
			packetPool.Put(pkt)
		}
	}
	return nil, nil
}

func (i *Input) Close(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Close")
	defer func() { logger.Debugf(ctx, "/Close: %v", _err) }()
	return xsync.DoA1R1(ctx, &i.locker, i.closeLocked, ctx)
}

func (i *Input) closeLocked(ctx context.Context) error {
	if i.closer == nil {
		return nil
	}
	belt.Flush(ctx)
	err := i.closer.Close()
	i.closer = nil
	if err != nil {
		return fmt.Errorf("unable to close the input: %w", err)
	}
	return nil
}
