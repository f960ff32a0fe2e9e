package decoder

import (
	"context"
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/xaionaro-go/avplayer/frame"
	"github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/avplayer/pool"
)

var packetPool = pool.NewPool(
	astiav.AllocPacket,
	func(p *astiav.Packet) { p.Unref() },
	func(p *astiav.Packet) { p.Free() },
)

// streamDecoder decodes one elementary stream. Packets demuxed while
// another stream was being read wait in pending.
type streamDecoder struct {
	stream       *astiav.Stream
	codec        *astiav.Codec
	codecContext *astiav.CodecContext
	mediaType    astiav.MediaType

	pending []*astiav.Packet
	flushed bool
	ended   bool
	nextSeq uint64
}

func newStreamDecoder(
	ctx context.Context,
	closer *astikit.Closer,
	stream *astiav.Stream,
	opts *astiav.Dictionary,
) (_ret *streamDecoder, _err error) {
	codecParameters := stream.CodecParameters()
	mediaType := codecParameters.MediaType()
	logger.Debugf(ctx, "newStreamDecoder(#%d, %s, %s)", stream.Index(), mediaType, codecParameters.CodecID())
	defer func() { logger.Debugf(ctx, "/newStreamDecoder(#%d, %s, %s): %v", stream.Index(), mediaType, codecParameters.CodecID(), _err) }()

	codec := astiav.FindDecoder(codecParameters.CodecID())
	if codec == nil {
		return nil, fmt.Errorf("unable to find a decoder for codec %s", codecParameters.CodecID())
	}

	codecContext := astiav.AllocCodecContext(codec)
	if codecContext == nil {
		return nil, fmt.Errorf("unable to allocate a codec context for %s", codec.Name())
	}
	closer.Add(codecContext.Free)

	if err := codecParameters.ToCodecContext(codecContext); err != nil {
		return nil, fmt.Errorf("unable to copy the codec parameters to the context: %w", err)
	}
	codecContext.SetTimeBase(stream.TimeBase())

	if err := codecContext.Open(codec, opts); err != nil {
		return nil, fmt.Errorf("unable to open codec %s: %w", codec.Name(), err)
	}

	s := &streamDecoder{
		stream:       stream,
		codec:        codec,
		codecContext: codecContext,
		mediaType:    mediaType,
	}
	closer.Add(s.dropPending)
	return s, nil
}

func (s *streamDecoder) String() string {
	if s == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s#%d(%s)", s.mediaType, s.stream.Index(), s.codec.Name())
}

func (s *streamDecoder) dropPending() {
	packetPool.Put(s.pending...)
	s.pending = nil
}

func (s *streamDecoder) pushPending(pkt *astiav.Packet) {
	s.pending = append(s.pending, pkt)
}

func (s *streamDecoder) popPending() *astiav.Packet {
	if len(s.pending) == 0 {
		return nil
	}
	pkt := s.pending[0]
	s.pending[0] = nil
	s.pending = s.pending[1:]
	return pkt
}

// receiveFrame returns (nil, nil) when the decoder needs another packet.
func (s *streamDecoder) receiveFrame(
	ctx context.Context,
) (*frame.Frame, error) {
	f := frame.Pool.Get()
	err := s.codecContext.ReceiveFrame(f)
	switch {
	case err == nil:
		seq := s.nextSeq
		s.nextSeq++
		logger.Tracef(ctx, "%s: received frame #%d (pts:%d)", s, seq, f.Pts())
		return frame.New(f, s.mediaType, s.stream.Index(), s.stream.TimeBase(), seq), nil
	case errors.Is(err, astiav.ErrEagain):
		frame.Pool.Put(f)
		return nil, nil
	case errors.Is(err, astiav.ErrEof):
		frame.Pool.Put(f)
		s.ended = true
		return nil, nil
	default:
		frame.Pool.Put(f)
		return nil, fmt.Errorf("unable to receive a frame from %s: %w", s, err)
	}
}

// sendPacket consumes pkt; a nil pkt starts draining the decoder.
func (s *streamDecoder) sendPacket(
	ctx context.Context,
	pkt *astiav.Packet,
) error {
	if pkt == nil {
		s.flushed = true
	}
	err := s.codecContext.SendPacket(pkt)
	if pkt != nil {
		packetPool.Put(pkt)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, astiav.ErrEof):
		return nil
	case errors.Is(err, astiav.ErrInvaliddata):
		logger.Warnf(ctx, "%s: skipping an invalid packet: %v", s, err)
		return nil
	default:
		return fmt.Errorf("unable to send a packet to %s: %w", s, err)
	}
}
