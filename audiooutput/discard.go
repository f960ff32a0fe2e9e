package audiooutput

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/xaionaro-go/avplayer/helpers/closuresignaler"
	"github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/observability"
	"go.uber.org/atomic"
)

// Discard reads and drops the audio, at real-time speed unless Fast is set.
type Discard struct {
	*closuresignaler.ClosureSignaler
	Fast bool

	BytesConsumed atomic.Uint64
	StartedAt     atomic.Time

	locker sync.Mutex
	source *ReaderSource
	done   chan struct{}
}

var _ Output = (*Discard)(nil)

func NewDiscard() *Discard {
	return &Discard{
		ClosureSignaler: closuresignaler.New(),
		done:            make(chan struct{}),
	}
}

func (d *Discard) String() string {
	return "Discard"
}

func (d *Discard) Load(
	ctx context.Context,
	r io.Reader,
	format PCMFormat,
) (Source, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	d.locker.Lock()
	defer d.locker.Unlock()
	if d.source != nil {
		return nil, fmt.Errorf("a source is already loaded")
	}
	d.source = &ReaderSource{Reader: r, Format: format}
	return d.source, nil
}

func (d *Discard) Play(
	ctx context.Context,
	src Source,
	startDelay time.Duration,
	_ time.Duration,
) error {
	d.locker.Lock()
	defer d.locker.Unlock()
	if src == nil || src != Source(d.source) {
		return fmt.Errorf("the source was not loaded by this output")
	}
	if d.IsClosed() {
		return fmt.Errorf("the output is closed")
	}
	if !d.StartedAt.Load().IsZero() {
		return fmt.Errorf("the playback is already started")
	}
	d.StartedAt.Store(time.Now().Add(startDelay))

	observability.Go(ctx, func(ctx context.Context) {
		defer close(d.done)
		err := d.consume(ctx, d.source, startDelay)
		logger.Debugf(ctx, "discard consumer finished: %v", err)
	})
	return nil
}

func (d *Discard) consume(
	ctx context.Context,
	src *ReaderSource,
	startDelay time.Duration,
) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.CloseChan():
		return nil
	case <-time.After(startDelay):
	}

	chunkSize := src.Format.BytesFor(10 * time.Millisecond)
	if chunkSize <= 0 {
		chunkSize = 4096
	}
	buf := make([]byte, chunkSize)
	started := time.Now()
	for {
		n, err := src.Read(buf)
		consumed := d.BytesConsumed.Add(uint64(n))
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if d.Fast {
			continue
		}
		ahead := time.Duration(consumed)*time.Second/time.Duration(src.Format.BytesPerSecond()) - time.Since(started)
		if ahead <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.CloseChan():
			return nil
		case <-time.After(ahead):
		}
	}
}

// Wait blocks until the started playback consumed all the data or was
// stopped.
func (d *Discard) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return nil
	}
}

func (d *Discard) Close(ctx context.Context) error {
	if !d.ClosureSignaler.Close(ctx) {
		return nil
	}
	d.locker.Lock()
	defer d.locker.Unlock()
	if d.source != nil {
		CloseReader(d.source.Reader)
	}
	return nil
}
