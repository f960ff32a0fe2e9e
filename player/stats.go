package player

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-ng/xatomic"
	"go.uber.org/atomic"
)

// Stats are updated while playing and are safe to read concurrently.
type Stats struct {
	FramesDecoded   atomic.Uint64
	FramesPresented atomic.Uint64
	FramesSkipped   atomic.Uint64
	FramesLate      atomic.Uint64

	AudioFrames atomic.Uint64
	AudioBytes  atomic.Uint64

	PrefillDuration  atomic.Duration
	ClockStartedAt   Timestamp
	FirstPresentedAt Timestamp
	AudioStartedAt   Timestamp
	EndedAt          Timestamp
}

// Timestamp is a point in time safe for concurrent access; the zero value
// is unset.
type Timestamp struct {
	ptr *time.Time
}

func (ts *Timestamp) Store(t time.Time) {
	xatomic.StorePointer(&ts.ptr, &t)
}

// Load returns the zero time if Store was never called.
func (ts *Timestamp) Load() time.Time {
	t := xatomic.LoadPointer(&ts.ptr)
	if t == nil {
		return time.Time{}
	}
	return *t
}

// FirstPresentLatency is the time from the clock start to the first
// presented frame.
func (s *Stats) FirstPresentLatency() time.Duration {
	start, first := s.ClockStartedAt.Load(), s.FirstPresentedAt.Load()
	if start.IsZero() || first.IsZero() {
		return 0
	}
	return first.Sub(start)
}

// PlaybackDuration is the time from the clock start to the end of the
// playback (or to now, while still playing).
func (s *Stats) PlaybackDuration() time.Duration {
	start := s.ClockStartedAt.Load()
	if start.IsZero() {
		return 0
	}
	end := s.EndedAt.Load()
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(start)
}

func (s *Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "video: decoded %s, presented %s, skipped %s",
		humanize.Comma(int64(s.FramesDecoded.Load())),
		humanize.Comma(int64(s.FramesPresented.Load())),
		humanize.Comma(int64(s.FramesSkipped.Load())),
	)
	if late := s.FramesLate.Load(); late > 0 {
		fmt.Fprintf(&b, ", late %s", humanize.Comma(int64(late)))
	}
	fmt.Fprintf(&b, "; audio: %s frames, %s",
		humanize.Comma(int64(s.AudioFrames.Load())),
		humanize.IBytes(s.AudioBytes.Load()),
	)
	fmt.Fprintf(&b, "; prefill %v, first frame after %v, played %v",
		s.PrefillDuration.Load().Round(time.Millisecond),
		s.FirstPresentLatency().Round(time.Microsecond),
		s.PlaybackDuration().Round(time.Millisecond),
	)
	return b.String()
}
