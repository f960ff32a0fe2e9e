// Package avconv converts between libav timestamps and Go time values.
package avconv

import (
	"math"
	"time"

	"github.com/asticode/go-astiav"
)

// NoDuration is returned for timestamps equal to AV_NOPTS_VALUE.
const NoDuration = time.Duration(math.MinInt64)

// Duration converts timestamp t expressed in timeBase units.
func Duration(t int64, timeBase astiav.Rational) time.Duration {
	if t == astiav.NoPtsValue {
		return NoDuration
	}
	if timeBase.Den() == 0 {
		return 0
	}
	v := t * int64(timeBase.Num())
	den := int64(timeBase.Den())
	return time.Duration(v/den)*time.Second + time.Duration(v%den)*time.Second/time.Duration(den)
}

func FromDuration(d time.Duration, timeBase astiav.Rational) int64 {
	if d == NoDuration {
		return astiav.NoPtsValue
	}
	if timeBase.Num() == 0 {
		return 0
	}
	return int64(d) * int64(timeBase.Den()) / (int64(timeBase.Num()) * int64(time.Second))
}
