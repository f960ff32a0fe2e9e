package types

import (
	"fmt"
	"math"
	"math/big"
	"math/bits"
	"strconv"
	"strings"
	"time"

	"github.com/asticode/go-astiav"
	dectofrac "github.com/av-elier/go-decimal-to-rational"
)

// Rational is an exact ratio, used for frame rates ("frames per second" as
// Num/Den) to avoid floating-point drift over long streams.
type Rational struct {
	Num int
	Den int
}

func RationalFromAstiav(r astiav.Rational) Rational {
	return Rational{Num: r.Num(), Den: r.Den()}
}

func (r Rational) Astiav() astiav.Rational {
	return astiav.NewRational(r.Num, r.Den)
}

// IsValid reports whether the ratio may be used as a frame rate.
func (r Rational) IsValid() bool {
	return r.Num > 0 && r.Den > 0
}

func (r Rational) Float64() float64 {
	return float64(r.Num) / float64(r.Den)
}

// FrameDuration is the nominal duration of one frame at frame rate r.
func (r Rational) FrameDuration() time.Duration {
	return r.FrameOffset(1)
}

// FrameOffset returns i*Den/Num seconds, i.e. the ideal presentation offset
// of the i-th frame, computed in integer nanoseconds (128-bit intermediate).
func (r Rational) FrameOffset(i int64) time.Duration {
	if !r.IsValid() || i <= 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(i), uint64(r.Den)*uint64(time.Second))
	if hi >= uint64(r.Num) {
		return time.Duration(math.MaxInt64)
	}
	q, _ := bits.Div64(hi, lo, uint64(r.Num))
	if q > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(q)
}

// FrameOffsetMillis returns i*Den*1000/Num (integer milliseconds).
func (r Rational) FrameOffsetMillis(i int64) int64 {
	if !r.IsValid() {
		return 0
	}
	return i * int64(r.Den) * 1000 / int64(r.Num)
}

func newNTSCRationalFromFloat64(f float64) *big.Rat {
	den := 1001
	num := math.Ceil(f) * 1000
	r := big.NewRat(int64(num), int64(den))
	confirmValue, _ := r.Float64()
	if math.Abs(f-confirmValue) < 1e-2 {
		return r
	}
	return nil
}

// RationalFromApproxFloat64 snaps values like 29.97 to 30000/1001.
func RationalFromApproxFloat64(fps float64) (r Rational) {
	if float64(int(fps)) == fps {
		return Rational{Num: int(fps), Den: 1}
	}
	if rat := newNTSCRationalFromFloat64(fps); rat != nil {
		return Rational{Num: int(rat.Num().Int64()), Den: int(rat.Denom().Int64())}
	}
	rat := dectofrac.NewRatP(fps, 1e-6)
	return Rational{Num: int(rat.Num().Int64()), Den: int(rat.Denom().Int64())}
}

func RationalFromFloat64(fps float64) Rational {
	if float64(int(fps)) == fps {
		return Rational{Num: int(fps), Den: 1}
	}
	rat := dectofrac.NewRatP(fps, 1e-6)
	return Rational{Num: int(rat.Num().Int64()), Den: int(rat.Denom().Int64())}
}

// RationalFromString parses "30000/1001", "25", "29.97" (exact) and
// "~29.97" (snapped to the closest NTSC-like ratio).
func RationalFromString(s string) (*Rational, error) {
	var r Rational
	s = strings.TrimSpace(s)
	switch {
	case len(s) == 0:
		return nil, fmt.Errorf("unable to parse Rational from empty string")
	case strings.Contains(s, "/"):
		if _, err := fmt.Sscanf(s, "%d/%d", &r.Num, &r.Den); err != nil {
			return nil, fmt.Errorf("unable to parse Rational from %q: %w", s, err)
		}
	case s[0] == '~':
		fps, err := strconv.ParseFloat(s[1:], 64)
		if err != nil {
			return nil, fmt.Errorf("unable to parse Rational from %q: %w", s, err)
		}
		r = RationalFromApproxFloat64(fps)
	default:
		fps, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("unable to parse Rational from %q: %w", s, err)
		}
		r = RationalFromFloat64(fps)
	}
	if r.Den == 0 {
		return nil, fmt.Errorf("denominator cannot be zero")
	}
	return &r, nil
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

func (r Rational) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Rational) UnmarshalText(b []byte) error {
	v, err := RationalFromString(string(b))
	if err != nil {
		return err
	}
	*r = *v
	return nil
}
