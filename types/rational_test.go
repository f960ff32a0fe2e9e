package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRationalFromString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input          string
		expectedNum    int
		expectedDen    int
		expectingError bool
	}{
		{"30", 30, 1, false},
		{"30/1", 30, 1, false},
		{"24000/1001", 24000, 1001, false},
		{"~23.976", 24000, 1001, false},
		{"~29.97", 30000, 1001, false},
		{" 25 ", 25, 1, false},
		{"~60", 60, 1, false},
		{"1/0", 0, 0, true},
		{"", 0, 0, true},
		{"invalid", 0, 0, true},
		{"10/invalid", 0, 0, true},
	}

	for _, tt := range tests {
		r, err := RationalFromString(tt.input)
		if tt.expectingError {
			require.Error(t, err, "input %q", tt.input)
			continue
		}
		require.NoError(t, err, "input %q", tt.input)
		require.Equal(t, Rational{Num: tt.expectedNum, Den: tt.expectedDen}, *r, "input %q", tt.input)
	}
}

func TestRationalFrameOffset(t *testing.T) {
	t.Parallel()

	ntscFilm := Rational{Num: 24000, Den: 1001}
	require.Equal(t, time.Duration(0), ntscFilm.FrameOffset(0))
	require.Equal(t, 1001*time.Millisecond, ntscFilm.FrameOffset(24))
	require.Equal(t, int64(0), ntscFilm.FrameOffsetMillis(0))
	require.Equal(t, int64(1001), ntscFilm.FrameOffsetMillis(24))

	for _, r := range []Rational{
		{Num: 24000, Den: 1001},
		{Num: 30000, Den: 1001},
		{Num: 25, Den: 1},
		{Num: 60, Den: 1},
		{Num: 1, Den: 3},
	} {
		for _, i := range []int64{0, 1, 2, 24, 1000, 123456} {
			require.Equal(t,
				i*int64(r.Den)*1000/int64(r.Num),
				r.FrameOffset(i).Milliseconds(),
				"rate %s, frame %d", r, i,
			)
		}
	}
}

func TestRationalFrameOffsetInvalid(t *testing.T) {
	t.Parallel()

	require.Zero(t, Rational{}.FrameOffset(10))
	require.Zero(t, Rational{Num: -1, Den: 1}.FrameOffset(10))
	require.False(t, Rational{Num: 1, Den: 0}.IsValid())
	require.True(t, Rational{Num: 25, Den: 1}.IsValid())
}

func TestRationalText(t *testing.T) {
	t.Parallel()

	var r Rational
	require.NoError(t, r.UnmarshalText([]byte("30000/1001")))
	require.Equal(t, Rational{Num: 30000, Den: 1001}, r)

	b, err := r.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "30000/1001", string(b))

	require.Error(t, r.UnmarshalText([]byte("x")))
}
