package types

import (
	"image"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolutionParse(t *testing.T) {
	t.Parallel()

	var r Resolution
	require.NoError(t, r.Parse("1920x1080"))
	require.Equal(t, Resolution{Width: 1920, Height: 1080}, r)
	require.Equal(t, "1920x1080", r.String())
	require.Equal(t, image.Rect(0, 0, 1920, 1080), r.Rect())
	require.False(t, r.IsZero())

	require.Error(t, r.Parse("wide"))
	require.True(t, Resolution{Width: 10}.IsZero())
}
