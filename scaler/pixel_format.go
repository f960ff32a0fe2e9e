// pixel_format.go implements the packed pixel formats a surface may present.

package scaler

import (
	"fmt"
	"strings"

	"github.com/asticode/go-astiav"
)

var packedFormats = []struct {
	name          string
	pixelFormat   astiav.PixelFormat
	bytesPerPixel int
}{
	{"bgr24", astiav.PixelFormatBgr24, 3},
	{"rgb24", astiav.PixelFormatRgb24, 3},
	{"rgba", astiav.PixelFormatRgba, 4},
	{"bgra", astiav.PixelFormatBgra, 4},
	{"argb", astiav.PixelFormatArgb, 4},
	{"abgr", astiav.PixelFormatAbgr, 4},
	{"gray", astiav.PixelFormatGray8, 1},
}

// BytesPerPixel returns the pixel size of a packed (single-plane) format,
// or 0 if the format is not a supported presentation format.
func BytesPerPixel(pixFmt astiav.PixelFormat) int {
	for _, f := range packedFormats {
		if f.pixelFormat == pixFmt {
			return f.bytesPerPixel
		}
	}
	return 0
}

// PixelFormatFromString parses the name of a supported presentation format.
func PixelFormatFromString(s string) (astiav.PixelFormat, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "gray8" {
		s = "gray"
	}
	for _, f := range packedFormats {
		if f.name == s {
			return f.pixelFormat, nil
		}
	}
	return astiav.PixelFormatNone, fmt.Errorf("unsupported pixel format '%s'", s)
}
