package resampler

import (
	"fmt"
	"strings"

	"github.com/asticode/go-astiav"
)

// OutputFormat is the interleaved PCM format produced by a SampleConverter.
type OutputFormat struct {
	SampleFormat   astiav.SampleFormat
	BytesPerSample int
}

var (
	PCMInt16   = OutputFormat{SampleFormat: astiav.SampleFormatS16, BytesPerSample: 2}
	PCMInt32   = OutputFormat{SampleFormat: astiav.SampleFormatS32, BytesPerSample: 4}
	PCMFloat32 = OutputFormat{SampleFormat: astiav.SampleFormatFlt, BytesPerSample: 4}
)

func (f OutputFormat) String() string {
	return fmt.Sprintf("%s(%dB)", f.SampleFormat, f.BytesPerSample)
}

// BitDepth is the number of bits of a single sample.
func (f OutputFormat) BitDepth() int {
	return f.BytesPerSample * 8
}

// outputFormats are the interleaved formats a SampleConverter may produce.
var outputFormats = []struct {
	name   string
	format OutputFormat
}{
	{"s16", PCMInt16},
	{"s32", PCMInt32},
	{"flt", PCMFloat32},
}

// Validate checks that f is one of PCMInt16, PCMInt32 or PCMFloat32.
func (f OutputFormat) Validate() error {
	for _, item := range outputFormats {
		if item.format == f {
			return nil
		}
	}
	return fmt.Errorf("unsupported output sample format %s (expected: s16, s32, flt)", f)
}

// OutputFormatFromString parses the libav short name of a packed sample format.
func OutputFormatFromString(s string) (OutputFormat, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return PCMInt16, nil
	}
	for _, item := range outputFormats {
		if item.name == s {
			return item.format, nil
		}
	}
	return OutputFormat{}, fmt.Errorf("unsupported output sample format '%s' (expected: s16, s32, flt)", s)
}

func (f OutputFormat) MarshalText() ([]byte, error) {
	return []byte(f.SampleFormat.Name()), nil
}

func (f *OutputFormat) UnmarshalText(b []byte) error {
	v, err := OutputFormatFromString(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}
