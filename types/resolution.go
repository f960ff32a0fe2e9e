package types

import (
	"fmt"
	"image"
)

type Resolution struct {
	Width  uint32 `yaml:"width"`
	Height uint32 `yaml:"height"`
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

func (r Resolution) IsZero() bool {
	return r.Width == 0 || r.Height == 0
}

// Rect is the full-frame rectangle, used as the dirty region of a presented frame.
func (r Resolution) Rect() image.Rectangle {
	return image.Rect(0, 0, int(r.Width), int(r.Height))
}

func (r *Resolution) Parse(s string) error {
	if _, err := fmt.Sscanf(s, "%dx%d", &r.Width, &r.Height); err != nil {
		return fmt.Errorf("unable to parse resolution '%s': %w", s, err)
	}
	return nil
}

func (r Resolution) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Resolution) UnmarshalText(b []byte) error {
	return r.Parse(string(b))
}
