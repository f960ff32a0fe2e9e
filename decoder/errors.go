package decoder

import (
	"fmt"
)

// OpenError is returned when a source cannot be opened or contains no
// playable video stream.
type OpenError struct {
	URL string
	Err error
}

func (e OpenError) Error() string {
	return fmt.Sprintf("unable to open '%s': %v", e.URL, e.Err)
}

func (e OpenError) Unwrap() error {
	return e.Err
}
