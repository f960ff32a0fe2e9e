package types

import (
	"errors"
)

// ErrConversionInit is returned (wrapped) when a scaling or resampling
// context cannot be initialized for the requested format pair.
var ErrConversionInit = errors.New("unable to initialize the conversion context")
