package player

import (
	"errors"

	"github.com/xaionaro-go/avplayer/types"
)

var (
	// ErrPrecedingState means a method is called before the step it
	// depends on (e.g. CreateSurface before Open).
	ErrPrecedingState   = errors.New("the preceding state is not reached")
	ErrConversionInit   = types.ErrConversionInit
	ErrInvalidFrameRate = errors.New("the frame rate must have a positive numerator and denominator")
	ErrAlreadyPlayed    = errors.New("the player was already played")
)
