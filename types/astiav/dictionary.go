// Package astiav converts avplayer types into their go-astiav counterparts.
package astiav

import (
	"context"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avplayer/internal"
	"github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/avplayer/types"
)

// DictionaryItemsToAstiav returns nil for an empty set, which libav
// treats as "no options".
func DictionaryItemsToAstiav(
	ctx context.Context,
	s types.DictionaryItems,
) *astiav.Dictionary {
	if len(s) == 0 {
		return nil
	}

	result := astiav.NewDictionary()
	internal.SetFinalizerFree(ctx, result)
	for _, opt := range s.Deduplicate() {
		logger.Tracef(ctx, "setting option: %s=%s", opt.Key, opt.Value)
		if err := result.Set(opt.Key, opt.Value, 0); err != nil {
			logger.Warnf(ctx, "unable to set option %s=%s: %v", opt.Key, opt.Value, err)
		}
	}
	return result
}
