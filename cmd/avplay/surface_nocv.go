//go:build !with_cv
// +build !with_cv

package main

import (
	"github.com/xaionaro-go/avplayer/surface"
)

// surfaceFactory always presents into memory: build with the with_cv tag
// to get a window.
func surfaceFactory(_ string, _ bool) surface.Factory {
	return surface.MemoryFactory
}
