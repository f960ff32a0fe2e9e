//go:build with_cv
// +build with_cv

package main

import (
	"github.com/xaionaro-go/avplayer/surface"
	"github.com/xaionaro-go/avplayer/surface/cvwindow"
)

func surfaceFactory(title string, headless bool) surface.Factory {
	if headless {
		return surface.MemoryFactory
	}
	return cvwindow.NewFactory(title)
}
