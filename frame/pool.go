package frame

import (
	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avplayer/pool"
)

// Pool holds native frames; frames returned to it are unreferenced first.
var Pool = pool.NewPool(
	astiav.AllocFrame,
	func(p *astiav.Frame) { p.Unref() },
	func(p *astiav.Frame) { p.Free() },
)
