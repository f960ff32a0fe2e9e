package decoder

import (
	"github.com/asticode/go-astiav"
)

func init() {
	astiav.RegisterAllDevices()
}
