package decoder

import (
	"github.com/xaionaro-go/avplayer/types"
)

type Config struct {
	// InputOptions are passed to the demuxer; the key "f" forces the
	// input format instead.
	InputOptions types.DictionaryItems `yaml:"input_options,omitempty"`

	// DecoderOptions are passed to both stream decoders.
	DecoderOptions types.DictionaryItems `yaml:"decoder_options,omitempty"`

	// DisableAudio makes the input ignore the audio stream.
	DisableAudio bool `yaml:"disable_audio,omitempty"`
}
