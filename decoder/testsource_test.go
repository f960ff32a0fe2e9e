package decoder

import (
	"context"
	"testing"

	"github.com/xaionaro-go/avplayer/types"
	"github.com/xaionaro-go/secret"
)

// openTestSource opens a synthetic lavfi source, skipping the test if the
// linked FFmpeg has no lavfi support.
func openTestSource(
	t *testing.T,
	graph string,
	cfg Config,
) *Input {
	ctx := context.Background()
	cfg.InputOptions = append(types.DictionaryItems{{Key: "f", Value: "lavfi"}}, cfg.InputOptions...)
	in, err := Open(ctx, graph, secret.New(""), cfg)
	if err != nil {
		t.Skipf("lavfi is not available: %v", err)
	}
	t.Cleanup(func() { in.Close(ctx) })
	return in
}
