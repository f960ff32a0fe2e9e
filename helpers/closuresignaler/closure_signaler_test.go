package closuresignaler

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCloseOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	require.False(t, s.IsClosed())

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Close(ctx) {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, winners)
	require.True(t, s.IsClosed())
	<-s.CloseChan()
}
