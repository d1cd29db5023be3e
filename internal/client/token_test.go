package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenProvider_ReturnsSeedToken(t *testing.T) {
	p := NewTokenProvider("tok-1", nil)

	token, err := p.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-1", token)
}

func TestTokenProvider_NoRefreshConfigured(t *testing.T) {
	p := NewTokenProvider("tok-1", nil)

	_, err := p.Refresh(context.Background(), "tok-1")
	require.Error(t, err)
}

func TestTokenProvider_EmptySeedFetchesOnFirstUse(t *testing.T) {
	p := NewTokenProvider("", func(ctx context.Context) (string, error) {
		return "fresh", nil
	})

	token, err := p.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fresh", token)
}

func TestTokenProvider_RefreshReplacesStaleToken(t *testing.T) {
	calls := 0
	p := NewTokenProvider("stale", func(ctx context.Context) (string, error) {
		calls++
		return fmt.Sprintf("tok-%d", calls), nil
	})

	token, err := p.Refresh(context.Background(), "stale")
	require.NoError(t, err)
	require.Equal(t, "tok-1", token)

	// A caller holding the already-replaced token gets the current one
	// without another refresh call.
	token, err = p.Refresh(context.Background(), "stale")
	require.NoError(t, err)
	require.Equal(t, "tok-1", token)
	require.Equal(t, 1, calls)
}

func TestTokenProvider_ConcurrentRefreshSingleFlight(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	p := NewTokenProvider("stale", func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "fresh", nil
	})

	const n = 16
	results := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.Refresh(context.Background(), "stale")
		}(i)
	}
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "fresh", results[i])
	}
}
