package batch

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/shaneholloman/zele-sub000/internal/apierr"
)

func TestRunPreservesOrder(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	results, err := Run(context.Background(), items, 3, func(ctx context.Context, item int) (*int, error) {
		v := item * 10
		return &v, nil
	})

	require.NoError(t, err)
	require.Len(t, results, 10)
	for i, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, i*10, *r)
	}
}

func TestRunSkipLeavesHole(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	results, err := Run(context.Background(), items, 3, func(ctx context.Context, item int) (*int, error) {
		if item == 4 {
			return nil, nil // deleted mid-fetch: skip, not fatal
		}
		v := item
		return &v, nil
	})

	require.NoError(t, err)
	require.Len(t, results, 10)
	for i, r := range results {
		if i == 4 {
			assert.Nil(t, r)
			continue
		}
		require.NotNil(t, r)
		assert.Equal(t, i, *r)
	}
}

func TestRunFatalAbortsRemainingWork(t *testing.T) {
	items := make([]int, 50)
	for i := range items {
		items[i] = i
	}

	var started atomic.Int64

	fatal := apierr.New(apierr.KindAuth, "detail.get", &googleapi.Error{Code: 401})

	results, err := Run(context.Background(), items, 3, func(ctx context.Context, item int) (*int, error) {
		n := started.Add(1)
		if n == 4 {
			return nil, fatal
		}
		// items claimed after the fatal result park until cancellation,
		// so the cursor provably stops advancing
		if n > 4 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		v := item
		return &v, nil
	})

	require.Error(t, err)
	assert.True(t, apierr.IsAuth(err))
	assert.Nil(t, results)
	// the shared cursor stops advancing shortly after the fatal result
	assert.Less(t, started.Load(), int64(50))
}

func TestRunHonorsConcurrencyCeiling(t *testing.T) {
	items := make([]int, 40)
	var inFlight, peak atomic.Int64

	_, err := Run(context.Background(), items, 5, func(ctx context.Context, item int) (*int, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		inFlight.Add(-1)
		v := item
		return &v, nil
	})

	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int64(5))
}

func TestRunEmptyItems(t *testing.T) {
	results, err := Run(context.Background(), nil, 10, func(ctx context.Context, item int) (*int, error) {
		t.Fatal("worker must not run")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRunDefaultsConcurrency(t *testing.T) {
	items := []int{1, 2, 3}
	results, err := Run(context.Background(), items, 0, func(ctx context.Context, item int) (*int, error) {
		return &item, nil
	})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}
