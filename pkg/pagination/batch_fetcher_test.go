package pagination

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectionFetcher(all []int, calls *atomic.Int32, failPage int) PageFetcher[int] {
	return func(_ context.Context, p Params) (Window[int], error) {
		calls.Add(1)
		if p.Page == failPage {
			return Window[int]{}, errors.New("boom")
		}
		return Paginate(all, p), nil
	}
}

func TestBatchFetcher_FetchAll(t *testing.T) {
	var calls atomic.Int32
	all := seq(50)

	got, err := NewBatchFetcher(collectionFetcher(all, &calls, 0), DefaultConfig()).FetchAll(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, all, got)
	assert.Equal(t, int32(3), calls.Load())
}

func TestBatchFetcher_SinglePage(t *testing.T) {
	var calls atomic.Int32

	got, err := NewBatchFetcher(collectionFetcher(seq(7), &calls, 0), Config{}).FetchAll(context.Background(), 24)
	require.NoError(t, err)
	assert.Len(t, got, 7)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBatchFetcher_PageFailure(t *testing.T) {
	var calls atomic.Int32

	_, err := NewBatchFetcher(collectionFetcher(seq(100), &calls, 3), DefaultConfig()).FetchAll(context.Background(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch page 3")
}

func TestBatchFetcher_FirstPageFailure(t *testing.T) {
	var calls atomic.Int32

	_, err := NewBatchFetcher(collectionFetcher(seq(100), &calls, 1), DefaultConfig()).FetchAll(context.Background(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch first page")
	assert.Equal(t, int32(1), calls.Load())
}

func TestBatchFetcher_ReportedTotalBounded(t *testing.T) {
	var calls atomic.Int32
	var fetch PageFetcher[int] = func(_ context.Context, p Params) (Window[int], error) {
		calls.Add(1)
		return Window[int]{Page: p.Page, PageSize: p.PageSize, Total: 1 << 30, Items: seq(p.PageSize)}, nil
	}

	_, err := NewBatchFetcher(fetch, Config{MaxPages: 5}).FetchAll(context.Background(), 10)
	require.ErrorIs(t, err, ErrTooManyPages)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBatchFetcher_AtPageLimit(t *testing.T) {
	var calls atomic.Int32

	got, err := NewBatchFetcher(collectionFetcher(seq(50), &calls, 0), Config{MaxPages: 5}).FetchAll(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, got, 50)
	assert.Equal(t, int32(5), calls.Load())
}
