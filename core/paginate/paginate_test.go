package paginate_test

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"testing"
	"time"

	"lease-sync/core/paginate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilters_ArrayIsRepeated(t *testing.T) {
	f := paginate.NewFilters().AddInts("propertyids", 140054, 77001)

	encoded := f.Encode()
	assert.Equal(t, "propertyids=140054&propertyids=77001", encoded)
	assert.NotContains(t, encoded, "140054,77001")
	assert.NotContains(t, encoded, "%5B")
	assert.NotContains(t, encoded, "[")

	parsed, err := url.ParseQuery(encoded)
	require.NoError(t, err)
	assert.Equal(t, []string{"140054", "77001"}, parsed["propertyids"])
}

func TestFilters_WithPage(t *testing.T) {
	f := paginate.NewFilters().
		AddInts("propertyids", 1, 2).
		SetTime("lastupdatedfrom", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)).
		Set("empty", "")

	v := f.WithPage(50, 100)
	assert.Equal(t, "50", v.Get("limit"))
	assert.Equal(t, "100", v.Get("offset"))
	assert.Equal(t, "2024-03-01T12:00:00Z", v.Get("lastupdatedfrom"))
	assert.Equal(t, []string{"1", "2"}, v["propertyids"])
	_, hasEmpty := v["empty"]
	assert.False(t, hasEmpty)

	// Paging must not leak into the shared filter set.
	assert.Empty(t, f.Values().Get("limit"))
}

func sequence(n int) paginate.PageFunc[int] {
	return func(ctx context.Context, limit, offset int) ([]int, error) {
		var out []int
		for i := offset; i < offset+limit && i < n; i++ {
			out = append(out, i)
		}
		return out, nil
	}
}

func TestFetchAll_StopsOnShortPage(t *testing.T) {
	calls := 0
	page := sequence(25)
	counting := func(ctx context.Context, limit, offset int) ([]int, error) {
		calls++
		return page(ctx, limit, offset)
	}

	all, err := paginate.FetchAll(context.Background(), paginate.Fetcher{PageSize: 10}, "units", counting)
	require.NoError(t, err)
	assert.Len(t, all, 25)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 24, all[24])
}

func TestFetchAll_ExactMultipleNeedsEmptyPage(t *testing.T) {
	calls := 0
	page := sequence(20)
	counting := func(ctx context.Context, limit, offset int) ([]int, error) {
		calls++
		return page(ctx, limit, offset)
	}

	all, err := paginate.FetchAll(context.Background(), paginate.Fetcher{PageSize: 10}, "units", counting)
	require.NoError(t, err)
	assert.Len(t, all, 20)
	assert.Equal(t, 3, calls)
}

func TestWalk_Ceiling(t *testing.T) {
	res, err := paginate.Walk(context.Background(), paginate.Fetcher{PageSize: 10, MaxRecords: 35}, "leases", sequence(1000),
		func(items []int) (bool, error) { return true, nil })
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Equal(t, 35, res.Records)
	assert.Equal(t, 4, res.Pages)
}

func TestWalk_VisitStops(t *testing.T) {
	seen := 0
	res, err := paginate.Walk(context.Background(), paginate.Fetcher{PageSize: 10}, "units", sequence(100),
		func(items []int) (bool, error) {
			seen += len(items)
			return seen < 20, nil
		})
	require.NoError(t, err)
	assert.True(t, res.Stopped)
	assert.Equal(t, 20, seen)
}

func TestWalk_PageError(t *testing.T) {
	boom := errors.New("boom")
	_, err := paginate.Walk(context.Background(), paginate.Fetcher{PageSize: 10}, "units",
		func(ctx context.Context, limit, offset int) ([]int, error) { return nil, boom },
		func(items []int) (bool, error) { return true, nil })
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "units")
}

func TestWalkCursor(t *testing.T) {
	pages := map[string][]string{"": {"a", "b"}, "2": {"c", "d"}, "4": {"e"}}
	next := map[string]string{"": "2", "2": "4", "4": ""}

	var got []string
	res, err := paginate.WalkCursor(context.Background(), paginate.Fetcher{PageSize: 2}, "contacts",
		func(ctx context.Context, limit int, after string) ([]string, string, error) {
			return pages[after], next[after], nil
		},
		func(items []string) (bool, error) {
			got = append(got, items...)
			return true, nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, got)
	assert.Equal(t, 3, res.Pages)
}

func TestWalk_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := paginate.Walk(ctx, paginate.Fetcher{}, "units", sequence(10),
		func(items []int) (bool, error) { return true, nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchAll_DefaultPageSize(t *testing.T) {
	var limits []string
	_, err := paginate.FetchAll(context.Background(), paginate.Fetcher{}, "units",
		func(ctx context.Context, limit, offset int) ([]int, error) {
			limits = append(limits, strconv.Itoa(limit))
			return nil, nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"100"}, limits)
}

func TestWalk_SizerVariesPages(t *testing.T) {
	var limits, offsets []int
	sizes := []int{5, 500, 0}
	f := paginate.Fetcher{
		PageSize:    10,
		MaxPageSize: 20,
		Sizer: func() int {
			n := sizes[0]
			if len(sizes) > 1 {
				sizes = sizes[1:]
			}
			return n
		},
	}
	page := func(ctx context.Context, limit, offset int) ([]int, error) {
		limits = append(limits, limit)
		offsets = append(offsets, offset)
		return sequence(27)(ctx, limit, offset)
	}

	all, err := paginate.FetchAll(context.Background(), f, "units", page)
	require.NoError(t, err)
	assert.Len(t, all, 27)
	assert.Equal(t, []int{5, 20, 1, 1, 1}, limits)
	assert.Equal(t, []int{0, 5, 25, 26, 27}, offsets)
}
