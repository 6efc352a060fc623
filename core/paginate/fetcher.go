package paginate

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

const (
	// DefaultPageSize is used when a fetcher has no page size.
	DefaultPageSize = 100
	// DefaultMaxRecords is the safety ceiling for a single walk.
	DefaultMaxRecords = 50000
)

// PageFunc fetches one offset page.
type PageFunc[T any] func(ctx context.Context, limit, offset int) ([]T, error)

// CursorFunc fetches one cursor page and returns the next cursor, empty at the end.
type CursorFunc[T any] func(ctx context.Context, limit int, after string) ([]T, string, error)

// VisitFunc receives each page. Returning false stops the walk.
type VisitFunc[T any] func(page []T) (bool, error)

// Fetcher holds pagination limits.
type Fetcher struct {
	// PageSize is the number of records requested per page.
	PageSize int
	// MaxRecords is the safety ceiling. Zero means DefaultMaxRecords.
	MaxRecords int
	// MaxPageSize caps sizes returned by Sizer. Zero means PageSize.
	MaxPageSize int
	// Sizer, when set, picks the size of each offset page.
	Sizer  func() int
	Logger *zap.Logger
}

// Result describes how a walk ended.
type Result struct {
	Records   int
	Pages     int
	Truncated bool
	Stopped   bool
}

func (f Fetcher) pageSize() int {
	if f.PageSize <= 0 {
		return DefaultPageSize
	}
	return f.PageSize
}

// nextSize returns the size of the next offset page.
func (f Fetcher) nextSize() int {
	size := f.pageSize()
	if f.Sizer == nil {
		return size
	}
	max := f.MaxPageSize
	if max <= 0 {
		max = size
	}
	n := f.Sizer()
	if n < 1 {
		n = 1
	}
	if n > max {
		n = max
	}
	return n
}

func (f Fetcher) maxRecords() int {
	if f.MaxRecords <= 0 {
		return DefaultMaxRecords
	}
	return f.MaxRecords
}

func (f Fetcher) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

// Walk pages through an offset endpoint until a short page, the ceiling, or
// visit asks to stop.
func Walk[T any](ctx context.Context, f Fetcher, endpoint string, page PageFunc[T], visit VisitFunc[T]) (Result, error) {
	ceiling := f.maxRecords()
	var res Result

	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		limit := f.nextSize()
		if remaining := ceiling - res.Records; remaining < limit {
			limit = remaining
		}

		items, err := page(ctx, limit, offset)
		if err != nil {
			return res, fmt.Errorf("fetch %s page at offset %d: %w", endpoint, offset, err)
		}
		res.Pages++
		res.Records += len(items)

		if len(items) > 0 {
			cont, err := visit(items)
			if err != nil {
				return res, err
			}
			if !cont {
				res.Stopped = true
				return res, nil
			}
		}

		if len(items) < limit {
			return res, nil
		}
		if res.Records >= ceiling {
			res.Truncated = true
			f.logger().Warn("Pagination ceiling reached, results truncated",
				zap.String("endpoint", endpoint),
				zap.Int("records", res.Records),
				zap.Int("ceiling", ceiling))
			return res, nil
		}
		offset += len(items)
	}
}

// FetchAll collects every record of an offset endpoint.
func FetchAll[T any](ctx context.Context, f Fetcher, endpoint string, page PageFunc[T]) ([]T, error) {
	var all []T
	_, err := Walk(ctx, f, endpoint, page, func(items []T) (bool, error) {
		all = append(all, items...)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

// WalkCursor pages through a cursor endpoint until the cursor runs out, the
// ceiling, or visit asks to stop.
func WalkCursor[T any](ctx context.Context, f Fetcher, endpoint string, page CursorFunc[T], visit VisitFunc[T]) (Result, error) {
	size := f.pageSize()
	ceiling := f.maxRecords()
	var res Result
	after := ""

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		items, next, err := page(ctx, size, after)
		if err != nil {
			return res, fmt.Errorf("fetch %s page after %q: %w", endpoint, after, err)
		}
		res.Pages++
		res.Records += len(items)

		if len(items) > 0 {
			cont, err := visit(items)
			if err != nil {
				return res, err
			}
			if !cont {
				res.Stopped = true
				return res, nil
			}
		}

		if next == "" || next == after {
			return res, nil
		}
		if res.Records >= ceiling {
			res.Truncated = true
			f.logger().Warn("Pagination ceiling reached, results truncated",
				zap.String("endpoint", endpoint),
				zap.Int("records", res.Records),
				zap.Int("ceiling", ceiling))
			return res, nil
		}
		after = next
	}
}
