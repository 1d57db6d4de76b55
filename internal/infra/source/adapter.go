// Package source implements the content source adapters. Every adapter
// exposes the same pull-based stream of standardized items so the
// collection loop can treat Reddit, Mastodon, RSS feeds, and plain web
// listings uniformly.
package source

import (
	"context"
	"errors"

	"contentmill/internal/domain/entity"
)

// ErrEnd signals the natural end of an adapter stream.
var ErrEnd = errors.New("source: end of stream")

// Adapter produces standardized items from one upstream source.
type Adapter interface {
	// Name returns the source tag, matching entity.Source values.
	Name() string

	// Stream starts a lazy iteration over the source. Pages are fetched
	// on demand as the caller pulls items.
	Stream(ctx context.Context) Iterator
}

// Iterator is a pull-based cursor over standardized items. Next returns
// ErrEnd once the stream is exhausted and the context error when cancelled.
type Iterator interface {
	Next(ctx context.Context) (*entity.StandardItem, error)
}

// pagedIterator buffers one fetched page at a time. The fetch closure
// returns the next batch of items and whether the stream is exhausted;
// adapters keep their pagination state inside the closure.
type pagedIterator struct {
	buf   []*entity.StandardItem
	done  bool
	fetch func(ctx context.Context) ([]*entity.StandardItem, bool, error)
}

func newPagedIterator(fetch func(ctx context.Context) ([]*entity.StandardItem, bool, error)) *pagedIterator {
	return &pagedIterator{fetch: fetch}
}

func (it *pagedIterator) Next(ctx context.Context) (*entity.StandardItem, error) {
	for len(it.buf) == 0 {
		if it.done {
			return nil, ErrEnd
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		items, done, err := it.fetch(ctx)
		if err != nil {
			return nil, err
		}
		it.buf = items
		it.done = done
	}

	item := it.buf[0]
	it.buf = it.buf[1:]
	return item, nil
}

// Collect drains an iterator into a slice, stopping at ErrEnd. It is a
// convenience for tests and small batch callers; the collection loop pulls
// items one at a time instead.
func Collect(ctx context.Context, it Iterator) ([]*entity.StandardItem, error) {
	var items []*entity.StandardItem
	for {
		item, err := it.Next(ctx)
		if errors.Is(err, ErrEnd) {
			return items, nil
		}
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
}

// quotaPerTarget splits an absolute item budget evenly across targets,
// guaranteeing every target at least one slot.
func quotaPerTarget(maxItems, targets int) int {
	if targets <= 0 {
		return 0
	}
	quota := maxItems / targets
	if quota < 1 {
		quota = 1
	}
	return quota
}
