package state

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"discord-entity-cache/internal/entity"
	"discord-entity-cache/internal/metrics"
	"discord-entity-cache/internal/payload"
)

// MessageAt returns the index-th newest message of a channel, paging backward
// as needed. ok is false when history ends before index.
func (c *Cache) MessageAt(ctx context.Context, channelID uint64, index int) (*entity.Message, bool, error) {
	if index < 0 {
		return nil, false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ch, err := c.loadTill(ctx, channelID, index+1)
	if err != nil {
		return nil, false, err
	}
	h := ch.History()
	if index >= h.Len() {
		return nil, false, nil
	}
	return h.At(index), true, nil
}

// MessagesTill returns messages 0..index inclusive, newest first, or fewer
// when history ends earlier
func (c *Cache) MessagesTill(ctx context.Context, channelID uint64, index int) ([]*entity.Message, error) {
	if index < 0 {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ch, err := c.loadTill(ctx, channelID, index+1)
	if err != nil {
		return nil, err
	}
	items := ch.History().Items()
	if len(items) > index+1 {
		items = items[:index+1]
	}
	return items, nil
}

// Iterator walks a channel's messages newest to oldest, fetching older pages
// when the window runs out. It resumes after the last yielded id, so messages
// removed or demoted between calls are skipped rather than repeated.
type Iterator struct {
	c         *Cache
	channelID uint64

	started bool
	last    uint64
	current *entity.Message
	err     error
	done    bool
}

// Messages returns an iterator over the channel's history
func (c *Cache) Messages(channelID uint64) *Iterator {
	return &Iterator{c: c, channelID: channelID}
}

// Next advances to the next older message. It returns false at the end of
// history, on error or when ctx is done; check Err to tell them apart.
func (it *Iterator) Next(ctx context.Context) bool {
	if it.done {
		return false
	}

	c := it.c
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		ch, err := c.messageable(it.channelID)
		if err != nil {
			return it.fail(err)
		}
		h := ch.History()

		i := 0
		if it.started {
			i = h.Below(it.last)
		}
		if i < h.Len() {
			it.current = h.At(i)
			it.last = it.current.ID()
			it.started = true
			return true
		}
		if h.ReachedEnd() {
			it.current = nil
			it.done = true
			return false
		}
		if _, err := c.loadTill(ctx, it.channelID, i+1); err != nil {
			return it.fail(err)
		}
	}
}

func (it *Iterator) fail(err error) bool {
	it.current = nil
	it.err = err
	it.done = true
	return false
}

// Message is the message Next advanced to
func (it *Iterator) Message() *entity.Message {
	return it.current
}

func (it *Iterator) Err() error {
	return it.err
}

func (c *Cache) messageable(channelID uint64) (*entity.Channel, error) {
	ch := c.reg.Channels.Get(channelID)
	if ch == nil || ch.Deleted() || ch.History() == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChannel, channelID)
	}
	return ch, nil
}

// loadTill pages backward until the channel buffers n messages or history
// ends. Called with c.mu held; the lock is released only across each fetch,
// so the buffer is re-read after every page. Pages merged before a failure
// or cancellation stay merged.
func (c *Cache) loadTill(ctx context.Context, channelID uint64, n int) (*entity.Channel, error) {
	ch, err := c.messageable(channelID)
	if err != nil {
		return nil, err
	}

	for {
		if ch.Deleted() {
			return nil, fmt.Errorf("%w: %d", ErrUnknownChannel, channelID)
		}
		h := ch.History()
		if n > h.Capacity() {
			// Re-armed on every request so an active scroll is never demoted
			h.Grow(c.now(), c.gcIdle)
		}
		if h.Len() >= n || h.ReachedEnd() {
			return ch, nil
		}
		if c.fetcher == nil {
			return nil, ErrNoFetcher
		}

		var before uint64
		if oldest, ok := h.Oldest(); ok {
			before = oldest.ID()
		}
		limit := c.pageSize

		c.mu.Unlock()
		page, err := c.fetch(ctx, channelID, limit, before)
		c.mu.Lock()
		if err != nil {
			return nil, err
		}
		if ch.Deleted() {
			return nil, fmt.Errorf("%w: %d", ErrUnknownChannel, channelID)
		}

		h = ch.History()
		for _, m := range ch.ProcessHistoryChunk(page) {
			c.retain(m)
		}
		switch {
		case len(page) < limit && endsAt(h.Oldest, page, before):
			h.MarkEnd()
		case staleBefore(page, before):
			// Nothing older came back; paging again would repeat the request
			h.MarkEnd()
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// endsAt reports whether the buffer's tail is where a short page stopped. The
// buffer may have changed while unlocked; only a contiguous tail proves the end.
func endsAt(oldest func() (*entity.Message, bool), page []payload.Payload, before uint64) bool {
	tail := before
	if len(page) > 0 {
		tail = page[len(page)-1].ID("id")
	}
	m, ok := oldest()
	if !ok {
		return tail == 0
	}
	return m.ID() == tail
}

func staleBefore(page []payload.Payload, before uint64) bool {
	return before != 0 && len(page) > 0 && page[len(page)-1].ID("id") >= before
}

// fetch requests one page. Concurrent requests for the same page share one
// upstream call, which runs detached from any single caller's context.
func (c *Cache) fetch(ctx context.Context, channelID uint64, limit int, before uint64) ([]payload.Payload, error) {
	key := strconv.FormatUint(channelID, 10) + ":" + strconv.FormatUint(before, 10) + ":" + strconv.Itoa(limit)
	detached := context.WithoutCancel(ctx)

	res := c.group.DoChan(key, func() (any, error) {
		page, err := c.fetcher.FetchHistory(detached, channelID, limit, before)
		switch {
		case err == nil:
			c.metrics.HistoryFetch(metrics.FetchOK)
		case errors.Is(err, ErrHistoryForbidden):
			c.metrics.HistoryFetch(metrics.FetchForbidden)
		default:
			c.metrics.HistoryFetch(metrics.FetchError)
		}
		return page, err
	})

	select {
	case <-ctx.Done():
		c.metrics.HistoryFetch(metrics.FetchCanceled)
		return nil, ctx.Err()
	case r := <-res:
		if r.Err != nil {
			return nil, fmt.Errorf("fetch history of %d before %d: %w", channelID, before, r.Err)
		}
		page, _ := r.Val.([]payload.Payload)
		return page, nil
	}
}
