package state

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"discord-entity-cache/internal/entity"
	"discord-entity-cache/internal/metrics"
	"discord-entity-cache/internal/payload"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageAtPagesBackwardAndSweepDemotes(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	hist := newFakeHistory(12)
	m := metrics.New()
	c := New(
		WithFetcher(hist),
		WithHistoryCapacity(5),
		WithPageSize(3),
		WithClock(fixedClock(now)),
		WithMetrics(m),
	)
	dm := openDM(t, c)
	ctx := context.Background()

	msg, ok, err := c.MessageAt(ctx, dmID, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(12), msg.ID())
	assert.Same(t, dm, msg.Channel())
	assert.Equal(t, "message 12", msg.Content)
	assert.False(t, dm.History().Unbounded())

	// Past the capacity: the window grows and keeps every page
	msg, ok, err = c.MessageAt(ctx, dmID, 6)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(6), msg.ID())
	assert.True(t, dm.History().Unbounded())
	assert.Equal(t, []uint64{0, 10, 7}, hist.calls())

	_, ok, err = c.MessageAt(ctx, dmID, 20)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, dm.History().ReachedEnd())
	assert.Equal(t, []uint64{0, 10, 7, 4, 1}, hist.calls())

	// Served locally once the end is known
	msg, ok, err = c.MessageAt(ctx, dmID, 11)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(1), msg.ID())
	assert.Len(t, hist.calls(), 5)
	assert.Equal(t, 5.0, testutil.ToFloat64(m.Fetches.WithLabelValues(metrics.FetchOK)))
	assert.Equal(t, 1, c.Stats().GrownBuffers)

	res := c.Sweep(now.Add(30 * time.Second))
	assert.Zero(t, res.Demoted)

	res = c.Sweep(now.Add(DefaultGCIdle))
	assert.Equal(t, 1, res.Demoted)
	assert.Equal(t, 7, res.Dropped)
	assert.Equal(t, []uint64{12, 11, 10, 9, 8}, historyIDs(dm))
	assert.False(t, dm.History().ReachedEnd())
	assert.Zero(t, c.Stats().GrownBuffers)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Demotions))
}

func TestMessagesTill(t *testing.T) {
	hist := newFakeHistory(12)
	c := New(WithFetcher(hist), WithHistoryCapacity(5))
	dm := openDM(t, c)
	ctx := context.Background()

	msgs, err := c.MessagesTill(ctx, dmID, 7)
	require.NoError(t, err)
	require.Len(t, msgs, 8)
	assert.Equal(t, uint64(12), msgs[0].ID())
	assert.Equal(t, uint64(5), msgs[7].ID())

	// A short first page already proves the end
	assert.True(t, dm.History().ReachedEnd())
	msgs, err = c.MessagesTill(ctx, dmID, 30)
	require.NoError(t, err)
	assert.Len(t, msgs, 12)
	assert.Equal(t, []uint64{0}, hist.calls())

	msgs, err = c.MessagesTill(ctx, dmID, -1)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestIteratorWalksLocalThenFetchedMessages(t *testing.T) {
	hist := newFakeHistory(10)
	c := New(WithFetcher(hist), WithHistoryCapacity(5), WithPageSize(4))
	openDM(t, c)
	ctx := context.Background()

	for _, id := range []uint64{11, 12} {
		_, err := c.Synchronize("MESSAGE_CREATE", gatewayMessage(id, "live"))
		require.NoError(t, err)
	}

	var got []uint64
	it := c.Messages(dmID)
	for it.Next(ctx) {
		got = append(got, it.Message().ID())
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []uint64{12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1}, got)
	assert.Equal(t, []uint64{11, 8, 4}, hist.calls())

	assert.False(t, it.Next(ctx))
	assert.Nil(t, it.Message())
}

func TestIteratorSkipsMessagesRemovedMidWalk(t *testing.T) {
	empty := FetcherFunc(func(context.Context, uint64, int, uint64) ([]payload.Payload, error) {
		return nil, nil
	})
	c := New(WithFetcher(empty))
	openDM(t, c)
	ctx := context.Background()

	for _, id := range []uint64{10, 11, 12} {
		_, err := c.Synchronize("MESSAGE_CREATE", gatewayMessage(id, "live"))
		require.NoError(t, err)
	}

	it := c.Messages(dmID)
	require.True(t, it.Next(ctx))
	assert.Equal(t, uint64(12), it.Message().ID())

	_, err := c.Synchronize("MESSAGE_DELETE", payload.Payload{"id": "11", "channel_id": "50"})
	require.NoError(t, err)

	require.True(t, it.Next(ctx))
	assert.Equal(t, uint64(10), it.Message().ID())
	assert.False(t, it.Next(ctx))
	assert.NoError(t, it.Err())
}

func TestHistoryForbiddenIsNotExhaustion(t *testing.T) {
	forbidden := FetcherFunc(func(context.Context, uint64, int, uint64) ([]payload.Payload, error) {
		return nil, fmt.Errorf("GET messages: %w", ErrHistoryForbidden)
	})
	m := metrics.New()
	c := New(WithFetcher(forbidden), WithMetrics(m))
	dm := openDM(t, c)
	ctx := context.Background()

	_, ok, err := c.MessageAt(ctx, dmID, 0)
	require.ErrorIs(t, err, ErrHistoryForbidden)
	assert.False(t, ok)
	assert.False(t, dm.History().ReachedEnd())

	it := c.Messages(dmID)
	assert.False(t, it.Next(ctx))
	assert.ErrorIs(t, it.Err(), ErrHistoryForbidden)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Fetches.WithLabelValues(metrics.FetchForbidden)))
}

func TestHistoryPreconditions(t *testing.T) {
	c := New()
	openDM(t, c)
	ctx := context.Background()

	_, _, err := c.MessageAt(ctx, dmID, 0)
	assert.ErrorIs(t, err, ErrNoFetcher)

	_, _, err = c.MessageAt(ctx, 404, 0)
	assert.ErrorIs(t, err, ErrUnknownChannel)

	_, err = c.Synchronize("CHANNEL_CREATE", payload.Payload{"id": "60", "type": 2, "name": "voice"})
	require.NoError(t, err)
	_, err = c.MessagesTill(ctx, 60, 3)
	assert.ErrorIs(t, err, ErrUnknownChannel)

	_, ok, err := c.MessageAt(ctx, dmID, -1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentLoadsShareOneFetch(t *testing.T) {
	hist := newFakeHistory(3)
	release := make(chan struct{})
	var calls atomic.Int32
	slow := FetcherFunc(func(ctx context.Context, channelID uint64, limit int, before uint64) ([]payload.Payload, error) {
		calls.Add(1)
		<-release
		return hist.FetchHistory(ctx, channelID, limit, before)
	})
	c := New(WithFetcher(slow))
	openDM(t, c)

	var wg sync.WaitGroup
	got := make([]*entity.Message, 2)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg, _, err := c.MessageAt(context.Background(), dmID, 0)
			assert.NoError(t, err)
			got[i] = msg
		}()
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	require.NotNil(t, got[0])
	assert.Same(t, got[0], got[1])
}

func TestCancelledLoadKeepsMergedPages(t *testing.T) {
	hist := newFakeHistory(12)
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	fetcher := FetcherFunc(func(ctx context.Context, channelID uint64, limit int, before uint64) ([]payload.Payload, error) {
		if calls.Add(1) == 2 {
			close(started)
			<-release
		}
		return hist.FetchHistory(ctx, channelID, limit, before)
	})
	m := metrics.New()
	c := New(WithFetcher(fetcher), WithPageSize(3), WithMetrics(m))
	dm := openDM(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, _, err := c.MessageAt(ctx, dmID, 5)
		errc <- err
	}()

	<-started
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)
	c.View(func(*entity.Registry) {
		assert.Equal(t, []uint64{12, 11, 10}, historyIDs(dm))
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fetches.WithLabelValues(metrics.FetchCanceled)))

	close(release)
	msg, ok, err := c.MessageAt(context.Background(), dmID, 5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(7), msg.ID())
}
