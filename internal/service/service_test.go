package service

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"discord-entity-cache/internal/config"
	"discord-entity-cache/internal/entity"
	"discord-entity-cache/internal/metrics"
	"discord-entity-cache/internal/payload"
	"discord-entity-cache/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func page(_ context.Context, _ uint64, limit int, before uint64) ([]payload.Payload, error) {
	var out []payload.Payload
	for id := uint64(30); id >= 1 && len(out) < limit; id-- {
		if before != 0 && id >= before {
			continue
		}
		out = append(out, payload.Payload{"id": strconv.FormatUint(id, 10)})
	}
	return out, nil
}

func TestRunSweeperDemotesAndStops(t *testing.T) {
	c := state.New(
		state.WithFetcher(state.FetcherFunc(page)),
		state.WithHistoryCapacity(2),
		state.WithGCIdle(time.Millisecond),
	)
	_, err := c.Synchronize("CHANNEL_CREATE", payload.Payload{"id": "10", "type": 1})
	require.NoError(t, err)
	_, ok, err := c.MessageAt(context.Background(), 10, 20)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, c.Stats().GrownBuffers)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunSweeper(ctx, c, 5*time.Millisecond, zap.NewNop())
	}()

	require.Eventually(t, func() bool { return c.Stats().GrownBuffers == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	c.View(func(reg *entity.Registry) {
		assert.Equal(t, 2, reg.Channels.Get(10).History().Len())
	})
}

func TestServeMetrics(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	m := metrics.New()
	m.Event("READY")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ServeMetrics(ctx, ln, m.Handler(), zap.NewNop())
	}()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + ln.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `entitycache_events_total{kind="READY"} 1`)

	cancel()
	require.NoError(t, <-done)
}

func TestNewRequiresToken(t *testing.T) {
	t.Setenv(config.TokenEnv, "")

	_, err := New(config.Default(), zap.NewNop())
	assert.Error(t, err)
}

func TestNewWiresCache(t *testing.T) {
	cfg := config.Default()
	cfg.Token = "test-token"
	cfg.History.Capacity = 4

	svc, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	defer svc.perms.Close()

	assert.Equal(t, "Bot test-token", svc.Session.Token)
	assert.False(t, svc.Session.StateEnabled)
	assert.NotNil(t, svc.Gateway)

	_, err = svc.Cache.Synchronize("CHANNEL_CREATE", payload.Payload{"id": "10", "type": 1})
	require.NoError(t, err)
	svc.Cache.View(func(reg *entity.Registry) {
		assert.Equal(t, 4, reg.Channels.Get(10).History().Capacity())
	})
}
