// Package service wires the cache to a live gateway session and runs its
// background loops.
package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"discord-entity-cache/internal/config"
	"discord-entity-cache/internal/metrics"
	"discord-entity-cache/internal/permcache"
	"discord-entity-cache/internal/state"
	"discord-entity-cache/internal/transport"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Service struct {
	Config  config.Config
	Session *discordgo.Session
	Cache   *state.Cache
	Gateway *transport.Gateway
	Metrics *metrics.Metrics
	Logger  *zap.Logger

	perms *permcache.Cache
}

// New builds the session and the cache. Nothing connects until Run.
func New(cfg config.Config, logger *zap.Logger) (*Service, error) {
	if cfg.Token == "" {
		return nil, errors.New("service: no token configured")
	}

	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("session error: %w", err)
	}

	m := metrics.New()
	s.Client = &http.Client{
		Transport: &transport.InstrumentedTransport{
			Base: &http.Transport{
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   20,
				IdleConnTimeout:       120 * time.Second,
				ForceAttemptHTTP2:     true,
				ResponseHeaderTimeout: 10 * time.Second,
				TLSHandshakeTimeout:   5 * time.Second,
			},
			Metrics: m,
		},
		Timeout: 15 * time.Second,
	}

	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildPresences |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	// The cache replaces discordgo's own state tracking
	s.StateEnabled = false
	s.ShouldReconnectOnError = true
	s.ShouldRetryOnRateLimit = true
	s.MaxRestRetries = 3

	perms, err := permcache.New(permcache.Config{
		NumCounters: cfg.Permissions.NumCounters,
		MaxCost:     cfg.Permissions.MaxCost,
	})
	if err != nil {
		return nil, err
	}

	cache := state.New(
		state.WithHistoryCapacity(cfg.History.Capacity),
		state.WithGCIdle(cfg.History.GCIdle.Std()),
		state.WithPageSize(cfg.History.PageSize),
		state.WithRetainedMessages(cfg.History.Retained),
		state.WithFetcher(transport.NewHistoryFetcher(s)),
		state.WithMetrics(m),
		state.WithPermissionCache(perms),
	)

	return &Service{
		Config:  cfg,
		Session: s,
		Cache:   cache,
		Gateway: transport.NewGateway(cache, logger),
		Metrics: m,
		Logger:  logger,
		perms:   perms,
	}, nil
}

// Run connects to the gateway and blocks until ctx is done or a loop fails
func (s *Service) Run(ctx context.Context) error {
	defer s.perms.Close()

	remove := s.Gateway.Attach(s.Session)
	defer remove()

	s.Logger.Info("Connecting to Discord Gateway")
	if err := s.Session.Open(); err != nil {
		return fmt.Errorf("gateway connection failed: %w", err)
	}
	s.Logger.Info("Connected to Discord Gateway")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return RunSweeper(ctx, s.Cache, s.Config.Sweep.Interval.Std(), s.Logger)
	})

	if s.Config.MetricsEnabled() {
		ln, err := net.Listen("tcp", s.Config.Metrics.Addr)
		if err != nil {
			_ = s.Session.Close()
			return fmt.Errorf("metrics listener: %w", err)
		}
		g.Go(func() error {
			return ServeMetrics(ctx, ln, s.Metrics.Handler(), s.Logger)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		s.Logger.Info("Closing gateway session")
		return s.Session.Close()
	})

	return g.Wait()
}

// RunSweeper demotes idle history buffers and drops collected registry
// entries every interval until ctx is done
func RunSweeper(ctx context.Context, cache *state.Cache, interval time.Duration, logger *zap.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			res := cache.Sweep(now)
			if res.Demoted > 0 {
				logger.Debug("Demoted history buffers",
					zap.Int("buffers", res.Demoted),
					zap.Int("dropped", res.Dropped))
			}
		}
	}
}

// ServeMetrics serves /metrics on ln until ctx is done
func ServeMetrics(ctx context.Context, ln net.Listener, h http.Handler, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()
	logger.Info("Serving metrics", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errc:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics shutdown: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
