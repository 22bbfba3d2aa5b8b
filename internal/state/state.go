// Package state is the cache service: it owns the entity registry, applies
// gateway events to it and pages channel history through a Fetcher.
//
// All mutation happens under one mutex, the single synchronization domain of
// the cache. History paging releases it only across the upstream fetch.
package state

import (
	"context"
	"errors"
	"sync"
	"time"

	"discord-entity-cache/internal/entity"
	"discord-entity-cache/internal/history"
	"discord-entity-cache/internal/metrics"
	"discord-entity-cache/internal/payload"
	"discord-entity-cache/internal/permcache"
	"discord-entity-cache/internal/ring"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrHistoryForbidden means the client may not read the channel's history.
	// Paging further cannot fix it, unlike reaching the end of history.
	ErrHistoryForbidden = errors.New("state: history access forbidden")
	ErrNoFetcher        = errors.New("state: no history fetcher configured")
	ErrUnknownChannel   = errors.New("state: unknown or non-messageable channel")
	ErrUnknownGuild     = errors.New("state: unknown guild")
	ErrUnhandledEvent   = errors.New("state: unhandled event kind")
)

const (
	DefaultGCIdle   = time.Minute
	DefaultPageSize = 100
	// DefaultRetainedMessages is how many recent messages stay held after
	// leaving their channel's window
	DefaultRetainedMessages = 1000
	// MaxPageSize is the largest page the history endpoint returns
	MaxPageSize = 100
)

// Fetcher supplies history pages, newest first, strictly older than before
// (before == 0 means from the newest message).
type Fetcher interface {
	FetchHistory(ctx context.Context, channelID uint64, limit int, before uint64) ([]payload.Payload, error)
}

// FetcherFunc adapts a function to Fetcher
type FetcherFunc func(ctx context.Context, channelID uint64, limit int, before uint64) ([]payload.Payload, error)

func (f FetcherFunc) FetchHistory(ctx context.Context, channelID uint64, limit int, before uint64) ([]payload.Payload, error) {
	return f(ctx, channelID, limit, before)
}

// Cache is safe for concurrent use
type Cache struct {
	mu  sync.Mutex
	reg *entity.Registry

	fetcher  Fetcher
	group    singleflight.Group
	now      func() time.Time
	gcIdle   time.Duration
	pageSize int
	metrics  *metrics.Metrics
	clientID uint64

	historyCapacity int
	perms           *permcache.Cache

	// Strong owners; the registry only holds weak references
	self     *entity.User
	guilds   map[uint64]*entity.Guild
	private  map[uint64]*entity.Channel
	commands map[uint64]*entity.ApplicationCommand
	// Entities nothing in the graph owns, held until deleted or released
	detached map[ownerKey]any
	// Most recent messages, oldest at the front
	retained    *ring.Deque[*entity.Message]
	retainLimit int
}

// Option configures a Cache
type Option func(*Cache)

// WithHistoryCapacity sets the bounded message window of every channel
func WithHistoryCapacity(n int) Option {
	return func(c *Cache) {
		c.historyCapacity = n
	}
}

// WithGCIdle sets how long a grown history buffer stays unbounded after the last page request
func WithGCIdle(d time.Duration) Option {
	return func(c *Cache) {
		c.gcIdle = d
	}
}

// WithPageSize sets the history page size, capped at MaxPageSize
func WithPageSize(n int) Option {
	return func(c *Cache) {
		c.pageSize = n
	}
}

func WithFetcher(f Fetcher) Option {
	return func(c *Cache) {
		c.fetcher = f
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// WithPermissionCache memoizes guild-level permission resolution
func WithPermissionCache(p *permcache.Cache) Option {
	return func(c *Cache) {
		c.perms = p
	}
}

// WithRetainedMessages sets how many recent messages the cache keeps alive
// after they leave their channel's window
func WithRetainedMessages(n int) Option {
	return func(c *Cache) {
		c.retainLimit = n
	}
}

// WithClientID sets the client id before READY arrives
func WithClientID(id uint64) Option {
	return func(c *Cache) {
		c.clientID = id
	}
}

// New creates an empty cache
func New(opts ...Option) *Cache {
	c := &Cache{
		now:             time.Now,
		gcIdle:          DefaultGCIdle,
		pageSize:        DefaultPageSize,
		historyCapacity: history.DefaultCapacity,
		guilds:          make(map[uint64]*entity.Guild),
		private:         make(map[uint64]*entity.Channel),
		commands:        make(map[uint64]*entity.ApplicationCommand),
		detached:        make(map[ownerKey]any),
		retainLimit:     DefaultRetainedMessages,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retainLimit <= 0 {
		c.retainLimit = DefaultRetainedMessages
	}
	c.retained = ring.New[*entity.Message](c.retainLimit)
	if c.pageSize <= 0 || c.pageSize > MaxPageSize {
		c.pageSize = DefaultPageSize
	}
	if c.gcIdle <= 0 {
		c.gcIdle = DefaultGCIdle
	}

	regOpts := []entity.Option{entity.WithHistoryCapacity(c.historyCapacity)}
	if c.perms != nil {
		regOpts = append(regOpts, entity.WithPermissionCache(c.perms))
	}
	c.reg = entity.NewRegistry(regOpts...)
	return c
}

// ClientID is the id of the connected user, zero before READY
func (c *Cache) ClientID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

// View runs fn with the registry under the cache lock. fn must not call
// back into the Cache.
func (c *Cache) View(fn func(reg *entity.Registry)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.reg)
}

func (c *Cache) Guild(id uint64) *entity.Guild {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.Guilds.Get(id)
}

func (c *Cache) Channel(id uint64) *entity.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.Channels.Get(id)
}

func (c *Cache) User(id uint64) *entity.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.Users.Get(id)
}

func (c *Cache) Message(id uint64) *entity.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.Messages.Get(id)
}

// Guilds lists the joined guilds
func (c *Cache) Guilds() []*entity.Guild {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*entity.Guild, 0, len(c.guilds))
	for _, g := range c.guilds {
		out = append(out, g)
	}
	return out
}

// Stats is a snapshot of the cache size
type Stats struct {
	Entities         map[string]int
	JoinedGuilds     int
	PrivateChannels  int
	Commands         int
	GrownBuffers     int
	Detached         int
	RetainedMessages int
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Entities:         c.reg.Counts(),
		JoinedGuilds:     len(c.guilds),
		PrivateChannels:  len(c.private),
		Commands:         len(c.commands),
		Detached:         len(c.detached),
		RetainedMessages: c.retained.Len(),
	}
	c.reg.Channels.Range(func(_ uint64, ch *entity.Channel) bool {
		if h := ch.History(); h != nil && h.Unbounded() {
			s.GrownBuffers++
		}
		return true
	})
	return s
}

// SweepResult reports one GC pass
type SweepResult struct {
	Demoted   int
	Dropped   int
	Collected map[string]int
}

// Sweep demotes grown history buffers whose deadline passed and drops registry
// entries of collected entities
func (c *Cache) Sweep(now time.Time) SweepResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := SweepResult{}
	c.reg.Channels.Range(func(_ uint64, ch *entity.Channel) bool {
		if h := ch.History(); h != nil && h.Expired(now) {
			res.Dropped += h.Demote()
			res.Demoted++
		}
		return true
	})
	c.settleChannels()
	res.Collected = c.reg.Sweep()

	collected := 0
	for _, n := range res.Collected {
		collected += n
	}
	c.metrics.HistoryDemoted(res.Demoted)
	c.metrics.RegistrySwept(collected)
	c.metrics.SetEntities(c.reg.Counts())
	return res
}
