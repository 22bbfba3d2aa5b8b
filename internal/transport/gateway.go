package transport

import (
	"errors"

	"discord-entity-cache/internal/ordered"
	"discord-entity-cache/internal/payload"
	"discord-entity-cache/internal/state"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Gateway feeds dispatch events into the cache
type Gateway struct {
	cache  *state.Cache
	logger *zap.Logger
}

func NewGateway(cache *state.Cache, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{cache: cache, logger: logger}
}

// Attach registers the gateway on a session and returns the remover
func (g *Gateway) Attach(s *discordgo.Session) func() {
	return s.AddHandler(g.Handle)
}

// Handle is the raw *discordgo.Event handler. Events the cache does not
// track are skipped before their payload is decoded.
func (g *Gateway) Handle(_ *discordgo.Session, e *discordgo.Event) {
	if len(e.RawData) == 0 || !state.Handles(e.Type) {
		return
	}

	p, err := payload.Decode(e.RawData)
	if err != nil {
		g.logger.Warn("Dropping undecodable event",
			zap.String("event", e.Type),
			zap.Int64("seq", e.Sequence),
			zap.Error(err))
		return
	}
	_, _ = g.Apply(e.Type, p)
}

// Apply synchronizes one event and logs the outcome
func (g *Gateway) Apply(kind string, p payload.Payload) (state.Result, error) {
	res, err := g.cache.Synchronize(kind, p)
	switch {
	case err == nil:
		if ce := g.logger.Check(zap.DebugLevel, "Event synchronized"); ce != nil {
			ce.Write(
				zap.String("event", kind),
				zap.Bool("created", res.Created),
				zap.Int("changes", len(res.Changes)),
				zap.Int("removed", len(res.Removed)))
		}
	case errors.Is(err, ordered.ErrNotMember), errors.Is(err, ordered.ErrDuplicate):
		// Ordered lists no longer match upstream; a resync is needed
		g.logger.Error("Cache desynchronized",
			zap.String("event", kind),
			zap.Uint64("id", p.ID("id")),
			zap.Error(err))
	default:
		g.logger.Warn("Event not applied",
			zap.String("event", kind),
			zap.Error(err))
	}
	return res, err
}
