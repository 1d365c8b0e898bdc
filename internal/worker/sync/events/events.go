// Package events binds gateway member joins to the index and the enforcement engine.
package events

import (
	"context"
	"sync"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/guardian/internal/enforcement"
	"github.com/robalyx/guardian/internal/membership"
	"go.uber.org/zap"
)

// Handler reacts to member joins in real time.
type Handler struct {
	index  *membership.Index
	engine *enforcement.Engine
	logger *zap.Logger

	ctx    context.Context //nolint:containedctx // lifetime of the gateway binding
	selfID snowflake.ID

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a new join handler.
func New(index *membership.Index, engine *enforcement.Engine, logger *zap.Logger) *Handler {
	return &Handler{
		index:  index,
		engine: engine,
		logger: logger.Named("join_watcher"),
		ctx:    context.Background(),
	}
}

// Setup registers the join listener on client. Joins are handled on their own
// goroutine under ctx so the gateway is never blocked by a ban call.
func (h *Handler) Setup(ctx context.Context, client bot.Client) {
	h.ctx = ctx
	h.selfID = client.ID()

	client.AddEventListeners(bot.NewListenerFunc(h.handleGuildMemberJoin))

	h.logger.Info("Event handlers registered for member joins")
}

// Close stops accepting joins and blocks until every in-flight join has been handled.
// Joins delivered after Close are dropped.
func (h *Handler) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	h.wg.Wait()
}

// HandleMemberJoin records the membership and enforces the blacklist for the
// joined guild only. It never retries.
func (h *Handler) HandleMemberJoin(ctx context.Context, guildID, userID snowflake.ID) []*enforcement.Event {
	h.index.Upsert(userID, guildID)

	results := h.engine.Enforce(ctx, userID, guildID)
	for _, event := range results {
		h.logger.Debug("Handled member join",
			zap.Uint64("guildID", uint64(guildID)),
			zap.Uint64("userID", uint64(userID)),
			zap.String("action", event.Action.String()))
	}

	return results
}

func (h *Handler) handleGuildMemberJoin(e *events.GuildMemberJoin) {
	h.dispatch(e.GuildID, e.Member.User.ID, e.Member.User.Bot)
}

// dispatch handles a join on its own goroutine. It reports whether the join was accepted.
func (h *Handler) dispatch(guildID, userID snowflake.ID, bot bool) bool {
	// Skip if this is the bot itself or a bot account
	if userID == h.selfID || bot {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	h.wg.Add(1)

	go func() {
		defer h.wg.Done()

		h.HandleMemberJoin(h.ctx, guildID, userID)
	}()

	return true
}
