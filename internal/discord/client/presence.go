package client

import (
	"context"
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/gateway"
)

// PresenceSetter is implemented by the disgo bot client.
type PresenceSetter interface {
	SetPresence(ctx context.Context, opts ...gateway.PresenceOpt) error
}

// Presence shows the reconciliation state in the bot's gateway status.
type Presence struct {
	client PresenceSetter
}

// NewPresence creates a presence reporter for client.
func NewPresence(client PresenceSetter) *Presence {
	return &Presence{client: client}
}

// Initializing marks the bot idle while the first index is being built.
func (p *Presence) Initializing(ctx context.Context) error {
	return p.set(ctx, discord.OnlineStatusIdle)
}

// Ready marks the bot online.
func (p *Presence) Ready(ctx context.Context) error {
	return p.set(ctx, discord.OnlineStatusOnline)
}

func (p *Presence) set(ctx context.Context, status discord.OnlineStatus) error {
	if err := p.client.SetPresence(ctx, gateway.WithOnlineStatus(status)); err != nil {
		return fmt.Errorf("failed to set presence %s: %w", status, err)
	}

	return nil
}
