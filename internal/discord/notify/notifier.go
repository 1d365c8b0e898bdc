// Package notify posts enforcement events to Discord log channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/guardian/internal/discord/client"
	"github.com/robalyx/guardian/internal/enforcement"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// ColorInfo is used for regular enforcement logs.
	ColorInfo = 0x4EFFFC
	// ColorError is used when a ban attempt failed.
	ColorError = 0xE53751
)

// MessageClient is the subset of the disgo REST API the notifier needs.
type MessageClient interface {
	CreateMessage(channelID snowflake.ID, messageCreate discord.MessageCreate, opts ...rest.RequestOpt) (*discord.Message, error)
	GetGuild(guildID snowflake.ID, withCounts bool, opts ...rest.RequestOpt) (*discord.RestGuild, error)
}

// Notifier posts one embed per scope of an enforcement event.
// Guild names are fetched once and cached for the process lifetime.
type Notifier struct {
	rest          MessageClient
	globalChannel snowflake.ID
	logger        *zap.Logger

	lookups singleflight.Group
	mu      sync.RWMutex
	names   map[snowflake.ID]string
}

// New creates a notifier posting global logs to globalChannel.
// A zero globalChannel disables the global log.
func New(restClient MessageClient, globalChannel snowflake.ID, logger *zap.Logger) *Notifier {
	return &Notifier{
		rest:          restClient,
		globalChannel: globalChannel,
		logger:        logger.Named("discord_notifier"),
		names:         make(map[snowflake.ID]string),
	}
}

// Publish implements enforcement.Notifier.
func (n *Notifier) Publish(ctx context.Context, event *enforcement.Event) error {
	scopes := event.Scopes()
	if len(scopes) == 0 {
		return nil
	}

	guildName := n.guildName(ctx, event.GuildID)

	var errs []error

	for _, scope := range scopes {
		channelID := n.globalChannel
		if scope == enforcement.ScopeGuild {
			channelID = snowflake.ID(event.Policy.LogChannel)
		}

		if channelID == 0 {
			continue
		}

		message := discord.NewMessageCreateBuilder().
			SetEmbeds(BuildEmbed(event, scope, guildName)).
			Build()

		if _, err := n.rest.CreateMessage(channelID, message, rest.WithCtx(ctx)); err != nil {
			errs = append(errs, fmt.Errorf("failed to post %s log to channel %s: %w", scope, channelID, client.Classify(err)))
		}
	}

	return errors.Join(errs...)
}

// guildName resolves a guild's display name, falling back to its ID.
func (n *Notifier) guildName(ctx context.Context, guildID snowflake.ID) string {
	n.mu.RLock()
	name, ok := n.names[guildID]
	n.mu.RUnlock()

	if ok {
		return name
	}

	v, err, _ := n.lookups.Do(guildID.String(), func() (any, error) {
		guild, err := n.rest.GetGuild(guildID, false, rest.WithCtx(ctx))
		if err != nil {
			return nil, err
		}

		n.mu.Lock()
		n.names[guildID] = guild.Name
		n.mu.Unlock()

		return guild.Name, nil
	})
	if err != nil {
		n.logger.Debug("Failed to fetch guild name",
			zap.Uint64("guildID", uint64(guildID)),
			zap.Error(err))

		return guildID.String()
	}

	return v.(string)
}

// BuildEmbed renders the embed of an event for one scope.
func BuildEmbed(event *enforcement.Event, scope enforcement.Scope, guildName string) discord.Embed {
	name := event.UserID.String()
	if event.Record != nil && event.Record.Name != "" {
		name = event.Record.Name
	}

	var title string

	switch {
	case scope == enforcement.ScopeGuild && event.Action == enforcement.ActionBanned:
		title = "Autobanned " + name
	case scope == enforcement.ScopeGuild:
		title = fmt.Sprintf("User %s is globally banned", name)
	case event.Action == enforcement.ActionBanned:
		title = fmt.Sprintf("Banned %s in guild %s", name, guildName)
	default:
		title = fmt.Sprintf("%s joined guild %s", name, guildName)
	}

	builder := discord.NewEmbedBuilder().
		SetTitle(title).
		SetColor(ColorInfo).
		AddField("User ID", event.UserID.String(), true).
		AddField("Guild ID", event.GuildID.String(), true).
		SetFooterText(event.At.UTC().Format(time.RFC3339)).
		SetTimestamp(event.At)

	if event.Record != nil {
		builder.SetDescription(fmt.Sprintf("Blacklisted at %s. Reason:\n%s",
			event.Record.BannedAt.UTC().Format(time.RFC3339), event.Record.ReasonText()))
	}

	if event.Err != nil {
		builder.SetColor(ColorError).
			AddField("Ban failed", event.Err.Error(), false)
	}

	if scope == enforcement.ScopeGlobal {
		builder.AddField("Managed", strconv.FormatBool(event.Policy != nil), true)
	}

	return builder.Build()
}
