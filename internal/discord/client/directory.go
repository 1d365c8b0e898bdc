// Package client adapts the disgo REST client to the directory contract.
package client

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"
	"unicode/utf8"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/guardian/internal/directory"
	"github.com/robalyx/guardian/internal/discord/rate"
	"go.uber.org/zap"
)

const (
	// MemberPageSize is the largest member page Discord returns.
	MemberPageSize = 1000
	// GuildPageSize is the largest guild page Discord returns.
	GuildPageSize = 200
	// MaxReasonLength is the audit log reason limit.
	MaxReasonLength = 512
)

var (
	// ErrBrokenPage is returned when a full member page has no usable cursor.
	ErrBrokenPage = errors.New("member page has no member with an id")
	// ErrUndecodablePage is returned when a whole member page could not be decoded.
	ErrUndecodablePage = errors.New("member page could not be decoded")
)

// RestClient is the subset of the disgo REST API the directory needs.
type RestClient interface {
	GetCurrentUserGuilds(
		before snowflake.ID, after snowflake.ID, limit int, withCounts bool, opts ...rest.RequestOpt,
	) ([]discord.OAuth2Guild, error)
	GetMembers(guildID snowflake.ID, limit int, after snowflake.ID, opts ...rest.RequestOpt) ([]discord.Member, error)
	AddBan(guildID snowflake.ID, userID snowflake.ID, deleteMessageDuration time.Duration, opts ...rest.RequestOpt) error
}

// Directory reads guilds and members through the Discord REST API.
// Member pages are spaced out by the limiter and retried on their own.
type Directory struct {
	rest    RestClient
	limiter *rate.Limiter
	retry   directory.RetryOptions
	logger  *zap.Logger
}

// NewDirectory creates a REST backed directory.
func NewDirectory(
	client RestClient, limiter *rate.Limiter, opts directory.RetryOptions, logger *zap.Logger,
) *Directory {
	return &Directory{
		rest:    client,
		limiter: limiter,
		retry:   opts,
		logger:  logger.Named("discord_directory"),
	}
}

// ListGuilds implements directory.Directory.
func (d *Directory) ListGuilds(ctx context.Context) ([]snowflake.ID, error) {
	var (
		guildIDs []snowflake.ID
		after    snowflake.ID
	)

	for {
		page, err := d.rest.GetCurrentUserGuilds(0, after, GuildPageSize, false, rest.WithCtx(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to list guilds: %w", Classify(err))
		}

		for _, guild := range page {
			guildIDs = append(guildIDs, guild.ID)
		}

		// Check if we got less than a full page (last page)
		if len(page) < GuildPageSize {
			break
		}

		after = page[len(page)-1].ID
	}

	d.logger.Debug("Listed guilds", zap.Int("count", len(guildIDs)))

	return guildIDs, nil
}

// ListMembers implements directory.Directory. Bot accounts are left out.
func (d *Directory) ListMembers(ctx context.Context, guildID snowflake.ID) iter.Seq2[snowflake.ID, error] {
	return func(yield func(snowflake.ID, error) bool) {
		var after snowflake.ID

		for {
			if err := d.limiter.Wait(ctx); err != nil {
				yield(0, err)
				return
			}

			page, err := directory.Do(ctx, d.retry, func(ctx context.Context) ([]discord.Member, error) {
				members, err := d.rest.GetMembers(guildID, MemberPageSize, after, rest.WithCtx(ctx))
				return members, classifyPage(err)
			})
			if err != nil {
				yield(0, fmt.Errorf("failed to get members of guild %s after %s: %w", guildID, after, err))
				return
			}

			var last snowflake.ID

			for _, member := range page {
				if member.User.ID == 0 {
					if !yield(0, fmt.Errorf("member without id in guild %s: %w", guildID, directory.ErrMalformed)) {
						return
					}

					continue
				}

				last = member.User.ID

				if member.User.Bot {
					continue
				}

				if !yield(member.User.ID, nil) {
					return
				}
			}

			// Check if we got less than 1000 members (last page)
			if len(page) < MemberPageSize {
				return
			}

			if last == 0 {
				yield(0, fmt.Errorf("guild %s: %w", guildID, ErrBrokenPage))
				return
			}

			after = last
		}
	}
}

// classifyPage classifies a member page failure. A page that fails to decode
// loses every record on it, so it is retried and then fails the guild instead
// of being reported as a single malformed record.
func classifyPage(err error) error {
	classified := Classify(err)
	if !errors.Is(classified, directory.ErrMalformed) {
		return classified
	}

	return fmt.Errorf("%w: %w: %v", directory.ErrTransient, ErrUndecodablePage, err)
}

// Ban implements directory.Directory.
func (d *Directory) Ban(ctx context.Context, guildID, userID snowflake.ID, reason string) error {
	opts := []rest.RequestOpt{rest.WithCtx(ctx)}
	if reason = truncateReason(reason); reason != "" {
		opts = append(opts, rest.WithReason(reason))
	}

	if err := d.rest.AddBan(guildID, userID, 0, opts...); err != nil {
		return fmt.Errorf("failed to ban user %s in guild %s: %w", userID, guildID, Classify(err))
	}

	return nil
}

// truncateReason cuts reason to the audit log limit without splitting a rune.
func truncateReason(reason string) string {
	if utf8.RuneCountInString(reason) <= MaxReasonLength {
		return reason
	}

	runes := []rune(reason)

	return string(runes[:MaxReasonLength])
}

var _ directory.Directory = (*Directory)(nil)
