// Package directory defines the remote guild directory the reconciler reads
// membership from and the engine bans through.
package directory

import (
	"context"
	"errors"
	"iter"

	"github.com/disgoorg/snowflake/v2"
)

var (
	// ErrTransient marks failures worth retrying, such as rate limits or timeouts.
	ErrTransient = errors.New("transient directory failure")
	// ErrPermission marks calls the bot is not allowed to make.
	ErrPermission = errors.New("missing permission")
	// ErrNotFound marks a guild or user that no longer exists remotely.
	ErrNotFound = errors.New("not found")
	// ErrMalformed marks a remote record that could not be interpreted.
	ErrMalformed = errors.New("malformed record")
)

// Directory is the remote view of guilds and their members.
type Directory interface {
	// ListGuilds returns every guild the bot is currently in.
	ListGuilds(ctx context.Context) ([]snowflake.ID, error)
	// ListMembers yields the user IDs of a guild's members. An ErrMalformed
	// error concerns a single record and enumeration continues after it;
	// any other error ends the sequence.
	ListMembers(ctx context.Context, guildID snowflake.ID) iter.Seq2[snowflake.ID, error]
	// Ban bans a user from a guild. Banning an already banned user succeeds.
	Ban(ctx context.Context, guildID, userID snowflake.ID, reason string) error
}
