package enforcement

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/guardian/internal/database/types"
)

//go:generate go tool enumer -type=Action -trimprefix=Action

// Action is the outcome of evaluating one user against one guild.
type Action int

const (
	// ActionObserved means the user is not blacklisted.
	ActionObserved Action = iota
	// ActionLoggedOnly means the user is blacklisted but the guild does not autoban.
	ActionLoggedOnly
	// ActionBanned means a ban was issued or was already in effect.
	ActionBanned
)

// Scope is a log destination of an event.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeGuild  Scope = "guild"
)

// Event describes the enforcement outcome for a single (user, guild) pair.
type Event struct {
	UserID  snowflake.ID
	GuildID snowflake.ID
	Action  Action
	Policy  *types.GuildPolicy     // nil for unmanaged guilds
	Record  *types.BlacklistRecord // nil when Action is ActionObserved
	Err     error                  // soft failure of the ban call, if any
	At      time.Time
}

// Scopes returns where the event must be logged. Every event goes to the
// global log; guilds with a policy also receive it in their own channel.
func (e *Event) Scopes() []Scope {
	if e.Action == ActionObserved {
		return nil
	}

	if e.Policy == nil {
		return []Scope{ScopeGlobal}
	}

	return []Scope{ScopeGlobal, ScopeGuild}
}

// Failed reports whether the ban attempt behind this event failed.
func (e *Event) Failed() bool {
	return e.Err != nil
}
