package types

import (
	"time"

	"github.com/uptrace/bun"
)

// GuildPolicy represents the enforcement settings of a guild that opted in.
// A guild without a policy row is unmanaged.
type GuildPolicy struct {
	bun.BaseModel `bun:"table:guilds"`

	ID         uint64    `bun:",pk"`      // Discord guild ID
	Autoban    bool      `bun:",notnull"` // Ban blacklisted members automatically
	LogChannel uint64    `bun:",notnull"` // Channel receiving this guild's enforcement logs
	UpdatedAt  time.Time `bun:",notnull"` // When the policy was last changed
}
