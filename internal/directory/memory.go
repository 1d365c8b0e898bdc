package directory

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/disgoorg/snowflake/v2"
)

// BanCall records a single call made to Memory.Ban.
type BanCall struct {
	GuildID snowflake.ID
	UserID  snowflake.ID
	Reason  string
}

type banKey struct {
	guildID snowflake.ID
	userID  snowflake.ID
}

// Memory is an in-memory Directory used by tests and dry runs.
// A member ID of zero is reported as a malformed record.
type Memory struct {
	mu         sync.Mutex
	guilds     []snowflake.ID
	members    map[snowflake.ID][]snowflake.ID
	memberErrs map[snowflake.ID]error
	banErrs    map[banKey]error
	listErr    error
	bans       []BanCall
	banned     map[banKey]struct{}
}

// NewMemory creates an empty in-memory directory.
func NewMemory() *Memory {
	return &Memory{
		members:    make(map[snowflake.ID][]snowflake.ID),
		memberErrs: make(map[snowflake.ID]error),
		banErrs:    make(map[banKey]error),
		banned:     make(map[banKey]struct{}),
	}
}

// AddMembers adds users to a guild, registering the guild if needed.
func (m *Memory) AddMembers(guildID snowflake.ID, userIDs ...snowflake.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.members[guildID]; !ok {
		m.guilds = append(m.guilds, guildID)
		m.members[guildID] = nil
	}

	m.members[guildID] = append(m.members[guildID], userIDs...)
}

// SetMembers replaces the member list of a guild.
func (m *Memory) SetMembers(guildID snowflake.ID, userIDs ...snowflake.ID) {
	m.mu.Lock()
	if _, ok := m.members[guildID]; !ok {
		m.guilds = append(m.guilds, guildID)
	}

	m.members[guildID] = slices.Clone(userIDs)
	m.mu.Unlock()
}

// RemoveGuild drops a guild as if the bot had left it.
func (m *Memory) RemoveGuild(guildID snowflake.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.guilds = slices.DeleteFunc(m.guilds, func(id snowflake.ID) bool { return id == guildID })
	delete(m.members, guildID)
	delete(m.memberErrs, guildID)
}

// FailMembers makes enumeration of a guild end with err after its members
// were yielded. A nil err clears the failure.
func (m *Memory) FailMembers(guildID snowflake.ID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		delete(m.memberErrs, guildID)
		return
	}

	m.memberErrs[guildID] = err
}

// FailList makes ListGuilds return err. A nil err clears the failure.
func (m *Memory) FailList(err error) {
	m.mu.Lock()
	m.listErr = err
	m.mu.Unlock()
}

// FailBan makes Ban return err for the given pair.
func (m *Memory) FailBan(guildID, userID snowflake.ID, err error) {
	m.mu.Lock()
	m.banErrs[banKey{guildID, userID}] = err
	m.mu.Unlock()
}

// Bans returns every Ban call received, in order.
func (m *Memory) Bans() []BanCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.bans)
}

// Banned reports whether a ban for the pair succeeded.
func (m *Memory) Banned(guildID, userID snowflake.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.banned[banKey{guildID, userID}]

	return ok
}

// ListGuilds implements Directory.
func (m *Memory) ListGuilds(ctx context.Context) ([]snowflake.ID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listErr != nil {
		return nil, m.listErr
	}

	return slices.Clone(m.guilds), nil
}

// ListMembers implements Directory.
func (m *Memory) ListMembers(ctx context.Context, guildID snowflake.ID) iter.Seq2[snowflake.ID, error] {
	m.mu.Lock()
	members, known := m.members[guildID]
	members = slices.Clone(members)
	failure := m.memberErrs[guildID]
	m.mu.Unlock()

	return func(yield func(snowflake.ID, error) bool) {
		if !known {
			yield(0, fmt.Errorf("guild %s: %w", guildID, ErrNotFound))
			return
		}

		for _, userID := range members {
			if err := ctx.Err(); err != nil {
				yield(0, err)
				return
			}

			if userID == 0 {
				if !yield(0, fmt.Errorf("member without id in guild %s: %w", guildID, ErrMalformed)) {
					return
				}

				continue
			}

			if !yield(userID, nil) {
				return
			}
		}

		if failure != nil {
			yield(0, failure)
		}
	}
}

// Ban implements Directory.
func (m *Memory) Ban(ctx context.Context, guildID, userID snowflake.ID, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := banKey{guildID, userID}
	m.bans = append(m.bans, BanCall{GuildID: guildID, UserID: userID, Reason: reason})

	if err := m.banErrs[key]; err != nil {
		return err
	}

	m.banned[key] = struct{}{}

	return nil
}

var _ Directory = (*Memory)(nil)
