// Package membership keeps the in-memory view of which users are in which guilds.
package membership

import (
	"maps"
	"slices"
	"sync"

	"github.com/disgoorg/snowflake/v2"
)

// Snapshot maps a user to the set of guilds the user was seen in.
// A Snapshot handed to ReplaceAll belongs to the Index afterwards.
type Snapshot map[snowflake.ID]map[snowflake.ID]struct{}

// Add records that userID is a member of guildID.
func (s Snapshot) Add(userID, guildID snowflake.ID) {
	guilds, ok := s[userID]
	if !ok {
		guilds = make(map[snowflake.ID]struct{})
		s[userID] = guilds
	}

	guilds[guildID] = struct{}{}
}

// Merge adds every pair of other into s.
func (s Snapshot) Merge(other Snapshot) {
	for userID, guilds := range other {
		for guildID := range guilds {
			s.Add(userID, guildID)
		}
	}
}

// Pairs returns the number of (user, guild) pairs held.
func (s Snapshot) Pairs() int {
	n := 0
	for _, guilds := range s {
		n += len(guilds)
	}

	return n
}

// Presence is the search result for a single user.
type Presence struct {
	UserID snowflake.ID
	Guilds []snowflake.ID
}

// Index is a concurrency-safe user to guild-set mapping.
// Readers never observe a partially replaced index.
type Index struct {
	mu    sync.RWMutex
	users Snapshot
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{users: make(Snapshot)}
}

// Upsert records that userID is a member of guildID. It is idempotent.
func (i *Index) Upsert(userID, guildID snowflake.ID) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.users.Add(userID, guildID)
}

// ReplaceAll atomically installs snapshot as the new index content.
func (i *Index) ReplaceAll(snapshot Snapshot) {
	if snapshot == nil {
		snapshot = make(Snapshot)
	}

	i.mu.Lock()
	i.users = snapshot
	i.mu.Unlock()
}

// GuildsOf returns the sorted guild IDs known for userID.
// The returned slice is a copy; it is empty for unknown users.
func (i *Index) GuildsOf(userID snowflake.ID) []snowflake.ID {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return sortedGuilds(i.users[userID])
}

// Contributions returns the pairs currently held for the given guilds.
func (i *Index) Contributions(guildIDs ...snowflake.ID) Snapshot {
	out := make(Snapshot)
	if len(guildIDs) == 0 {
		return out
	}

	wanted := make(map[snowflake.ID]struct{}, len(guildIDs))
	for _, id := range guildIDs {
		wanted[id] = struct{}{}
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	for userID, guilds := range i.users {
		for guildID := range guilds {
			if _, ok := wanted[guildID]; ok {
				out.Add(userID, guildID)
			}
		}
	}

	return out
}

// Search returns the guilds of every requested user that is present in the index.
// Results follow the order of userIDs; unknown users are left out.
func (i *Index) Search(userIDs ...snowflake.ID) []Presence {
	i.mu.RLock()
	defer i.mu.RUnlock()

	results := make([]Presence, 0, len(userIDs))
	for _, userID := range userIDs {
		guilds, ok := i.users[userID]
		if !ok || len(guilds) == 0 {
			continue
		}

		results = append(results, Presence{UserID: userID, Guilds: sortedGuilds(guilds)})
	}

	return results
}

// Len returns the number of users in the index.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return len(i.users)
}

func sortedGuilds(guilds map[snowflake.ID]struct{}) []snowflake.ID {
	if len(guilds) == 0 {
		return []snowflake.ID{}
	}

	return slices.Sorted(maps.Keys(guilds))
}
