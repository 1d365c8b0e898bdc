package enforcement

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/guardian/internal/database/types"
)

// MemoryBlacklist is an in-memory BlacklistStore.
type MemoryBlacklist struct {
	mu      sync.RWMutex
	records map[snowflake.ID]*types.BlacklistRecord
	err     error
}

// NewMemoryBlacklist creates a store holding the given records.
func NewMemoryBlacklist(records ...*types.BlacklistRecord) *MemoryBlacklist {
	m := &MemoryBlacklist{records: make(map[snowflake.ID]*types.BlacklistRecord)}
	for _, record := range records {
		m.records[snowflake.ID(record.ID)] = record
	}

	return m
}

// Add inserts or replaces a record.
func (m *MemoryBlacklist) Add(record *types.BlacklistRecord) {
	m.mu.Lock()
	m.records[snowflake.ID(record.ID)] = record
	m.mu.Unlock()
}

// Fail makes every call return err. A nil err clears the failure.
func (m *MemoryBlacklist) Fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Lookup implements BlacklistStore.
func (m *MemoryBlacklist) Lookup(_ context.Context, userID snowflake.ID) (*types.BlacklistRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.err != nil {
		return nil, m.err
	}

	return m.records[userID], nil
}

// All implements BlacklistStore. Records are ordered by user ID.
func (m *MemoryBlacklist) All(_ context.Context) ([]*types.BlacklistRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.err != nil {
		return nil, m.err
	}

	records := make([]*types.BlacklistRecord, 0, len(m.records))
	for _, record := range m.records {
		records = append(records, record)
	}

	slices.SortFunc(records, func(a, b *types.BlacklistRecord) int {
		return cmp.Compare(a.ID, b.ID)
	})

	return records, nil
}

// MemoryPolicies is an in-memory PolicyStore.
type MemoryPolicies struct {
	mu       sync.RWMutex
	policies map[snowflake.ID]*types.GuildPolicy
	failing  map[snowflake.ID]error
}

// NewMemoryPolicies creates a store holding the given policies.
func NewMemoryPolicies(policies ...*types.GuildPolicy) *MemoryPolicies {
	m := &MemoryPolicies{
		policies: make(map[snowflake.ID]*types.GuildPolicy),
		failing:  make(map[snowflake.ID]error),
	}
	for _, policy := range policies {
		m.policies[snowflake.ID(policy.ID)] = policy
	}

	return m
}

// Fail makes lookups of guildID return err.
func (m *MemoryPolicies) Fail(guildID snowflake.ID, err error) {
	m.mu.Lock()
	m.failing[guildID] = err
	m.mu.Unlock()
}

// Lookup implements PolicyStore.
func (m *MemoryPolicies) Lookup(_ context.Context, guildID snowflake.ID) (*types.GuildPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.failing[guildID]; err != nil {
		return nil, err
	}

	return m.policies[guildID], nil
}

// Recorder is a Notifier that keeps every published event.
type Recorder struct {
	mu     sync.Mutex
	events []*Event
	err    error
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Fail makes Publish return err after recording the event.
func (r *Recorder) Fail(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Publish implements Notifier.
func (r *Recorder) Publish(_ context.Context, event *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)

	return r.err
}

// Events returns the published events in order.
func (r *Recorder) Events() []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.events)
}
