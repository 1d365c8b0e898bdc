package sync_test

import (
	"context"
	"errors"
	"fmt"
	"iter"
	stdsync "sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/guardian/internal/database/types"
	"github.com/robalyx/guardian/internal/directory"
	"github.com/robalyx/guardian/internal/enforcement"
	"github.com/robalyx/guardian/internal/membership"
	"github.com/robalyx/guardian/internal/worker/core"
	"github.com/robalyx/guardian/internal/worker/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testRetry = directory.RetryOptions{
	Timeout:         time.Second,
	InitialInterval: time.Millisecond,
	MaxInterval:     time.Millisecond,
	MaxRetries:      2,
}

type fixture struct {
	dir       *directory.Memory
	index     *membership.Index
	blacklist *enforcement.MemoryBlacklist
	policies  *enforcement.MemoryPolicies
	recorder  *enforcement.Recorder
	reporter  *fakeReporter
	presence  *fakePresence
}

func newFixture() *fixture {
	return &fixture{
		dir:       directory.NewMemory(),
		index:     membership.NewIndex(),
		blacklist: enforcement.NewMemoryBlacklist(),
		policies:  enforcement.NewMemoryPolicies(),
		recorder:  enforcement.NewRecorder(),
		reporter:  &fakeReporter{},
		presence:  &fakePresence{},
	}
}

func (f *fixture) worker(dir directory.Directory, interval time.Duration) *sync.Worker {
	engine := enforcement.NewEngine(f.blacklist, f.policies, f.dir, f.recorder, testRetry, zap.NewNop())

	return sync.New(sync.Deps{
		Directory: dir,
		Index:     f.index,
		Blacklist: f.blacklist,
		Engine:    engine,
		Reporter:  f.reporter,
		Presence:  f.presence,
	}, sync.Options{
		Interval:         interval,
		GuildConcurrency: 2,
		SweepConcurrency: 2,
		Retry:            testRetry,
	}, zap.NewNop())
}

type fakeReporter struct {
	mu     stdsync.Mutex
	phases []string
	passes []core.PassSummary
}

func (r *fakeReporter) SetPhase(phase string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.phases = append(r.phases, phase)
}

func (r *fakeReporter) RecordPass(summary core.PassSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.passes = append(r.passes, summary)
}

func (r *fakeReporter) passCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.passes)
}

type fakePresence struct {
	mu     stdsync.Mutex
	states []string
}

func (p *fakePresence) Initializing(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.states = append(p.states, "idle")

	return nil
}

func (p *fakePresence) Ready(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.states = append(p.states, "online")

	return nil
}

// cancellingDirectory cancels the pass context when a given guild is enumerated.
type cancellingDirectory struct {
	*directory.Memory
	at     snowflake.ID
	cancel context.CancelFunc
}

func (d *cancellingDirectory) ListMembers(ctx context.Context, guildID snowflake.ID) iter.Seq2[snowflake.ID, error] {
	if guildID == d.at {
		d.cancel()
	}

	return d.Memory.ListMembers(ctx, guildID)
}

func TestRunPassMatchesDirectory(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.dir.AddMembers(1, 10, 11)
	f.dir.AddMembers(2, 11, 12)
	f.dir.AddMembers(3)

	f.index.Upsert(99, 1)

	result, err := f.worker(f.dir, time.Hour).RunPass(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 3, result.GuildsOK)
	assert.Empty(t, result.FailedGuilds)
	assert.Equal(t, 4, result.Members)
	assert.Equal(t, 3, result.Users)

	assert.Equal(t, []snowflake.ID{1}, f.index.GuildsOf(10))
	assert.Equal(t, []snowflake.ID{1, 2}, f.index.GuildsOf(11))
	assert.Equal(t, []snowflake.ID{2}, f.index.GuildsOf(12))
	assert.Empty(t, f.index.GuildsOf(99))
}

func TestRunPassKeepsFailedGuilds(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.dir.AddMembers(1, 42)
	f.dir.AddMembers(2, 77)
	f.dir.FailMembers(2, fmt.Errorf("rate limited: %w", directory.ErrTransient))

	f.index.Upsert(42, 2)
	f.index.Upsert(50, 2)
	f.index.Upsert(60, 1)

	result, err := f.worker(f.dir, time.Hour).RunPass(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 1, result.GuildsOK)
	assert.Equal(t, []snowflake.ID{2}, result.FailedGuilds)

	assert.Equal(t, []snowflake.ID{1, 2}, f.index.GuildsOf(42))
	assert.Equal(t, []snowflake.ID{2}, f.index.GuildsOf(50))
	assert.Empty(t, f.index.GuildsOf(60))
	assert.Empty(t, f.index.GuildsOf(77))
}

func TestRunPassSkipsMalformedRecords(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.dir.AddMembers(1, 10, 0, 11)

	result, err := f.worker(f.dir, time.Hour).RunPass(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 1, result.GuildsOK)
	assert.Equal(t, 2, result.Members)
	assert.Equal(t, []snowflake.ID{1}, f.index.GuildsOf(10))
	assert.Equal(t, []snowflake.ID{1}, f.index.GuildsOf(11))
}

func TestRunPassLeavesIndexOnListFailure(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.dir.AddMembers(1, 10)
	f.dir.FailList(fmt.Errorf("forbidden: %w", directory.ErrPermission))
	f.index.Upsert(42, 7)

	_, err := f.worker(f.dir, time.Hour).RunPass(t.Context())

	require.ErrorIs(t, err, directory.ErrPermission)
	assert.Equal(t, []snowflake.ID{7}, f.index.GuildsOf(42))
	assert.Empty(t, f.index.GuildsOf(10))
}

func TestRunPassInstallsNothingWhenCancelled(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.dir.AddMembers(1, 10)
	f.dir.AddMembers(2, 20)
	f.index.Upsert(42, 7)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	dir := &cancellingDirectory{Memory: f.dir, at: 2, cancel: cancel}

	_, err := f.worker(dir, time.Hour).RunPass(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []snowflake.ID{7}, f.index.GuildsOf(42))
	assert.Equal(t, 1, f.index.Len())
}

func TestSweepEnforcesPresentUsers(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.blacklist.Add(&types.BlacklistRecord{ID: 42, Name: "spammer", Reason: []byte("spam")})
	f.blacklist.Add(&types.BlacklistRecord{ID: 43, Name: "absent"})
	f.policies = enforcement.NewMemoryPolicies(
		&types.GuildPolicy{ID: 7, Autoban: true},
		&types.GuildPolicy{ID: 8, Autoban: false},
	)

	f.dir.AddMembers(7, 42, 1)
	f.dir.AddMembers(8, 42)
	f.dir.AddMembers(9, 42)

	w := f.worker(f.dir, time.Hour)

	_, err := w.RunPass(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 3, w.Sweep(t.Context()))

	actions := make(map[snowflake.ID]enforcement.Action)
	for _, event := range f.recorder.Events() {
		assert.Equal(t, snowflake.ID(42), event.UserID)
		actions[event.GuildID] = event.Action
	}

	assert.Equal(t, map[snowflake.ID]enforcement.Action{
		7: enforcement.ActionBanned,
		8: enforcement.ActionLoggedOnly,
		9: enforcement.ActionLoggedOnly,
	}, actions)
	assert.Equal(t, []directory.BanCall{{GuildID: 7, UserID: 42, Reason: "spam"}}, f.dir.Bans())
}

func TestSweepToleratesStoreFailure(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.blacklist.Fail(errors.New("database down"))
	f.index.Upsert(42, 7)

	assert.Zero(t, f.worker(f.dir, time.Hour).Sweep(t.Context()))
	assert.Empty(t, f.recorder.Events())
}

func TestStartRunsCyclesUntilCancelled(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.blacklist.Add(&types.BlacklistRecord{ID: 42, Reason: []byte("spam")})
	f.policies = enforcement.NewMemoryPolicies(&types.GuildPolicy{ID: 7, Autoban: true})
	f.dir.AddMembers(7, 42)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	w := f.worker(f.dir, 10*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	assert.Eventually(t, func() bool { return f.reporter.passCount() >= 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	assert.True(t, f.dir.Banned(7, 42))
	assert.Equal(t, []snowflake.ID{7}, f.index.GuildsOf(42))

	f.presence.mu.Lock()
	assert.Equal(t, []string{"idle", "online"}, f.presence.states)
	f.presence.mu.Unlock()

	f.reporter.mu.Lock()
	assert.Equal(t, core.PhaseInitializing, f.reporter.phases[0])
	assert.Equal(t, 1, f.reporter.passes[0].GuildsOK)
	assert.Equal(t, 1, f.reporter.passes[0].Enforced)
	f.reporter.mu.Unlock()
}

func (p *fakePresence) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.states...)
}

func TestStartStaysInitializingUntilFirstPassCompletes(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.dir.AddMembers(7, 42)
	f.dir.FailList(fmt.Errorf("forbidden: %w", directory.ErrPermission))

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	w := f.worker(f.dir, time.Hour)

	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	assert.Never(t, func() bool { return len(f.presence.snapshot()) > 1 }, 100*time.Millisecond, 5*time.Millisecond)
	assert.Zero(t, f.reporter.passCount())
	assert.Empty(t, f.index.GuildsOf(42))

	f.dir.FailList(nil)

	// The hour-long interval proves the retry runs on the short startup backoff.
	assert.Eventually(t, func() bool { return f.reporter.passCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return len(f.presence.snapshot()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"idle", "online"}, f.presence.snapshot())
	assert.Equal(t, []snowflake.ID{7}, f.index.GuildsOf(42))

	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestStartStopsWhileInitializing(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.dir.FailList(fmt.Errorf("forbidden: %w", directory.ErrPermission))

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	err := f.worker(f.dir, time.Hour).Start(ctx)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"idle"}, f.presence.snapshot())
	assert.Zero(t, f.reporter.passCount())
}
