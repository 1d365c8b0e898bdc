package notify_test

import (
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/guardian/internal/database/types"
	"github.com/robalyx/guardian/internal/directory"
	"github.com/robalyx/guardian/internal/discord/notify"
	"github.com/robalyx/guardian/internal/enforcement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type postedMessage struct {
	channelID snowflake.ID
	message   discord.MessageCreate
}

type fakeMessages struct {
	mu          sync.Mutex
	posted      []postedMessage
	guildCalls  int
	failChannel snowflake.ID
}

func (f *fakeMessages) CreateMessage(
	channelID snowflake.ID, messageCreate discord.MessageCreate, _ ...rest.RequestOpt,
) (*discord.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if channelID == f.failChannel {
		return nil, &rest.Error{Response: &http.Response{StatusCode: http.StatusForbidden}}
	}

	f.posted = append(f.posted, postedMessage{channelID, messageCreate})

	return &discord.Message{ChannelID: channelID}, nil
}

func (f *fakeMessages) GetGuild(guildID snowflake.ID, _ bool, _ ...rest.RequestOpt) (*discord.RestGuild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.guildCalls++

	return &discord.RestGuild{Guild: discord.Guild{ID: guildID, Name: "Test Guild"}}, nil
}

func blacklisted() *types.BlacklistRecord {
	return &types.BlacklistRecord{
		ID:       42,
		Name:     "spammer",
		Reason:   []byte("c3BhbSBhbmQgc2NhbXM="),
		BannedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestPublishScopes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		event            *enforcement.Event
		expectedChannels []snowflake.ID
		expectedTitles   []string
	}{
		{
			name: "observed is not posted",
			event: &enforcement.Event{
				UserID: 1, GuildID: 7, Action: enforcement.ActionObserved,
			},
		},
		{
			name: "unmanaged guild posts globally",
			event: &enforcement.Event{
				UserID: 42, GuildID: 9, Action: enforcement.ActionLoggedOnly, Record: blacklisted(),
			},
			expectedChannels: []snowflake.ID{100},
			expectedTitles:   []string{"spammer joined guild Test Guild"},
		},
		{
			name: "log only guild posts in both channels",
			event: &enforcement.Event{
				UserID: 42, GuildID: 8, Action: enforcement.ActionLoggedOnly, Record: blacklisted(),
				Policy: &types.GuildPolicy{ID: 8, LogChannel: 800},
			},
			expectedChannels: []snowflake.ID{100, 800},
			expectedTitles:   []string{"spammer joined guild Test Guild", "User spammer is globally banned"},
		},
		{
			name: "banned posts in both channels",
			event: &enforcement.Event{
				UserID: 42, GuildID: 7, Action: enforcement.ActionBanned, Record: blacklisted(),
				Policy: &types.GuildPolicy{ID: 7, Autoban: true, LogChannel: 700},
			},
			expectedChannels: []snowflake.ID{100, 700},
			expectedTitles:   []string{"Banned spammer in guild Test Guild", "Autobanned spammer"},
		},
		{
			name: "guild without log channel posts globally only",
			event: &enforcement.Event{
				UserID: 42, GuildID: 7, Action: enforcement.ActionBanned, Record: blacklisted(),
				Policy: &types.GuildPolicy{ID: 7, Autoban: true},
			},
			expectedChannels: []snowflake.ID{100},
			expectedTitles:   []string{"Banned spammer in guild Test Guild"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fake := &fakeMessages{}
			n := notify.New(fake, 100, zap.NewNop())

			require.NoError(t, n.Publish(t.Context(), tt.event))
			require.Len(t, fake.posted, len(tt.expectedChannels))

			for i, posted := range fake.posted {
				assert.Equal(t, tt.expectedChannels[i], posted.channelID)
				require.Len(t, posted.message.Embeds, 1)
				assert.Equal(t, tt.expectedTitles[i], posted.message.Embeds[0].Title)
			}
		})
	}
}

func TestPublishCachesGuildNames(t *testing.T) {
	t.Parallel()

	fake := &fakeMessages{}
	n := notify.New(fake, 100, zap.NewNop())
	event := &enforcement.Event{UserID: 42, GuildID: 9, Action: enforcement.ActionLoggedOnly, Record: blacklisted()}

	for range 3 {
		require.NoError(t, n.Publish(t.Context(), event))
	}

	assert.Equal(t, 1, fake.guildCalls)
	assert.Len(t, fake.posted, 3)
}

func TestPublishReportsChannelFailures(t *testing.T) {
	t.Parallel()

	fake := &fakeMessages{failChannel: 700}
	n := notify.New(fake, 100, zap.NewNop())

	err := n.Publish(t.Context(), &enforcement.Event{
		UserID: 42, GuildID: 7, Action: enforcement.ActionBanned, Record: blacklisted(),
		Policy: &types.GuildPolicy{ID: 7, Autoban: true, LogChannel: 700},
	})

	require.ErrorIs(t, err, directory.ErrPermission)
	assert.Len(t, fake.posted, 1)
}

func TestBuildEmbed(t *testing.T) {
	t.Parallel()

	event := &enforcement.Event{
		UserID:  42,
		GuildID: 7,
		Action:  enforcement.ActionBanned,
		Record:  blacklisted(),
		Policy:  &types.GuildPolicy{ID: 7, Autoban: true, LogChannel: 700},
		Err:     errors.New("missing permission"),
		At:      time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
	}

	embed := notify.BuildEmbed(event, enforcement.ScopeGuild, "Test Guild")

	assert.Equal(t, "Autobanned spammer", embed.Title)
	assert.Equal(t, notify.ColorError, embed.Color)
	assert.Equal(t, "Blacklisted at 2024-01-02T03:04:05Z. Reason:\nspam and scams", embed.Description)
	require.NotNil(t, embed.Footer)
	assert.Equal(t, "2024-05-06T07:08:09Z", embed.Footer.Text)

	var failure string

	for _, field := range embed.Fields {
		if field.Name == "Ban failed" {
			failure = field.Value
		}
	}

	assert.Equal(t, "missing permission", failure)
}
