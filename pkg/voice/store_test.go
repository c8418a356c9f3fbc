// ABOUTME: Tests for store notifications, settings folding and choices
// ABOUTME: Checks watchers fire after unlock and snapshots are copies
package voice

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchReceivesTopics(t *testing.T) {
	s := NewStore(Config{})
	var got []Topic
	cancel := s.Watch(func(topic Topic) {
		// reading inside the callback must not deadlock
		_ = s.Snapshot()
		got = append(got, topic)
	})

	s.SetVoiceSettings(VoiceSettings{Mute: true})
	s.SelectUser("1")
	cancel()
	s.SelectUser("2")

	require.Len(t, got, 2)
	assert.True(t, got[0].Has(TopicVoiceSettings))
	assert.True(t, got[1].Has(TopicSelection))
}

func TestSelectUserToggles(t *testing.T) {
	s := NewStore(Config{})
	assert.Equal(t, "1", s.SelectUser("1"))
	assert.Equal(t, "2", s.SelectUser("2"))
	assert.Equal(t, "", s.SelectUser("2"))
	assert.Equal(t, "", s.SelectedUser())
}

func TestApplyUserVoiceSettings(t *testing.T) {
	s := storeInChannel(t, voiceUser("1", "Bea"))
	vol := 150.0
	mute := true

	require.True(t, s.ApplyUserVoiceSettings(UserVoiceSettings{UserID: "1", Volume: &vol, Mute: &mute}))
	u, ok := s.VoiceUser("1")
	require.True(t, ok)
	assert.Equal(t, 150.0, u.Volume)
	assert.True(t, u.Mute)

	assert.False(t, s.ApplyUserVoiceSettings(UserVoiceSettings{UserID: "9", Mute: &mute}))
}

func TestSnapshotIsCopy(t *testing.T) {
	s := storeInChannel(t, voiceUser("1", "Bea"))
	snap := s.Snapshot()
	snap.VoiceChannel.VoiceStates[0].Nick = "changed"

	u, _ := s.VoiceUser("1")
	assert.Equal(t, "Bea", u.Nick)
}

func TestChannelChoices(t *testing.T) {
	s := NewStore(Config{})
	s.SetGuilds(
		[]Guild{{ID: "g1", Name: "Zeta"}, {ID: "g2", Name: "alpha"}},
		[]Channel{
			{ID: "t1", GuildID: "g1", Name: "general", Type: discordgo.ChannelTypeGuildText},
			{ID: "v1", GuildID: "g1", Name: "Lounge", Type: discordgo.ChannelTypeGuildVoice},
			{ID: "t2", GuildID: "g2", Name: "chat", Type: discordgo.ChannelTypeGuildText},
			{ID: "c1", GuildID: "g2", Name: "Info", Type: discordgo.ChannelTypeGuildCategory},
		},
	)

	assert.Equal(t, []Choice{
		{ID: "t2", Label: "alpha - chat"},
		{ID: "t1", Label: "Zeta - general"},
	}, s.TextChannelChoices())
	assert.Equal(t, []Choice{{ID: "v1", Label: "Zeta - Lounge"}}, s.VoiceChannelChoices())
}

func TestResetClearsState(t *testing.T) {
	s := storeInChannel(t, voiceUser("1", "Bea"))
	s.SetUser(User{ID: "1"})
	s.SelectUser("1")

	s.Reset()
	snap := s.Snapshot()
	assert.Nil(t, snap.User)
	assert.Nil(t, snap.VoiceChannel)
	assert.Empty(t, snap.SelectedUser)
	assert.Equal(t, "DISCONNECTED", snap.ConnectionStatus.State)
}
