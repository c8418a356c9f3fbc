// ABOUTME: Tests for push event handling and settings folding
// ABOUTME: Voice channel transitions, roster events, migration and commands
package rpc

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"

	"github.com/bitfocus/companion-module-discord-api/internal/ipctest"
	"github.com/bitfocus/companion-module-discord-api/pkg/voice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fence dispatches a settings update and waits for it, so every event sent
// before it has been handled.
func fence(t *testing.T, d *ipctest.Discord, env *testEnv, volume float64) {
	t.Helper()
	require.NoError(t, d.Dispatch("VOICE_SETTINGS_UPDATE", voice.VoiceSettings{Input: voice.IODevice{Volume: volume}}))
	waitFor(t, func() bool {
		vs, ok := env.store.VoiceSettings()
		return ok && vs.Input.Volume == volume
	}, "fence event not handled")
}

func TestVoiceChannelSelectNullUnsubscribesOnce(t *testing.T) {
	d, _ := newFakeDiscord(t, voiceChannel("v1", beaUser, selfUser))
	env := newTestClient(t, d, nil)
	env.init(t)
	require.Len(t, env.client.VoiceSubscriptions(), 5)

	require.NoError(t, d.Dispatch("SPEAKING_START", map[string]string{"user_id": "1", "channel_id": "v1"}))
	waitFor(t, func() bool { return env.store.IsSpeaking("1", false) }, "speaking not recorded")

	require.NoError(t, d.Dispatch("VOICE_CHANNEL_SELECT", map[string]any{"channel_id": nil, "guild_id": nil}))
	unsubs := d.WaitRequests(t, "UNSUBSCRIBE", 5)

	assert.ElementsMatch(t, []string{"SPEAKING_START", "SPEAKING_STOP", "VOICE_STATE_CREATE", "VOICE_STATE_DELETE", "VOICE_STATE_UPDATE"}, eventsOf(unsubs))
	for _, u := range unsubs {
		assert.JSONEq(t, `{"channel_id":"v1"}`, string(u.Args))
	}

	waitFor(t, func() bool { return env.store.VoiceChannel() == nil }, "channel not cleared")
	assert.Empty(t, env.store.Speaking(false))
	assert.Empty(t, env.client.VoiceSubscriptions())

	// a second leave has nothing left to unsubscribe
	require.NoError(t, d.Dispatch("VOICE_CHANNEL_SELECT", map[string]any{"channel_id": nil}))
	fence(t, d, env, 42)
	assert.Len(t, d.Requests("UNSUBSCRIBE"), 5)
}

func TestSpeakingStartAfterLeaveIgnored(t *testing.T) {
	d, _ := newFakeDiscord(t, voiceChannel("v1", beaUser, selfUser))
	env := newTestClient(t, d, nil)
	env.init(t)

	require.NoError(t, d.Dispatch("VOICE_CHANNEL_SELECT", map[string]any{"channel_id": nil}))
	require.NoError(t, d.Dispatch("SPEAKING_START", map[string]string{"user_id": "1", "channel_id": "v1"}))
	fence(t, d, env, 7)

	assert.Nil(t, env.store.VoiceChannel())
	assert.Empty(t, env.store.Speaking(false))
	assert.Zero(t, env.store.PendingSpeakingTimers())
}

func TestSpeakingStartOtherChannelIgnored(t *testing.T) {
	d, _ := newFakeDiscord(t, voiceChannel("v1", beaUser, selfUser))
	env := newTestClient(t, d, nil)
	env.init(t)

	require.NoError(t, d.Dispatch("SPEAKING_START", map[string]string{"user_id": "1", "channel_id": "v0"}))
	require.NoError(t, d.Dispatch("SPEAKING_START", map[string]string{"user_id": "2", "channel_id": "v1"}))
	fence(t, d, env, 8)

	assert.Equal(t, []string{"2"}, env.store.Speaking(false))
}

func TestVoiceChannelSelectJoinResubscribes(t *testing.T) {
	d, setSelected := newFakeDiscord(t, voiceChannel("v1", selfUser))
	env := newTestClient(t, d, nil)
	env.init(t)

	setSelected(voiceChannel("v2", selfUser, alUser))
	require.NoError(t, d.Dispatch("VOICE_CHANNEL_SELECT", map[string]any{"channel_id": "v2", "guild_id": "g1"}))

	d.WaitRequests(t, "SUBSCRIBE", 15)
	waitFor(t, func() bool { return env.store.VoiceChannelID() == "v2" }, "channel not switched")

	// old handles are released before the new set is created
	var order []string
	for _, r := range d.Requests("") {
		if r.Cmd == "SUBSCRIBE" || r.Cmd == "UNSUBSCRIBE" {
			var args struct {
				ChannelID string `json:"channel_id"`
			}
			json.Unmarshal(r.Args, &args)
			if args.ChannelID != "" {
				order = append(order, r.Cmd+":"+args.ChannelID)
			}
		}
	}
	require.Len(t, order, 15)
	for i := 0; i < 5; i++ {
		assert.Equal(t, "SUBSCRIBE:v1", order[i])
		assert.Equal(t, "UNSUBSCRIBE:v1", order[5+i])
		assert.Equal(t, "SUBSCRIBE:v2", order[10+i])
	}
	assert.Len(t, env.store.VoiceChannel().VoiceStates, 2)
}

func TestVoiceStateEvents(t *testing.T) {
	d, _ := newFakeDiscord(t, voiceChannel("v1", beaUser, alUser))
	env := newTestClient(t, d, nil)
	env.init(t)

	cy := voice.VoiceUser{Nick: "Cy", User: voice.User{ID: "3", Username: "cy"}}
	require.NoError(t, d.Dispatch("VOICE_STATE_CREATE", cy))
	fence(t, d, env, 1)

	nicks := func() []string {
		var out []string
		for _, u := range env.store.VoiceChannel().VoiceStates {
			out = append(out, u.Nick)
		}
		return out
	}
	assert.Equal(t, []string{"Al", "Bea", "Cy"}, nicks())

	muted := beaUser
	muted.VoiceState.SelfMute = true
	require.NoError(t, d.Dispatch("VOICE_STATE_UPDATE", muted))
	require.NoError(t, d.Dispatch("VOICE_STATE_UPDATE", muted))
	require.NoError(t, d.Dispatch("VOICE_STATE_DELETE", alUser))
	fence(t, d, env, 2)

	assert.Equal(t, []string{"Bea", "Cy"}, nicks())
	u, ok := env.store.VoiceUser("1")
	require.True(t, ok)
	assert.True(t, u.VoiceState.SelfMute)
}

func TestVoiceStateDeleteSelfMigration(t *testing.T) {
	d, setSelected := newFakeDiscord(t, voiceChannel("v1", selfUser, beaUser))
	env := newTestClient(t, d, nil)
	env.init(t)

	setSelected(voiceChannel("v2", selfUser))
	require.NoError(t, d.Dispatch("VOICE_STATE_DELETE", selfUser))

	waitFor(t, func() bool { return env.store.VoiceChannelID() == "v2" }, "migration not followed")
	subs := d.WaitRequests(t, "SUBSCRIBE", 15)
	for _, s := range subs[10:] {
		assert.JSONEq(t, `{"channel_id":"v2"}`, string(s.Args))
	}
	assert.Len(t, d.Requests("UNSUBSCRIBE"), 5)
}

func TestVoiceStateDeleteSelfSameChannel(t *testing.T) {
	d, _ := newFakeDiscord(t, voiceChannel("v1", selfUser, beaUser))
	env := newTestClient(t, d, nil)
	env.init(t)

	require.NoError(t, d.Dispatch("VOICE_STATE_DELETE", selfUser))
	fence(t, d, env, 3)

	assert.Empty(t, d.Requests("UNSUBSCRIBE"))
	assert.Equal(t, "v1", env.store.VoiceChannelID())
	_, ok := env.store.VoiceUser("100")
	assert.False(t, ok)
}

func TestChannelCreateRefreshesChannels(t *testing.T) {
	d, _ := newFakeDiscord(t, nil)
	env := newTestClient(t, d, nil)
	env.init(t)

	d.Respond("GET_GUILDS", map[string]any{"guilds": []voice.Guild{{ID: "g1", Name: "One"}, {ID: "g2", Name: "Two"}}})
	require.NoError(t, d.Dispatch("CHANNEL_CREATE", map[string]string{"id": "new"}))

	waitFor(t, func() bool { return len(env.store.Guilds()) == 2 }, "guilds not refreshed")

	var guildIDs []string
	for _, r := range d.Requests("GET_CHANNELS")[1:] {
		var args struct {
			GuildID string `json:"guild_id"`
		}
		require.NoError(t, json.Unmarshal(r.Args, &args))
		guildIDs = append(guildIDs, args.GuildID)
	}
	assert.Equal(t, []string{"g1", "g2"}, guildIDs)
	assert.Len(t, env.store.Channels(), 4)
}

func TestVoiceConnectionStatusEvent(t *testing.T) {
	d, _ := newFakeDiscord(t, nil)
	env := newTestClient(t, d, nil)
	env.init(t)

	require.NoError(t, d.Dispatch("VOICE_CONNECTION_STATUS", map[string]any{
		"state":        "VOICE_CONNECTED",
		"hostname":     "rotterdam.discord.media",
		"pings":        []map[string]any{{"time": 1, "value": 30}},
		"average_ping": 30.5,
		"last_ping":    31,
	}))
	waitFor(t, func() bool { return env.store.ConnectionStatus().State == "VOICE_CONNECTED" }, "status not applied")

	cs := env.store.ConnectionStatus()
	assert.Equal(t, "rotterdam.discord.media", cs.Hostname)
	assert.Equal(t, 30.5, cs.AveragePing)
	assert.Len(t, cs.Pings, 1)
}

func TestSetVoiceSettingsFoldsResponse(t *testing.T) {
	d, _ := newFakeDiscord(t, nil)
	env := newTestClient(t, d, nil)
	env.init(t)

	d.Handle("SET_VOICE_SETTINGS", func(req ipctest.Request) (any, error) {
		return voice.VoiceSettings{Mute: true, Deaf: true, Output: voice.IODevice{Volume: 150}}, nil
	})

	mute := true
	got, err := env.client.SetVoiceSettings(context.Background(), VoiceSettingsUpdate{Mute: &mute})
	require.NoError(t, err)
	assert.True(t, got.Deaf)

	waitFor(t, func() bool {
		vs, ok := env.store.VoiceSettings()
		return ok && vs.Deaf && vs.Output.Volume == 150
	}, "response not folded")

	reqs := d.Requests("SET_VOICE_SETTINGS")
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `{"mute":true}`, string(reqs[0].Args))
}

func TestSetVoiceSettingsResponseAfterEarlierPush(t *testing.T) {
	d, _ := newFakeDiscord(t, nil)
	env := newTestClient(t, d, nil)
	env.init(t)

	d.Handle("SET_VOICE_SETTINGS", func(req ipctest.Request) (any, error) {
		return voice.VoiceSettings{Mute: true, Output: voice.IODevice{Volume: 150}}, nil
	})

	// hold the event worker inside a connection status update
	blocked := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	unwatch := env.store.Watch(func(topic voice.Topic) {
		if topic&voice.TopicConnectionStatus == 0 {
			return
		}
		once.Do(func() {
			close(blocked)
			<-release
		})
	})
	defer unwatch()

	require.NoError(t, d.Dispatch("VOICE_CONNECTION_STATUS", voice.ConnectionStatus{State: "VOICE_CONNECTED"}))
	<-blocked

	// queued behind the held event, ahead of the response
	require.NoError(t, d.Dispatch("VOICE_SETTINGS_UPDATE", voice.VoiceSettings{Input: voice.IODevice{Volume: 9}}))

	mute := true
	_, err := env.client.SetVoiceSettings(context.Background(), VoiceSettingsUpdate{Mute: &mute})
	require.NoError(t, err)
	close(release)

	waitFor(t, func() bool {
		vs, ok := env.store.VoiceSettings()
		return ok && vs.Output.Volume == 150
	}, "response not folded")
	vs, _ := env.store.VoiceSettings()
	assert.True(t, vs.Mute)
	assert.Zero(t, vs.Input.Volume)
}

func TestSetUserVoiceSettingsFoldsResponse(t *testing.T) {
	d, _ := newFakeDiscord(t, voiceChannel("v1", beaUser))
	env := newTestClient(t, d, nil)
	env.init(t)

	d.Handle("SET_USER_VOICE_SETTINGS", func(req ipctest.Request) (any, error) {
		return map[string]any{"user_id": "1", "volume": 120, "mute": true}, nil
	})

	vol := 120.0
	require.NoError(t, env.client.SetUserVoiceSettings(context.Background(), "1", UserSettings{Volume: &vol}))

	u, _ := env.store.VoiceUser("1")
	assert.Equal(t, 120.0, u.Volume)
	assert.True(t, u.Mute)

	reqs := d.Requests("SET_USER_VOICE_SETTINGS")
	assert.JSONEq(t, `{"user_id":"1","volume":120}`, string(reqs[0].Args))
}

func TestActivityCommands(t *testing.T) {
	d, _ := newFakeDiscord(t, nil)
	env := newTestClient(t, d, nil)
	env.init(t)

	ctx := context.Background()
	require.NoError(t, env.client.SetActivity(ctx, Activity{
		State:   "Streaming",
		Details: "Live",
		Buttons: []ActivityButton{{Label: "Watch", URL: "https://example.com"}},
	}))
	require.NoError(t, env.client.ClearActivity(ctx))

	reqs := d.Requests("SET_ACTIVITY")
	require.Len(t, reqs, 2)

	var set struct {
		PID      int       `json:"pid"`
		Activity *Activity `json:"activity"`
	}
	require.NoError(t, json.Unmarshal(reqs[0].Args, &set))
	assert.Equal(t, os.Getpid(), set.PID)
	require.NotNil(t, set.Activity)
	assert.Equal(t, "Live", set.Activity.Details)

	var cleared map[string]any
	require.NoError(t, json.Unmarshal(reqs[1].Args, &cleared))
	assert.NotContains(t, cleared, "activity")
	assert.Contains(t, cleared, "pid")
}

func TestPlaySoundboardSoundSwallowsErrors(t *testing.T) {
	d, _ := newFakeDiscord(t, nil)
	env := newTestClient(t, d, nil)
	env.init(t)

	d.Handle("PLAY_SOUNDBOARD_SOUND", func(ipctest.Request) (any, error) {
		return nil, &ipctest.Error{Code: 4000, Message: "unknown sound"}
	})

	env.client.PlaySoundboardSound(context.Background(), "g1", "s1")

	reqs := d.Requests("PLAY_SOUNDBOARD_SOUND")
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `{"guild_id":"g1","sound_id":"s1"}`, string(reqs[0].Args))
}

func TestSelectVoiceChannelArgs(t *testing.T) {
	d, _ := newFakeDiscord(t, nil)
	env := newTestClient(t, d, nil)
	env.init(t)

	ctx := context.Background()
	require.NoError(t, env.client.SelectVoiceChannel(ctx, "v1", SelectOptions{Force: true, Timeout: 5}))
	require.NoError(t, env.client.SelectVoiceChannel(ctx, "", SelectOptions{}))

	reqs := d.Requests("SELECT_VOICE_CHANNEL")
	require.Len(t, reqs, 2)
	assert.JSONEq(t, `{"channel_id":"v1","force":true,"timeout":5}`, string(reqs[0].Args))
	assert.JSONEq(t, `{"channel_id":null,"force":false}`, string(reqs[1].Args))
}
