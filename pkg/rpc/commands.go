// ABOUTME: Typed RPC commands exposed to callers
// ABOUTME: Channel, voice settings, activity, soundboard and video commands
package rpc

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/bitfocus/companion-module-discord-api/pkg/voice"
)

// GetGuilds lists the user's guilds.
func (c *Client) GetGuilds(ctx context.Context) ([]voice.Guild, error) {
	resp, err := call[struct {
		Guilds []voice.Guild `json:"guilds"`
	}](ctx, c, CmdGetGuilds, nil)
	return resp.Guilds, err
}

// GetChannels lists the channels of one guild.
func (c *Client) GetChannels(ctx context.Context, guildID string) ([]voice.Channel, error) {
	resp, err := call[struct {
		Channels []voice.Channel `json:"channels"`
	}](ctx, c, CmdGetChannels, map[string]string{"guild_id": guildID})
	if err != nil {
		return nil, err
	}
	for i := range resp.Channels {
		resp.Channels[i].GuildID = guildID
	}
	return resp.Channels, nil
}

// RefreshChannels reloads every guild and its channels, one guild at a
// time, and replaces them in the store.
func (c *Client) RefreshChannels(ctx context.Context) error {
	guilds, err := c.GetGuilds(ctx)
	if err != nil {
		return err
	}

	var channels []voice.Channel
	for _, g := range guilds {
		gc, err := c.GetChannels(ctx, g.ID)
		if err != nil {
			return fmt.Errorf("guild %s: %w", g.ID, err)
		}
		channels = append(channels, gc...)
	}

	c.store.SetGuilds(guilds, channels)
	return nil
}

// GetSelectedVoiceChannel returns the channel the user is in, or nil.
func (c *Client) GetSelectedVoiceChannel(ctx context.Context) (*voice.VoiceChannel, error) {
	return call[*voice.VoiceChannel](ctx, c, CmdGetSelectedVoiceChannel, nil)
}

// GetVoiceSettings returns the local user's voice settings.
func (c *Client) GetVoiceSettings(ctx context.Context) (voice.VoiceSettings, error) {
	return call[voice.VoiceSettings](ctx, c, CmdGetVoiceSettings, nil)
}

// SelectOptions controls SELECT_VOICE_CHANNEL.
type SelectOptions struct {
	Force bool
	// Timeout in seconds, forwarded to Discord. Zero omits it.
	Timeout int
}

// SelectVoiceChannel joins channelID, or leaves voice when it is empty.
func (c *Client) SelectVoiceChannel(ctx context.Context, channelID string, opts SelectOptions) error {
	args := map[string]any{"channel_id": nil, "force": opts.Force}
	if channelID != "" {
		args["channel_id"] = channelID
	}
	if opts.Timeout > 0 {
		args["timeout"] = opts.Timeout
	}
	_, err := c.Request(ctx, CmdSelectVoiceChannel, args)
	return err
}

// SelectTextChannel focuses a text channel in the Discord client.
func (c *Client) SelectTextChannel(ctx context.Context, channelID string) error {
	_, err := c.Request(ctx, CmdSelectTextChannel, channelArgs{ChannelID: channelID})
	return err
}

// UserSettings is a per-user override. Nil fields are left unchanged.
type UserSettings struct {
	Mute   *bool    `json:"mute,omitempty"`
	Volume *float64 `json:"volume,omitempty"`
}

// SetUserVoiceSettings changes another user's local mute or volume and
// folds the response into the roster before returning.
func (c *Client) SetUserVoiceSettings(ctx context.Context, userID string, s UserSettings) error {
	args := struct {
		UserID string `json:"user_id"`
		UserSettings
	}{userID, s}

	resp, err := call[voice.UserVoiceSettings](ctx, c, CmdSetUserVoiceSettings, args)
	if err != nil {
		return err
	}
	if resp.UserID == "" {
		resp = voice.UserVoiceSettings{UserID: userID, Mute: s.Mute, Volume: s.Volume}
	}
	c.store.ApplyUserVoiceSettings(resp)
	return nil
}

// DeviceUpdate changes the input or output device.
type DeviceUpdate struct {
	DeviceID string   `json:"device_id,omitempty"`
	Volume   *float64 `json:"volume,omitempty"`
}

// ModeUpdate changes the input mode.
type ModeUpdate struct {
	Type          string   `json:"type,omitempty"`
	AutoThreshold *bool    `json:"auto_threshold,omitempty"`
	Threshold     *float64 `json:"threshold,omitempty"`
	Delay         *float64 `json:"delay,omitempty"`
}

// VoiceSettingsUpdate is a partial SET_VOICE_SETTINGS. Nil fields are left
// unchanged.
type VoiceSettingsUpdate struct {
	Input                *DeviceUpdate `json:"input,omitempty"`
	Output               *DeviceUpdate `json:"output,omitempty"`
	Mode                 *ModeUpdate   `json:"mode,omitempty"`
	AutomaticGainControl *bool         `json:"automatic_gain_control,omitempty"`
	EchoCancellation     *bool         `json:"echo_cancellation,omitempty"`
	NoiseSuppression     *bool         `json:"noise_suppression,omitempty"`
	QOS                  *bool         `json:"qos,omitempty"`
	SilenceWarning       *bool         `json:"silence_warning,omitempty"`
	Deaf                 *bool         `json:"deaf,omitempty"`
	Mute                 *bool         `json:"mute,omitempty"`
}

// SetVoiceSettings applies a partial update and returns the settings Discord
// reports. The store picks them up on the event worker, in order with
// VOICE_SETTINGS_UPDATE pushes.
func (c *Client) SetVoiceSettings(ctx context.Context, update VoiceSettingsUpdate) (voice.VoiceSettings, error) {
	return call[voice.VoiceSettings](ctx, c, CmdSetVoiceSettings, update)
}

// ActivityButton is a rich presence link button.
type ActivityButton struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// ActivityTimestamps are unix milliseconds.
type ActivityTimestamps struct {
	Start int64 `json:"start,omitempty"`
	End   int64 `json:"end,omitempty"`
}

// ActivityAssets reference art uploaded to the application.
type ActivityAssets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
	SmallImage string `json:"small_image,omitempty"`
	SmallText  string `json:"small_text,omitempty"`
}

// Activity is a rich presence payload.
type Activity struct {
	State      string              `json:"state,omitempty"`
	Details    string              `json:"details,omitempty"`
	Timestamps *ActivityTimestamps `json:"timestamps,omitempty"`
	Assets     *ActivityAssets     `json:"assets,omitempty"`
	Buttons    []ActivityButton    `json:"buttons,omitempty"`
	Instance   bool                `json:"instance,omitempty"`
}

type activityArgs struct {
	PID      int       `json:"pid"`
	Activity *Activity `json:"activity,omitempty"`
}

// SetActivity sets the rich presence shown for this process.
func (c *Client) SetActivity(ctx context.Context, activity Activity) error {
	_, err := c.Request(ctx, CmdSetActivity, activityArgs{PID: os.Getpid(), Activity: &activity})
	return err
}

// ClearActivity removes the rich presence set by this process.
func (c *Client) ClearActivity(ctx context.Context) error {
	_, err := c.Request(ctx, CmdSetActivity, activityArgs{PID: os.Getpid()})
	return err
}

// PlaySoundboardSound plays a soundboard sound in the current voice
// channel. Failures are logged.
func (c *Client) PlaySoundboardSound(ctx context.Context, guildID, soundID string) {
	args := map[string]string{"guild_id": guildID, "sound_id": soundID}
	if _, err := c.Request(ctx, CmdPlaySoundboardSound, args); err != nil {
		log.Printf("rpc: play soundboard sound %s: %v", soundID, err)
	}
}

// ToggleVideo toggles the camera.
func (c *Client) ToggleVideo(ctx context.Context) error {
	_, err := c.Request(ctx, CmdToggleVideo, nil)
	return err
}

// ToggleScreenshare toggles screen sharing.
func (c *Client) ToggleScreenshare(ctx context.Context) error {
	_, err := c.Request(ctx, CmdToggleScreenshare, nil)
	return err
}
