// ABOUTME: Voice state model mirrored from the local Discord client
// ABOUTME: Guilds, channels, roster entries, self settings and connection status
package voice

import (
	"github.com/bwmarrin/discordgo"
)

// Guild is a server the authenticated user belongs to.
type Guild struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IconURL string `json:"icon_url,omitempty"`
}

// Channel is a text or voice channel of a guild.
type Channel struct {
	ID        string                `json:"id"`
	GuildID   string                `json:"guild_id"`
	Name      string                `json:"name"`
	Type      discordgo.ChannelType `json:"type"`
	Position  int                   `json:"position"`
	Topic     string                `json:"topic,omitempty"`
	Bitrate   int                   `json:"bitrate,omitempty"`
	UserLimit int                   `json:"user_limit,omitempty"`
}

// IsText reports whether the channel is a guild text channel.
func (c Channel) IsText() bool { return c.Type == discordgo.ChannelTypeGuildText }

// IsVoice reports whether the channel is a guild voice channel.
func (c Channel) IsVoice() bool { return c.Type == discordgo.ChannelTypeGuildVoice }

// VoiceChannel is the channel the local user is connected to.
type VoiceChannel struct {
	Channel
	VoiceStates []VoiceUser `json:"voice_states"`
}

// User is a Discord account.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator,omitempty"`
	GlobalName    string `json:"global_name,omitempty"`
	Avatar        string `json:"avatar,omitempty"`
	Bot           bool   `json:"bot,omitempty"`
}

// Tag returns username#discriminator.
func (u User) Tag() string {
	return u.Username + "#" + u.Discriminator
}

// Pan is a per-user stereo balance.
type Pan struct {
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
}

// VoiceStateFlags are the server and self mute/deaf flags of a user.
type VoiceStateFlags struct {
	Mute     bool `json:"mute"`
	Deaf     bool `json:"deaf"`
	SelfMute bool `json:"self_mute"`
	SelfDeaf bool `json:"self_deaf"`
	Suppress bool `json:"suppress"`
}

// VoiceUser is one roster entry. Mute and Volume are the local user's
// overrides for this user, not the user's own state.
type VoiceUser struct {
	Nick       string          `json:"nick"`
	Mute       bool            `json:"mute"`
	Volume     float64         `json:"volume"`
	Pan        Pan             `json:"pan"`
	VoiceState VoiceStateFlags `json:"voice_state"`
	User       User            `json:"user"`
}

// DisplayName returns the nick, falling back to global name then username.
func (v VoiceUser) DisplayName() string {
	switch {
	case v.Nick != "":
		return v.Nick
	case v.User.GlobalName != "":
		return v.User.GlobalName
	default:
		return v.User.Username
	}
}

// UserVoiceSettings is the SET_USER_VOICE_SETTINGS response.
type UserVoiceSettings struct {
	UserID string   `json:"user_id"`
	Pan    *Pan     `json:"pan,omitempty"`
	Volume *float64 `json:"volume,omitempty"`
	Mute   *bool    `json:"mute,omitempty"`
}

// Input modes.
const (
	ModePushToTalk    = "PUSH_TO_TALK"
	ModeVoiceActivity = "VOICE_ACTIVITY"
)

// AudioDevice is an input or output device.
type AudioDevice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// IODevice is the input or output half of the self voice settings.
type IODevice struct {
	DeviceID         string        `json:"device_id"`
	Volume           float64       `json:"volume"`
	AvailableDevices []AudioDevice `json:"available_devices,omitempty"`
}

// ShortcutKey is one key of the push-to-talk shortcut.
type ShortcutKey struct {
	Type int    `json:"type"`
	Code int    `json:"code"`
	Name string `json:"name"`
}

// VoiceMode is the input mode.
type VoiceMode struct {
	Type          string        `json:"type"`
	AutoThreshold bool          `json:"auto_threshold"`
	Threshold     float64       `json:"threshold"`
	Shortcut      []ShortcutKey `json:"shortcut,omitempty"`
	Delay         float64       `json:"delay"`
}

// VoiceSettings are the local user's own voice settings.
type VoiceSettings struct {
	Input                IODevice  `json:"input"`
	Output               IODevice  `json:"output"`
	Mode                 VoiceMode `json:"mode"`
	AutomaticGainControl bool      `json:"automatic_gain_control"`
	EchoCancellation     bool      `json:"echo_cancellation"`
	NoiseSuppression     bool      `json:"noise_suppression"`
	QOS                  bool      `json:"qos"`
	SilenceWarning       bool      `json:"silence_warning"`
	Deaf                 bool      `json:"deaf"`
	Mute                 bool      `json:"mute"`
}

// Ping is one voice server latency sample.
type Ping struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// ConnectionStatus is the voice connection state pushed by the client.
type ConnectionStatus struct {
	State       string  `json:"state"`
	Hostname    string  `json:"hostname"`
	Pings       []Ping  `json:"pings"`
	AveragePing float64 `json:"average_ping"`
	LastPing    float64 `json:"last_ping,omitempty"`
}

// Choice is a labelled channel for pickers.
type Choice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}
