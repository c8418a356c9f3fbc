// ABOUTME: RPC command and event names
// ABOUTME: Wire message shapes and OAuth scopes for the local Discord client
package rpc

import (
	"encoding/json"
)

// Command is an RPC command name.
type Command string

const (
	CmdDispatch                Command = "DISPATCH"
	CmdAuthorize               Command = "AUTHORIZE"
	CmdAuthenticate            Command = "AUTHENTICATE"
	CmdGetGuilds               Command = "GET_GUILDS"
	CmdGetChannels             Command = "GET_CHANNELS"
	CmdGetSelectedVoiceChannel Command = "GET_SELECTED_VOICE_CHANNEL"
	CmdGetVoiceSettings        Command = "GET_VOICE_SETTINGS"
	CmdSelectVoiceChannel      Command = "SELECT_VOICE_CHANNEL"
	CmdSelectTextChannel       Command = "SELECT_TEXT_CHANNEL"
	CmdSetUserVoiceSettings    Command = "SET_USER_VOICE_SETTINGS"
	CmdSetVoiceSettings        Command = "SET_VOICE_SETTINGS"
	CmdSetActivity             Command = "SET_ACTIVITY"
	CmdPlaySoundboardSound     Command = "PLAY_SOUNDBOARD_SOUND"
	CmdToggleVideo             Command = "TOGGLE_VIDEO"
	CmdToggleScreenshare       Command = "TOGGLE_SCREENSHARE"
	CmdSubscribe               Command = "SUBSCRIBE"
	CmdUnsubscribe             Command = "UNSUBSCRIBE"
)

// Event is an RPC event name.
type Event string

const (
	EvtReady                 Event = "READY"
	EvtError                 Event = "ERROR"
	EvtGuildCreate           Event = "GUILD_CREATE"
	EvtChannelCreate         Event = "CHANNEL_CREATE"
	EvtVoiceChannelSelect    Event = "VOICE_CHANNEL_SELECT"
	EvtVoiceStateCreate      Event = "VOICE_STATE_CREATE"
	EvtVoiceStateUpdate      Event = "VOICE_STATE_UPDATE"
	EvtVoiceStateDelete      Event = "VOICE_STATE_DELETE"
	EvtVoiceSettingsUpdate   Event = "VOICE_SETTINGS_UPDATE"
	EvtVoiceConnectionStatus Event = "VOICE_CONNECTION_STATUS"
	EvtSpeakingStart         Event = "SPEAKING_START"
	EvtSpeakingStop          Event = "SPEAKING_STOP"
)

// VoiceEvents are scoped to the active voice channel and are resubscribed
// whenever it changes.
var VoiceEvents = []Event{
	EvtSpeakingStart,
	EvtSpeakingStop,
	EvtVoiceStateCreate,
	EvtVoiceStateDelete,
	EvtVoiceStateUpdate,
}

// GlobalEvents are subscribed once per session.
var GlobalEvents = []Event{
	EvtChannelCreate,
	EvtGuildCreate,
	EvtVoiceChannelSelect,
	EvtVoiceConnectionStatus,
	EvtVoiceSettingsUpdate,
}

// DefaultScopes are requested by AUTHORIZE.
var DefaultScopes = []string{
	"rpc",
	"rpc.voice.read",
	"rpc.voice.write",
	"rpc.video.write",
	"rpc.screenshare.write",
}

// request is an outgoing command.
type request struct {
	Cmd   Command `json:"cmd"`
	Args  any     `json:"args,omitempty"`
	Evt   Event   `json:"evt,omitempty"`
	Nonce string  `json:"nonce"`
}

// message is an incoming response or event.
type message struct {
	Cmd   Command         `json:"cmd"`
	Evt   Event           `json:"evt"`
	Data  json.RawMessage `json:"data"`
	Nonce string          `json:"nonce"`
}

// errorData is the data of an ERROR response.
type errorData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type channelArgs struct {
	ChannelID string `json:"channel_id"`
}

type speakingData struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
}

type voiceChannelSelectData struct {
	ChannelID *string `json:"channel_id"`
	GuildID   *string `json:"guild_id"`
}

// Application is the OAuth application bound by AUTHENTICATE.
type Application struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Icon        string   `json:"icon,omitempty"`
	RPCOrigins  []string `json:"rpc_origins,omitempty"`
}
