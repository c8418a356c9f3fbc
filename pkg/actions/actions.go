// ABOUTME: Button-level voice commands on top of the RPC client
// ABOUTME: Validates options, computes toggles and clamps volumes before sending
package actions

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/bitfocus/companion-module-discord-api/internal/clock"
	"github.com/bitfocus/companion-module-discord-api/internal/webhook"
	"github.com/bitfocus/companion-module-discord-api/pkg/rpc"
	"github.com/bitfocus/companion-module-discord-api/pkg/voice"
)

// Volume ranges accepted by Discord.
const (
	MaxInputVolume  = 100
	MaxOutputVolume = 200
	MaxUserVolume   = 200
)

// Client is the subset of *rpc.Client the actions drive.
type Client interface {
	SetVoiceSettings(ctx context.Context, update rpc.VoiceSettingsUpdate) (voice.VoiceSettings, error)
	SetUserVoiceSettings(ctx context.Context, userID string, s rpc.UserSettings) error
	SelectVoiceChannel(ctx context.Context, channelID string, opts rpc.SelectOptions) error
	SelectTextChannel(ctx context.Context, channelID string) error
	SetActivity(ctx context.Context, activity rpc.Activity) error
	ClearActivity(ctx context.Context) error
	PlaySoundboardSound(ctx context.Context, guildID, soundID string)
	ToggleVideo(ctx context.Context) error
	ToggleScreenshare(ctx context.Context) error
}

var _ Client = (*rpc.Client)(nil)

// WebhookSender posts webhook messages.
type WebhookSender interface {
	Send(ctx context.Context, m webhook.Message, vars map[string]string) error
}

// MuteOp selects how a mute action changes state.
type MuteOp string

const (
	MuteToggle MuteOp = "Toggle"
	MuteOn     MuteOp = "Mute"
	MuteOff    MuteOp = "Unmute"
)

// DeafenOp selects how a deafen action changes state.
type DeafenOp string

const (
	DeafenToggle DeafenOp = "Toggle"
	DeafenOn     DeafenOp = "Deafen"
	DeafenOff    DeafenOp = "Undeafen"
)

// VolumeOp selects absolute or relative volume changes.
type VolumeOp string

const (
	VolumeSet      VolumeOp = "Set"
	VolumeIncrease VolumeOp = "Increase"
	VolumeDecrease VolumeOp = "Decrease"
)

// InputModeOp selects the input mode change.
type InputModeOp string

const (
	InputModeToggle        InputModeOp = "Toggle"
	InputModePushToTalk    InputModeOp = "PushToTalk"
	InputModeVoiceActivity InputModeOp = "VoiceActivity"
)

// Config holds action configuration
type Config struct {
	Client  Client
	Store   *voice.Store
	Webhook WebhookSender

	// Variables returns the current variable map used for $(discord:<name>)
	// expansion. Optional.
	Variables func() map[string]string

	Clock clock.Clock
	Debug bool
}

// Actions runs control-surface commands. Failures are logged and returned;
// none of them panic.
type Actions struct {
	client    Client
	store     *voice.Store
	webhook   WebhookSender
	variables func() map[string]string
	clock     clock.Clock
	debug     bool
}

// New creates the action set
func New(config Config) (*Actions, error) {
	if config.Client == nil {
		return nil, errors.New("actions: client is required")
	}
	if config.Store == nil {
		return nil, errors.New("actions: store is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	return &Actions{
		client:    config.Client,
		store:     config.Store,
		webhook:   config.Webhook,
		variables: config.Variables,
		clock:     config.Clock,
		debug:     config.Debug,
	}, nil
}

func (a *Actions) fail(action string, err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		log.Printf("actions: %v", err)
		return err
	}
	log.Printf("actions: %s failed: %v", action, err)
	return fmt.Errorf("%s: %w", action, err)
}

func (a *Actions) debugf(format string, args ...any) {
	if a.debug {
		log.Printf("actions: "+format, args...)
	}
}

func (a *Actions) vars() map[string]string {
	if a.variables == nil {
		return nil
	}
	return a.variables()
}

func (a *Actions) expand(s string) string {
	return webhook.Expand(s, a.vars())
}

func (a *Actions) settings(action string) (voice.VoiceSettings, error) {
	vs, ok := a.store.VoiceSettings()
	if !ok {
		return vs, invalid(action, "voice settings not loaded")
	}
	return vs, nil
}

func clamp(v, max float64) float64 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

func adjust(op VolumeOp, current, amount, max float64) (float64, error) {
	switch op {
	case VolumeSet:
		return clamp(amount, max), nil
	case VolumeIncrease:
		return clamp(current+amount, max), nil
	case VolumeDecrease:
		return clamp(current-amount, max), nil
	}
	return 0, fmt.Errorf("unknown volume op %q", op)
}

// SelfMute mutes or unmutes the local user. While deafened any op other
// than MuteOn undeafens and unmutes.
func (a *Actions) SelfMute(ctx context.Context, op MuteOp) error {
	const action = "selfMute"
	vs, err := a.settings(action)
	if err != nil {
		return a.fail(action, err)
	}

	var update rpc.VoiceSettingsUpdate
	switch {
	case vs.Deaf:
		if op == MuteOn {
			return nil
		}
		update.Mute, update.Deaf = boolPtr(false), boolPtr(false)
	default:
		var mute bool
		switch op {
		case MuteToggle:
			mute = !vs.Mute
		case MuteOn:
			mute = true
		case MuteOff:
			mute = false
		default:
			return a.fail(action, invalid(action, "unknown type %q", op))
		}
		if mute == vs.Mute {
			return nil
		}
		update.Mute = &mute
	}

	if _, err := a.client.SetVoiceSettings(ctx, update); err != nil {
		return a.fail(action, err)
	}
	return nil
}

// SelfDeafen deafens or undeafens the local user.
func (a *Actions) SelfDeafen(ctx context.Context, op DeafenOp) error {
	const action = "selfDeafen"
	vs, err := a.settings(action)
	if err != nil {
		return a.fail(action, err)
	}

	var deaf bool
	switch op {
	case DeafenToggle:
		deaf = !vs.Deaf
	case DeafenOn:
		deaf = true
	case DeafenOff:
		deaf = false
	default:
		return a.fail(action, invalid(action, "unknown type %q", op))
	}
	if deaf == vs.Deaf {
		return nil
	}

	if _, err := a.client.SetVoiceSettings(ctx, rpc.VoiceSettingsUpdate{Deaf: &deaf}); err != nil {
		return a.fail(action, err)
	}
	return nil
}

// SelfInputVolume sets or nudges the microphone volume within [0,100].
// Relative changes use the last known value.
func (a *Actions) SelfInputVolume(ctx context.Context, op VolumeOp, amount float64) error {
	const action = "selfInputVolume"
	current := 0.0
	if op != VolumeSet {
		vs, err := a.settings(action)
		if err != nil {
			return a.fail(action, err)
		}
		current = vs.Input.Volume
	}

	volume, err := adjust(op, current, amount, MaxInputVolume)
	if err != nil {
		return a.fail(action, invalid(action, "%v", err))
	}
	update := rpc.VoiceSettingsUpdate{Input: &rpc.DeviceUpdate{Volume: &volume}}
	if _, err := a.client.SetVoiceSettings(ctx, update); err != nil {
		return a.fail(action, err)
	}
	return nil
}

// SelfOutputVolume sets or nudges the output volume within [0,200].
func (a *Actions) SelfOutputVolume(ctx context.Context, op VolumeOp, amount float64) error {
	const action = "selfOutputVolume"
	current := 0.0
	if op != VolumeSet {
		vs, err := a.settings(action)
		if err != nil {
			return a.fail(action, err)
		}
		current = vs.Output.Volume
	}

	volume, err := adjust(op, current, amount, MaxOutputVolume)
	if err != nil {
		return a.fail(action, invalid(action, "%v", err))
	}
	update := rpc.VoiceSettingsUpdate{Output: &rpc.DeviceUpdate{Volume: &volume}}
	if _, err := a.client.SetVoiceSettings(ctx, update); err != nil {
		return a.fail(action, err)
	}
	return nil
}

// target resolves a user option against the roster. An empty option means
// the selected user. The local user is never a target.
func (a *Actions) target(action, query string) (voice.VoiceUser, error) {
	q := strings.TrimSpace(a.expand(query))
	if q == "" {
		q = a.store.SelectedUser()
	}
	if q == "" {
		return voice.VoiceUser{}, invalid(action, "no user given and none selected")
	}

	u, by, ok := resolveUser(q, a.store.SortedVoiceUsers(false))
	if !ok {
		return voice.VoiceUser{}, invalid(action, "user %q not found", q)
	}
	a.debugf("%s: %q matched %s by %s", action, q, u.User.ID, by)
	if self, ok := a.store.User(); ok && self.ID == u.User.ID {
		return voice.VoiceUser{}, invalid(action, "cannot target self")
	}
	return u, nil
}

// OtherMute changes the local mute override for another user.
func (a *Actions) OtherMute(ctx context.Context, user string, op MuteOp) error {
	const action = "otherMute"
	u, err := a.target(action, user)
	if err != nil {
		return a.fail(action, err)
	}

	mute := u.Mute
	switch op {
	case MuteToggle:
		mute = !mute
	case MuteOn:
		mute = true
	case MuteOff:
		mute = false
	default:
		return a.fail(action, invalid(action, "unknown type %q", op))
	}

	if err := a.client.SetUserVoiceSettings(ctx, u.User.ID, rpc.UserSettings{Mute: &mute}); err != nil {
		return a.fail(action, err)
	}
	return nil
}

// OtherVolume sets or nudges the local volume for another user within
// [0,200].
func (a *Actions) OtherVolume(ctx context.Context, user string, op VolumeOp, amount float64) error {
	const action = "otherVolume"
	u, err := a.target(action, user)
	if err != nil {
		return a.fail(action, err)
	}

	volume, err := adjust(op, u.Volume, amount, MaxUserVolume)
	if err != nil {
		return a.fail(action, invalid(action, "%v", err))
	}
	a.debugf("%s: %s volume %.0f -> %.0f", action, u.User.ID, u.Volume, volume)

	if err := a.client.SetUserVoiceSettings(ctx, u.User.ID, rpc.UserSettings{Volume: &volume}); err != nil {
		return a.fail(action, err)
	}
	return nil
}

// JoinOptions configures JoinVoiceChannel.
type JoinOptions struct {
	ChannelID string `json:"channel"`
	Force     bool   `json:"force"`
	// Leave makes a press on the current channel leave it.
	Leave bool `json:"leave"`
}

// noChannel is the picker placeholder id.
const noChannel = "0"

// JoinVoiceChannel joins a voice channel, or leaves it when already joined
// and Leave is set.
func (a *Actions) JoinVoiceChannel(ctx context.Context, opts JoinOptions) error {
	const action = "joinVoiceChannel"
	if opts.ChannelID == "" || opts.ChannelID == noChannel {
		return nil
	}

	target := opts.ChannelID
	if target == a.store.VoiceChannelID() {
		if !opts.Leave {
			return nil
		}
		target = ""
	}

	if err := a.client.SelectVoiceChannel(ctx, target, rpc.SelectOptions{Force: opts.Force}); err != nil {
		return a.fail(action, err)
	}
	return nil
}

// LeaveVoiceChannel leaves the current voice channel, if any.
func (a *Actions) LeaveVoiceChannel(ctx context.Context) error {
	if a.store.VoiceChannelID() == "" {
		return nil
	}
	if err := a.client.SelectVoiceChannel(ctx, "", rpc.SelectOptions{}); err != nil {
		return a.fail("leaveVoiceChannel", err)
	}
	return nil
}

// JoinTextChannel focuses a text channel.
func (a *Actions) JoinTextChannel(ctx context.Context, channelID string) error {
	if channelID == "" || channelID == noChannel {
		return nil
	}
	if err := a.client.SelectTextChannel(ctx, channelID); err != nil {
		return a.fail("joinTextChannel", err)
	}
	return nil
}

// SelectUser toggles the selected user and returns the new selection.
func (a *Actions) SelectUser(user string) (string, error) {
	const action = "selectUser"
	q := strings.TrimSpace(a.expand(user))
	u, ok := ResolveUser(q, a.store.SortedVoiceUsers(false))
	if !ok {
		return a.store.SelectedUser(), a.fail(action, invalid(action, "user %q not found", q))
	}
	return a.store.SelectUser(u.User.ID), nil
}

// ActivityOptions are the rich presence button options.
type ActivityOptions struct {
	State        string `json:"state"`
	Details      string `json:"details"`
	LargeImage   string `json:"large_image"`
	LargeText    string `json:"large_text"`
	SmallImage   string `json:"small_image"`
	SmallText    string `json:"small_text"`
	Button1Label string `json:"button1_label"`
	Button1URL   string `json:"button1_url"`
	Button2Label string `json:"button2_label"`
	Button2URL   string `json:"button2_url"`
	StartTime    bool   `json:"start_time"`
}

// Activity builds the rich presence payload. State and details are
// required; the second button needs the first.
func (a *Actions) Activity(opts ActivityOptions) (rpc.Activity, error) {
	const action = "setActivity"
	act := rpc.Activity{
		State:   a.expand(opts.State),
		Details: a.expand(opts.Details),
	}
	if act.State == "" || act.Details == "" {
		return act, invalid(action, "activity must have a state and details")
	}

	if img := a.expand(opts.LargeImage); img != "" || opts.SmallImage != "" {
		act.Assets = &rpc.ActivityAssets{}
		if img != "" {
			act.Assets.LargeImage = img
			act.Assets.LargeText = a.expand(opts.LargeText)
		}
		if small := a.expand(opts.SmallImage); small != "" {
			act.Assets.SmallImage = small
			act.Assets.SmallText = a.expand(opts.SmallText)
		}
	}

	b1 := rpc.ActivityButton{Label: a.expand(opts.Button1Label), URL: a.expand(opts.Button1URL)}
	if b1.Label != "" && b1.URL != "" {
		act.Buttons = []rpc.ActivityButton{b1}
		b2 := rpc.ActivityButton{Label: a.expand(opts.Button2Label), URL: a.expand(opts.Button2URL)}
		if b2.Label != "" && b2.URL != "" {
			act.Buttons = append(act.Buttons, b2)
		}
	}

	if opts.StartTime {
		act.Timestamps = &rpc.ActivityTimestamps{Start: a.clock.Now().UnixMilli()}
	}
	return act, nil
}

// SetActivity sets the rich presence.
func (a *Actions) SetActivity(ctx context.Context, opts ActivityOptions) error {
	const action = "setActivity"
	act, err := a.Activity(opts)
	if err != nil {
		return a.fail(action, err)
	}
	a.debugf("setting activity %q / %q", act.Details, act.State)
	if err := a.client.SetActivity(ctx, act); err != nil {
		return a.fail(action, err)
	}
	return nil
}

// ClearActivity removes the rich presence.
func (a *Actions) ClearActivity(ctx context.Context) error {
	a.debugf("clearing activity")
	if err := a.client.ClearActivity(ctx); err != nil {
		return a.fail("clearActivity", err)
	}
	return nil
}

// PushToTalk switches between push-to-talk and voice activity.
func (a *Actions) PushToTalk(ctx context.Context, op InputModeOp) error {
	const action = "pushToTalk"
	var mode string
	switch op {
	case InputModePushToTalk:
		mode = voice.ModePushToTalk
	case InputModeVoiceActivity:
		mode = voice.ModeVoiceActivity
	case InputModeToggle:
		vs, err := a.settings(action)
		if err != nil {
			return a.fail(action, err)
		}
		mode = voice.ModePushToTalk
		if vs.Mode.Type == voice.ModePushToTalk {
			mode = voice.ModeVoiceActivity
		}
	default:
		return a.fail(action, invalid(action, "unknown type %q", op))
	}

	if vs, ok := a.store.VoiceSettings(); ok && vs.Mode.Type == mode {
		return nil
	}
	if _, err := a.client.SetVoiceSettings(ctx, rpc.VoiceSettingsUpdate{Mode: &rpc.ModeUpdate{Type: mode}}); err != nil {
		return a.fail(action, err)
	}
	return nil
}

// PlaySoundboardSound plays a sound in the current voice channel. Request
// errors are logged by the client.
func (a *Actions) PlaySoundboardSound(ctx context.Context, guildID, soundID string) error {
	const action = "playSoundboardSound"
	if soundID == "" {
		return a.fail(action, invalid(action, "sound id is required"))
	}
	a.client.PlaySoundboardSound(ctx, guildID, soundID)
	return nil
}

// ToggleCamera toggles the camera.
func (a *Actions) ToggleCamera(ctx context.Context) error {
	if err := a.client.ToggleVideo(ctx); err != nil {
		return a.fail("toggleCamera", err)
	}
	return nil
}

// ToggleScreenshare toggles screen sharing.
func (a *Actions) ToggleScreenshare(ctx context.Context) error {
	if err := a.client.ToggleScreenshare(ctx); err != nil {
		return a.fail("toggleScreenshare", err)
	}
	return nil
}

// SendWebhook posts a webhook message with variables expanded.
func (a *Actions) SendWebhook(ctx context.Context, m webhook.Message) error {
	const action = "sendWebhook"
	if a.webhook == nil {
		return a.fail(action, invalid(action, "webhooks are not configured"))
	}
	if strings.TrimSpace(m.URL) == "" {
		return a.fail(action, invalid(action, "invalid webhook url"))
	}
	if err := a.webhook.Send(ctx, m, a.vars()); err != nil {
		return a.fail(action, err)
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }
