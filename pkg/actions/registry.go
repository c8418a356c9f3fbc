// ABOUTME: Name-based action dispatch for remote callers
// ABOUTME: Decodes JSON options and runs the matching action
package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/bitfocus/companion-module-discord-api/internal/webhook"
)

// ErrUnknownAction is returned by Run for names not in the registry.
type ErrUnknownAction string

func (e ErrUnknownAction) Error() string {
	return fmt.Sprintf("unknown action %q", string(e))
}

type typeOptions struct {
	Type string `json:"type"`
}

type volumeOptions struct {
	Type   string  `json:"type"`
	Volume float64 `json:"volume"`
}

type userOptions struct {
	User   string  `json:"user"`
	Type   string  `json:"type"`
	Volume float64 `json:"volume"`
}

type channelOptions struct {
	Channel string `json:"channel"`
}

type soundOptions struct {
	GuildID string `json:"guild_id"`
	SoundID string `json:"sound_id"`
}

type runner func(a *Actions, ctx context.Context, raw json.RawMessage) error

// bind decodes options into T before calling fn. Empty bodies decode to
// the zero value.
func bind[T any](fn func(a *Actions, ctx context.Context, opts T) error) runner {
	return func(a *Actions, ctx context.Context, raw json.RawMessage) error {
		var opts T
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &opts); err != nil {
				return invalid("options", "%v", err)
			}
		}
		return fn(a, ctx, opts)
	}
}

func withDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

var registry = map[string]runner{
	"selfMute": bind(func(a *Actions, ctx context.Context, o typeOptions) error {
		return a.SelfMute(ctx, MuteOp(withDefault(o.Type, string(MuteToggle))))
	}),
	"selfDeafen": bind(func(a *Actions, ctx context.Context, o typeOptions) error {
		return a.SelfDeafen(ctx, DeafenOp(withDefault(o.Type, string(DeafenToggle))))
	}),
	"selfInputVolume": bind(func(a *Actions, ctx context.Context, o volumeOptions) error {
		return a.SelfInputVolume(ctx, VolumeOp(withDefault(o.Type, string(VolumeSet))), o.Volume)
	}),
	"selfOutputVolume": bind(func(a *Actions, ctx context.Context, o volumeOptions) error {
		return a.SelfOutputVolume(ctx, VolumeOp(withDefault(o.Type, string(VolumeSet))), o.Volume)
	}),
	"otherMute": bind(func(a *Actions, ctx context.Context, o userOptions) error {
		return a.OtherMute(ctx, o.User, MuteOp(withDefault(o.Type, string(MuteToggle))))
	}),
	"otherVolume": bind(func(a *Actions, ctx context.Context, o userOptions) error {
		return a.OtherVolume(ctx, o.User, VolumeOp(withDefault(o.Type, string(VolumeSet))), o.Volume)
	}),
	"joinVoiceChannel": bind(func(a *Actions, ctx context.Context, o JoinOptions) error {
		return a.JoinVoiceChannel(ctx, o)
	}),
	"leaveVoiceChannel": bind(func(a *Actions, ctx context.Context, _ struct{}) error {
		return a.LeaveVoiceChannel(ctx)
	}),
	"joinTextChannel": bind(func(a *Actions, ctx context.Context, o channelOptions) error {
		return a.JoinTextChannel(ctx, o.Channel)
	}),
	"selectUser": bind(func(a *Actions, _ context.Context, o userOptions) error {
		_, err := a.SelectUser(o.User)
		return err
	}),
	"setActivity": bind(func(a *Actions, ctx context.Context, o ActivityOptions) error {
		return a.SetActivity(ctx, o)
	}),
	"clearActivity": bind(func(a *Actions, ctx context.Context, _ struct{}) error {
		return a.ClearActivity(ctx)
	}),
	"pushToTalk": bind(func(a *Actions, ctx context.Context, o typeOptions) error {
		return a.PushToTalk(ctx, InputModeOp(withDefault(o.Type, string(InputModeToggle))))
	}),
	"playSoundboardSound": bind(func(a *Actions, ctx context.Context, o soundOptions) error {
		return a.PlaySoundboardSound(ctx, o.GuildID, o.SoundID)
	}),
	"toggleCamera": bind(func(a *Actions, ctx context.Context, _ struct{}) error {
		return a.ToggleCamera(ctx)
	}),
	"toggleScreenshare": bind(func(a *Actions, ctx context.Context, _ struct{}) error {
		return a.ToggleScreenshare(ctx)
	}),
	"sendWebhook": bind(func(a *Actions, ctx context.Context, m webhook.Message) error {
		return a.SendWebhook(ctx, m)
	}),
}

// Names lists every action Run accepts, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Run decodes raw into the options of the named action and runs it.
func (a *Actions) Run(ctx context.Context, name string, raw json.RawMessage) error {
	run, ok := registry[name]
	if !ok {
		return ErrUnknownAction(name)
	}
	return run(a, ctx, raw)
}
