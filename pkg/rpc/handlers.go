// ABOUTME: Typed dispatch table for RPC push events
// ABOUTME: Each handler folds one event into the voice store
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/bitfocus/companion-module-discord-api/pkg/voice"
)

type eventHandler func(ctx context.Context, data json.RawMessage) error

func (c *Client) eventHandlers() map[Event]eventHandler {
	return map[Event]eventHandler{
		EvtVoiceChannelSelect:    c.onVoiceChannelSelect,
		EvtChannelCreate:         c.onChannelsChanged,
		EvtGuildCreate:           c.onChannelsChanged,
		EvtVoiceConnectionStatus: c.onVoiceConnectionStatus,
		EvtVoiceSettingsUpdate:   c.onVoiceSettingsUpdate,
		EvtVoiceStateCreate:      c.onVoiceStateUpsert,
		EvtVoiceStateUpdate:      c.onVoiceStateUpsert,
		EvtVoiceStateDelete:      c.onVoiceStateDelete,
		EvtSpeakingStart:         c.onSpeakingStart,
		EvtSpeakingStop:          c.onSpeakingStop,
	}
}

func decode[T any](data json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decoding event data: %w", err)
	}
	return v, nil
}

func (c *Client) onVoiceChannelSelect(ctx context.Context, data json.RawMessage) error {
	sel, err := decode[voiceChannelSelectData](data)
	if err != nil {
		return err
	}

	if sel.ChannelID == nil || *sel.ChannelID == "" {
		c.store.SetVoiceChannel(nil)
		c.resetVoiceSubscriptions(ctx, "")
		return nil
	}

	vc, err := c.GetSelectedVoiceChannel(ctx)
	if err != nil {
		return err
	}
	c.store.SetVoiceChannel(vc)
	c.resetVoiceSubscriptions(ctx, *sel.ChannelID)
	return nil
}

func (c *Client) onChannelsChanged(ctx context.Context, _ json.RawMessage) error {
	return c.RefreshChannels(ctx)
}

func (c *Client) onVoiceConnectionStatus(_ context.Context, data json.RawMessage) error {
	status, err := decode[voice.ConnectionStatus](data)
	if err != nil {
		return err
	}
	c.store.SetConnectionStatus(status)
	return nil
}

func (c *Client) onVoiceSettingsUpdate(_ context.Context, data json.RawMessage) error {
	settings, err := decode[voice.VoiceSettings](data)
	if err != nil {
		return err
	}
	c.store.SetVoiceSettings(settings)
	return nil
}

func (c *Client) onVoiceStateUpsert(_ context.Context, data json.RawMessage) error {
	user, err := decode[voice.VoiceUser](data)
	if err != nil {
		return err
	}
	c.store.UpsertVoiceState(user)
	return nil
}

// onVoiceStateDelete removes the user. When the local user disappears but
// Discord reports a different channel, the user was moved: the store and
// voice subscriptions follow the new channel.
func (c *Client) onVoiceStateDelete(ctx context.Context, data json.RawMessage) error {
	user, err := decode[voice.VoiceUser](data)
	if err != nil {
		return err
	}

	tracked := c.store.VoiceChannelID()
	c.store.RemoveVoiceState(user.User.ID)

	self, ok := c.store.User()
	if !ok || self.ID != user.User.ID {
		return nil
	}

	vc, err := c.GetSelectedVoiceChannel(ctx)
	if err != nil {
		return err
	}

	var current string
	if vc != nil {
		current = vc.ID
	}
	if current == tracked {
		return nil
	}

	log.Printf("rpc: moved from voice channel %q to %q", tracked, current)
	c.store.SetVoiceChannel(vc)
	c.resetVoiceSubscriptions(ctx, current)
	return nil
}

// onSpeakingStart ignores events for any channel but the tracked one. They
// can still arrive after a leave while the unsubscribes are in flight.
func (c *Client) onSpeakingStart(_ context.Context, data json.RawMessage) error {
	sp, err := decode[speakingData](data)
	if err != nil {
		return err
	}
	if current := c.store.VoiceChannelID(); sp.ChannelID != "" && sp.ChannelID != current {
		if c.config.Debug {
			log.Printf("rpc: dropping SPEAKING_START for %s in %q (tracking %q)", sp.UserID, sp.ChannelID, current)
		}
		return nil
	}
	c.store.SpeakingStart(sp.UserID)
	return nil
}

func (c *Client) onSpeakingStop(_ context.Context, data json.RawMessage) error {
	sp, err := decode[speakingData](data)
	if err != nil {
		return err
	}
	c.store.SpeakingStop(sp.UserID)
	return nil
}
