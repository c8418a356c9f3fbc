// ABOUTME: Event subscriptions and the voice-scoped subscription set
// ABOUTME: Tears down and recreates the five voice topics atomically
package rpc

import (
	"context"
	"log"
	"sync"
)

// Subscription is an active SUBSCRIBE. Unsubscribe sends the matching
// UNSUBSCRIBE at most once.
type Subscription struct {
	client *Client
	event  Event
	args   any

	once sync.Once
	err  error
}

// Event returns the subscribed event name.
func (s *Subscription) Event() Event {
	return s.event
}

// Unsubscribe sends UNSUBSCRIBE. Later calls return the first result.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	s.once.Do(func() {
		if _, err := s.client.request(ctx, CmdUnsubscribe, s.args, s.event); err != nil {
			s.err = &SubscriptionError{Cmd: CmdUnsubscribe, Event: s.event, Err: err}
		}
	})
	return s.err
}

// Subscribe sends SUBSCRIBE for evt. The handle is returned even when the
// peer rejects the subscription; the rejection is returned as a
// *SubscriptionError.
func (c *Client) Subscribe(ctx context.Context, evt Event, args any) (*Subscription, error) {
	sub := &Subscription{client: c, event: evt, args: args}
	if _, err := c.request(ctx, CmdSubscribe, args, evt); err != nil {
		if isDisconnect(err) {
			return sub, err
		}
		return sub, &SubscriptionError{Cmd: CmdSubscribe, Event: evt, Err: err}
	}
	return sub, nil
}

// ResetVoiceSubscriptions recreates the voice subscriptions for the active
// voice channel, or removes them when there is none.
func (c *Client) ResetVoiceSubscriptions(ctx context.Context) {
	c.resetVoiceSubscriptions(ctx, c.store.VoiceChannelID())
}

// resetVoiceSubscriptions unsubscribes every voice topic and, when
// channelID is set, subscribes them again scoped to it. Handles are cleared
// before any UNSUBSCRIBE is sent.
func (c *Client) resetVoiceSubscriptions(ctx context.Context, channelID string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	old := c.voiceSubs
	c.voiceSubs = nil

	for _, evt := range VoiceEvents {
		sub := old[evt]
		if sub == nil {
			continue
		}
		if err := sub.Unsubscribe(ctx); err != nil {
			log.Printf("%v", err)
		}
	}

	if channelID == "" {
		return
	}

	subs := make(map[Event]*Subscription, len(VoiceEvents))
	args := channelArgs{ChannelID: channelID}
	for _, evt := range VoiceEvents {
		sub, err := c.Subscribe(ctx, evt, args)
		if err != nil {
			log.Printf("%v", err)
			if isDisconnect(err) {
				return
			}
		}
		subs[evt] = sub
	}
	c.voiceSubs = subs
}

// VoiceSubscriptions returns the events currently subscribed for the voice
// channel.
func (c *Client) VoiceSubscriptions() []Event {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	var out []Event
	for _, evt := range VoiceEvents {
		if c.voiceSubs[evt] != nil {
			out = append(out, evt)
		}
	}
	return out
}
