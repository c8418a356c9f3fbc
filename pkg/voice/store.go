// ABOUTME: Authoritative in-memory voice state
// ABOUTME: Guarded by a RWMutex with change notifications fired after unlock
package voice

import (
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bitfocus/companion-module-discord-api/internal/clock"
)

// Topic is a bitmask naming what changed.
type Topic uint32

const (
	TopicUser Topic = 1 << iota
	TopicGuilds
	TopicVoiceChannel
	TopicRoster
	TopicSpeaking
	TopicVoiceSettings
	TopicConnectionStatus
	TopicSelection

	TopicAll = TopicUser | TopicGuilds | TopicVoiceChannel | TopicRoster |
		TopicSpeaking | TopicVoiceSettings | TopicConnectionStatus | TopicSelection
)

// Has reports whether any bit of other is set.
func (t Topic) Has(other Topic) bool {
	return t&other != 0
}

// Config holds store configuration
type Config struct {
	// SpeakerDelay is how long a user must keep speaking before entering
	// the delayed speaking set. Zero adds them immediately.
	SpeakerDelay time.Duration
	Clock        clock.Clock
}

// Store holds the mirrored voice state. All methods are safe for concurrent
// use. Watchers are called after the lock is released, on the goroutine that
// made the change.
type Store struct {
	config Config

	mu               sync.RWMutex
	user             *User
	guilds           []Guild
	channels         []Channel
	voiceChannel     *VoiceChannel
	speaking         map[string]bool
	delayed          map[string]bool
	timers           map[string]*speakTimer
	voiceSettings    *VoiceSettings
	connectionStatus ConnectionStatus
	selected         string

	watchMu  sync.Mutex
	watchers map[int]func(Topic)
	nextID   int
}

// NewStore creates an empty store
func NewStore(config Config) *Store {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	return &Store{
		config:           config,
		speaking:         make(map[string]bool),
		delayed:          make(map[string]bool),
		timers:           make(map[string]*speakTimer),
		connectionStatus: ConnectionStatus{State: "DISCONNECTED"},
		watchers:         make(map[int]func(Topic)),
	}
}

// Watch registers fn for change notifications and returns a cancel func.
func (s *Store) Watch(fn func(Topic)) func() {
	s.watchMu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.watchMu.Unlock()

	return func() {
		s.watchMu.Lock()
		delete(s.watchers, id)
		s.watchMu.Unlock()
	}
}

func (s *Store) notify(topic Topic) {
	if topic == 0 {
		return
	}
	s.watchMu.Lock()
	fns := slices.Collect(maps.Values(s.watchers))
	s.watchMu.Unlock()

	for _, fn := range fns {
		fn(topic)
	}
}

// Snapshot is a deep copy of the store.
type Snapshot struct {
	User             *User            `json:"user"`
	Guilds           []Guild          `json:"guilds"`
	Channels         []Channel        `json:"channels"`
	VoiceChannel     *VoiceChannel    `json:"voice_channel"`
	Speaking         map[string]bool  `json:"speaking"`
	DelayedSpeaking  map[string]bool  `json:"delayed_speaking"`
	VoiceSettings    *VoiceSettings   `json:"voice_settings"`
	ConnectionStatus ConnectionStatus `json:"connection_status"`
	SelectedUser     string           `json:"selected_user"`
}

// Snapshot returns a consistent copy of the whole state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Guilds:           slices.Clone(s.guilds),
		Channels:         slices.Clone(s.channels),
		VoiceChannel:     s.voiceChannelLocked(),
		Speaking:         maps.Clone(s.speaking),
		DelayedSpeaking:  maps.Clone(s.delayed),
		ConnectionStatus: s.connectionStatus,
		SelectedUser:     s.selected,
	}
	snap.ConnectionStatus.Pings = slices.Clone(s.connectionStatus.Pings)
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	if s.voiceSettings != nil {
		vs := *s.voiceSettings
		snap.VoiceSettings = &vs
	}
	return snap
}

// SetUser records the authenticated user.
func (s *Store) SetUser(u User) {
	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()
	s.notify(TopicUser)
}

// User returns the authenticated user.
func (s *Store) User() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

// SetGuilds replaces the guild and channel lists.
func (s *Store) SetGuilds(guilds []Guild, channels []Channel) {
	s.mu.Lock()
	s.guilds = slices.Clone(guilds)
	s.channels = slices.Clone(channels)
	s.mu.Unlock()
	s.notify(TopicGuilds)
}

// Guilds returns the guild list.
func (s *Store) Guilds() []Guild {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.guilds)
}

// Channels returns every known channel.
func (s *Store) Channels() []Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.channels)
}

// SetVoiceChannel replaces the active voice channel. nil means the local
// user left voice: speaking state and pending timers are cleared too.
func (s *Store) SetVoiceChannel(vc *VoiceChannel) {
	s.mu.Lock()
	topic := TopicVoiceChannel | TopicRoster
	if vc == nil {
		s.voiceChannel = nil
		if s.clearSpeakingLocked() {
			topic |= TopicSpeaking
		}
	} else {
		c := *vc
		c.VoiceStates = normalizeRoster(vc.VoiceStates)
		s.voiceChannel = &c
	}
	s.mu.Unlock()
	s.notify(topic)
}

// VoiceChannel returns a copy of the active voice channel, or nil.
func (s *Store) VoiceChannel() *VoiceChannel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.voiceChannelLocked()
}

func (s *Store) voiceChannelLocked() *VoiceChannel {
	if s.voiceChannel == nil {
		return nil
	}
	c := *s.voiceChannel
	c.VoiceStates = cloneRoster(s.voiceChannel.VoiceStates)
	return &c
}

// VoiceChannelID returns the active voice channel id or "".
func (s *Store) VoiceChannelID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.voiceChannel == nil {
		return ""
	}
	return s.voiceChannel.ID
}

// UpsertVoiceState replaces the roster entry for the user or inserts it.
// It is ignored when no voice channel is active.
func (s *Store) UpsertVoiceState(u VoiceUser) bool {
	s.mu.Lock()
	if s.voiceChannel == nil {
		s.mu.Unlock()
		return false
	}
	s.voiceChannel.VoiceStates = upsertRoster(s.voiceChannel.VoiceStates, u)
	s.mu.Unlock()
	s.notify(TopicRoster)
	return true
}

// RemoveVoiceState drops the roster entry for userID.
func (s *Store) RemoveVoiceState(userID string) bool {
	s.mu.Lock()
	if s.voiceChannel == nil {
		s.mu.Unlock()
		return false
	}
	var removed bool
	s.voiceChannel.VoiceStates, removed = removeFromRoster(s.voiceChannel.VoiceStates, userID)
	s.mu.Unlock()
	if removed {
		s.notify(TopicRoster)
	}
	return removed
}

// ApplyUserVoiceSettings folds a per-user settings response into the roster.
func (s *Store) ApplyUserVoiceSettings(us UserVoiceSettings) bool {
	s.mu.Lock()
	if s.voiceChannel == nil {
		s.mu.Unlock()
		return false
	}
	i := slices.IndexFunc(s.voiceChannel.VoiceStates, func(v VoiceUser) bool { return v.User.ID == us.UserID })
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	entry := &s.voiceChannel.VoiceStates[i]
	if us.Mute != nil {
		entry.Mute = *us.Mute
	}
	if us.Volume != nil {
		entry.Volume = *us.Volume
	}
	if us.Pan != nil {
		entry.Pan = *us.Pan
	}
	s.mu.Unlock()
	s.notify(TopicRoster)
	return true
}

// SortedVoiceUsers returns the roster in (Nick, ID) order. With excludeSelf
// the authenticated user is filtered out.
func (s *Store) SortedVoiceUsers(excludeSelf bool) []VoiceUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.voiceChannel == nil {
		return []VoiceUser{}
	}
	out := make([]VoiceUser, 0, len(s.voiceChannel.VoiceStates))
	for _, u := range s.voiceChannel.VoiceStates {
		if excludeSelf && s.user != nil && u.User.ID == s.user.ID {
			continue
		}
		out = append(out, u)
	}
	sortRoster(out)
	return out
}

// VoiceUser looks up a roster entry by user id.
func (s *Store) VoiceUser(userID string) (VoiceUser, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.voiceChannel == nil {
		return VoiceUser{}, false
	}
	for _, u := range s.voiceChannel.VoiceStates {
		if u.User.ID == userID {
			return u, true
		}
	}
	return VoiceUser{}, false
}

// SetVoiceSettings replaces the self voice settings.
func (s *Store) SetVoiceSettings(vs VoiceSettings) {
	s.mu.Lock()
	s.voiceSettings = &vs
	s.mu.Unlock()
	s.notify(TopicVoiceSettings)
}

// VoiceSettings returns the self voice settings once known.
func (s *Store) VoiceSettings() (VoiceSettings, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.voiceSettings == nil {
		return VoiceSettings{}, false
	}
	return *s.voiceSettings, true
}

// SetConnectionStatus replaces the voice connection status.
func (s *Store) SetConnectionStatus(cs ConnectionStatus) {
	s.mu.Lock()
	s.connectionStatus = cs
	s.mu.Unlock()
	s.notify(TopicConnectionStatus)
}

// ConnectionStatus returns the last voice connection status.
func (s *Store) ConnectionStatus() ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs := s.connectionStatus
	cs.Pings = slices.Clone(cs.Pings)
	return cs
}

// SelectUser toggles the selected user: selecting the current selection
// clears it. Returns the new selection.
func (s *Store) SelectUser(userID string) string {
	s.mu.Lock()
	if s.selected == userID {
		s.selected = ""
	} else {
		s.selected = userID
	}
	selected := s.selected
	s.mu.Unlock()
	s.notify(TopicSelection)
	return selected
}

// SelectedUser returns the selected user id or "".
func (s *Store) SelectedUser() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// TextChannelChoices lists text channels as "<guild> - <channel>", sorted.
func (s *Store) TextChannelChoices() []Choice {
	return s.channelChoices(Channel.IsText)
}

// VoiceChannelChoices lists voice channels as "<guild> - <channel>", sorted.
func (s *Store) VoiceChannelChoices() []Choice {
	return s.channelChoices(Channel.IsVoice)
}

func (s *Store) channelChoices(keep func(Channel) bool) []Choice {
	s.mu.RLock()
	names := make(map[string]string, len(s.guilds))
	for _, g := range s.guilds {
		names[g.ID] = g.Name
	}
	choices := []Choice{}
	for _, c := range s.channels {
		if keep(c) {
			choices = append(choices, Choice{ID: c.ID, Label: names[c.GuildID] + " - " + c.Name})
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(choices, func(a, b Choice) int {
		return strings.Compare(strings.ToLower(a.Label), strings.ToLower(b.Label))
	})
	return choices
}

// Reset clears everything and cancels pending speaking timers.
func (s *Store) Reset() {
	s.mu.Lock()
	s.clearSpeakingLocked()
	s.user = nil
	s.guilds = nil
	s.channels = nil
	s.voiceChannel = nil
	s.voiceSettings = nil
	s.connectionStatus = ConnectionStatus{State: "DISCONNECTED"}
	s.selected = ""
	s.mu.Unlock()
	s.notify(TopicAll)
}
