// ABOUTME: Button variables derived from the voice store
// ABOUTME: Flat name/value strings with change tracking for publishers
package variables

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/bitfocus/companion-module-discord-api/pkg/voice"
)

// Values maps variable names to their string values.
type Values map[string]string

// Names of the fixed variables.
const (
	ConnectionStatus   = "voice_connection_status"
	ConnectionHostname = "voice_connection_hostname"
	ConnectionPing     = "voice_connection_ping"
	ConnectionPingAvg  = "voice_connection_ping_avg"
	ConnectionPingMin  = "voice_connection_ping_min"
	ConnectionPingMax  = "voice_connection_ping_max"
	SelfInputVolume    = "voice_self_input_volume"
	SelfOutputVolume   = "voice_self_output_volume"
	SelfMute           = "voice_self_mute"
	SelfDeaf           = "voice_self_deaf"
	ChannelName        = "voice_channel_name"
	SelectedID         = "voice_user_selected_id"
	SelectedNick       = "voice_user_selected_nick"
	SelectedVolume     = "voice_user_selected_volume"
)

// UserNick is the name of the nick variable for roster index i.
func UserNick(i int) string { return fmt.Sprintf("voice_user_%d_nick", i) }

// UserID is the name of the id variable for roster index i.
func UserID(i int) string { return fmt.Sprintf("voice_user_%d_id", i) }

// UserSpeaking is the name of the speaking variable for roster index i.
func UserSpeaking(i int) string { return fmt.Sprintf("voice_user_%d_speaking", i) }

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func volume(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Build computes every variable from a store snapshot. Roster variables
// are indexed like the sorted roster, self included.
func Build(snap voice.Snapshot) Values {
	v := Values{}

	cs := snap.ConnectionStatus
	v[ConnectionStatus] = cs.State
	v[ConnectionHostname] = cs.Hostname
	v[ConnectionPing], v[ConnectionPingAvg] = "", ""
	v[ConnectionPingMin], v[ConnectionPingMax] = "", ""
	if cs.LastPing > 0 {
		v[ConnectionPing] = number(cs.LastPing)
	}
	if len(cs.Pings) > 0 {
		lo, hi, sum := cs.Pings[0].Value, cs.Pings[0].Value, 0.0
		for _, p := range cs.Pings {
			lo, hi, sum = min(lo, p.Value), max(hi, p.Value), sum+p.Value
		}
		v[ConnectionPingMin] = number(lo)
		v[ConnectionPingMax] = number(hi)
		avg := cs.AveragePing
		if avg == 0 {
			avg = sum / float64(len(cs.Pings))
		}
		v[ConnectionPingAvg] = volume(avg)
		if v[ConnectionPing] == "" {
			v[ConnectionPing] = number(cs.Pings[len(cs.Pings)-1].Value)
		}
	}

	v[SelfInputVolume], v[SelfOutputVolume] = "", ""
	v[SelfMute], v[SelfDeaf] = "", ""
	if vs := snap.VoiceSettings; vs != nil {
		v[SelfInputVolume] = volume(vs.Input.Volume)
		v[SelfOutputVolume] = volume(vs.Output.Volume)
		v[SelfMute] = strconv.FormatBool(vs.Mute)
		v[SelfDeaf] = strconv.FormatBool(vs.Deaf)
	}

	v[ChannelName] = ""
	var roster []voice.VoiceUser
	if vc := snap.VoiceChannel; vc != nil {
		v[ChannelName] = vc.Name
		roster = vc.VoiceStates
	}

	v[SelectedID] = snap.SelectedUser
	v[SelectedNick], v[SelectedVolume] = "", ""
	for i, u := range roster {
		v[UserNick(i)] = u.DisplayName()
		v[UserID(i)] = u.User.ID
		v[UserSpeaking(i)] = strconv.FormatBool(snap.DelayedSpeaking[u.User.ID])
		if u.User.ID == snap.SelectedUser {
			v[SelectedNick] = u.DisplayName()
			v[SelectedVolume] = volume(u.Volume)
		}
	}
	return v
}

// Tracker remembers the last published values so callers can send only
// what changed. Roster variables that disappear are blanked rather than
// dropped.
type Tracker struct {
	mu   sync.Mutex
	last Values
}

// Current returns a copy of the last published values.
func (t *Tracker) Current() Values {
	t.mu.Lock()
	defer t.mu.Unlock()
	return maps.Clone(t.last)
}

// Update records next and returns the variables whose value changed.
func (t *Tracker) Update(next Values) Values {
	t.mu.Lock()
	defer t.mu.Unlock()

	for name := range t.last {
		if _, ok := next[name]; !ok {
			next[name] = ""
		}
	}

	changed := Values{}
	for name, value := range next {
		if old, ok := t.last[name]; !ok || old != value {
			changed[name] = value
		}
	}
	t.last = next
	return changed
}

// Names returns the variable names of v, sorted.
func (v Values) Names() []string {
	return slices.Sorted(maps.Keys(v))
}
