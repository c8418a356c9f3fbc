// ABOUTME: Free-text user lookup against the voice roster
// ABOUTME: Ordered matchers: id, username, nick or global name, index
package actions

import (
	"strconv"
	"strings"

	"github.com/bitfocus/companion-module-discord-api/pkg/voice"
)

type matcher struct {
	name  string
	match func(query string, roster []voice.VoiceUser) (voice.VoiceUser, bool)
}

// matchers run in order; the first hit wins.
var matchers = []matcher{
	{"id", matchID},
	{"username", matchUsername},
	{"nick", matchNick},
	{"index", matchIndex},
}

func find(roster []voice.VoiceUser, pred func(voice.VoiceUser) bool) (voice.VoiceUser, bool) {
	for _, u := range roster {
		if pred(u) {
			return u, true
		}
	}
	return voice.VoiceUser{}, false
}

func matchID(q string, roster []voice.VoiceUser) (voice.VoiceUser, bool) {
	return find(roster, func(u voice.VoiceUser) bool { return u.User.ID == q })
}

func matchUsername(q string, roster []voice.VoiceUser) (voice.VoiceUser, bool) {
	return find(roster, func(u voice.VoiceUser) bool {
		return strings.EqualFold(u.User.Username, q) ||
			(u.User.Discriminator != "" && strings.EqualFold(u.User.Tag(), q))
	})
}

func matchNick(q string, roster []voice.VoiceUser) (voice.VoiceUser, bool) {
	return find(roster, func(u voice.VoiceUser) bool {
		return (u.Nick != "" && strings.EqualFold(u.Nick, q)) ||
			(u.User.GlobalName != "" && strings.EqualFold(u.User.GlobalName, q))
	})
}

// matchIndex addresses the sorted roster, zero based.
func matchIndex(q string, roster []voice.VoiceUser) (voice.VoiceUser, bool) {
	i, err := strconv.Atoi(q)
	if err != nil || i < 0 || i >= len(roster) {
		return voice.VoiceUser{}, false
	}
	return roster[i], true
}

// ResolveUser finds a roster entry by id, username (or tag), nick or global
// name, then roster index. Text comparisons ignore case.
func ResolveUser(query string, roster []voice.VoiceUser) (voice.VoiceUser, bool) {
	u, _, ok := resolveUser(query, roster)
	return u, ok
}

// resolveUser also reports which matcher hit.
func resolveUser(query string, roster []voice.VoiceUser) (voice.VoiceUser, string, bool) {
	q := strings.TrimSpace(query)
	if q == "" {
		return voice.VoiceUser{}, "", false
	}
	for _, m := range matchers {
		if u, ok := m.match(q, roster); ok {
			return u, m.name, true
		}
	}
	return voice.VoiceUser{}, "", false
}
