// ABOUTME: Roster ordering and replace-by-id helpers
// ABOUTME: Keeps voice channel occupants unique and sorted by nick then id
package voice

import (
	"cmp"
	"slices"
)

func compareVoiceUsers(a, b VoiceUser) int {
	if c := cmp.Compare(a.Nick, b.Nick); c != 0 {
		return c
	}
	return cmp.Compare(a.User.ID, b.User.ID)
}

// sortRoster sorts in place by (Nick, ID).
func sortRoster(roster []VoiceUser) {
	slices.SortFunc(roster, compareVoiceUsers)
}

// normalizeRoster drops duplicate ids (last one wins) and sorts.
func normalizeRoster(roster []VoiceUser) []VoiceUser {
	out := make([]VoiceUser, 0, len(roster))
	index := make(map[string]int, len(roster))
	for _, u := range roster {
		if i, ok := index[u.User.ID]; ok {
			out[i] = u
			continue
		}
		index[u.User.ID] = len(out)
		out = append(out, u)
	}
	sortRoster(out)
	return out
}

// upsertRoster replaces the entry with the same user id or appends it.
func upsertRoster(roster []VoiceUser, u VoiceUser) []VoiceUser {
	i := slices.IndexFunc(roster, func(v VoiceUser) bool { return v.User.ID == u.User.ID })
	if i >= 0 {
		roster[i] = u
	} else {
		roster = append(roster, u)
	}
	sortRoster(roster)
	return roster
}

// removeFromRoster deletes the entry for userID.
func removeFromRoster(roster []VoiceUser, userID string) ([]VoiceUser, bool) {
	i := slices.IndexFunc(roster, func(v VoiceUser) bool { return v.User.ID == userID })
	if i < 0 {
		return roster, false
	}
	return slices.Delete(roster, i, i+1), true
}

func cloneRoster(roster []VoiceUser) []VoiceUser {
	if roster == nil {
		return nil
	}
	return slices.Clone(roster)
}
