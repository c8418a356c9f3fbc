// ABOUTME: Tests for roster ordering under create/update/delete sequences
// ABOUTME: Uniqueness, total ordering, idempotence and the join scenario
package voice

import (
	"fmt"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func voiceUser(id, nick string) VoiceUser {
	return VoiceUser{Nick: nick, Volume: 100, User: User{ID: id, Username: "user" + id}}
}

func storeInChannel(t *testing.T, roster ...VoiceUser) *Store {
	t.Helper()
	s := NewStore(Config{})
	s.SetVoiceChannel(&VoiceChannel{
		Channel:     Channel{ID: "vc", GuildID: "g", Name: "General"},
		VoiceStates: roster,
	})
	return s
}

func rosterIDs(users []VoiceUser) []string {
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.User.ID
	}
	return ids
}

func TestRosterJoinScenario(t *testing.T) {
	s := storeInChannel(t, voiceUser("1", "Bea"), voiceUser("2", "Al"))

	require.True(t, s.UpsertVoiceState(voiceUser("3", "Cy")))

	roster := s.VoiceChannel().VoiceStates
	nicks := []string{}
	for _, u := range roster {
		nicks = append(nicks, u.Nick)
	}
	assert.Equal(t, []string{"Al", "Bea", "Cy"}, nicks)
}

func TestRosterTieBreaksOnID(t *testing.T) {
	s := storeInChannel(t, voiceUser("20", "Sam"), voiceUser("10", "Sam"), voiceUser("5", "Ann"))
	assert.Equal(t, []string{"5", "10", "20"}, rosterIDs(s.VoiceChannel().VoiceStates))
}

func TestRosterDedupesInitialSnapshot(t *testing.T) {
	s := storeInChannel(t, voiceUser("1", "Old"), voiceUser("2", "B"), voiceUser("1", "New"))
	roster := s.VoiceChannel().VoiceStates
	require.Len(t, roster, 2)
	assert.Equal(t, "B", roster[0].Nick)
	assert.Equal(t, "New", roster[1].Nick)
}

func TestRosterUpdateIdempotent(t *testing.T) {
	s := storeInChannel(t, voiceUser("1", "Bea"), voiceUser("2", "Al"))

	update := voiceUser("1", "Bea")
	update.VoiceState.SelfMute = true
	update.Volume = 50

	s.UpsertVoiceState(update)
	once := s.VoiceChannel().VoiceStates
	s.UpsertVoiceState(update)
	twice := s.VoiceChannel().VoiceStates

	assert.Equal(t, once, twice)
}

func TestRosterIgnoredWithoutChannel(t *testing.T) {
	s := NewStore(Config{})
	assert.False(t, s.UpsertVoiceState(voiceUser("1", "A")))
	assert.False(t, s.RemoveVoiceState("1"))
	assert.Empty(t, s.SortedVoiceUsers(false))
}

func TestRosterRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	nicks := []string{"al", "Al", "bea", "cy", "", "zed"}

	for iter := 0; iter < 200; iter++ {
		s := storeInChannel(t)
		for step := 0; step < 40; step++ {
			id := fmt.Sprint(rng.Intn(12))
			switch rng.Intn(3) {
			case 0, 1:
				s.UpsertVoiceState(voiceUser(id, nicks[rng.Intn(len(nicks))]))
			case 2:
				s.RemoveVoiceState(id)
			}

			roster := s.VoiceChannel().VoiceStates
			ids := rosterIDs(roster)
			unique := slices.Clone(ids)
			slices.Sort(unique)
			require.Equal(t, len(ids), len(slices.Compact(unique)), "duplicate ids in %v", ids)
			require.True(t, slices.IsSortedFunc(roster, compareVoiceUsers), "roster not sorted: %v", roster)
		}
	}
}

func TestSortedVoiceUsersSelfFilter(t *testing.T) {
	s := storeInChannel(t, voiceUser("1", "Bea"), voiceUser("2", "Al"), voiceUser("3", "Me"))
	s.SetUser(User{ID: "3", Username: "me"})

	// default roster includes self so index addressing is stable
	assert.Equal(t, []string{"2", "1", "3"}, rosterIDs(s.SortedVoiceUsers(false)))
	assert.Equal(t, []string{"2", "1"}, rosterIDs(s.SortedVoiceUsers(true)))
}
