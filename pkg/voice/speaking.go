// ABOUTME: Speaking set with a debounced delayed view
// ABOUTME: Per-user timers promote speakers after the configured delay
package voice

import (
	"slices"

	"github.com/bitfocus/companion-module-discord-api/internal/clock"
)

type speakTimer struct {
	timer clock.Timer
}

// SpeakingStart marks the user as speaking and schedules promotion into the
// delayed set. A start while a timer is already pending keeps that timer.
// It reports false and does nothing outside a voice channel.
func (s *Store) SpeakingStart(userID string) bool {
	s.mu.Lock()
	if s.voiceChannel == nil {
		s.mu.Unlock()
		return false
	}
	s.speaking[userID] = true

	if s.config.SpeakerDelay <= 0 {
		s.delayed[userID] = true
	} else if _, pending := s.timers[userID]; !pending && !s.delayed[userID] {
		entry := &speakTimer{}
		s.timers[userID] = entry
		entry.timer = s.config.Clock.AfterFunc(s.config.SpeakerDelay, func() {
			s.promoteSpeaker(userID, entry)
		})
	}
	s.mu.Unlock()
	s.notify(TopicSpeaking)
	return true
}

// SpeakingStop removes the user from both sets and cancels its timer.
func (s *Store) SpeakingStop(userID string) {
	s.mu.Lock()
	delete(s.speaking, userID)
	delete(s.delayed, userID)
	if entry, ok := s.timers[userID]; ok {
		entry.timer.Stop()
		delete(s.timers, userID)
	}
	s.mu.Unlock()
	s.notify(TopicSpeaking)
}

func (s *Store) promoteSpeaker(userID string, entry *speakTimer) {
	s.mu.Lock()
	// a stop or reset since scheduling replaced or removed the entry
	if s.timers[userID] != entry {
		s.mu.Unlock()
		return
	}
	delete(s.timers, userID)
	s.delayed[userID] = true
	s.mu.Unlock()
	s.notify(TopicSpeaking)
}

// IsSpeaking reports whether the user is in the speaking set, or in the
// delayed set when delayed is true.
func (s *Store) IsSpeaking(userID string, delayed bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if delayed {
		return s.delayed[userID]
	}
	return s.speaking[userID]
}

// Speaking returns the sorted ids in the speaking or delayed set.
func (s *Store) Speaking(delayed bool) []string {
	s.mu.RLock()
	set := s.speaking
	if delayed {
		set = s.delayed
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// PendingSpeakingTimers returns how many debounce timers are outstanding.
func (s *Store) PendingSpeakingTimers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.timers)
}

func (s *Store) clearSpeakingLocked() bool {
	changed := len(s.speaking) > 0 || len(s.delayed) > 0 || len(s.timers) > 0
	for id, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, id)
	}
	clear(s.speaking)
	clear(s.delayed)
	return changed
}
